package store

import (
	"context"
	"errors"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition means AdvanceStatus was asked to apply a status
	// change the transition table does not admit. The row is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RecentLimit caps how many access log rows ListRecent returns per user.
const RecentLimit = 10

// AccessLogStore is the durable record of issued PINs, scoped per user.
// Two implementations exist: bunstore (Postgres) and memory (tests/dev);
// they are interchangeable behind this interface.
type AccessLogStore interface {
	// Create inserts a new row. The caller owns the gap between vendor
	// registration and this write; a failure here after vendor success is a
	// reconciliation case, not a rollback.
	Create(ctx context.Context, log *models.AccessLog) error

	// ListRecent returns up to RecentLimit rows for the user, newest first
	// by issued_at, optionally filtered to one lock.
	ListRecent(ctx context.Context, userID int64, lockID *uuid.UUID) ([]models.AccessLog, error)

	// FindByPin locates the row a vendor unlock event refers to: the most
	// recent unused row for (pin, lockID). Returns ErrNotFound when the PIN
	// belongs to no known issuance (e.g. another system's PIN).
	FindByPin(ctx context.Context, pin string, lockID uuid.UUID) (*models.AccessLog, error)

	// AdvanceStatus moves a row forward through the transition table and
	// stamps used_at. ErrInvalidTransition if newStatus does not follow from
	// the row's current status; the row is then untouched.
	AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus string, usedAt time.Time) (*models.AccessLog, error)

	// SetDuration stamps the stay duration on an exited row.
	SetDuration(ctx context.Context, id uuid.UUID, duration time.Duration) error

	// Get fetches one row by id.
	Get(ctx context.Context, id uuid.UUID) (*models.AccessLog, error)
}

// LockStore is the registry of smart locks the service may issue PINs for.
type LockStore interface {
	Create(ctx context.Context, lock *models.SmartLock) error
	Get(ctx context.Context, id uuid.UUID) (*models.SmartLock, error)
	GetBySciener(ctx context.Context, scienerLockID int64) (*models.SmartLock, error)
	List(ctx context.Context) ([]models.SmartLock, error)
}

package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrLockNotFound means the lock id references no registered lock.
	ErrLockNotFound = errors.New("smart lock not found")

	// ErrInvalidPinType means pinType was neither entry nor exit.
	ErrInvalidPinType = errors.New("pin_type must be entry or exit")

	// ErrLockDisabled means the lock is registered but taken out of service;
	// disabled locks accept no new PINs. Unlock events for PINs issued
	// before the lock was disabled still process normally.
	ErrLockDisabled = errors.New("smart lock is disabled")

	// ErrPersistence wraps a failed store write. When it follows a vendor
	// success the two failures stay distinguishable: the vendor-side PIN was
	// already registered and a best-effort delete has been attempted.
	ErrPersistence = errors.New("failed to persist access log")

	// ErrPinExpired flags a vendor confirmation for a PIN whose validity
	// window had already lapsed. The event is anomalous and must not advance
	// the record.
	ErrPinExpired = errors.New("pin validity window has lapsed")

	// ErrInvalidPinFormat means the PIN is not a 6-digit numeric string.
	ErrInvalidPinFormat = errors.New("pin must be a 6-digit numeric string")
)

var pinPattern = regexp.MustCompile(`^\d{6}$`)

// CleanupScheduler schedules a post-expiry cleanup check for an issued PIN.
// Backed by the RabbitMQ delayed queue; nil-safe to leave unset when the
// broker is not configured.
type CleanupScheduler interface {
	SchedulePinCleanup(accessLogID string, delay time.Duration) error
}

// PinService owns the access PIN lifecycle: issuing entry/exit PINs against
// the vendor, resolving the "current" log for display, and advancing the
// state machine when the vendor reports an unlock.
type PinService struct {
	registrar PinRegistrar
	logs      store.AccessLogStore
	locks     store.LockStore
	cleanup   CleanupScheduler // optional

	validity     time.Duration
	cleanupGrace time.Duration
}

func NewPinService(
	registrar PinRegistrar,
	logs store.AccessLogStore,
	locks store.LockStore,
	validity time.Duration,
) *PinService {
	if validity <= 0 {
		validity = 5 * time.Minute
	}
	return &PinService{
		registrar: registrar,
		logs:      logs,
		locks:     locks,
		validity:  validity,
	}
}

// WithCleanup attaches the delayed-cleanup scheduler.
func (s *PinService) WithCleanup(c CleanupScheduler, grace time.Duration) *PinService {
	s.cleanup = c
	s.cleanupGrace = grace
	return s
}

// Validity returns the configured PIN validity window.
func (s *PinService) Validity() time.Duration {
	return s.validity
}

// GeneratePin returns a 6-digit PIN drawn uniformly from [100000, 999999].
func GeneratePin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// nothing sensible to do but stop.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

// ValidatePin checks the PIN format and validity window. Used as the local
// double-check before trusting a vendor confirmation.
func ValidatePin(pin string, expiresAt, at time.Time) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPinFormat
	}
	if at.After(expiresAt) {
		return ErrPinExpired
	}
	return nil
}

// IssueRequest carries the parameters of one PIN issuance.
type IssueRequest struct {
	UserID  int64
	LockID  uuid.UUID
	PinType string

	// Display/reporting linkage, optional.
	DogID    *uuid.UUID
	DogRunID *uuid.UUID
}

// Issue generates a fresh PIN, registers it with the vendor and persists the
// access log row. One row per request: double-submitting produces two PINs,
// the UI is expected to disable the button while a request is in flight.
//
// Error cases:
//   - *VendorError: the vendor rejected the PIN; no row was written.
//   - ErrPersistence: the vendor accepted but the local write failed; the
//     vendor-side PIN has been deleted on a best-effort basis.
func (s *PinService) Issue(ctx context.Context, req IssueRequest) (*models.AccessLog, error) {
	if req.PinType != models.PinTypeEntry && req.PinType != models.PinTypeExit {
		return nil, ErrInvalidPinType
	}

	lock, err := s.locks.Get(ctx, req.LockID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLockNotFound
		}
		return nil, err
	}
	if !lock.Enabled {
		return nil, ErrLockDisabled
	}

	pin := GeneratePin()
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(s.validity)

	keyboardPwdID, err := s.registrar.CreatePin(ctx, lock.ScienerLockID, pin, issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}

	accessLog := &models.AccessLog{
		UserID:        req.UserID,
		LockID:        lock.ID,
		Pin:           pin,
		PinType:       req.PinType,
		Status:        models.InitialStatus(req.PinType),
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		KeyboardPwdID: &keyboardPwdID,
		DogID:         req.DogID,
		DogRunID:      req.DogRunID,
	}

	if err := s.logs.Create(ctx, accessLog); err != nil {
		// The vendor-side PIN exists but we have no record of it. Remove it
		// again so the lock doesn't accumulate orphaned passwords; if that
		// also fails there is nothing left to do but log for reconciliation.
		if delErr := s.registrar.DeletePin(ctx, lock.ScienerLockID, keyboardPwdID); delErr != nil {
			log.Printf("orphaned vendor PIN: lock=%d keyboardPwdId=%d delete failed: %v",
				lock.ScienerLockID, keyboardPwdID, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.scheduleCleanup(accessLog)

	return accessLog, nil
}

func (s *PinService) scheduleCleanup(accessLog *models.AccessLog) {
	if s.cleanup == nil {
		return
	}
	delay := time.Until(accessLog.ExpiresAt) + s.cleanupGrace
	if err := s.cleanup.SchedulePinCleanup(accessLog.ID.String(), delay); err != nil {
		// Cleanup is housekeeping; the issuance already succeeded.
		log.Printf("failed to schedule PIN cleanup for %s: %v", accessLog.ID, err)
	}
}

// RecentLogs returns the user's recent access logs, newest first.
func (s *PinService) RecentLogs(ctx context.Context, userID int64, lockID *uuid.UUID) ([]models.AccessLog, error) {
	return s.logs.ListRecent(ctx, userID, lockID)
}

// CurrentLog resolves which of the user's recent records the UI should show
// right now. Returns nil when the user has no records.
func (s *PinService) CurrentLog(ctx context.Context, userID int64, lockID *uuid.UUID) (*models.AccessLog, error) {
	logs, err := s.logs.ListRecent(ctx, userID, lockID)
	if err != nil {
		return nil, err
	}
	return FindCurrentLog(logs), nil
}

// FindCurrentLog picks the single most relevant record. Priority order,
// first match wins:
//
//  1. entered - the user is physically inside
//  2. unused entry PIN (issued + entry)
//  3. exit_requested - exit PIN issued, not yet used
//  4. the most recent record
//
// "Currently inside" deliberately outranks everything else: the UI's primary
// question is whether the user is in the park right now. Deterministic under
// input reordering - ties within a priority class go to the newest issued_at,
// then the lexically smallest id.
func FindCurrentLog(logs []models.AccessLog) *models.AccessLog {
	if len(logs) == 0 {
		return nil
	}

	pick := func(match func(*models.AccessLog) bool) *models.AccessLog {
		var best *models.AccessLog
		for i := range logs {
			l := &logs[i]
			if !match(l) {
				continue
			}
			if best == nil ||
				l.IssuedAt.After(best.IssuedAt) ||
				(l.IssuedAt.Equal(best.IssuedAt) && l.ID.String() < best.ID.String()) {
				best = l
			}
		}
		return best
	}

	if l := pick(func(l *models.AccessLog) bool { return l.Status == models.StatusEntered }); l != nil {
		return l
	}
	if l := pick(func(l *models.AccessLog) bool {
		return l.Status == models.StatusIssued && l.PinType == models.PinTypeEntry
	}); l != nil {
		return l
	}
	if l := pick(func(l *models.AccessLog) bool { return l.Status == models.StatusExitRequested }); l != nil {
		return l
	}
	return pick(func(*models.AccessLog) bool { return true })
}

// HandleUnlock processes a vendor unlock confirmation for (pin, lock).
// Locates the record, validates it, advances the state machine and stamps
// used_at. On exit it also computes the stay duration against the matching
// entered record.
//
// Error cases the webhook handler treats as terminal no-ops:
//   - store.ErrNotFound: PIN belongs to no known issuance
//   - store.ErrInvalidTransition: duplicate or out-of-order event
//   - ErrPinExpired / ErrInvalidPinFormat: anomalous event, flagged
func (s *PinService) HandleUnlock(ctx context.Context, scienerLockID int64, pin string, usedAt time.Time) (*models.AccessLog, error) {
	lock, err := s.locks.GetBySciener(ctx, scienerLockID)
	if err != nil {
		return nil, err
	}

	accessLog, err := s.logs.FindByPin(ctx, pin, lock.ID)
	if err != nil {
		return nil, err
	}

	if err := ValidatePin(accessLog.Pin, accessLog.ExpiresAt, usedAt); err != nil {
		return nil, err
	}

	next := models.NextStatus(accessLog.Status)
	if next == "" {
		return nil, store.ErrInvalidTransition
	}

	updated, err := s.logs.AdvanceStatus(ctx, accessLog.ID, next, usedAt)
	if err != nil {
		return nil, err
	}

	if updated.Status == models.StatusExited {
		s.stampDuration(ctx, updated)
	}

	return updated, nil
}

// stampDuration records how long the visit lasted: exit used_at minus the
// used_at of the newest entered record for the same user and lock.
func (s *PinService) stampDuration(ctx context.Context, exitLog *models.AccessLog) {
	logs, err := s.logs.ListRecent(ctx, exitLog.UserID, &exitLog.LockID)
	if err != nil {
		log.Printf("duration lookup failed for %s: %v", exitLog.ID, err)
		return
	}

	for i := range logs {
		l := &logs[i]
		if l.Status != models.StatusEntered || l.UsedAt == nil || exitLog.UsedAt == nil {
			continue
		}
		d := exitLog.UsedAt.Sub(*l.UsedAt)
		if d < 0 {
			continue
		}
		if err := s.logs.SetDuration(ctx, exitLog.ID, d); err != nil {
			log.Printf("failed to stamp duration for %s: %v", exitLog.ID, err)
		} else {
			ms := d.Milliseconds()
			exitLog.DurationMs = &ms
		}
		return
	}
}

// CleanupExpired handles a delayed cleanup message for one access log: if
// the PIN was never used, delete it at the vendor so the lock doesn't hit
// its stored-password limit. Never touches the record's status - expiry is
// a display concern, not a state transition.
func (s *PinService) CleanupExpired(ctx context.Context, accessLogID uuid.UUID) (cleaned bool, err error) {
	accessLog, err := s.logs.Get(ctx, accessLogID)
	if err != nil {
		return false, err
	}

	// Used PINs were already consumed; the vendor removed one-time
	// passwords on use. Unexpired PINs mean the message fired early.
	if accessLog.Used() || !accessLog.Expired(time.Now()) {
		return false, nil
	}
	if accessLog.KeyboardPwdID == nil {
		return false, nil
	}

	lock, err := s.locks.Get(ctx, accessLog.LockID)
	if err != nil {
		return false, err
	}

	if err := s.registrar.DeletePin(ctx, lock.ScienerLockID, *accessLog.KeyboardPwdID); err != nil {
		return false, fmt.Errorf("vendor delete failed for %s: %w", accessLogID, err)
	}
	return true, nil
}

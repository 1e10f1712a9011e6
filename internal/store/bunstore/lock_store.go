package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type LockStore struct {
	db *bun.DB
}

func NewLockStore(db *bun.DB) *LockStore {
	return &LockStore{db: db}
}

var _ store.LockStore = (*LockStore)(nil)

func (s *LockStore) Create(ctx context.Context, lock *models.SmartLock) error {
	_, err := s.db.NewInsert().Model(lock).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create smart lock: %w", err)
	}
	return nil
}

func (s *LockStore) Get(ctx context.Context, id uuid.UUID) (*models.SmartLock, error) {
	lock := new(models.SmartLock)
	err := s.db.NewSelect().
		Model(lock).
		Where("sl.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get smart lock: %w", err)
	}
	return lock, nil
}

func (s *LockStore) GetBySciener(ctx context.Context, scienerLockID int64) (*models.SmartLock, error) {
	lock := new(models.SmartLock)
	err := s.db.NewSelect().
		Model(lock).
		Where("sl.sciener_lock_id = ?", scienerLockID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get smart lock by sciener id: %w", err)
	}
	return lock, nil
}

func (s *LockStore) List(ctx context.Context) ([]models.SmartLock, error) {
	var locks []models.SmartLock
	err := s.db.NewSelect().
		Model(&locks).
		Where("sl.enabled = TRUE").
		Order("sl.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list smart locks: %w", err)
	}
	return locks, nil
}

package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AccessLogStore struct {
	db *bun.DB
}

func NewAccessLogStore(db *bun.DB) *AccessLogStore {
	return &AccessLogStore{db: db}
}

var _ store.AccessLogStore = (*AccessLogStore)(nil)

func (s *AccessLogStore) Create(ctx context.Context, log *models.AccessLog) error {
	_, err := s.db.NewInsert().Model(log).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create access log: %w", err)
	}
	return nil
}

func (s *AccessLogStore) ListRecent(ctx context.Context, userID int64, lockID *uuid.UUID) ([]models.AccessLog, error) {
	var logs []models.AccessLog
	query := s.db.NewSelect().
		Model(&logs).
		Where("al.user_id = ?", userID).
		Order("al.issued_at DESC").
		Limit(store.RecentLimit)

	if lockID != nil {
		query.Where("al.lock_id = ?", *lockID)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	return logs, nil
}

func (s *AccessLogStore) FindByPin(ctx context.Context, pin string, lockID uuid.UUID) (*models.AccessLog, error) {
	log := new(models.AccessLog)
	err := s.db.NewSelect().
		Model(log).
		Where("al.pin = ?", pin).
		Where("al.lock_id = ?", lockID).
		Where("al.used_at IS NULL").
		Order("al.issued_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find access log by pin: %w", err)
	}
	return log, nil
}

func (s *AccessLogStore) AdvanceStatus(ctx context.Context, id uuid.UUID, newStatus string, usedAt time.Time) (*models.AccessLog, error) {
	log, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(log.Status, newStatus) {
		return nil, store.ErrInvalidTransition
	}

	// Guard the from-status in the WHERE clause as well, so two racing
	// webhook deliveries cannot both advance the same row.
	res, err := s.db.NewUpdate().
		Model((*models.AccessLog)(nil)).
		Set("status = ?", newStatus).
		Set("used_at = ?", usedAt).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", log.Status).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to advance status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrInvalidTransition
	}

	return s.Get(ctx, id)
}

func (s *AccessLogStore) SetDuration(ctx context.Context, id uuid.UUID, duration time.Duration) error {
	_, err := s.db.NewUpdate().
		Model((*models.AccessLog)(nil)).
		Set("duration_ms = ?", duration.Milliseconds()).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set duration: %w", err)
	}
	return nil
}

func (s *AccessLogStore) Get(ctx context.Context, id uuid.UUID) (*models.AccessLog, error) {
	log := new(models.AccessLog)
	err := s.db.NewSelect().
		Model(log).
		Where("al.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access log: %w", err)
	}
	return log, nil
}

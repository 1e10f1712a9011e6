package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
)

// AccessLogStore is an in-memory implementation for tests and dev
// environments. It mirrors the ordering and transition semantics of the
// Postgres store.
type AccessLogStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*models.AccessLog
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{logs: make(map[uuid.UUID]*models.AccessLog)}
}

var _ store.AccessLogStore = (*AccessLogStore)(nil)

func (s *AccessLogStore) Create(_ context.Context, log *models.AccessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.UpdatedAt = log.CreatedAt

	cp := *log
	s.logs[log.ID] = &cp
	return nil
}

func (s *AccessLogStore) ListRecent(_ context.Context, userID int64, lockID *uuid.UUID) ([]models.AccessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AccessLog
	for _, log := range s.logs {
		if log.UserID != userID {
			continue
		}
		if lockID != nil && log.LockID != *lockID {
			continue
		}
		out = append(out, *log)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})

	if len(out) > store.RecentLimit {
		out = out[:store.RecentLimit]
	}
	return out, nil
}

func (s *AccessLogStore) FindByPin(_ context.Context, pin string, lockID uuid.UUID) (*models.AccessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.AccessLog
	for _, log := range s.logs {
		if log.Pin != pin || log.LockID != lockID || log.Used() {
			continue
		}
		if best == nil || log.IssuedAt.After(best.IssuedAt) {
			best = log
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *AccessLogStore) AdvanceStatus(_ context.Context, id uuid.UUID, newStatus string, usedAt time.Time) (*models.AccessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !models.CanTransition(log.Status, newStatus) {
		return nil, store.ErrInvalidTransition
	}

	log.Status = newStatus
	log.UsedAt = &usedAt
	log.UpdatedAt = time.Now()

	cp := *log
	return &cp, nil
}

func (s *AccessLogStore) SetDuration(_ context.Context, id uuid.UUID, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return store.ErrNotFound
	}
	ms := duration.Milliseconds()
	log.DurationMs = &ms
	log.UpdatedAt = time.Now()
	return nil
}

func (s *AccessLogStore) Get(_ context.Context, id uuid.UUID) (*models.AccessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *log
	return &cp, nil
}

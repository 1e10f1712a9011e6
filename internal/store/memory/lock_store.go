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

// LockStore is the in-memory lock registry for tests and dev environments.
type LockStore struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*models.SmartLock
}

func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[uuid.UUID]*models.SmartLock)}
}

var _ store.LockStore = (*LockStore)(nil)

func (s *LockStore) Create(_ context.Context, lock *models.SmartLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock.ID == uuid.Nil {
		lock.ID = uuid.New()
	}
	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = time.Now()
	}
	cp := *lock
	s.locks[lock.ID] = &cp
	return nil
}

func (s *LockStore) Get(_ context.Context, id uuid.UUID) (*models.SmartLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *lock
	return &cp, nil
}

func (s *LockStore) GetBySciener(_ context.Context, scienerLockID int64) (*models.SmartLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lock := range s.locks {
		if lock.ScienerLockID == scienerLockID {
			cp := *lock
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *LockStore) List(_ context.Context) ([]models.SmartLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SmartLock
	for _, lock := range s.locks {
		if lock.Enabled {
			out = append(out, *lock)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

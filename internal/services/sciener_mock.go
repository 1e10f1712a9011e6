package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockPinRegistrar performs the PinRegistrar contract without contacting the
// vendor: fixed artificial latency, deterministic success. Used in
// development when no Sciener credentials are configured, and in tests.
type MockPinRegistrar struct {
	// Latency is slept before every call to imitate the round trip.
	Latency time.Duration

	// Fail, when set, is returned by CreatePin instead of succeeding.
	// Lets tests exercise the vendor-rejection path.
	Fail error

	nextID int64

	mu      sync.Mutex
	created []MockCreatedPin
	deleted []int64
}

// MockCreatedPin records one CreatePin call for inspection in tests.
type MockCreatedPin struct {
	LockID        int64
	Pin           string
	StartDate     time.Time
	EndDate       time.Time
	KeyboardPwdID int64
}

func NewMockPinRegistrar() *MockPinRegistrar {
	return &MockPinRegistrar{Latency: 50 * time.Millisecond}
}

var _ PinRegistrar = (*MockPinRegistrar)(nil)

func (m *MockPinRegistrar) CreatePin(ctx context.Context, lockID int64, pin string, startDate, endDate time.Time) (int64, error) {
	if err := m.sleep(ctx); err != nil {
		return 0, err
	}
	if m.Fail != nil {
		return 0, m.Fail
	}

	id := atomic.AddInt64(&m.nextID, 1)

	m.mu.Lock()
	m.created = append(m.created, MockCreatedPin{
		LockID:        lockID,
		Pin:           pin,
		StartDate:     startDate,
		EndDate:       endDate,
		KeyboardPwdID: id,
	})
	m.mu.Unlock()

	return id, nil
}

func (m *MockPinRegistrar) DeletePin(ctx context.Context, lockID int64, keyboardPwdID int64) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.deleted = append(m.deleted, keyboardPwdID)
	m.mu.Unlock()

	return nil
}

// Created returns a copy of all CreatePin calls. Test helper.
func (m *MockPinRegistrar) Created() []MockCreatedPin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCreatedPin, len(m.created))
	copy(out, m.created)
	return out
}

// Deleted returns a copy of all deleted keyboardPwdIds. Test helper.
func (m *MockPinRegistrar) Deleted() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.deleted))
	copy(out, m.deleted)
	return out
}

func (m *MockPinRegistrar) sleep(ctx context.Context) error {
	if m.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

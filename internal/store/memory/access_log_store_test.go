package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLog(userID int64, lockID uuid.UUID, pin string, issuedAt time.Time) *models.AccessLog {
	return &models.AccessLog{
		UserID:    userID,
		LockID:    lockID,
		Pin:       pin,
		PinType:   models.PinTypeEntry,
		Status:    models.StatusIssued,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
	}
}

func TestCreateAssignsID(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()

	l := newLog(1, uuid.New(), "123456", time.Now())
	require.NoError(t, s.Create(ctx, l))
	assert.NotEqual(t, uuid.Nil, l.ID)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "123456", got.Pin)
}

func TestGetNotFound(t *testing.T) {
	s := NewAccessLogStore()
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRecentOrderAndLimit(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockID := uuid.New()
	base := time.Now()

	for i := 0; i < store.RecentLimit+5; i++ {
		l := newLog(1, lockID, fmt.Sprintf("%06d", 100000+i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Create(ctx, l))
	}

	logs, err := s.ListRecent(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, logs, store.RecentLimit)

	// Newest first
	for i := 1; i < len(logs); i++ {
		assert.True(t, logs[i-1].IssuedAt.After(logs[i].IssuedAt))
	}
	assert.Equal(t, fmt.Sprintf("%06d", 100000+store.RecentLimit+4), logs[0].Pin)
}

func TestListRecentScopedToUser(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockID := uuid.New()
	now := time.Now()

	require.NoError(t, s.Create(ctx, newLog(1, lockID, "111111", now)))
	require.NoError(t, s.Create(ctx, newLog(2, lockID, "222222", now)))

	logs, err := s.ListRecent(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "111111", logs[0].Pin)
}

func TestListRecentLockFilter(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockA := uuid.New()
	lockB := uuid.New()
	now := time.Now()

	require.NoError(t, s.Create(ctx, newLog(1, lockA, "111111", now)))
	require.NoError(t, s.Create(ctx, newLog(1, lockB, "222222", now.Add(time.Minute))))

	logs, err := s.ListRecent(ctx, 1, &lockA)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "111111", logs[0].Pin)

	logs, err = s.ListRecent(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestFindByPinPicksMostRecentUnused(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockID := uuid.New()
	now := time.Now()

	older := newLog(1, lockID, "123456", now.Add(-time.Hour))
	newer := newLog(1, lockID, "123456", now)
	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.Create(ctx, newer))

	got, err := s.FindByPin(ctx, "123456", lockID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestFindByPinSkipsUsed(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockID := uuid.New()
	now := time.Now()

	l := newLog(1, lockID, "123456", now)
	require.NoError(t, s.Create(ctx, l))

	_, err := s.AdvanceStatus(ctx, l.ID, models.StatusEntered, now)
	require.NoError(t, err)

	_, err = s.FindByPin(ctx, "123456", lockID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindByPinScopedToLock(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	lockA := uuid.New()
	lockB := uuid.New()

	require.NoError(t, s.Create(ctx, newLog(1, lockA, "123456", time.Now())))

	_, err := s.FindByPin(ctx, "123456", lockB)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdvanceStatus(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	now := time.Now()

	l := newLog(1, uuid.New(), "123456", now)
	require.NoError(t, s.Create(ctx, l))

	updated, err := s.AdvanceStatus(ctx, l.ID, models.StatusEntered, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEntered, updated.Status)
	require.NotNil(t, updated.UsedAt)
	assert.True(t, updated.UsedAt.Equal(now))

	// Second delivery of the same event is rejected and the row untouched
	_, err = s.AdvanceStatus(ctx, l.ID, models.StatusEntered, now.Add(time.Second))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.UsedAt.Equal(now))
}

func TestAdvanceStatusRejectsSkips(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()
	now := time.Now()

	l := newLog(1, uuid.New(), "123456", now)
	require.NoError(t, s.Create(ctx, l))

	_, err := s.AdvanceStatus(ctx, l.ID, models.StatusExited, now)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestSetDuration(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()

	l := newLog(1, uuid.New(), "123456", time.Now())
	l.PinType = models.PinTypeExit
	l.Status = models.StatusExitRequested
	require.NoError(t, s.Create(ctx, l))

	require.NoError(t, s.SetDuration(ctx, l.ID, 90*time.Minute))

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, (90 * time.Minute).Milliseconds(), *got.DurationMs)
}

func TestReturnsCopies(t *testing.T) {
	s := NewAccessLogStore()
	ctx := context.Background()

	l := newLog(1, uuid.New(), "123456", time.Now())
	require.NoError(t, s.Create(ctx, l))

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	got.Status = models.StatusExited

	again, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIssued, again.Status)
}

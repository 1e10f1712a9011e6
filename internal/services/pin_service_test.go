package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/dogparkjp/parkgate/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*PinService, *MockPinRegistrar, *memory.AccessLogStore, *models.SmartLock) {
	t.Helper()

	registrar := NewMockPinRegistrar()
	registrar.Latency = 0
	logs := memory.NewAccessLogStore()
	locks := memory.NewLockStore()

	lock := &models.SmartLock{
		Name:          "North Gate",
		ParkName:      "代々木ドッグラン",
		ScienerLockID: 42,
		Enabled:       true,
	}
	require.NoError(t, locks.Create(context.Background(), lock))

	svc := NewPinService(registrar, logs, locks, 5*time.Minute)
	return svc, registrar, logs, lock
}

func TestGeneratePinFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 200; i++ {
		pin := GeneratePin()
		require.Regexp(t, pattern, pin)
		// First digit never zero: the range starts at 100000
		assert.NotEqual(t, byte('0'), pin[0])
	}
}

func TestValidatePin(t *testing.T) {
	now := time.Now()
	expires := now.Add(5 * time.Minute)

	assert.NoError(t, ValidatePin("123456", expires, now))
	assert.NoError(t, ValidatePin("123456", expires, expires)) // boundary inclusive

	assert.ErrorIs(t, ValidatePin("123456", expires, expires.Add(time.Second)), ErrPinExpired)
	assert.ErrorIs(t, ValidatePin("12345", expires, now), ErrInvalidPinFormat)
	assert.ErrorIs(t, ValidatePin("1234567", expires, now), ErrInvalidPinFormat)
	assert.ErrorIs(t, ValidatePin("12345a", expires, now), ErrInvalidPinFormat)
	assert.ErrorIs(t, ValidatePin("", expires, now), ErrInvalidPinFormat)
}

func TestIssueEntryPin(t *testing.T) {
	svc, registrar, _, lock := newTestService(t)
	ctx := context.Background()

	accessLog, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	assert.Regexp(t, `^\d{6}$`, accessLog.Pin)
	assert.Equal(t, models.StatusIssued, accessLog.Status)
	assert.Equal(t, models.PinTypeEntry, accessLog.PinType)
	assert.Nil(t, accessLog.UsedAt)
	require.NotNil(t, accessLog.KeyboardPwdID)

	// Validity window is issuedAt + 5 minutes
	assert.Equal(t, accessLog.IssuedAt.Add(5*time.Minute), accessLog.ExpiresAt)

	// The vendor saw the same PIN and window
	created := registrar.Created()
	require.Len(t, created, 1)
	assert.Equal(t, lock.ScienerLockID, created[0].LockID)
	assert.Equal(t, accessLog.Pin, created[0].Pin)
	assert.Equal(t, *accessLog.KeyboardPwdID, created[0].KeyboardPwdID)
}

func TestIssueExitPinStartsExitRequested(t *testing.T) {
	svc, _, _, lock := newTestService(t)

	accessLog, err := svc.Issue(context.Background(), IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeExit})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExitRequested, accessLog.Status)
}

func TestIssueRejectsBadPinType(t *testing.T) {
	svc, registrar, _, lock := newTestService(t)

	_, err := svc.Issue(context.Background(), IssueRequest{UserID: 1, LockID: lock.ID, PinType: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidPinType)
	assert.Empty(t, registrar.Created())
}

func TestIssueUnknownLock(t *testing.T) {
	svc, registrar, _, _ := newTestService(t)

	_, err := svc.Issue(context.Background(), IssueRequest{UserID: 1, LockID: uuid.New(), PinType: models.PinTypeEntry})
	assert.ErrorIs(t, err, ErrLockNotFound)
	assert.Empty(t, registrar.Created())
}

func TestIssueDisabledLock(t *testing.T) {
	registrar := NewMockPinRegistrar()
	registrar.Latency = 0
	logs := memory.NewAccessLogStore()
	locks := memory.NewLockStore()

	lock := &models.SmartLock{
		Name:          "South Gate",
		ParkName:      "代々木ドッグラン",
		ScienerLockID: 43,
		Enabled:       false,
	}
	require.NoError(t, locks.Create(context.Background(), lock))

	svc := NewPinService(registrar, logs, locks, 5*time.Minute)

	_, err := svc.Issue(context.Background(), IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	assert.ErrorIs(t, err, ErrLockDisabled)
	assert.Empty(t, registrar.Created())

	recent, err := logs.ListRecent(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestIssueVendorRejectionWritesNoRow(t *testing.T) {
	svc, registrar, logs, lock := newTestService(t)
	registrar.Fail = &VendorError{Code: 11, Reason: "PINコードの上限に達しています"}

	_, err := svc.Issue(context.Background(), IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})

	var vendorErr *VendorError
	require.ErrorAs(t, err, &vendorErr)
	assert.Equal(t, 11, vendorErr.Code)
	assert.Equal(t, "PINコードの上限に達しています", vendorErr.Reason)

	recent, listErr := logs.ListRecent(context.Background(), 1, nil)
	require.NoError(t, listErr)
	assert.Empty(t, recent, "vendor rejection must leave no access log behind")
}

func TestIssueDoubleSubmitMakesTwoRecords(t *testing.T) {
	svc, _, logs, lock := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)
	second, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	recent, err := logs.ListRecent(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestHandleUnlockEntry(t *testing.T) {
	svc, _, _, lock := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	usedAt := issued.IssuedAt.Add(time.Minute)
	updated, err := svc.HandleUnlock(ctx, lock.ScienerLockID, issued.Pin, usedAt)
	require.NoError(t, err)

	assert.Equal(t, issued.ID, updated.ID)
	assert.Equal(t, models.StatusEntered, updated.Status)
	require.NotNil(t, updated.UsedAt)
	assert.True(t, updated.UsedAt.Equal(usedAt))
}

func TestHandleUnlockDuplicateDelivery(t *testing.T) {
	svc, _, _, lock := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	usedAt := issued.IssuedAt.Add(time.Minute)
	_, err = svc.HandleUnlock(ctx, lock.ScienerLockID, issued.Pin, usedAt)
	require.NoError(t, err)

	// Redelivery finds no unused row for the PIN
	_, err = svc.HandleUnlock(ctx, lock.ScienerLockID, issued.Pin, usedAt.Add(time.Second))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleUnlockUnknownPin(t *testing.T) {
	svc, _, _, lock := newTestService(t)

	_, err := svc.HandleUnlock(context.Background(), lock.ScienerLockID, "999999", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleUnlockUnknownLock(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.HandleUnlock(context.Background(), 9999, "123456", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleUnlockExpiredPin(t *testing.T) {
	svc, _, logs, lock := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	// Vendor reports an unlock after the window lapsed; the record must
	// stay where it was
	_, err = svc.HandleUnlock(ctx, lock.ScienerLockID, issued.Pin, issued.ExpiresAt.Add(time.Minute))
	assert.ErrorIs(t, err, ErrPinExpired)

	got, err := logs.Get(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIssued, got.Status)
	assert.Nil(t, got.UsedAt)
}

func TestExitFlowStampsDuration(t *testing.T) {
	svc, _, logs, lock := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)
	enteredAt := entry.IssuedAt.Add(time.Minute)
	_, err = svc.HandleUnlock(ctx, lock.ScienerLockID, entry.Pin, enteredAt)
	require.NoError(t, err)

	exit, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeExit})
	require.NoError(t, err)

	// Simulate a 90-minute stay by backdating the entered record's used_at;
	// the exit PIN itself must be used inside its own validity window.
	exitedAt := exit.IssuedAt.Add(time.Minute)
	backdated := exitedAt.Add(-90 * time.Minute)
	enteredRowBefore, err := logs.Get(ctx, entry.ID)
	require.NoError(t, err)
	enteredRowBefore.UsedAt = &backdated
	require.NoError(t, logs.Create(ctx, enteredRowBefore))

	updated, err := svc.HandleUnlock(ctx, lock.ScienerLockID, exit.Pin, exitedAt)
	require.NoError(t, err)

	assert.Equal(t, models.StatusExited, updated.Status)
	require.NotNil(t, updated.DurationMs)
	assert.Equal(t, (90 * time.Minute).Milliseconds(), *updated.DurationMs)

	// The entered record is a sibling; it stays entered
	enteredRow, err := logs.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEntered, enteredRow.Status)
}

func TestCleanupExpiredDeletesUnusedPin(t *testing.T) {
	svc, registrar, logs, lock := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)

	// Not expired yet: nothing happens
	cleaned, err := svc.CleanupExpired(ctx, issued.ID)
	require.NoError(t, err)
	assert.False(t, cleaned)
	assert.Empty(t, registrar.Deleted())

	// Force expiry by rewriting the stored window
	stored, err := logs.Get(ctx, issued.ID)
	require.NoError(t, err)
	stored.IssuedAt = time.Now().Add(-10 * time.Minute)
	stored.ExpiresAt = time.Now().Add(-5 * time.Minute)
	require.NoError(t, logs.Create(ctx, stored))

	cleaned, err = svc.CleanupExpired(ctx, issued.ID)
	require.NoError(t, err)
	assert.True(t, cleaned)
	require.Len(t, registrar.Deleted(), 1)
	assert.Equal(t, *issued.KeyboardPwdID, registrar.Deleted()[0])

	// Status is untouched: expiry is display-only
	after, err := logs.Get(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIssued, after.Status)
}

func TestCleanupExpiredSkipsUsedPin(t *testing.T) {
	svc, registrar, logs, lock := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	require.NoError(t, err)
	_, err = svc.HandleUnlock(ctx, lock.ScienerLockID, issued.Pin, issued.IssuedAt.Add(time.Minute))
	require.NoError(t, err)

	// Expire the window after use
	stored, err := logs.Get(ctx, issued.ID)
	require.NoError(t, err)
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, logs.Create(ctx, stored))

	cleaned, err := svc.CleanupExpired(ctx, issued.ID)
	require.NoError(t, err)
	assert.False(t, cleaned)
	assert.Empty(t, registrar.Deleted())
}

func TestIssueContextCancellation(t *testing.T) {
	svc, registrar, _, lock := newTestService(t)
	registrar.Latency = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Issue(ctx, IssueRequest{UserID: 1, LockID: lock.ID, PinType: models.PinTypeEntry})
	assert.True(t, errors.Is(err, context.Canceled))
}

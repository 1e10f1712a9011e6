package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusIssued, StatusEntered))
	assert.True(t, CanTransition(StatusExitRequested, StatusExited))

	// No backward moves
	assert.False(t, CanTransition(StatusEntered, StatusIssued))
	assert.False(t, CanTransition(StatusExited, StatusExitRequested))

	// Entered never advances on the same record; the exit flow creates a
	// sibling record instead
	assert.False(t, CanTransition(StatusEntered, StatusExitRequested))
	assert.False(t, CanTransition(StatusEntered, StatusExited))

	// Exited is terminal
	assert.False(t, CanTransition(StatusExited, StatusEntered))

	// No skipping
	assert.False(t, CanTransition(StatusIssued, StatusExited))
	assert.False(t, CanTransition(StatusIssued, StatusExitRequested))

	// Unknown statuses never transition
	assert.False(t, CanTransition("bogus", StatusEntered))
	assert.False(t, CanTransition(StatusIssued, "bogus"))
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, StatusEntered, NextStatus(StatusIssued))
	assert.Equal(t, StatusExited, NextStatus(StatusExitRequested))
	assert.Equal(t, "", NextStatus(StatusEntered))
	assert.Equal(t, "", NextStatus(StatusExited))
	assert.Equal(t, "", NextStatus("bogus"))
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusIssued, InitialStatus(PinTypeEntry))
	assert.Equal(t, StatusExitRequested, InitialStatus(PinTypeExit))
}

func TestDisplayForCoversAllStatuses(t *testing.T) {
	// Every valid status must resolve to exactly one display entry; the UI
	// never falls through to an "unknown" rendering.
	for status := range map[string]bool{
		StatusIssued:        true,
		StatusEntered:       true,
		StatusExitRequested: true,
		StatusExited:        true,
	} {
		d, ok := DisplayFor(status)
		require.True(t, ok, "no display mapping for %s", status)
		assert.NotEmpty(t, d.Label)
		assert.NotEmpty(t, d.Icon)
		assert.NotEmpty(t, d.Color)
	}

	_, ok := DisplayFor("bogus")
	assert.False(t, ok)
}

func TestDisplayForLabels(t *testing.T) {
	tests := []struct {
		status string
		label  string
		icon   string
		color  string
	}{
		{StatusIssued, "まだ使われていません", "lock", "gray"},
		{StatusEntered, "入場中", "log-in", "blue"},
		{StatusExitRequested, "退場PINを使用してください", "rotate-cw", "yellow"},
		{StatusExited, "退場完了しました", "check-circle", "green"},
	}

	for _, tt := range tests {
		d, ok := DisplayFor(tt.status)
		require.True(t, ok)
		assert.Equal(t, tt.label, d.Label)
		assert.Equal(t, tt.icon, d.Icon)
		assert.Equal(t, tt.color, d.Color)
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Now()

	fresh := &AccessLog{
		Status:    StatusIssued,
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	resp := fresh.ToResponse(now)
	assert.Equal(t, int64(300), resp.RemainingSecs)

	// Countdown reflects elapsed time
	resp = fresh.ToResponse(now.Add(4 * time.Minute))
	assert.Equal(t, int64(60), resp.RemainingSecs)

	// Floors at zero after expiry; never goes negative
	resp = fresh.ToResponse(now.Add(10 * time.Minute))
	assert.Equal(t, int64(0), resp.RemainingSecs)

	// Used PINs have no countdown even inside the window
	usedAt := now.Add(time.Minute)
	used := &AccessLog{
		Status:    StatusEntered,
		IssuedAt:  now,
		UsedAt:    &usedAt,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	resp = used.ToResponse(now.Add(2 * time.Minute))
	assert.Equal(t, int64(0), resp.RemainingSecs)
}

func TestExpiredBoundary(t *testing.T) {
	now := time.Now()
	a := &AccessLog{ExpiresAt: now}

	// Expiry is exclusive at the boundary instant
	assert.False(t, a.Expired(now))
	assert.True(t, a.Expired(now.Add(time.Nanosecond)))
	assert.False(t, a.Expired(now.Add(-time.Second)))
}

func TestToResponseCarriesDisplay(t *testing.T) {
	now := time.Now()
	a := &AccessLog{
		Status:    StatusExitRequested,
		PinType:   PinTypeExit,
		Pin:       "123456",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}

	resp := a.ToResponse(now)
	require.NotNil(t, resp.Display)
	assert.Equal(t, "退場PINを使用してください", resp.Display.Label)
	assert.Equal(t, StatusExitRequested, resp.Status)
	assert.Equal(t, "123456", resp.Pin)
}

package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PIN types. Fixed at creation, never changes.
const (
	PinTypeEntry = "entry"
	PinTypeExit  = "exit"
)

// Access log statuses. A record only ever moves forward:
// an entry PIN goes issued -> entered, an exit PIN goes
// exit_requested -> exited. Exited is terminal.
const (
	StatusIssued        = "issued"
	StatusEntered       = "entered"
	StatusExitRequested = "exit_requested"
	StatusExited        = "exited"
)

// statusTransitions is the full transition table. Anything not listed here
// is invalid; in particular there are no backward transitions and no
// transitions out of entered or exited on the same record (the exit flow
// creates a sibling record instead of mutating the entry record).
var statusTransitions = map[string]string{
	StatusIssued:        StatusEntered,
	StatusExitRequested: StatusExited,
}

// CanTransition reports whether a record may advance from -> to.
func CanTransition(from, to string) bool {
	next, ok := statusTransitions[from]
	return ok && next == to
}

// NextStatus returns the status an unlock event should advance a record to,
// or "" if the record's current status admits no further transition.
func NextStatus(current string) string {
	return statusTransitions[current]
}

// InitialStatus returns the status a freshly issued PIN starts in.
// Entry PINs start as issued, exit PINs as exit_requested.
func InitialStatus(pinType string) string {
	if pinType == PinTypeExit {
		return StatusExitRequested
	}
	return StatusIssued
}

// AccessLog is one issued PIN and its lifecycle. One row per issuance;
// rows are never deleted (the table doubles as the entry/exit audit trail).
type AccessLog struct {
	bun.BaseModel `bun:"table:access_logs,alias:al"`

	ID     uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID int64     `bun:"user_id,notnull" json:"user_id"`
	LockID uuid.UUID `bun:"lock_id,notnull,type:uuid" json:"lock_id"`

	Pin     string `bun:"pin,notnull" json:"pin"`
	PinType string `bun:"pin_type,notnull" json:"pin_type"`
	Status  string `bun:"status,notnull,default:'issued'" json:"status"`

	IssuedAt  time.Time  `bun:"issued_at,notnull" json:"issued_at"`
	UsedAt    *time.Time `bun:"used_at" json:"used_at,omitempty"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at"`

	// Vendor-assigned id of the registered keyboard password; needed to
	// delete the PIN at the vendor again.
	KeyboardPwdID *int64 `bun:"keyboard_pwd_id" json:"keyboard_pwd_id,omitempty"`

	// Display/reporting linkage only - not part of the state machine.
	DogID    *uuid.UUID `bun:"dog_id,type:uuid" json:"dog_id,omitempty"`
	DogRunID *uuid.UUID `bun:"dog_run_id,type:uuid" json:"dog_run_id,omitempty"`

	// Stay duration in milliseconds, stamped when the exit PIN is used.
	DurationMs *int64 `bun:"duration_ms" json:"duration_ms,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:now()" json:"updated_at"`
}

// Expired reports whether the PIN's validity window has lapsed at t.
func (a *AccessLog) Expired(t time.Time) bool {
	return t.After(a.ExpiresAt)
}

// Used reports whether the vendor has confirmed the PIN was consumed.
func (a *AccessLog) Used() bool {
	return a.UsedAt != nil
}

// StatusDisplay is the presentation mapping for one status. Pure data,
// resolved by DisplayFor; the frontend renders label/icon/color as-is.
type StatusDisplay struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// statusDisplays maps every valid status to exactly one display entry.
// Labels match the web app's wording.
var statusDisplays = map[string]StatusDisplay{
	StatusIssued:        {Label: "まだ使われていません", Icon: "lock", Color: "gray"},
	StatusEntered:       {Label: "入場中", Icon: "log-in", Color: "blue"},
	StatusExitRequested: {Label: "退場PINを使用してください", Icon: "rotate-cw", Color: "yellow"},
	StatusExited:        {Label: "退場完了しました", Icon: "check-circle", Color: "green"},
}

// DisplayFor returns the display entry for a status. The second return is
// false only for a status outside the state machine; valid states never
// fall through to an "unknown" rendering.
func DisplayFor(status string) (StatusDisplay, bool) {
	d, ok := statusDisplays[status]
	return d, ok
}

// AccessLogResponse is the API representation of an access log row.
type AccessLogResponse struct {
	ID            string         `json:"id"`
	LockID        string         `json:"lock_id"`
	Pin           string         `json:"pin"`
	PinType       string         `json:"pin_type"`
	Status        string         `json:"status"`
	Display       *StatusDisplay `json:"display,omitempty"`
	IssuedAt      string         `json:"issued_at"`
	UsedAt        *string        `json:"used_at,omitempty"`
	ExpiresAt     string         `json:"expires_at"`
	RemainingSecs int64          `json:"remaining_seconds"`
	DogID         *string        `json:"dog_id,omitempty"`
	DogRunID      *string        `json:"dog_run_id,omitempty"`
	DurationMs    *int64         `json:"duration_ms,omitempty"`
}

// ToResponse converts the row for API output. remaining_seconds is a
// derived display value (max(0, expiresAt-now)); it never drives state.
func (a *AccessLog) ToResponse(now time.Time) *AccessLogResponse {
	resp := &AccessLogResponse{
		ID:            a.ID.String(),
		LockID:        a.LockID.String(),
		Pin:           a.Pin,
		PinType:       a.PinType,
		Status:        a.Status,
		IssuedAt:      a.IssuedAt.Format(time.RFC3339),
		ExpiresAt:     a.ExpiresAt.Format(time.RFC3339),
		RemainingSecs: remainingSeconds(a, now),
		DurationMs:    a.DurationMs,
	}

	if d, ok := DisplayFor(a.Status); ok {
		resp.Display = &d
	}
	if a.UsedAt != nil {
		s := a.UsedAt.Format(time.RFC3339)
		resp.UsedAt = &s
	}
	if a.DogID != nil {
		s := a.DogID.String()
		resp.DogID = &s
	}
	if a.DogRunID != nil {
		s := a.DogRunID.String()
		resp.DogRunID = &s
	}

	return resp
}

func remainingSeconds(a *AccessLog, now time.Time) int64 {
	// Only an unused PIN has a meaningful countdown.
	if a.Used() {
		return 0
	}
	remaining := a.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*AccessLog)(nil)

func (a *AccessLog) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate hook
var _ bun.BeforeUpdateHook = (*AccessLog)(nil)

func (a *AccessLog) BeforeUpdate(ctx context.Context, query *bun.UpdateQuery) error {
	a.UpdatedAt = time.Now()
	return nil
}

package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NotificationType constants
const (
	NotificationTypeEntry      = "park_entry"
	NotificationTypeExit       = "park_exit"
	NotificationTypePinExpired = "pin_expired"
)

// NotificationMetadata for storing extra information
type NotificationMetadata struct {
	LockName   string `json:"lock_name,omitempty"`
	ParkName   string `json:"park_name,omitempty"`
	PinType    string `json:"pin_type,omitempty"`
	UsedAt     string `json:"used_at,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Delivery bookkeeping for the optional email channel
	DeliveryStatus string `json:"delivery_status,omitempty"` // sent, failed
	DeliveryError  string `json:"delivery_error,omitempty"`
}

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64      `bun:"user_id,notnull" json:"user_id"`
	AccessLogID *uuid.UUID `bun:"access_log_id,type:uuid" json:"access_log_id,omitempty"`

	Type    string `bun:"type,notnull" json:"type"`
	Title   string `bun:"title,notnull" json:"title"`
	Message string `bun:"message,notnull" json:"message"`

	IsRead bool       `bun:"is_read,default:false" json:"is_read"`
	ReadAt *time.Time `bun:"read_at" json:"read_at,omitempty"`

	Metadata  json.RawMessage `bun:"metadata,type:jsonb,default:'{}'" json:"metadata"`
	CreatedAt time.Time       `bun:"created_at,nullzero,default:now()" json:"created_at"`
}

// NotificationResponse is the API representation
type NotificationResponse struct {
	ID          int64                 `json:"id"`
	UserID      int64                 `json:"user_id"`
	AccessLogID *uuid.UUID            `json:"access_log_id,omitempty"`
	Type        string                `json:"type"`
	Title       string                `json:"title"`
	Message     string                `json:"message"`
	IsRead      bool                  `json:"is_read"`
	ReadAt      *string               `json:"read_at,omitempty"`
	Metadata    *NotificationMetadata `json:"metadata,omitempty"`
	CreatedAt   string                `json:"created_at"`
}

func (n *Notification) ToResponse() *NotificationResponse {
	resp := &NotificationResponse{
		ID:          n.ID,
		UserID:      n.UserID,
		AccessLogID: n.AccessLogID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}

	if n.ReadAt != nil {
		r := n.ReadAt.Format(time.RFC3339)
		resp.ReadAt = &r
	}

	// Parse metadata
	if len(n.Metadata) > 0 {
		json.Unmarshal(n.Metadata, &resp.Metadata)
	}

	return resp
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*Notification)(nil)

func (n *Notification) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	n.CreatedAt = time.Now()
	return nil
}

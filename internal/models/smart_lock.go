package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SmartLock maps an internal lock to its Sciener counterpart. The internal
// UUID is what access logs reference; ScienerLockID is what the vendor API
// and webhook payloads speak.
type SmartLock struct {
	bun.BaseModel `bun:"table:smart_locks,alias:sl"`

	ID       uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name     string    `bun:"name,notnull" json:"name"`
	ParkName string    `bun:"park_name,notnull" json:"park_name"`

	// Sciener's numeric lock id, unique on their side.
	ScienerLockID int64 `bun:"sciener_lock_id,notnull,unique" json:"sciener_lock_id"`

	Enabled   bool      `bun:"enabled,default:true" json:"enabled"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:now()" json:"updated_at"`
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*SmartLock)(nil)

func (l *SmartLock) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	l.CreatedAt = time.Now()
	l.UpdatedAt = time.Now()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate hook
var _ bun.BeforeUpdateHook = (*SmartLock)(nil)

func (l *SmartLock) BeforeUpdate(ctx context.Context, query *bun.UpdateQuery) error {
	l.UpdatedAt = time.Now()
	return nil
}

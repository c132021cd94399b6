package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Player owns a kicks balance. The balance is mutated only through the
// ledger service, never directly.
type Player struct {
	bun.BaseModel `bun:"table:players"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name"`
	KicksBalance int64     `bun:"kicks_balance"`
	CreatedAt    time.Time `bun:"created_at"`
}

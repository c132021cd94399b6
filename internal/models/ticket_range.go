package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketRange is one declared roll of physically printed ticket stock.
// Rows are append-only; the most recent declaration governs reconciliation,
// older rows are kept for history.
type TicketRange struct {
	bun.BaseModel `bun:"table:ticket_ranges"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Start      int64     `bun:"start_number"`
	End        int64     `bun:"end_number"`
	CreatedBy  string    `bun:"created_by"`
	DeclaredAt time.Time `bun:"declared_at"`
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LedgerTransaction is one immutable row in the append-only kicks ledger.
// Every balance mutation writes exactly one row, including zero-amount
// administrative corrections.
//
// QueueTicketID is only persisted when the linkage column exists in the
// store; older deployments run without it and fall back to approximate
// reporting.
type LedgerTransaction struct {
	bun.BaseModel `bun:"table:ledger_transactions"`

	ID            string    `bun:"id,pk"`
	PlayerID      string    `bun:"player_id"`
	KicksDelta    int64     `bun:"kicks_delta"`
	AmountCents   int64     `bun:"amount_cents"`
	StaffID       string    `bun:"staff_id"`
	TeamPlay      bool      `bun:"team_play"`
	OfficialEntry bool      `bun:"official_entry"`
	QueueTicketID string    `bun:"queue_ticket_id,nullzero"`
	CreatedAt     time.Time `bun:"created_at"`
}

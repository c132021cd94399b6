package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Queue ticket statuses. All transitions out of StatusInQueue are terminal.
const (
	StatusInQueue   = "in-queue"
	StatusPlayed    = "played"
	StatusSkipped   = "skipped"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// QueueTicket is a numbered claim on a position in the physical line.
// Created by the issuer in StatusInQueue, mutated only by the lifecycle
// manager, never deleted.
type QueueTicket struct {
	bun.BaseModel `bun:"table:queue_tickets"`

	TicketID        string    `bun:"ticket_id,pk"`
	TicketNumber    int64     `bun:"ticket_number"`
	PlayerID        string    `bun:"player_id"`
	Status          string    `bun:"status"`
	CompetitionType string    `bun:"competition_type"`
	TeamPlay        bool      `bun:"team_play"`
	Official        bool      `bun:"official"`
	CreatedAt       time.Time `bun:"created_at"`
	PlayedAt        time.Time `bun:"played_at,nullzero"`
	ExpiredAt       time.Time `bun:"expired_at,nullzero"`
}

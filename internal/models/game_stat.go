package models

import (
	"time"

	"github.com/uptrace/bun"
)

// GameStat records the outcome of one ticket-play event. Created exactly
// once per play, atomically with the ticket's transition to played.
type GameStat struct {
	bun.BaseModel `bun:"table:game_stats"`

	ID            string    `bun:"id,pk"`
	PlayerID      string    `bun:"player_id"`
	Goals         int       `bun:"goals"`
	KicksUsed     int       `bun:"kicks_used"`
	QueueTicketID string    `bun:"queue_ticket_id"`
	StaffID       string    `bun:"staff_id"`
	Requeued      bool      `bun:"requeued"`
	TeamPlay      bool      `bun:"team_play"`
	CreatedAt     time.Time `bun:"created_at"`
}

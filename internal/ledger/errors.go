package ledger

import "fmt"

// InsufficientBalanceError rejects a debit that would drive a player's
// kicks balance below zero. The operation is rolled back whole; no ledger
// row is written.
type InsufficientBalanceError struct {
	PlayerID  string
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("player %s has %d kicks, cannot debit %d", e.PlayerID, e.Balance, -e.Requested)
}

// PlayerNotFoundError reports a ledger operation against an unknown player.
type PlayerNotFoundError struct {
	PlayerID string
}

func (e *PlayerNotFoundError) Error() string {
	return fmt.Sprintf("player %s not found", e.PlayerID)
}

package schema

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
)

// Accuracy labels attached to every report result.
const (
	AccuracyExact  = "exact"
	AccuracyApprox = "approx"
)

// TicketAttribution pairs one ledger transaction with the queue ticket it
// belongs to, for daily reporting.
type TicketAttribution struct {
	TransactionID string    `bun:"transaction_id" json:"transaction_id"`
	PlayerID      string    `bun:"player_id" json:"player_id"`
	TicketID      string    `bun:"ticket_id" json:"ticket_id,omitempty"`
	TicketNumber  int64     `bun:"ticket_number" json:"ticket_number,omitempty"`
	KicksDelta    int64     `bun:"kicks_delta" json:"kicks_delta"`
	CreatedAt     time.Time `bun:"created_at" json:"created_at"`
}

// ReportStore is what a capability variant needs from storage to build the
// daily attribution report.
type ReportStore interface {
	LinkedTransactionsOn(ctx context.Context, day time.Time) ([]TicketAttribution, error)
	OfficialTransactionsOn(ctx context.Context, day time.Time) ([]models.LedgerTransaction, error)
	TicketsIssuedOn(ctx context.Context, day time.Time) ([]models.QueueTicket, error)
}

// Capability describes whether the store carries the ledger-to-ticket
// linkage column, and implements the reporting query accordingly. It is
// detected once at startup and injected; ticket and balance correctness
// never depend on it.
type Capability interface {
	HasTicketLinkage() bool
	Accuracy() string
	TicketAttributions(ctx context.Context, store ReportStore, day time.Time) ([]TicketAttribution, error)
}

// Detect probes the ledger table for the linkage column. An empty table
// still proves the column exists; only a query error downgrades.
func Detect(ctx context.Context, bunDB *bun.DB, log *logger.Logger) Capability {
	var probe sql.NullString
	err := bunDB.NewSelect().
		ColumnExpr("queue_ticket_id").
		Table("ledger_transactions").
		Limit(1).
		Scan(ctx, &probe)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		if log != nil {
			log.Warn("SCHEMA", "ledger ticket-linkage column not found, reporting degrades to approximate pairing")
		}
		return WithoutTicketLinkage{}
	}

	if log != nil {
		log.Info("SCHEMA", "ledger ticket-linkage column detected, reporting is exact")
	}
	return WithTicketLinkage{}
}

// WithTicketLinkage reports through the stored queue_ticket_id join.
type WithTicketLinkage struct{}

func (WithTicketLinkage) HasTicketLinkage() bool { return true }
func (WithTicketLinkage) Accuracy() string       { return AccuracyExact }

func (WithTicketLinkage) TicketAttributions(ctx context.Context, store ReportStore, day time.Time) ([]TicketAttribution, error) {
	return store.LinkedTransactionsOn(ctx, day)
}

// WithoutTicketLinkage reconstructs an approximate mapping by pairing the
// Nth official transaction of the day with the Nth ticket issued that day,
// in creation order. Reporting quality only; never feeds back into state.
type WithoutTicketLinkage struct{}

func (WithoutTicketLinkage) HasTicketLinkage() bool { return false }
func (WithoutTicketLinkage) Accuracy() string       { return AccuracyApprox }

func (WithoutTicketLinkage) TicketAttributions(ctx context.Context, store ReportStore, day time.Time) ([]TicketAttribution, error) {
	transactions, err := store.OfficialTransactionsOn(ctx, day)
	if err != nil {
		return nil, err
	}
	tickets, err := store.TicketsIssuedOn(ctx, day)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.Before(transactions[j].CreatedAt)
	})
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})

	attributions := make([]TicketAttribution, 0, len(transactions))
	for i, tx := range transactions {
		attr := TicketAttribution{
			TransactionID: tx.ID,
			PlayerID:      tx.PlayerID,
			KicksDelta:    tx.KicksDelta,
			CreatedAt:     tx.CreatedAt,
		}
		if i < len(tickets) {
			attr.TicketID = tickets[i].TicketID
			attr.TicketNumber = tickets[i].TicketNumber
		}
		attributions = append(attributions, attr)
	}
	return attributions, nil
}

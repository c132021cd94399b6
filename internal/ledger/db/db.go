package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
)

// DB is the storage layer for players, the kicks ledger and game stats.
// The schema capability decides whether ledger rows carry the ticket
// linkage column.
type DB struct {
	Bun    bun.IDB
	Schema schema.Capability
}

func New(idb bun.IDB, capability schema.Capability) *DB {
	return &DB{Bun: idb, Schema: capability}
}

// RunInTx runs fn against a transaction-bound copy of the layer. If the
// layer is already bound to a transaction, fn joins it.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *DB) error) error {
	if _, ok := d.Bun.(bun.Tx); ok {
		return fn(d)
	}
	bunDB := d.Bun.(*bun.DB)
	return bunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{Bun: tx, Schema: d.Schema})
	})
}

// ---------------- PLAYERS ----------------

func (d *DB) CreatePlayer(ctx context.Context, player models.Player) error {
	_, err := d.Bun.NewInsert().Model(&player).Exec(ctx)
	return err
}

func (d *DB) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var player models.Player
	err := d.Bun.NewSelect().
		Model(&player).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.PlayerNotFoundError{PlayerID: id}
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// ---------------- LEDGER ----------------

// ApplyDeltas mutates one balance per entry and appends the matching ledger
// rows, all inside one transaction. A debit that would go negative rejects
// the whole batch; nothing is partially applied. Returns the new balance
// per entry, in order.
func (d *DB) ApplyDeltas(ctx context.Context, entries []models.LedgerTransaction) ([]int64, error) {
	balances := make([]int64, len(entries))
	err := d.RunInTx(ctx, func(tx *DB) error {
		for i, entry := range entries {
			balance, err := tx.applyOne(ctx, entry)
			if err != nil {
				return err
			}
			balances[i] = balance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// applyOne performs a single balance mutation plus its ledger row. The
// non-negative invariant is enforced in the UPDATE itself: a debit only
// matches when the resulting balance stays at or above zero.
func (d *DB) applyOne(ctx context.Context, entry models.LedgerTransaction) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Player)(nil)).
		Set("kicks_balance = kicks_balance + ?", entry.KicksDelta).
		Where("id = ?", entry.PlayerID).
		Where("kicks_balance + ? >= 0", entry.KicksDelta).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		player, err := d.GetPlayer(ctx, entry.PlayerID)
		if err != nil {
			return 0, err
		}
		return 0, &ledger.InsufficientBalanceError{
			PlayerID:  entry.PlayerID,
			Balance:   player.KicksBalance,
			Requested: entry.KicksDelta,
		}
	}

	insert := d.Bun.NewInsert().Model(&entry)
	if !d.Schema.HasTicketLinkage() {
		insert = insert.ExcludeColumn("queue_ticket_id")
	}
	if _, err := insert.Exec(ctx); err != nil {
		return 0, err
	}

	player, err := d.GetPlayer(ctx, entry.PlayerID)
	if err != nil {
		return 0, err
	}
	return player.KicksBalance, nil
}

// TransactionsForPlayer returns a player's ledger rows, newest first.
func (d *DB) TransactionsForPlayer(ctx context.Context, playerID string) ([]models.LedgerTransaction, error) {
	var transactions []models.LedgerTransaction
	q := d.Bun.NewSelect().
		Model(&transactions).
		Where("player_id = ?", playerID).
		Order("created_at DESC")
	if !d.Schema.HasTicketLinkage() {
		q = q.ExcludeColumn("queue_ticket_id")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return transactions, nil
}

// dayWindow bounds a calendar day in the day's own location, so venues away
// from UTC bucket their reports and caps on the local date.
func dayWindow(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.Add(24 * time.Hour)
}

// ---------------- GAME STATS ----------------

func (d *DB) InsertGameStat(ctx context.Context, stat models.GameStat) error {
	_, err := d.Bun.NewInsert().Model(&stat).Exec(ctx)
	return err
}

// CountRequeuesOn counts a player's balance-funded requeues on the given
// day, for the daily cap.
func (d *DB) CountRequeuesOn(ctx context.Context, playerID string, day time.Time) (int, error) {
	start, end := dayWindow(day)
	return d.Bun.NewSelect().
		Model((*models.GameStat)(nil)).
		Where("player_id = ?", playerID).
		Where("requeued = ?", true).
		Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Count(ctx)
}

// ---------------- REPORTING ----------------

// LinkedTransactionsOn is the exact attribution query, joining ledger rows
// to their tickets through the linkage column.
func (d *DB) LinkedTransactionsOn(ctx context.Context, day time.Time) ([]schema.TicketAttribution, error) {
	start, end := dayWindow(day)

	var attributions []schema.TicketAttribution
	err := d.Bun.NewSelect().
		ColumnExpr("lt.id AS transaction_id").
		ColumnExpr("lt.player_id AS player_id").
		ColumnExpr("COALESCE(lt.queue_ticket_id, '') AS ticket_id").
		ColumnExpr("COALESCE(qt.ticket_number, 0) AS ticket_number").
		ColumnExpr("lt.kicks_delta AS kicks_delta").
		ColumnExpr("lt.created_at AS created_at").
		TableExpr("ledger_transactions AS lt").
		Join("LEFT JOIN queue_tickets AS qt ON qt.ticket_id = lt.queue_ticket_id").
		Where("lt.created_at >= ?", start).
		Where("lt.created_at < ?", end).
		OrderExpr("lt.created_at ASC").
		Scan(ctx, &attributions)
	if err != nil {
		return nil, err
	}
	return attributions, nil
}

// OfficialTransactionsOn feeds the approximate pairing strategy.
func (d *DB) OfficialTransactionsOn(ctx context.Context, day time.Time) ([]models.LedgerTransaction, error) {
	start, end := dayWindow(day)

	var transactions []models.LedgerTransaction
	err := d.Bun.NewSelect().
		Model(&transactions).
		ExcludeColumn("queue_ticket_id").
		Where("official_entry = ?", true).
		Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// TicketsIssuedOn feeds the approximate pairing strategy.
func (d *DB) TicketsIssuedOn(ctx context.Context, day time.Time) ([]models.QueueTicket, error) {
	start, end := dayWindow(day)

	var tickets []models.QueueTicket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Order("created_at ASC", "ticket_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

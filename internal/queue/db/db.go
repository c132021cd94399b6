package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
)

// DB is the storage layer for the ticket counter, the declared ranges and
// the queue tickets. Bun may be either a *bun.DB or a bun.Tx, so a
// transaction-bound copy can be handed to composite operations.
type DB struct {
	Bun bun.IDB
}

// ReconcileResult reports what the counter integrity check did.
type ReconcileResult struct {
	Previous       int64 // counter value before the check (0 if the row was missing)
	Corrected      int64 // counter value after the check
	RangeExhausted bool  // corrected value lies beyond the active range's end
}

// RunInTx runs fn against a transaction-bound copy of the layer. If the
// layer is already bound to a transaction, fn joins it.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *DB) error) error {
	if _, ok := d.Bun.(bun.Tx); ok {
		return fn(d)
	}
	bunDB := d.Bun.(*bun.DB)
	return bunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{Bun: tx})
	})
}

// ---------------- COUNTER ----------------

// GetCounterValue returns the stored counter value. The second return is
// false when the counter row has never been written.
func (d *DB) GetCounterValue(ctx context.Context) (int64, bool, error) {
	var counter models.Counter
	err := d.Bun.NewSelect().
		Model(&counter).
		Where("name = ?", models.CounterName).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return counter.Value, true, nil
}

// SetCounterValue writes the counter value, creating the row if needed.
func (d *DB) SetCounterValue(ctx context.Context, value int64) error {
	counter := &models.Counter{Name: models.CounterName, Value: value}
	_, err := d.Bun.NewInsert().
		Model(counter).
		On("CONFLICT (name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// lockCounter takes a write lock on the counter row so concurrent issuers
// serialize on it. The no-op upsert creates the row on first use; inside
// DO UPDATE an unqualified column refers to the original row.
func (d *DB) lockCounter(ctx context.Context) error {
	counter := &models.Counter{Name: models.CounterName, Value: 0}
	_, err := d.Bun.NewInsert().
		Model(counter).
		On("CONFLICT (name) DO UPDATE").
		Set("value = value").
		Exec(ctx)
	return err
}

// ---------------- RANGES ----------------

// InsertRange appends a declared ticket range. Ranges are never updated or
// deleted; the newest declaration governs reconciliation.
func (d *DB) InsertRange(ctx context.Context, r models.TicketRange) error {
	_, err := d.Bun.NewInsert().Model(&r).Exec(ctx)
	return err
}

// LatestRange returns the most recently declared range, or (nil, nil) when
// no range has ever been declared.
func (d *DB) LatestRange(ctx context.Context) (*models.TicketRange, error) {
	var r models.TicketRange
	err := d.Bun.NewSelect().
		Model(&r).
		Order("declared_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// maxIssuedInWindow finds the highest ticket number issued inside the given
// range since its declaration. Tickets from an older numbering lineage fall
// outside the window and must not pollute the result.
func (d *DB) maxIssuedInWindow(ctx context.Context, start, end int64, since time.Time) (int64, bool, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.QueueTicket)(nil)).
		ColumnExpr("MAX(ticket_number)").
		Where("ticket_number >= ?", start).
		Where("ticket_number <= ?", end).
		Where("created_at >= ?", since).
		Scan(ctx, &max)
	if err != nil {
		return 0, false, err
	}
	return max.Int64, max.Valid, nil
}

// maxTicketNumber is the legacy fallback when no range was ever declared.
func (d *DB) maxTicketNumber(ctx context.Context) (int64, bool, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.QueueTicket)(nil)).
		ColumnExpr("MAX(ticket_number)").
		Scan(ctx, &max)
	if err != nil {
		return 0, false, err
	}
	return max.Int64, max.Valid, nil
}

// computeDesired derives the value the counter should hold: within the
// active range's window it is max(range start, last issued + 1); with no
// range it falls back to max(ticket_number) + 1 over all tickets.
func (d *DB) computeDesired(ctx context.Context) (int64, *models.TicketRange, error) {
	r, err := d.LatestRange(ctx)
	if err != nil {
		return 0, nil, err
	}

	if r == nil {
		max, found, err := d.maxTicketNumber(ctx)
		if err != nil {
			return 0, nil, err
		}
		if !found {
			// Fresh store: keep whatever the counter says, or start at 1.
			current, exists, err := d.GetCounterValue(ctx)
			if err != nil {
				return 0, nil, err
			}
			if exists && current > 0 {
				return current, nil, nil
			}
			return 1, nil, nil
		}
		return max + 1, nil, nil
	}

	lastIssued, found, err := d.maxIssuedInWindow(ctx, r.Start, r.End, r.DeclaredAt)
	if err != nil {
		return 0, nil, err
	}
	desired := r.Start
	if found && lastIssued+1 > desired {
		desired = lastIssued + 1
	}
	return desired, r, nil
}

// Reconcile compares the counter against the declared range and the tickets
// actually issued inside it, and corrects any drift. Idempotent; safe to
// call before every issuance.
func (d *DB) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	var result ReconcileResult
	err := d.RunInTx(ctx, func(tx *DB) error {
		if err := tx.lockCounter(ctx); err != nil {
			return err
		}
		previous, _, err := tx.GetCounterValue(ctx)
		if err != nil {
			return err
		}
		desired, activeRange, err := tx.computeDesired(ctx)
		if err != nil {
			return err
		}
		if previous != desired {
			if err := tx.SetCounterValue(ctx, desired); err != nil {
				return err
			}
		}
		result = ReconcileResult{
			Previous:       previous,
			Corrected:      desired,
			RangeExhausted: activeRange != nil && desired > activeRange.End,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ---------------- TICKETS ----------------

// IssueTicket reconciles the counter, takes the next number and inserts the
// ticket, all inside one transaction. The pre-increment counter value is the
// issued number; a failed insert rolls the increment back with it.
func (d *DB) IssueTicket(ctx context.Context, ticket models.QueueTicket) (*models.QueueTicket, error) {
	err := d.RunInTx(ctx, func(tx *DB) error {
		if err := tx.lockCounter(ctx); err != nil {
			return err
		}
		desired, _, err := tx.computeDesired(ctx)
		if err != nil {
			return err
		}
		if err := tx.SetCounterValue(ctx, desired+1); err != nil {
			return err
		}
		ticket.TicketNumber = desired
		ticket.Status = models.StatusInQueue
		_, err = tx.Bun.NewInsert().Model(&ticket).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByID fetches one ticket by its opaque ID.
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.QueueTicket, error) {
	var ticket models.QueueTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateTicketStatus transitions a ticket from one status to another. The
// old status is part of the WHERE clause, so a false return means the
// precondition did not hold and nothing changed.
func (d *DB) UpdateTicketStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.QueueTicket)(nil)).
		Set("status = ?", to).
		Where("ticket_id = ?", id).
		Where("status = ?", from)

	switch to {
	case models.StatusPlayed:
		q = q.Set("played_at = ?", at)
	case models.StatusExpired:
		q = q.Set("expired_at = ?", at)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CurrentlyServing returns the open ticket with the lowest number, or
// (nil, nil) when the queue is empty. Skipping a ticket changes its status
// rather than reordering, so the minimum is always the head of the line.
func (d *DB) CurrentlyServing(ctx context.Context) (*models.QueueTicket, error) {
	var ticket models.QueueTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("status = ?", models.StatusInQueue).
		Order("ticket_number ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// OpenTickets returns all in-queue tickets in serving order.
func (d *DB) OpenTickets(ctx context.Context) ([]models.QueueTicket, error) {
	var tickets []models.QueueTicket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.StatusInQueue).
		Order("ticket_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// TicketsIssuedOn returns all tickets created on the given day, oldest
// first. The window follows the day's own location, so a non-UTC venue
// reports on its local date.
func (d *DB) TicketsIssuedOn(ctx context.Context, day time.Time) ([]models.QueueTicket, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

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

// DisplayNumbers computes the read-mostly composite shown on every operator
// screen. Read-only: it reports what reconciliation would choose without
// correcting the counter.
func (d *DB) DisplayNumbers(ctx context.Context) (currentServing, lastIssued, nextToIssue int64, err error) {
	serving, err := d.CurrentlyServing(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	if serving != nil {
		currentServing = serving.TicketNumber
	}

	desired, activeRange, err := d.computeDesired(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	nextToIssue = desired

	if activeRange != nil {
		last, found, err := d.maxIssuedInWindow(ctx, activeRange.Start, activeRange.End, activeRange.DeclaredAt)
		if err != nil {
			return 0, 0, 0, err
		}
		if found {
			lastIssued = last
		}
	} else {
		last, found, err := d.maxTicketNumber(ctx)
		if err != nil {
			return 0, 0, 0, err
		}
		if found {
			lastIssued = last
		}
	}

	return currentServing, lastIssued, nextToIssue, nil
}

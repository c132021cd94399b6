package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
	"github.com/strikersplash/Striker-Splash-sub001/internal/queue/db"
)

func setupQueueDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	for _, model := range []interface{}{
		(*models.Counter)(nil),
		(*models.TicketRange)(nil),
		(*models.QueueTicket)(nil),
	} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		if err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func draftTicket(playerID string) models.QueueTicket {
	return models.QueueTicket{
		TicketID:  uuid.New().String(),
		PlayerID:  playerID,
		CreatedAt: time.Now(),
	}
}

func TestIssueTicketAssignsSequentialNumbers(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	seen := map[int64]bool{}
	var previous int64
	for i := 0; i < 5; i++ {
		ticket, err := queueDB.IssueTicket(ctx, draftTicket("player1"))
		assert.NoError(t, err)
		assert.Equal(t, models.StatusInQueue, ticket.Status)
		assert.False(t, seen[ticket.TicketNumber], "ticket number %d issued twice", ticket.TicketNumber)
		seen[ticket.TicketNumber] = true
		if i > 0 {
			assert.Greater(t, ticket.TicketNumber, previous)
		}
		previous = ticket.TicketNumber
	}

	// Counter should sit one past the last issued number
	value, exists, err := queueDB.GetCounterValue(ctx)
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, previous+1, value)
}

func TestReconcileRangeRollover(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// Counter left over from a previous roll
	assert.NoError(t, queueDB.SetCounterValue(ctx, 1050))

	// Declare the new roll
	assert.NoError(t, queueDB.InsertRange(ctx, models.TicketRange{
		Start:      2000,
		End:        2999,
		CreatedBy:  "staff1",
		DeclaredAt: time.Now(),
	}))

	result, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1050), result.Previous)
	assert.Equal(t, int64(2000), result.Corrected)
	assert.False(t, result.RangeExhausted)

	ticket, err := queueDB.IssueTicket(ctx, draftTicket("player1"))
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), ticket.TicketNumber)

	value, _, err := queueDB.GetCounterValue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2001), value)
}

func TestReconcileDriftCorrection(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	declaredAt := time.Now().Add(-time.Hour)
	assert.NoError(t, queueDB.InsertRange(ctx, models.TicketRange{
		Start:      1000,
		End:        1999,
		CreatedBy:  "staff1",
		DeclaredAt: declaredAt,
	}))

	// Five tickets already handed out, but the counter is stuck
	for n := int64(1000); n <= 1004; n++ {
		ticket := draftTicket("player1")
		ticket.TicketNumber = n
		ticket.Status = models.StatusInQueue
		_, err := bunDB.NewInsert().Model(&ticket).Exec(ctx)
		assert.NoError(t, err)
	}
	assert.NoError(t, queueDB.SetCounterValue(ctx, 1000))

	result, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1005), result.Corrected)

	value, _, err := queueDB.GetCounterValue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1005), value)
}

func TestReconcileIgnoresOlderLineage(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	declaredAt := time.Now()

	// A ticket numbered inside the new range but issued before the roll was
	// declared belongs to the old lineage and must not advance the counter.
	stale := draftTicket("player1")
	stale.TicketNumber = 2100
	stale.Status = models.StatusPlayed
	stale.CreatedAt = declaredAt.Add(-2 * time.Hour)
	_, err := bunDB.NewInsert().Model(&stale).Exec(ctx)
	assert.NoError(t, err)

	assert.NoError(t, queueDB.InsertRange(ctx, models.TicketRange{
		Start:      2000,
		End:        2999,
		CreatedBy:  "staff1",
		DeclaredAt: declaredAt,
	}))

	result, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), result.Corrected)
}

func TestReconcileIdempotent(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	assert.NoError(t, queueDB.InsertRange(ctx, models.TicketRange{
		Start:      500,
		End:        999,
		CreatedBy:  "staff1",
		DeclaredAt: time.Now(),
	}))

	first, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	second, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, first.Corrected, second.Corrected)
	assert.Equal(t, first.Corrected, second.Previous)
}

func TestReconcileRangeExhausted(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	declaredAt := time.Now().Add(-time.Hour)
	assert.NoError(t, queueDB.InsertRange(ctx, models.TicketRange{
		Start:      10,
		End:        11,
		CreatedBy:  "staff1",
		DeclaredAt: declaredAt,
	}))

	for n := int64(10); n <= 11; n++ {
		ticket := draftTicket("player1")
		ticket.TicketNumber = n
		ticket.Status = models.StatusPlayed
		_, err := bunDB.NewInsert().Model(&ticket).Exec(ctx)
		assert.NoError(t, err)
	}

	// Overflow stock: issuance keeps going past the printed range
	result, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.True(t, result.RangeExhausted)
	assert.Equal(t, int64(12), result.Corrected)

	ticket, err := queueDB.IssueTicket(ctx, draftTicket("player1"))
	assert.NoError(t, err)
	assert.Equal(t, int64(12), ticket.TicketNumber)
}

func TestReconcileLegacyNoRange(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket := draftTicket("player1")
	ticket.TicketNumber = 41
	ticket.Status = models.StatusPlayed
	_, err := bunDB.NewInsert().Model(&ticket).Exec(ctx)
	assert.NoError(t, err)

	result, err := queueDB.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), result.Corrected)
}

func TestUpdateTicketStatusPrecondition(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ticket, err := queueDB.IssueTicket(ctx, draftTicket("player1"))
	assert.NoError(t, err)

	ok, err := queueDB.UpdateTicketStatus(ctx, ticket.TicketID, models.StatusInQueue, models.StatusPlayed, time.Now())
	assert.NoError(t, err)
	assert.True(t, ok)

	// Terminal: a second transition must not match
	ok, err = queueDB.UpdateTicketStatus(ctx, ticket.TicketID, models.StatusInQueue, models.StatusSkipped, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)

	stored, err := queueDB.GetTicketByID(ctx, ticket.TicketID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPlayed, stored.Status)
	assert.False(t, stored.PlayedAt.IsZero())
}

func TestCurrentlyServingAndDisplayNumbers(t *testing.T) {
	queueDB, bunDB := setupQueueDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	serving, err := queueDB.CurrentlyServing(ctx)
	assert.NoError(t, err)
	assert.Nil(t, serving)

	first, err := queueDB.IssueTicket(ctx, draftTicket("player1"))
	assert.NoError(t, err)
	second, err := queueDB.IssueTicket(ctx, draftTicket("player2"))
	assert.NoError(t, err)

	serving, err = queueDB.CurrentlyServing(ctx)
	assert.NoError(t, err)
	assert.Equal(t, first.TicketNumber, serving.TicketNumber)

	// Skipping changes status, not order: the next lowest number serves
	ok, err := queueDB.UpdateTicketStatus(ctx, first.TicketID, models.StatusInQueue, models.StatusSkipped, time.Now())
	assert.NoError(t, err)
	assert.True(t, ok)

	serving, err = queueDB.CurrentlyServing(ctx)
	assert.NoError(t, err)
	assert.Equal(t, second.TicketNumber, serving.TicketNumber)

	current, lastIssued, nextToIssue, err := queueDB.DisplayNumbers(ctx)
	assert.NoError(t, err)
	assert.Equal(t, second.TicketNumber, current)
	assert.Equal(t, second.TicketNumber, lastIssued)
	assert.Equal(t, second.TicketNumber+1, nextToIssue)
}

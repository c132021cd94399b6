package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
	"github.com/strikersplash/Striker-Splash-sub001/internal/queue/db"
)

// driftWarnThreshold is how many numbers the counter may be off before a
// correction is logged as a warning rather than silently absorbed.
const driftWarnThreshold = 5

type DBLayer interface {
	Reconcile(ctx context.Context) (*db.ReconcileResult, error)
	IssueTicket(ctx context.Context, ticket models.QueueTicket) (*models.QueueTicket, error)
	GetTicketByID(ctx context.Context, id string) (*models.QueueTicket, error)
	UpdateTicketStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error)
	CurrentlyServing(ctx context.Context) (*models.QueueTicket, error)
	OpenTickets(ctx context.Context) ([]models.QueueTicket, error)
	InsertRange(ctx context.Context, r models.TicketRange) error
	DisplayNumbers(ctx context.Context) (currentServing, lastIssued, nextToIssue int64, err error)
}

// Display is the composite every operator and kiosk screen polls.
type Display struct {
	CurrentServing int64 `json:"current_serving"`
	LastIssued     int64 `json:"last_issued"`
	NextToIssue    int64 `json:"next_to_issue"`
}

// DisplayCache is a read-mostly cache for Display. A miss or a cache error
// is never fatal; the store remains the source of truth.
type DisplayCache interface {
	Get(ctx context.Context) (*Display, bool)
	Set(ctx context.Context, d Display)
	Invalidate(ctx context.Context)
}

type KafkaPublisher interface {
	PublishTicketIssued(ticket models.QueueTicket) error
}

type QueueService struct {
	DB     DBLayer
	Cache  DisplayCache
	Kafka  KafkaPublisher
	Logger *logger.Logger
}

func NewQueueService(dbLayer DBLayer, cache DisplayCache, kafka KafkaPublisher, log *logger.Logger) *QueueService {
	return &QueueService{DB: dbLayer, Cache: cache, Kafka: kafka, Logger: log}
}

// Reconcile corrects counter drift and logs anything noteworthy. Idempotent.
func (s *QueueService) Reconcile(ctx context.Context) (*db.ReconcileResult, error) {
	result, err := s.DB.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("counter reconciliation failed: %w", err)
	}

	if s.Logger != nil {
		diff := result.Corrected - result.Previous
		if diff < 0 {
			diff = -diff
		}
		if result.Previous != 0 && diff > driftWarnThreshold {
			s.Logger.Warn("QUEUE", fmt.Sprintf(
				"counter drift corrected: %d -> %d", result.Previous, result.Corrected))
		}
		if result.RangeExhausted {
			s.Logger.Warn("QUEUE", fmt.Sprintf(
				"declared ticket range exhausted, issuing overflow number %d", result.Corrected))
		}
	}
	return result, nil
}

// IssueTicket assigns the next ticket number and creates the ticket in
// status in-queue. Reconciliation, the counter increment and the insert run
// against the store atomically; a retried call after a failure may leave a
// numbering gap but never a duplicate.
func (s *QueueService) IssueTicket(ctx context.Context, playerID, competitionType string, official, teamPlay bool) (*models.QueueTicket, error) {
	if playerID == "" {
		return nil, &ValidationError{Field: "player_id", Reason: "must not be empty"}
	}

	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}

	ticket := models.QueueTicket{
		TicketID:        uuid.New().String(),
		PlayerID:        playerID,
		CompetitionType: competitionType,
		TeamPlay:        teamPlay,
		Official:        official,
		CreatedAt:       time.Now(),
	}

	issued, err := s.DB.IssueTicket(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to issue ticket: %w", err)
	}

	if s.Logger != nil {
		s.Logger.LogQueue("ISSUE", issued.TicketID, fmt.Sprintf("ticket #%d for player %s", issued.TicketNumber, playerID))
	}
	s.invalidateDisplay(ctx)

	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketIssued(*issued); err != nil && s.Logger != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket issued: %v", err))
		}
	}

	return issued, nil
}

// CurrentlyServing returns the lowest open ticket number. The bool is false
// when the queue is empty.
func (s *QueueService) CurrentlyServing(ctx context.Context) (int64, bool, error) {
	ticket, err := s.DB.CurrentlyServing(ctx)
	if err != nil {
		return 0, false, err
	}
	if ticket == nil {
		return 0, false, nil
	}
	return ticket.TicketNumber, true, nil
}

// DisplayNumbers returns the operator display composite, served from cache
// when fresh.
func (s *QueueService) DisplayNumbers(ctx context.Context) (*Display, error) {
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx); ok {
			return cached, nil
		}
	}

	current, last, next, err := s.DB.DisplayNumbers(ctx)
	if err != nil {
		return nil, err
	}
	display := Display{CurrentServing: current, LastIssued: last, NextToIssue: next}

	if s.Cache != nil {
		s.Cache.Set(ctx, display)
	}
	return &display, nil
}

// GetTicket fetches one ticket.
func (s *QueueService) GetTicket(ctx context.Context, id string) (*models.QueueTicket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ticket %s not found: %w", id, err)
	}
	return ticket, nil
}

// CheckHeadOfLine rejects a play request for any ticket other than the one
// being served. The returned violation names the expected ticket so the
// operator can serve or skip it. Goal logging runs the same check against a
// transaction-bound read of the head.
func CheckHeadOfLine(serving, requested *models.QueueTicket) error {
	if serving == nil || serving.TicketNumber != requested.TicketNumber {
		expected := int64(0)
		if serving != nil {
			expected = serving.TicketNumber
		}
		return &QueueOrderViolationError{
			ExpectedNumber:  expected,
			RequestedNumber: requested.TicketNumber,
		}
	}
	return nil
}

// EnsureHeadOfLine runs the head-of-line check against the current store
// state, outside any transaction.
func (s *QueueService) EnsureHeadOfLine(ctx context.Context, ticket *models.QueueTicket) error {
	serving, err := s.DB.CurrentlyServing(ctx)
	if err != nil {
		return err
	}
	return CheckHeadOfLine(serving, ticket)
}

// MarkPlayed transitions an in-queue ticket to played.
func (s *QueueService) MarkPlayed(ctx context.Context, ticketID string) error {
	return s.transition(ctx, ticketID, models.StatusPlayed)
}

// MarkSkipped transitions an in-queue ticket to skipped.
func (s *QueueService) MarkSkipped(ctx context.Context, ticketID string) error {
	return s.transition(ctx, ticketID, models.StatusSkipped)
}

// MarkExpired transitions an in-queue ticket to expired.
func (s *QueueService) MarkExpired(ctx context.Context, ticketID string) error {
	return s.transition(ctx, ticketID, models.StatusExpired)
}

// MarkCancelled transitions an in-queue ticket to cancelled.
func (s *QueueService) MarkCancelled(ctx context.Context, ticketID string) error {
	return s.transition(ctx, ticketID, models.StatusCancelled)
}

func (s *QueueService) transition(ctx context.Context, ticketID, to string) error {
	ok, err := s.DB.UpdateTicketStatus(ctx, ticketID, models.StatusInQueue, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark ticket %s %s: %w", ticketID, to, err)
	}
	if !ok {
		// The conditional update did not match; fetch the actual status so
		// the operator message can say what state the ticket is in.
		actual := "unknown"
		if ticket, err := s.DB.GetTicketByID(ctx, ticketID); err == nil {
			actual = ticket.Status
		}
		return &TicketStateError{TicketID: ticketID, Expected: models.StatusInQueue, Actual: actual}
	}

	if s.Logger != nil {
		s.Logger.LogQueue("TRANSITION", ticketID, "now "+to)
	}
	s.invalidateDisplay(ctx)
	return nil
}

// SetTicketRange declares a new roll of printed stock and reconciles the
// counter against it immediately, so the next issued number comes from the
// new roll without colliding with tickets from the previous one.
func (s *QueueService) SetTicketRange(ctx context.Context, start, end int64, staffID string) error {
	if start >= end {
		return &ValidationError{Field: "range", Reason: fmt.Sprintf("start %d must be below end %d", start, end)}
	}

	r := models.TicketRange{
		Start:      start,
		End:        end,
		CreatedBy:  staffID,
		DeclaredAt: time.Now(),
	}
	if err := s.DB.InsertRange(ctx, r); err != nil {
		return fmt.Errorf("failed to declare ticket range: %w", err)
	}

	if s.Logger != nil {
		s.Logger.LogQueue("RANGE", staffID, fmt.Sprintf("declared range %d-%d", start, end))
	}

	if _, err := s.Reconcile(ctx); err != nil {
		return err
	}
	s.invalidateDisplay(ctx)
	return nil
}

func (s *QueueService) invalidateDisplay(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx)
	}
}

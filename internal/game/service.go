package game

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/strikersplash/Striker-Splash-sub001/internal/config"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	ledgerdb "github.com/strikersplash/Striker-Splash-sub001/internal/ledger/db"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
	queuedb "github.com/strikersplash/Striker-Splash-sub001/internal/queue/db"
	queue "github.com/strikersplash/Striker-Splash-sub001/internal/queue/service"
	"github.com/strikersplash/Striker-Splash-sub001/internal/utils"
)

type KafkaPublisher interface {
	PublishTicketIssued(ticket models.QueueTicket) error
	PublishTicketExpired(ticket models.QueueTicket) error
	PublishKicksPurchased(tx models.LedgerTransaction) error
	PublishGoalLogged(stat models.GameStat) error
}

// GameService orchestrates the operations that span the queue and the
// ledger: goal logging, purchases, requeues and the end-of-period sweep.
// Each operation runs as one store transaction; Kafka and the display cache
// are only touched after commit.
type GameService struct {
	Bun    *bun.DB
	Rules  config.GameConfig
	Schema schema.Capability
	Cache  queue.DisplayCache
	Kafka  KafkaPublisher
	Logger *logger.Logger
}

func NewGameService(bunDB *bun.DB, rules config.GameConfig, capability schema.Capability, cache queue.DisplayCache, kafka KafkaPublisher, log *logger.Logger) *GameService {
	return &GameService{Bun: bunDB, Rules: rules, Schema: capability, Cache: cache, Kafka: kafka, Logger: log}
}

type GoalRequest struct {
	TicketID      string
	PlayerID      string
	TeamMemberIDs []string
	KicksUsed     int
	Goals         int
	StaffID       string
	Requeue       bool
	TeamPlay      bool
}

type GoalResult struct {
	Stat          models.GameStat
	NewBalance    int64
	RequeueTicket *models.QueueTicket
}

// LogGoal records a play: one balance debit, the ticket's transition to
// played, one game stat row and, when requested, a freshly issued requeue
// ticket. All of it commits or none of it does.
func (s *GameService) LogGoal(ctx context.Context, req GoalRequest) (*GoalResult, error) {
	if req.Goals < 0 || req.Goals > s.Rules.MaxGoals {
		return nil, &queue.ValidationError{
			Field:  "goals",
			Reason: fmt.Sprintf("must be between 0 and %d", s.Rules.MaxGoals),
		}
	}
	maxKicks := s.Rules.KicksPerPlay(req.TeamPlay)
	if req.KicksUsed < 1 || req.KicksUsed > maxKicks {
		return nil, &queue.ValidationError{
			Field:  "kicks_used",
			Reason: fmt.Sprintf("must be between 1 and %d", maxKicks),
		}
	}
	if req.TeamPlay && len(req.TeamMemberIDs) == 0 {
		return nil, &queue.ValidationError{Field: "team_member_ids", Reason: "required for team play"}
	}

	now := time.Now()
	var result GoalResult

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		qdb := &queuedb.DB{Bun: tx}
		ldb := ledgerdb.New(tx, s.Schema)

		ticket, err := qdb.GetTicketByID(ctx, req.TicketID)
		if err != nil {
			return fmt.Errorf("ticket %s not found: %w", req.TicketID, err)
		}
		if ticket.Status != models.StatusInQueue {
			return &queue.TicketStateError{
				TicketID: ticket.TicketID,
				Expected: models.StatusInQueue,
				Actual:   ticket.Status,
			}
		}

		// FIFO enforcement: only the head of the line plays.
		serving, err := qdb.CurrentlyServing(ctx)
		if err != nil {
			return err
		}
		if err := queue.CheckHeadOfLine(serving, ticket); err != nil {
			return err
		}

		requeueCost := 0
		if req.Requeue {
			requeueCost = s.Rules.KicksPerPlay(req.TeamPlay)
			if s.Rules.RequeueDailyLimit > 0 {
				count, err := ldb.CountRequeuesOn(ctx, req.PlayerID, now)
				if err != nil {
					return err
				}
				if count >= s.Rules.RequeueDailyLimit {
					return &queue.ValidationError{
						Field:  "requeue",
						Reason: fmt.Sprintf("daily requeue limit of %d reached", s.Rules.RequeueDailyLimit),
					}
				}
			}
		}

		meta := ledger.Meta{
			StaffID:       req.StaffID,
			TeamPlay:      req.TeamPlay,
			OfficialEntry: ticket.Official,
			QueueTicketID: ticket.TicketID,
		}

		var entries []models.LedgerTransaction
		if req.TeamPlay {
			// One ledger row per member; the requeue cost lands on the
			// member who requested it.
			for _, memberID := range req.TeamMemberIDs {
				delta := int64(-req.KicksUsed)
				if memberID == req.PlayerID {
					delta -= int64(requeueCost)
				}
				entries = append(entries, ledger.NewEntry(memberID, delta, meta))
			}
		} else {
			entries = append(entries, ledger.NewEntry(req.PlayerID, int64(-(req.KicksUsed+requeueCost)), meta))
		}

		balances, err := ldb.ApplyDeltas(ctx, entries)
		if err != nil {
			return err
		}
		for i, entry := range entries {
			if entry.PlayerID == req.PlayerID {
				result.NewBalance = balances[i]
			}
		}

		ok, err := qdb.UpdateTicketStatus(ctx, ticket.TicketID, models.StatusInQueue, models.StatusPlayed, now)
		if err != nil {
			return err
		}
		if !ok {
			return &queue.TicketStateError{
				TicketID: ticket.TicketID,
				Expected: models.StatusInQueue,
				Actual:   "changed concurrently",
			}
		}

		stat := models.GameStat{
			ID:            utils.GenerateStatID(),
			PlayerID:      req.PlayerID,
			Goals:         req.Goals,
			KicksUsed:     req.KicksUsed,
			QueueTicketID: ticket.TicketID,
			StaffID:       req.StaffID,
			Requeued:      req.Requeue,
			TeamPlay:      req.TeamPlay,
			CreatedAt:     now,
		}
		if err := ldb.InsertGameStat(ctx, stat); err != nil {
			return err
		}
		result.Stat = stat

		if req.Requeue {
			requeued, err := qdb.IssueTicket(ctx, models.QueueTicket{
				TicketID:        uuid.New().String(),
				PlayerID:        ticket.PlayerID,
				CompetitionType: ticket.CompetitionType,
				TeamPlay:        ticket.TeamPlay,
				Official:        ticket.Official,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			result.RequeueTicket = requeued
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx)
	if s.Logger != nil {
		s.Logger.LogQueue("GOALS", req.TicketID,
			fmt.Sprintf("%d goals on %d kicks by %s", req.Goals, req.KicksUsed, req.PlayerID))
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishGoalLogged(result.Stat); err != nil && s.Logger != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish goal logged: %v", err))
		}
		if result.RequeueTicket != nil {
			if err := s.Kafka.PublishTicketIssued(*result.RequeueTicket); err != nil && s.Logger != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket issued: %v", err))
			}
		}
	}

	return &result, nil
}

type PurchaseRequest struct {
	PlayerID        string
	Quantity        int64
	AmountCents     int64
	StaffID         string
	TeamPlay        bool
	TeamMemberIDs   []string
	Official        bool
	IssueTicket     bool
	CompetitionType string
}

type PurchaseResult struct {
	NewBalance int64
	Ticket     *models.QueueTicket
}

// PurchaseKicks credits purchased kicks and optionally puts the buyer
// straight into the line, in one transaction. Team purchases write one
// ledger row per member.
func (s *GameService) PurchaseKicks(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.Quantity <= 0 {
		return nil, &queue.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if req.TeamPlay && len(req.TeamMemberIDs) == 0 {
		return nil, &queue.ValidationError{Field: "team_member_ids", Reason: "required for team play"}
	}

	now := time.Now()
	var result PurchaseResult
	var entries []models.LedgerTransaction

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		qdb := &queuedb.DB{Bun: tx}
		ldb := ledgerdb.New(tx, s.Schema)

		meta := ledger.Meta{
			AmountCents:   req.AmountCents,
			StaffID:       req.StaffID,
			TeamPlay:      req.TeamPlay,
			OfficialEntry: req.Official,
		}

		entries = entries[:0]
		if req.TeamPlay {
			for _, memberID := range req.TeamMemberIDs {
				entries = append(entries, ledger.NewEntry(memberID, req.Quantity, meta))
			}
		} else {
			entries = append(entries, ledger.NewEntry(req.PlayerID, req.Quantity, meta))
		}

		balances, err := ldb.ApplyDeltas(ctx, entries)
		if err != nil {
			return err
		}
		for i, entry := range entries {
			if entry.PlayerID == req.PlayerID {
				result.NewBalance = balances[i]
			}
		}

		if req.IssueTicket {
			ticket, err := qdb.IssueTicket(ctx, models.QueueTicket{
				TicketID:        uuid.New().String(),
				PlayerID:        req.PlayerID,
				CompetitionType: req.CompetitionType,
				TeamPlay:        req.TeamPlay,
				Official:        req.Official,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			result.Ticket = ticket
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx)
	if s.Logger != nil {
		s.Logger.LogLedger("PURCHASE", req.PlayerID, fmt.Sprintf("%d kicks purchased", req.Quantity))
	}
	if s.Kafka != nil {
		for _, entry := range entries {
			if err := s.Kafka.PublishKicksPurchased(entry); err != nil && s.Logger != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish kicks purchased: %v", err))
			}
		}
		if result.Ticket != nil {
			if err := s.Kafka.PublishTicketIssued(*result.Ticket); err != nil && s.Logger != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket issued: %v", err))
			}
		}
	}

	return &result, nil
}

// Requeue re-enters the line on stored kicks: one debit of the per-play
// cost plus a fresh ticket, atomically. Subject to the daily cap.
func (s *GameService) Requeue(ctx context.Context, playerID, staffID, competitionType string, teamPlay, official bool) (*models.QueueTicket, int64, error) {
	cost := int64(s.Rules.KicksPerPlay(teamPlay))
	now := time.Now()

	var ticket *models.QueueTicket
	var balance int64

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		qdb := &queuedb.DB{Bun: tx}
		ldb := ledgerdb.New(tx, s.Schema)

		if s.Rules.RequeueDailyLimit > 0 {
			count, err := ldb.CountRequeuesOn(ctx, playerID, now)
			if err != nil {
				return err
			}
			if count >= s.Rules.RequeueDailyLimit {
				return &queue.ValidationError{
					Field:  "requeue",
					Reason: fmt.Sprintf("daily requeue limit of %d reached", s.Rules.RequeueDailyLimit),
				}
			}
		}

		issued, err := qdb.IssueTicket(ctx, models.QueueTicket{
			TicketID:        uuid.New().String(),
			PlayerID:        playerID,
			CompetitionType: competitionType,
			TeamPlay:        teamPlay,
			Official:        official,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}

		meta := ledger.Meta{
			StaffID:       staffID,
			TeamPlay:      teamPlay,
			OfficialEntry: official,
			QueueTicketID: issued.TicketID,
		}
		balances, err := ldb.ApplyDeltas(ctx, []models.LedgerTransaction{
			ledger.NewEntry(playerID, -cost, meta),
		})
		if err != nil {
			return err
		}
		ticket = issued
		balance = balances[0]
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.afterCommit(ctx)
	if s.Logger != nil {
		s.Logger.LogQueue("REQUEUE", ticket.TicketID,
			fmt.Sprintf("ticket #%d for player %s, %d kicks consumed", ticket.TicketNumber, playerID, cost))
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketIssued(*ticket); err != nil && s.Logger != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket issued: %v", err))
		}
	}

	return ticket, balance, nil
}

type ExpiryResult struct {
	ExpiredTickets int
	RefundedKicks  int64
}

// ExpireEndOfPeriod sweeps every open ticket to expired and refunds each
// holder the configured amount, in one transaction. Refunds ride the
// ordinary positive-delta ledger path; there is no separate refund code.
func (s *GameService) ExpireEndOfPeriod(ctx context.Context, staffID string) (*ExpiryResult, error) {
	now := time.Now()
	var result ExpiryResult
	var expired []models.QueueTicket

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		qdb := &queuedb.DB{Bun: tx}
		ldb := ledgerdb.New(tx, s.Schema)

		open, err := qdb.OpenTickets(ctx)
		if err != nil {
			return err
		}

		var refunds []models.LedgerTransaction
		for _, ticket := range open {
			ok, err := qdb.UpdateTicketStatus(ctx, ticket.TicketID, models.StatusInQueue, models.StatusExpired, now)
			if err != nil {
				return err
			}
			if !ok {
				continue // raced with an operator, leave it be
			}
			expired = append(expired, ticket)

			if s.Rules.ExpiryRefundKicks > 0 {
				refunds = append(refunds, ledger.NewEntry(ticket.PlayerID, int64(s.Rules.ExpiryRefundKicks), ledger.Meta{
					StaffID:       staffID,
					TeamPlay:      ticket.TeamPlay,
					OfficialEntry: ticket.Official,
					QueueTicketID: ticket.TicketID,
				}))
			}
		}

		if len(refunds) > 0 {
			if _, err := ldb.ApplyDeltas(ctx, refunds); err != nil {
				return err
			}
			result.RefundedKicks = int64(len(refunds) * s.Rules.ExpiryRefundKicks)
		}
		result.ExpiredTickets = len(expired)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx)
	if s.Logger != nil {
		s.Logger.LogQueue("EXPIRE", staffID,
			fmt.Sprintf("%d tickets expired, %d kicks refunded", result.ExpiredTickets, result.RefundedKicks))
	}
	if s.Kafka != nil {
		for _, ticket := range expired {
			if err := s.Kafka.PublishTicketExpired(ticket); err != nil && s.Logger != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket expired: %v", err))
			}
		}
	}

	return &result, nil
}

func (s *GameService) afterCommit(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx)
	}
}

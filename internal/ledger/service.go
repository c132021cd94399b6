package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
	"github.com/strikersplash/Striker-Splash-sub001/internal/utils"
)

type DBLayer interface {
	CreatePlayer(ctx context.Context, player models.Player) error
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	ApplyDeltas(ctx context.Context, entries []models.LedgerTransaction) ([]int64, error)
	TransactionsForPlayer(ctx context.Context, playerID string) ([]models.LedgerTransaction, error)
}

// Meta carries the audit fields every ledger row records alongside the
// kicks delta.
type Meta struct {
	AmountCents   int64
	StaffID       string
	TeamPlay      bool
	OfficialEntry bool
	QueueTicketID string
}

type KafkaPublisher interface {
	PublishKicksPurchased(tx models.LedgerTransaction) error
}

// Report is a day's ticket attribution, labeled with how trustworthy the
// pairing is.
type Report struct {
	Date         string                     `json:"date"`
	Accuracy     string                     `json:"accuracy"`
	Attributions []schema.TicketAttribution `json:"attributions"`
}

// LedgerService is the only path that mutates kicks balances. Every
// successful mutation appends exactly one transaction row; refunds and
// corrections go through the same contract.
type LedgerService struct {
	DB     DBLayer
	Schema schema.Capability
	Report schema.ReportStore
	Kafka  KafkaPublisher
	Logger *logger.Logger
}

func NewLedgerService(dbLayer DBLayer, capability schema.Capability, reportStore schema.ReportStore, kafka KafkaPublisher, log *logger.Logger) *LedgerService {
	return &LedgerService{DB: dbLayer, Schema: capability, Report: reportStore, Kafka: kafka, Logger: log}
}

// NewEntry builds a ledger row for a delta. Exported so orchestrating
// services can batch entries into one atomic unit.
func NewEntry(playerID string, delta int64, meta Meta) models.LedgerTransaction {
	return models.LedgerTransaction{
		ID:            utils.GenerateTransactionID(),
		PlayerID:      playerID,
		KicksDelta:    delta,
		AmountCents:   meta.AmountCents,
		StaffID:       meta.StaffID,
		TeamPlay:      meta.TeamPlay,
		OfficialEntry: meta.OfficialEntry,
		QueueTicketID: meta.QueueTicketID,
		CreatedAt:     time.Now(),
	}
}

// ApplyDelta atomically moves kicks for one player and appends the audit
// row. A debit below zero is rejected whole. Zero deltas are allowed:
// administrative corrections still need their audit row.
func (s *LedgerService) ApplyDelta(ctx context.Context, playerID string, delta int64, meta Meta) (int64, error) {
	balances, err := s.DB.ApplyDeltas(ctx, []models.LedgerTransaction{NewEntry(playerID, delta, meta)})
	if err != nil {
		return 0, err
	}

	if s.Logger != nil {
		s.Logger.LogLedger("DELTA", playerID, fmt.Sprintf("%+d kicks, balance now %d", delta, balances[0]))
	}
	return balances[0], nil
}

// ApplyTeamDelta fans a team-play mutation out into one balance change and
// one ledger row per member, atomically. Downstream reporting attributes
// revenue and kicks per individual, so there is no aggregate record.
func (s *LedgerService) ApplyTeamDelta(ctx context.Context, memberIDs []string, deltaPerMember int64, meta Meta) ([]int64, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("team delta requires at least one member")
	}

	meta.TeamPlay = true
	entries := make([]models.LedgerTransaction, len(memberIDs))
	for i, memberID := range memberIDs {
		entries[i] = NewEntry(memberID, deltaPerMember, meta)
	}

	balances, err := s.DB.ApplyDeltas(ctx, entries)
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.LogLedger("TEAM-DELTA", fmt.Sprintf("%d members", len(memberIDs)),
			fmt.Sprintf("%+d kicks each", deltaPerMember))
	}
	return balances, nil
}

// Purchase credits purchased kicks and records the sale.
func (s *LedgerService) Purchase(ctx context.Context, playerID string, quantity int64, meta Meta) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("purchase quantity must be positive, got %d", quantity)
	}

	entry := NewEntry(playerID, quantity, meta)
	balances, err := s.DB.ApplyDeltas(ctx, []models.LedgerTransaction{entry})
	if err != nil {
		return 0, err
	}

	if s.Logger != nil {
		s.Logger.LogLedger("PURCHASE", playerID, fmt.Sprintf("%d kicks, balance now %d", quantity, balances[0]))
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishKicksPurchased(entry); err != nil && s.Logger != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish kicks purchased: %v", err))
		}
	}
	return balances[0], nil
}

// RegisterPlayer creates a player with an empty balance.
func (s *LedgerService) RegisterPlayer(ctx context.Context, name string) (*models.Player, error) {
	player := models.Player{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.DB.CreatePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return &player, nil
}

func (s *LedgerService) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	return s.DB.GetPlayer(ctx, id)
}

func (s *LedgerService) Transactions(ctx context.Context, playerID string) ([]models.LedgerTransaction, error) {
	return s.DB.TransactionsForPlayer(ctx, playerID)
}

// DailyReport builds the ticket attribution for a day using whichever
// strategy the detected schema supports, and labels the result accordingly.
func (s *LedgerService) DailyReport(ctx context.Context, day time.Time) (*Report, error) {
	attributions, err := s.Schema.TicketAttributions(ctx, s.Report, day)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily report: %w", err)
	}
	return &Report{
		Date:         day.Format("2006-01-02"),
		Accuracy:     s.Schema.Accuracy(),
		Attributions: attributions,
	}, nil
}

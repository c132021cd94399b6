package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreatePlayer(ctx context.Context, player models.Player) error {
	args := m.Called(ctx, player)
	return args.Error(0)
}

func (m *MockDBLayer) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Player), args.Error(1)
}

func (m *MockDBLayer) ApplyDeltas(ctx context.Context, entries []models.LedgerTransaction) ([]int64, error) {
	args := m.Called(ctx, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockDBLayer) TransactionsForPlayer(ctx context.Context, playerID string) ([]models.LedgerTransaction, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerTransaction), args.Error(1)
}

type fakeReportStore struct {
	linked []schema.TicketAttribution
}

func (s *fakeReportStore) LinkedTransactionsOn(ctx context.Context, day time.Time) ([]schema.TicketAttribution, error) {
	return s.linked, nil
}

func (s *fakeReportStore) OfficialTransactionsOn(ctx context.Context, day time.Time) ([]models.LedgerTransaction, error) {
	return nil, nil
}

func (s *fakeReportStore) TicketsIssuedOn(ctx context.Context, day time.Time) ([]models.QueueTicket, error) {
	return nil, nil
}

func TestApplyDeltaBuildsSingleEntry(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, nil, nil, nil)

	mockDB.On("ApplyDeltas", mock.Anything, mock.MatchedBy(func(entries []models.LedgerTransaction) bool {
		return len(entries) == 1 &&
			entries[0].PlayerID == "player1" &&
			entries[0].KicksDelta == -5 &&
			entries[0].StaffID == "staff1" &&
			entries[0].ID != ""
	})).Return([]int64{3}, nil)

	balance, err := service.ApplyDelta(context.Background(), "player1", -5, ledger.Meta{StaffID: "staff1"})

	assert.NoError(t, err)
	assert.Equal(t, int64(3), balance)
	mockDB.AssertExpectations(t)
}

func TestApplyTeamDeltaFansOutPerMember(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, nil, nil, nil)

	mockDB.On("ApplyDeltas", mock.Anything, mock.MatchedBy(func(entries []models.LedgerTransaction) bool {
		if len(entries) != 3 {
			return false
		}
		for _, e := range entries {
			if e.KicksDelta != -3 || !e.TeamPlay {
				return false
			}
		}
		return entries[0].PlayerID == "a" && entries[1].PlayerID == "b" && entries[2].PlayerID == "c"
	})).Return([]int64{7, 2, 0}, nil)

	balances, err := service.ApplyTeamDelta(context.Background(), []string{"a", "b", "c"}, -3, ledger.Meta{})

	assert.NoError(t, err)
	assert.Equal(t, []int64{7, 2, 0}, balances)
	mockDB.AssertExpectations(t)
}

func TestApplyTeamDeltaRequiresMembers(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, nil, nil, nil)

	_, err := service.ApplyTeamDelta(context.Background(), nil, -3, ledger.Meta{})

	assert.Error(t, err)
	mockDB.AssertNotCalled(t, "ApplyDeltas")
}

func TestPurchaseRejectsNonPositiveQuantity(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, nil, nil, nil)

	_, err := service.Purchase(context.Background(), "player1", 0, ledger.Meta{})
	assert.Error(t, err)

	_, err = service.Purchase(context.Background(), "player1", -10, ledger.Meta{})
	assert.Error(t, err)

	mockDB.AssertNotCalled(t, "ApplyDeltas")
}

func TestPurchaseCreditsBalance(t *testing.T) {
	mockDB := new(MockDBLayer)
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, nil, nil, nil)

	mockDB.On("ApplyDeltas", mock.Anything, mock.MatchedBy(func(entries []models.LedgerTransaction) bool {
		return len(entries) == 1 && entries[0].KicksDelta == 10 && entries[0].AmountCents == 2500
	})).Return([]int64{10}, nil)

	balance, err := service.Purchase(context.Background(), "player1", 10, ledger.Meta{AmountCents: 2500})

	assert.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestDailyReportLabelsAccuracy(t *testing.T) {
	mockDB := new(MockDBLayer)
	store := &fakeReportStore{linked: []schema.TicketAttribution{
		{TransactionID: "tx1", PlayerID: "p1", TicketID: "ticketA", TicketNumber: 100},
	}}
	service := ledger.NewLedgerService(mockDB, schema.WithTicketLinkage{}, store, nil, nil)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	report, err := service.DailyReport(context.Background(), day)

	assert.NoError(t, err)
	assert.Equal(t, "2026-03-14", report.Date)
	assert.Equal(t, schema.AccuracyExact, report.Accuracy)
	assert.Len(t, report.Attributions, 1)
}

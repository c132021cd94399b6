package queue_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/strikersplash/Striker-Splash-sub001/internal/config"
	"github.com/strikersplash/Striker-Splash-sub001/internal/game"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	ledgerdb "github.com/strikersplash/Striker-Splash-sub001/internal/ledger/db"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
	queuedb "github.com/strikersplash/Striker-Splash-sub001/internal/queue/db"
	"github.com/strikersplash/Striker-Splash-sub001/internal/queue/queue_api"
	queue "github.com/strikersplash/Striker-Splash-sub001/internal/queue/service"
	"github.com/strikersplash/Striker-Splash-sub001/internal/utils"
)

func setupServer(t *testing.T) (*httptest.Server, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	for _, model := range []interface{}{
		(*models.Counter)(nil),
		(*models.TicketRange)(nil),
		(*models.QueueTicket)(nil),
		(*models.Player)(nil),
		(*models.LedgerTransaction)(nil),
		(*models.GameStat)(nil),
	} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		if err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	capability := schema.WithTicketLinkage{}
	rules := config.GameConfig{
		KicksPerPlayIndividual: 5,
		KicksPerPlayTeam:       3,
		MaxGoals:               5,
		ExpiryRefundKicks:      1,
	}

	queueDB := &queuedb.DB{Bun: bunDB}
	ledgerDB := ledgerdb.New(bunDB, capability)

	handler := queue_api.NewHandler(
		queue.NewQueueService(queueDB, nil, nil, nil),
		ledger.NewLedgerService(ledgerDB, capability, ledgerDB, nil, nil),
		game.NewGameService(bunDB, rules, capability, nil, nil, nil),
	)

	r := chi.NewRouter()
	r.Route("/api/v1", handler.Routes)

	return httptest.NewServer(r), bunDB
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	payload, err := json.Marshal(body)
	assert.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	assert.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) utils.APIResponse {
	defer resp.Body.Close()
	var decoded utils.APIResponse
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func createPlayer(t *testing.T, baseURL string) string {
	resp := postJSON(t, baseURL+"/api/v1/players", map[string]string{"name": "Test Player"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	decoded := decodeResponse(t, resp)
	player := decoded.Data.(map[string]interface{})
	return player["ID"].(string)
}

func TestIssueTicketEndpoint(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	playerID := createPlayer(t, server.URL)

	resp := postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{
		"player_id": playerID,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	decoded := decodeResponse(t, resp)
	assert.True(t, decoded.Success)
	ticket := decoded.Data.(map[string]interface{})
	assert.Equal(t, models.StatusInQueue, ticket["Status"])
	assert.NotEmpty(t, ticket["TicketID"])
}

func TestIssueTicketMissingPlayerIDReturns400(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	resp := postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	decoded := decodeResponse(t, resp)
	assert.False(t, decoded.Success)
}

func TestGetUnknownPlayerReturns404(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	resp, err := http.Get(server.URL + "/api/v1/players/nobody")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestLogGoalOutOfOrderReturns409(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	playerID := createPlayer(t, server.URL)

	resp := postJSON(t, server.URL+"/api/v1/players/"+playerID+"/kicks/purchase", map[string]interface{}{
		"quantity":     20,
		"amount_cents": 5000,
		"staff_id":     "staff1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Two tickets in line; playing the second must be refused
	resp = postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{"player_id": playerID})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{"player_id": playerID})
	decoded := decodeResponse(t, resp)
	second := decoded.Data.(map[string]interface{})["TicketID"].(string)

	resp = postJSON(t, fmt.Sprintf("%s/api/v1/queue/tickets/%s/goals", server.URL, second), map[string]interface{}{
		"player_id":  playerID,
		"kicks_used": 3,
		"goals":      1,
		"staff_id":   "staff1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	decoded = decodeResponse(t, resp)
	assert.Equal(t, "queue order violation", decoded.Message)
}

func TestLogGoalInsufficientBalanceReturns409(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	playerID := createPlayer(t, server.URL)

	resp := postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{"player_id": playerID})
	decoded := decodeResponse(t, resp)
	ticketID := decoded.Data.(map[string]interface{})["TicketID"].(string)

	resp = postJSON(t, fmt.Sprintf("%s/api/v1/queue/tickets/%s/goals", server.URL, ticketID), map[string]interface{}{
		"player_id":  playerID,
		"kicks_used": 3,
		"goals":      1,
		"staff_id":   "staff1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	decoded = decodeResponse(t, resp)
	assert.Equal(t, "insufficient balance", decoded.Message)
}

func TestFullPlayFlow(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	playerID := createPlayer(t, server.URL)

	// Buy kicks and enter the queue in one call
	resp := postJSON(t, server.URL+"/api/v1/players/"+playerID+"/kicks/purchase", map[string]interface{}{
		"quantity":     10,
		"amount_cents": 2500,
		"staff_id":     "staff1",
		"issue_ticket": true,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	decoded := decodeResponse(t, resp)
	data := decoded.Data.(map[string]interface{})
	assert.Equal(t, float64(10), data["NewBalance"])
	ticketID := data["Ticket"].(map[string]interface{})["TicketID"].(string)

	// Play from the head of the line
	resp = postJSON(t, fmt.Sprintf("%s/api/v1/queue/tickets/%s/goals", server.URL, ticketID), map[string]interface{}{
		"player_id":  playerID,
		"kicks_used": 5,
		"goals":      3,
		"staff_id":   "staff1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Queue drained, display shows zeroes for serving
	resp, err := http.Get(server.URL + "/api/v1/queue/current")
	assert.NoError(t, err)
	decoded = decodeResponse(t, resp)
	assert.Equal(t, "queue empty", decoded.Message)

	// The ledger recorded purchase and play
	resp, err = http.Get(server.URL + "/api/v1/players/" + playerID + "/transactions")
	assert.NoError(t, err)
	decoded = decodeResponse(t, resp)
	transactions := decoded.Data.([]interface{})
	assert.Len(t, transactions, 2)
}

func TestSetTicketRangeEndpoint(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	playerID := createPlayer(t, server.URL)

	resp := postJSON(t, server.URL+"/api/v1/queue/range", map[string]interface{}{
		"start":    2000,
		"end":      2999,
		"staff_id": "staff1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/queue/tickets", map[string]interface{}{"player_id": playerID})
	decoded := decodeResponse(t, resp)
	ticket := decoded.Data.(map[string]interface{})
	assert.Equal(t, float64(2000), ticket["TicketNumber"])

	// Inverted range is rejected
	resp = postJSON(t, server.URL+"/api/v1/queue/range", map[string]interface{}{
		"start":    3000,
		"end":      2000,
		"staff_id": "staff1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDailyReportEndpoint(t *testing.T) {
	server, bunDB := setupServer(t)
	defer server.Close()
	defer bunDB.Close()

	resp, err := http.Get(server.URL + "/api/v1/reports/tickets")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decoded := decodeResponse(t, resp)
	report := decoded.Data.(map[string]interface{})
	assert.Equal(t, schema.AccuracyExact, report["accuracy"])

	resp, err = http.Get(server.URL + "/api/v1/reports/tickets?date=not-a-date")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

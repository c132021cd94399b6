package queue_api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strikersplash/Striker-Splash-sub001/internal/game"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	queue "github.com/strikersplash/Striker-Splash-sub001/internal/queue/service"
	"github.com/strikersplash/Striker-Splash-sub001/internal/utils"
)

type Handler struct {
	QueueService  *queue.QueueService
	LedgerService *ledger.LedgerService
	GameService   *game.GameService
}

func NewHandler(queueService *queue.QueueService, ledgerService *ledger.LedgerService, gameService *game.GameService) *Handler {
	return &Handler{
		QueueService:  queueService,
		LedgerService: ledgerService,
		GameService:   gameService,
	}
}

// Routes mounts every endpoint of the service.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/players", func(r chi.Router) {
		r.Post("/", h.CreatePlayer)
		r.Get("/{playerID}", h.GetPlayer)
		r.Get("/{playerID}/transactions", h.PlayerTransactions)
		r.Post("/{playerID}/kicks/purchase", h.PurchaseKicks)
		r.Post("/{playerID}/kicks/adjust", h.AdjustKicks)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Post("/tickets", h.IssueTicket)
		r.Get("/tickets/{ticketID}", h.GetTicket)
		r.Post("/tickets/{ticketID}/goals", h.LogGoal)
		r.Post("/tickets/{ticketID}/skip", h.SkipTicket)
		r.Post("/tickets/{ticketID}/cancel", h.CancelTicket)
		r.Post("/requeue", h.Requeue)
		r.Get("/current", h.CurrentServing)
		r.Get("/display", h.DisplayNumbers)
		r.Post("/range", h.SetTicketRange)
		r.Post("/expire", h.ExpireEndOfPeriod)
	})

	r.Get("/reports/tickets", h.DailyReport)
}

// ---------------- PLAYERS ----------------

func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	player, err := h.LedgerService.RegisterPlayer(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("player created", player))
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	player, err := h.LedgerService.GetPlayer(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("player", player))
}

func (h *Handler) PlayerTransactions(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	transactions, err := h.LedgerService.Transactions(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("transactions", transactions))
}

func (h *Handler) PurchaseKicks(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req struct {
		Quantity        int64    `json:"quantity"`
		AmountCents     int64    `json:"amount_cents"`
		StaffID         string   `json:"staff_id"`
		TeamPlay        bool     `json:"team_play"`
		TeamMemberIDs   []string `json:"team_member_ids"`
		Official        bool     `json:"official"`
		IssueTicket     bool     `json:"issue_ticket"`
		CompetitionType string   `json:"competition_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	result, err := h.GameService.PurchaseKicks(r.Context(), game.PurchaseRequest{
		PlayerID:        playerID,
		Quantity:        req.Quantity,
		AmountCents:     req.AmountCents,
		StaffID:         req.StaffID,
		TeamPlay:        req.TeamPlay,
		TeamMemberIDs:   req.TeamMemberIDs,
		Official:        req.Official,
		IssueTicket:     req.IssueTicket,
		CompetitionType: req.CompetitionType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("kicks purchased", result))
}

// AdjustKicks applies an administrative correction. A zero delta is valid:
// it still writes its audit row.
func (h *Handler) AdjustKicks(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req struct {
		Delta   int64  `json:"delta"`
		StaffID string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	balance, err := h.LedgerService.ApplyDelta(r.Context(), playerID, req.Delta, ledger.Meta{StaffID: req.StaffID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("balance adjusted", map[string]int64{"kicks_balance": balance}))
}

// ---------------- QUEUE ----------------

func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID        string `json:"player_id"`
		CompetitionType string `json:"competition_type"`
		Official        bool   `json:"official"`
		TeamPlay        bool   `json:"team_play"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	ticket, err := h.QueueService.IssueTicket(r.Context(), req.PlayerID, req.CompetitionType, req.Official, req.TeamPlay)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("ticket issued", ticket))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.QueueService.GetTicket(r.Context(), ticketID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

func (h *Handler) LogGoal(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	var req struct {
		PlayerID      string   `json:"player_id"`
		TeamMemberIDs []string `json:"team_member_ids"`
		KicksUsed     int      `json:"kicks_used"`
		Goals         int      `json:"goals"`
		StaffID       string   `json:"staff_id"`
		Requeue       bool     `json:"requeue"`
		TeamPlay      bool     `json:"team_play"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	result, err := h.GameService.LogGoal(r.Context(), game.GoalRequest{
		TicketID:      ticketID,
		PlayerID:      req.PlayerID,
		TeamMemberIDs: req.TeamMemberIDs,
		KicksUsed:     req.KicksUsed,
		Goals:         req.Goals,
		StaffID:       req.StaffID,
		Requeue:       req.Requeue,
		TeamPlay:      req.TeamPlay,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("goals logged", result))
}

func (h *Handler) SkipTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if err := h.QueueService.MarkSkipped(r.Context(), ticketID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket skipped", nil))
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if err := h.QueueService.MarkCancelled(r.Context(), ticketID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket cancelled", nil))
}

func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID        string `json:"player_id"`
		StaffID         string `json:"staff_id"`
		CompetitionType string `json:"competition_type"`
		TeamPlay        bool   `json:"team_play"`
		Official        bool   `json:"official"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	ticket, balance, err := h.GameService.Requeue(r.Context(), req.PlayerID, req.StaffID, req.CompetitionType, req.TeamPlay, req.Official)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("requeued", map[string]interface{}{
		"ticket":        ticket,
		"kicks_balance": balance,
	}))
}

func (h *Handler) CurrentServing(w http.ResponseWriter, r *http.Request) {
	number, ok, err := h.QueueService.CurrentlyServing(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, utils.SuccessResponse("queue empty", nil))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("currently serving", map[string]int64{"ticket_number": number}))
}

func (h *Handler) DisplayNumbers(w http.ResponseWriter, r *http.Request) {
	display, err := h.QueueService.DisplayNumbers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("display", display))
}

func (h *Handler) SetTicketRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
		StaffID string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	if err := h.QueueService.SetTicketRange(r.Context(), req.Start, req.End, req.StaffID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket range declared", nil))
}

func (h *Handler) ExpireEndOfPeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	result, err := h.GameService.ExpireEndOfPeriod(r.Context(), req.StaffID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("end of period expiry complete", result))
}

// ---------------- REPORTS ----------------

func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid date", "expected YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	report, err := h.LedgerService.DailyReport(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("daily ticket report", report))
}

// ---------------- HELPERS ----------------

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP statuses. Precondition
// violations carry enough structure for a useful operator message; anything
// else surfaces as a retryable store failure.
func writeError(w http.ResponseWriter, err error) {
	var validation *queue.ValidationError
	var ticketState *queue.TicketStateError
	var orderViolation *queue.QueueOrderViolationError
	var insufficient *ledger.InsufficientBalanceError
	var notFound *ledger.PlayerNotFoundError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("validation failed", validation.Error()))
	case errors.As(err, &ticketState):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("ticket state conflict", ticketState.Error()))
	case errors.As(err, &orderViolation):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("queue order violation", orderViolation.Error()))
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("insufficient balance", insufficient.Error()))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("player not found", notFound.Error()))
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("not found", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("operation failed, safe to retry", err.Error()))
	}
}

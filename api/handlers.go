/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    GET    /api/transactions                    List caller's transactions
    POST   /api/transactions                    Create transaction (with roster)
    GET    /api/transactions/{id}               Transaction with participants
    PUT    /api/transactions/{id}               Update fields and/or roster
    DELETE /api/transactions/{id}               Delete (creator only)
    POST   /api/transactions/{id}/respond       Accept or reject an invitation
    POST   /api/transactions/{id}/leave         Exit a shared transaction
    POST   /api/transactions/{id}/exclusions    Skip one recurring occurrence
    GET    /api/transactions/{id}/occurrences   Expand recurrence until ?until=
    GET    /api/transactions/{id}/installments  List installment children

  Merge requests:
    POST   /api/merge-requests                  Link a placeholder to a user
    GET    /api/merge-requests/{id}             Get merge request
    POST   /api/merge-requests/{id}/respond     Accept or reject

  Users:
    GET    /api/users                           List accounts
    POST   /api/users                           Create account
    GET    /api/users/{id}                      Get account

CALLER IDENTITY:
  The acting user is taken from the X-User-ID header. There is no
  authentication; an API gateway is expected to populate the header.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, share caps exceeded
  - 403: Caller is not the transaction creator
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - settlement/engine.go: Domain logic entry point
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/finshare/settle-engine/settlement"
	"github.com/finshare/settle-engine/store/sqlite"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *settlement.Engine
	Store  *sqlite.Store
}

// NewHandler creates a new handler around the engine and its store.
func NewHandler(engine *settlement.Engine, store *sqlite.Store) *Handler {
	return &Handler{Engine: engine, Store: store}
}

// callerID extracts the acting user from the X-User-ID header.
func callerID(r *http.Request) settlement.UserID {
	return settlement.UserID(r.Header.Get("X-User-ID"))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction creates a transaction, its installments, and its roster.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transactions"))
	defer timer.ObserveDuration()

	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto CreateTransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	amount, err := parseMoney(dto.Amount)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := parseDate(dto.Date)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid date", err)
		return
	}
	shares, err := parseShareRequests(dto.Participants)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid participants", err)
		return
	}

	req := settlement.CreateTransactionRequest{
		Amount:           amount,
		Currency:         dto.Currency,
		Type:             settlement.TransactionType(dto.Type),
		Date:             date,
		Description:      dto.Description,
		CategoryID:       settlement.CategoryID(dto.CategoryID),
		CreatorID:        caller,
		IsFixed:          dto.IsFixed,
		InstallmentCount: dto.InstallmentCount,
		Participants:     shares,
	}
	if dto.RecurrenceEndsAt != nil {
		end, err := parseDate(*dto.RecurrenceEndsAt)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid recurrenceEndsAt", err)
			return
		}
		req.RecurrenceEndsAt = &end
	}

	tx, err := h.Engine.CreateTransaction(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create transaction", err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, toTransactionDTO(*tx))
}

// ListTransactions returns the caller's transactions.
// GET /api/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	txs, err := h.Engine.ListTransactions(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	h.writeJSON(w, r, http.StatusOK, dtos)
}

// GetTransaction returns a transaction with its full roster.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := settlement.TransactionID(chi.URLParam(r, "id"))

	view, err := h.Engine.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get transaction", err)
		return
	}

	dto := TransactionViewDTO{TransactionDTO: toTransactionDTO(view.Transaction)}
	dto.Participants = make([]ParticipantDTO, len(view.Participants))
	for i, p := range view.Participants {
		dto.Participants[i] = toParticipantDTO(p)
	}
	h.writeJSON(w, r, http.StatusOK, dto)
}

// UpdateTransaction updates transaction fields and/or its roster.
// PUT /api/transactions/{id}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", "/transactions/{id}"))
	defer timer.ObserveDuration()

	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto UpdateTransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	req := settlement.UpdateTransactionRequest{
		TransactionID: settlement.TransactionID(chi.URLParam(r, "id")),
	}
	if dto.Amount != nil {
		amount, err := parseMoney(*dto.Amount)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		req.Amount = &amount
	}
	if dto.Date != nil {
		date, err := parseDate(*dto.Date)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid date", err)
			return
		}
		req.Date = &date
	}
	if dto.Description != nil {
		req.Description = dto.Description
	}
	if dto.CategoryID != nil {
		cat := settlement.CategoryID(*dto.CategoryID)
		req.CategoryID = &cat
	}
	if dto.Participants != nil {
		shares, err := parseShareRequests(*dto.Participants)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid participants", err)
			return
		}
		if shares == nil {
			shares = []settlement.ShareRequest{}
		}
		req.Participants = shares
	}

	tx, err := h.Engine.UpdateTransaction(r.Context(), caller, req)
	if err != nil {
		h.writeDomainError(w, r, "Failed to update transaction", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toTransactionDTO(*tx))
}

// DeleteTransaction removes a transaction, its installments, and its roster.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	id := settlement.TransactionID(chi.URLParam(r, "id"))
	if err := h.Engine.DeleteTransaction(r.Context(), caller, id); err != nil {
		h.writeDomainError(w, r, "Failed to delete transaction", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// RespondToInvitation accepts or rejects a pending share.
// POST /api/transactions/{id}/respond
func (h *Handler) RespondToInvitation(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto RespondDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	id := settlement.TransactionID(chi.URLParam(r, "id"))
	status := settlement.ParticipantStatus(dto.Status)
	if err := h.Engine.RespondToInvitation(r.Context(), id, caller, status); err != nil {
		h.writeDomainError(w, r, "Failed to respond", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": dto.Status})
}

// LeaveTransaction exits a previously accepted share.
// POST /api/transactions/{id}/leave
func (h *Handler) LeaveTransaction(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	id := settlement.TransactionID(chi.URLParam(r, "id"))
	if err := h.Engine.LeaveTransaction(r.Context(), id, caller); err != nil {
		h.writeDomainError(w, r, "Failed to leave transaction", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "left"})
}

// ExcludeOccurrence skips a single occurrence of a recurring transaction.
// POST /api/transactions/{id}/exclusions
func (h *Handler) ExcludeOccurrence(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto ExcludeOccurrenceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	date, err := parseDate(dto.Date)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid date", err)
		return
	}

	id := settlement.TransactionID(chi.URLParam(r, "id"))
	if err := h.Engine.ExcludeOccurrence(r.Context(), caller, id, date); err != nil {
		h.writeDomainError(w, r, "Failed to exclude occurrence", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "excluded"})
}

// ListOccurrences expands a recurring transaction into concrete dates.
// GET /api/transactions/{id}/occurrences?until=2026-12-31
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	id := settlement.TransactionID(chi.URLParam(r, "id"))

	until := time.Now().AddDate(1, 0, 0)
	if raw := r.URL.Query().Get("until"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid until date", err)
			return
		}
		until = t
	}

	view, err := h.Engine.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get transaction", err)
		return
	}

	dto := OccurrencesDTO{TransactionID: string(id), Dates: []string{}}
	for _, d := range settlement.Occurrences(&view.Transaction, until) {
		dto.Dates = append(dto.Dates, d.Format("2006-01-02"))
	}
	h.writeJSON(w, r, http.StatusOK, dto)
}

// ListInstallments returns the child transactions of an installment parent.
// GET /api/transactions/{id}/installments
func (h *Handler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	id := settlement.TransactionID(chi.URLParam(r, "id"))

	children, err := h.Engine.Store().ListChildTransactions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to list installments", err)
		return
	}

	dtos := make([]TransactionDTO, len(children))
	for i, tx := range children {
		dtos[i] = toTransactionDTO(tx)
	}
	h.writeJSON(w, r, http.StatusOK, dtos)
}

// =============================================================================
// MERGE REQUEST HANDLERS
// =============================================================================

// CreateMergeRequest asks a user to adopt the caller's placeholder.
// POST /api/merge-requests
func (h *Handler) CreateMergeRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto CreateMergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if dto.PlaceholderName == "" || dto.TargetUserID == "" {
		h.writeError(w, r, http.StatusBadRequest, "placeholderName and targetUserId are required", nil)
		return
	}

	m, err := h.Engine.RequestMerge(r.Context(), caller, dto.PlaceholderName,
		settlement.UserID(dto.TargetUserID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to create merge request", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, toMergeRequestDTO(*m))
}

// GetMergeRequest returns a merge request by id.
// GET /api/merge-requests/{id}
func (h *Handler) GetMergeRequest(w http.ResponseWriter, r *http.Request) {
	id := settlement.MergeRequestID(chi.URLParam(r, "id"))

	m, err := h.Engine.Store().GetMergeRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to get merge request", err)
		return
	}
	if m == nil {
		h.writeError(w, r, http.StatusNotFound, "Merge request not found", nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toMergeRequestDTO(*m))
}

// RespondToMerge accepts or rejects a merge request addressed to the caller.
// POST /api/merge-requests/{id}/respond
func (h *Handler) RespondToMerge(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var dto RespondDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	id := settlement.MergeRequestID(chi.URLParam(r, "id"))
	status := settlement.MergeStatus(dto.Status)
	if err := h.Engine.RespondToMerge(r.Context(), id, caller, status); err != nil {
		h.writeDomainError(w, r, "Failed to respond to merge request", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": dto.Status})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all accounts.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{ID: string(u.ID), Username: u.Username, Name: u.Name}
	}
	h.writeJSON(w, r, http.StatusOK, dtos)
}

// CreateUser registers an account.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if dto.Username == "" {
		h.writeError(w, r, http.StatusBadRequest, "username is required", nil)
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}

	u := sqlite.User{
		ID:       settlement.UserID(dto.ID),
		Username: dto.Username,
		Name:     dto.Name,
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, UserDTO{ID: dto.ID, Username: dto.Username, Name: dto.Name})
}

// GetUser returns a single account.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := settlement.UserID(chi.URLParam(r, "id"))

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if u == nil {
		h.writeError(w, r, http.StatusNotFound, "User not found", nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, UserDTO{ID: string(u.ID), Username: u.Username, Name: u.Name})
}

// HealthCheck reports liveness.
// GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	httpRequestsTotal.WithLabelValues(r.Method, routeLabel(r), httpStatusLabel(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	h.writeJSON(w, r, status, resp)
}

// writeDomainError maps settlement errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case settlement.IsNotFound(err):
		h.writeError(w, r, http.StatusNotFound, message, err)
	case settlement.IsForbidden(err):
		h.writeError(w, r, http.StatusForbidden, message, err)
	case settlement.IsClientError(err):
		h.writeError(w, r, http.StatusBadRequest, message, err)
	default:
		h.writeError(w, r, http.StatusInternalServerError, message, err)
	}
}

// routeLabel returns the chi route pattern for metric labels, so path
// parameters collapse into one series per endpoint.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func httpStatusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

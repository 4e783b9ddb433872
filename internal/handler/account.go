package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc}
}

// createAccountRequest is the JSON request body for POST /accounts.
type createAccountRequest struct {
	Name           string   `json:"name"`
	InitialCapital *float64 `json:"initial_capital"`
}

// accountResponse is the JSON response for a created account.
type accountResponse struct {
	AccountID      string  `json:"account_id"`
	Name           string  `json:"name"`
	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	FrozenCash     float64 `json:"frozen_cash"`
	CreatedAt      string  `json:"created_at"`
}

// CreateAccount handles POST /accounts.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	acct, err := h.accountSvc.CreateAccount(r.Context(), req.Name, req.InitialCapital)
	if err != nil {
		mapAccountError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, accountResponse{
		AccountID:      acct.AccountID,
		Name:           acct.Name,
		InitialCapital: domain.CentsToDollars(acct.InitialCapital),
		Cash:           domain.CentsToDollars(acct.Cash),
		FrozenCash:     domain.CentsToDollars(acct.FrozenCash),
		CreatedAt:      acct.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GetOverview handles GET /accounts/{account_id}/overview.
func (h *AccountHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	overview, err := h.accountSvc.Overview(r.Context(), accountID)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, overview)
}

// GetPositions handles GET /accounts/{account_id}/positions.
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	positions, err := h.accountSvc.Positions(r.Context(), accountID)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// ListOrders handles GET /accounts/{account_id}/orders with an optional
// ?status= filter.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := domain.OrderStatus(raw)
		switch st {
		case domain.OrderStatusPending, domain.OrderStatusFilled, domain.OrderStatusCancelled:
			status = &st
		default:
			WriteError(w, http.StatusBadRequest, "validation_error",
				"status must be one of: PENDING, FILLED, CANCELLED")
			return
		}
	}

	orders, err := h.accountSvc.Orders(r.Context(), accountID, status)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// ListTrades handles GET /accounts/{account_id}/trades with an optional
// ?limit= parameter.
func (h *AccountHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.accountSvc.Trades(r.Context(), accountID, limit)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// GetSnapshot handles GET /accounts/{account_id}/snapshot.
func (h *AccountHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	snap, err := h.accountSvc.Snapshot(r.Context(), accountID)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// mapAccountError maps domain errors to HTTP responses for account
// endpoints.
func mapAccountError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		WriteError(w, http.StatusConflict, "account_already_exists", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

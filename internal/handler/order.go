package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/engine"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	engine *engine.Engine
	store  ledger.Store
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(eng *engine.Engine, store ledger.Store) *OrderHandler {
	return &OrderHandler{engine: eng, store: store}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	AccountID string   `json:"account_id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Market    string   `json:"market"`
	Side      string   `json:"side"`
	OrderType string   `json:"order_type"`
	Price     *float64 `json:"price"`
	Quantity  int64    `json:"quantity"`
}

// cancelOrderRequest is the optional JSON request body for
// DELETE /orders/{order_no}.
type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// executeResponse is the JSON response for a single execution attempt.
type executeResponse struct {
	OrderNo string `json:"order_no"`
	Filled  bool   `json:"filled"`
	Status  string `json:"status"`
}

// sweepResponse is the JSON response for a pending sweep.
type sweepResponse struct {
	Filled  int `json:"filled"`
	Checked int `json:"checked"`
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.engine.PlaceOrder(r.Context(), engine.PlaceOrderRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Name:      req.Name,
		Market:    req.Market,
		Side:      domain.OrderSide(req.Side),
		Type:      domain.OrderType(req.OrderType),
		Price:     req.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, service.BuildOrderView(order))
}

// GetOrder handles GET /orders/{order_no}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	order, err := h.store.Order(r.Context(), orderNo)
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, service.BuildOrderView(order))
}

// CancelOrder handles DELETE /orders/{order_no}. A JSON body with a
// reason is optional.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	reason := "user cancelled"
	if r.Body != nil && r.ContentLength > 0 {
		var req cancelOrderRequest
		if err := ParseJSON(r, &req); err == nil && req.Reason != "" {
			reason = req.Reason
		}
	}

	if err := h.engine.Cancel(r.Context(), orderNo, reason); err != nil {
		mapOrderError(w, err)
		return
	}

	order, err := h.store.Order(r.Context(), orderNo)
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, service.BuildOrderView(order))
}

// ExecuteOrder handles POST /orders/{order_no}/execute: a single
// on-demand fill attempt outside the scheduler cadence.
func (h *OrderHandler) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	filled, err := h.engine.CheckAndExecute(r.Context(), orderNo)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	order, err := h.store.Order(r.Context(), orderNo)
	if err != nil {
		mapOrderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, executeResponse{
		OrderNo: orderNo,
		Filled:  filled,
		Status:  string(order.Status),
	})
}

// ProcessAll handles POST /orders/process-all: sweeps every pending
// order once.
func (h *OrderHandler) ProcessAll(w http.ResponseWriter, r *http.Request) {
	filled, checked, err := h.engine.ProcessAllPending(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	WriteJSON(w, http.StatusOK, sweepResponse{Filled: filled, Checked: checked})
}

// ListPending handles GET /orders/pending: all pending orders across
// accounts, oldest first.
func (h *OrderHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.PendingOrders(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	views := make([]service.OrderView, len(pending))
	for i, o := range pending {
		views[i] = service.BuildOrderView(o)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"orders": views})
}

// GetStats handles GET /orders/stats: order counts by status.
func (h *OrderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.OrderCounts(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"pending":   counts[domain.OrderStatusPending],
		"filled":    counts[domain.OrderStatusFilled],
		"cancelled": counts[domain.OrderStatusCancelled],
	})
}

// mapOrderError maps domain errors to HTTP responses for order
// endpoints.
func mapOrderError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotCancellable):
		WriteError(w, http.StatusConflict, "order_not_cancellable", err.Error())
	case errors.Is(err, domain.ErrInsufficientCash):
		WriteError(w, http.StatusConflict, "insufficient_cash", err.Error())
	case errors.Is(err, domain.ErrInsufficientPosition):
		WriteError(w, http.StatusConflict, "insufficient_position", err.Error())
	case errors.Is(err, domain.ErrQuoteUnavailable):
		WriteError(w, http.StatusConflict, "quote_unavailable", err.Error())
	case errors.Is(err, domain.ErrUnsupportedMarket),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMissingLimitPrice):
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

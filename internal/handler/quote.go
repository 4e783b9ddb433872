package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/quote"
)

// QuoteHandler handles HTTP requests for quote endpoints: reading
// prices and rotating upstream credentials at runtime.
type QuoteHandler struct {
	quotes *quote.Chain
	xueqiu *quote.XueqiuSource // nil when the upstream source is not configured
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(quotes *quote.Chain, xueqiu *quote.XueqiuSource) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, xueqiu: xueqiu}
}

// priceResponse is the JSON response for GET /quote/{market}/{symbol}.
type priceResponse struct {
	Symbol string  `json:"symbol"`
	Market string  `json:"market"`
	Price  float64 `json:"price"`
}

// credentialsRequest is the JSON request body for
// PUT /quote/credentials.
type credentialsRequest struct {
	Cookie    string `json:"cookie"`
	UserAgent string `json:"user_agent"`
}

// GetPrice handles GET /quote/{market}/{symbol}.
func (h *QuoteHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	symbol := chi.URLParam(r, "symbol")

	price, err := h.quotes.LastPrice(r.Context(), symbol, market)
	if err != nil {
		if errors.Is(err, quote.ErrNoQuote) {
			WriteError(w, http.StatusNotFound, "quote_unavailable", err.Error())
			return
		}
		WriteError(w, http.StatusBadGateway, "quote_upstream_error", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		Symbol: symbol,
		Market: market,
		Price:  domain.CentsToDollars(price),
	})
}

// UpdateCredentials handles PUT /quote/credentials: swaps the upstream
// session credentials without a restart.
func (h *QuoteHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Cookie == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "cookie is required")
		return
	}
	if h.xueqiu == nil {
		WriteError(w, http.StatusConflict, "source_not_configured",
			"no upstream quote source is configured")
		return
	}

	h.xueqiu.SetCredentials(quote.Credentials{
		Cookie:    req.Cookie,
		UserAgent: req.UserAgent,
	})
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

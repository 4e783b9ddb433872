package handler

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrade/internal/engine"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/internal/service"
)

// NewRouter creates a chi router with all routes registered, request
// logging, and Content-Type validation middleware.
func NewRouter(
	accountSvc *service.AccountService,
	eng *engine.Engine,
	store ledger.Store,
	quotes *quote.Chain,
	xueqiu *quote.XueqiuSource,
	snapshotInterval time.Duration,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	accountH := NewAccountHandler(accountSvc)
	orderH := NewOrderHandler(eng, store)
	quoteH := NewQuoteHandler(quotes, xueqiu)
	wsH := NewWSHandler(accountSvc, snapshotInterval, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Post("/accounts", accountH.CreateAccount)
	r.Get("/accounts/{account_id}/overview", accountH.GetOverview)
	r.Get("/accounts/{account_id}/positions", accountH.GetPositions)
	r.Get("/accounts/{account_id}/orders", accountH.ListOrders)
	r.Get("/accounts/{account_id}/trades", accountH.ListTrades)
	r.Get("/accounts/{account_id}/snapshot", accountH.GetSnapshot)
	r.Get("/accounts/{account_id}/ws", wsH.Serve)

	// Order routes.
	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders/pending", orderH.ListPending)
	r.Get("/orders/stats", orderH.GetStats)
	r.Post("/orders/process-all", orderH.ProcessAll)
	r.Get("/orders/{order_no}", orderH.GetOrder)
	r.Delete("/orders/{order_no}", orderH.CancelOrder)
	r.Post("/orders/{order_no}/execute", orderH.ExecuteOrder)

	// Quote routes.
	r.Get("/quote/{market}/{symbol}", quoteH.GetPrice)
	r.Put("/quote/credentials", quoteH.UpdateCredentials)

	return r
}

// requestLogging returns middleware that logs each request's method,
// path, status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
// It passes hijacking through to the underlying writer so websocket
// upgrades work behind the logging middleware.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// contentTypeJSON is middleware that validates Content-Type for POST,
// PUT, and PATCH requests. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the
// handler runs. DELETE may carry an optional body, so it is exempt.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength > 0 && !hasJSONContentType(r) {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

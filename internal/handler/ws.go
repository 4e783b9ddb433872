package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrade/internal/service"
)

// defaultSnapshotInterval is how often an account snapshot is pushed to
// a connected websocket client.
const defaultSnapshotInterval = 10 * time.Second

// WSHandler streams account snapshots over a websocket. Each connection
// gets its own push loop; a client may also request an immediate
// snapshot by sending {"action": "refresh"}.
type WSHandler struct {
	accountSvc *service.AccountService
	interval   time.Duration
	logger     *slog.Logger
}

// NewWSHandler creates a WSHandler. A non-positive interval falls back
// to the default.
func NewWSHandler(accountSvc *service.AccountService, interval time.Duration, logger *slog.Logger) *WSHandler {
	if interval <= 0 {
		interval = defaultSnapshotInterval
	}
	return &WSHandler{accountSvc: accountSvc, interval: interval, logger: logger}
}

// wsEnvelope wraps every message pushed to the client.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsClientMessage is the shape of messages accepted from the client.
type wsClientMessage struct {
	Action string `json:"action"`
}

// Serve handles GET /accounts/{account_id}/ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	// Reject unknown accounts before upgrading.
	if _, err := h.accountSvc.Account(r.Context(), accountID); err != nil {
		mapAccountError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "push loop ended")

	ctx := r.Context()
	h.logger.Info("websocket connected", slog.String("account_id", accountID))

	refresh := make(chan struct{}, 1)
	go h.readLoop(ctx, conn, refresh)

	// Initial snapshot on connect, then on every tick or refresh request.
	if err := h.push(ctx, conn, accountID); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			h.logger.Info("websocket disconnected", slog.String("account_id", accountID))
			return
		case <-ticker.C:
		case <-refresh:
		}
		if err := h.push(ctx, conn, accountID); err != nil {
			h.logger.Info("websocket disconnected", slog.String("account_id", accountID))
			return
		}
	}
}

// readLoop drains client messages, forwarding refresh requests. It
// exits when the connection or the request context closes, which also
// cancels the request context and unblocks the push loop.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, refresh chan<- struct{}) {
	for {
		var msg wsClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		if msg.Action == "refresh" {
			select {
			case refresh <- struct{}{}:
			default:
			}
		}
	}
}

func (h *WSHandler) push(ctx context.Context, conn *websocket.Conn, accountID string) error {
	snap, err := h.accountSvc.Snapshot(ctx, accountID)
	if err != nil {
		// The account cannot vanish, so this is a transient store or
		// oracle problem; keep the connection and try again next tick.
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("snapshot failed",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, wsEnvelope{Type: "snapshot", Data: snap})
}

package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsConn wraps a client-side websocket connection for tests.
type wsConn struct {
	conn *websocket.Conn
}

func dialWS(t *testing.T, ctx context.Context, baseURL, path string) *wsConn {
	t.Helper()
	wsURL := strings.Replace(baseURL, "http://", "ws://", 1) + path
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return &wsConn{conn: conn}
}

func (c *wsConn) read(t *testing.T, ctx context.Context) wsEnvelope {
	t.Helper()
	var env wsEnvelope
	if err := wsjson.Read(ctx, c.conn, &env); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	return env
}

func (c *wsConn) write(t *testing.T, ctx context.Context, v any) {
	t.Helper()
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		t.Fatalf("write websocket message: %v", err)
	}
}

func (c *wsConn) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

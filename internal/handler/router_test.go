package handler

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// hijackableRecorder is a ResponseRecorder that also offers Hijack,
// the way a real *http.response does for upgrade requests.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (r *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.hijacked = true
	server, _ := net.Pipe()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

// Protocol upgrades hijack the connection through whatever writer the
// middleware hands the handler, so the logging wrapper must delegate
// Hijack to the underlying writer instead of hiding it.
func TestRequestLoggingPreservesHijacker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var sawHijacker bool
	handler := requestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := w.(http.Hijacker)
		sawHijacker = ok
		if !ok {
			return
		}
		conn, _, err := h.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	}))

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/a1/ws", nil))

	if !sawHijacker {
		t.Fatal("logging middleware must expose http.Hijacker to handlers")
	}
	if !rec.hijacked {
		t.Fatal("Hijack must delegate to the underlying writer")
	}
}

// A writer without hijack support surfaces an error rather than
// panicking.
func TestStatusWriterHijackUnsupported(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := w.Hijack(); err == nil {
		t.Fatal("expected error when the underlying writer cannot hijack")
	}
}

package core

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"BobbyCloud/internal/parser"
)

// fakeWriter records payloads. When release is non-nil every Write blocks
// until it is closed, after publishing the payload on written.
type fakeWriter struct {
	written chan string
	release chan struct{}
	err     error

	mu      sync.Mutex
	ctxErrs []error
}

func newFakeWriter(blocking bool) *fakeWriter {
	f := &fakeWriter{written: make(chan string, 16)}
	if blocking {
		f.release = make(chan struct{})
	}
	return f
}

func (f *fakeWriter) Write(ctx context.Context, payload []byte) error {
	f.written <- string(payload)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
	return f.err
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	panic("unreachable")
}

func startBridge(t *testing.T, policy Policy, w *fakeWriter) (*Bridge, *httptest.Server) {
	t.Helper()
	b := NewBridge("127.0.0.1:0", policy, parser.ShapeAuto, w, DefaultMetricsPath)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		srv.Close()
		if w.release != nil {
			select {
			case <-w.release:
			default:
				close(w.release)
			}
		}
	})
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

// readClose reads until the server closes the connection and returns the close error.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var cerr *websocket.CloseError
		if !errors.As(err, &cerr) {
			t.Fatalf("read error = %v, want close frame", err)
		}
		return cerr
	}
}

func TestSessionForwardsFlatRecord(t *testing.T) {
	w := newFakeWriter(false)
	_, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `[1000, 1700000000000, 42, null, 10, null, null, null, null, null]`)

	got := receive(t, w.written, "payload")
	want := "system,host=car1 uptime=1000,freememory8=42 1700000000000\n" +
		"inputs,host=car1,type=potis,kind=raw gas=10 1700000000000\n"
	if got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

func TestSessionForwardsBatchAsOneWrite(t *testing.T) {
	w := newFakeWriter(false)
	_, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car2")

	send(t, conn, `[[1, 100, 2], [3, 200, 4]]`)

	got := receive(t, w.written, "payload")
	want := "system,host=car2 uptime=1,freememory8=2 100\n" +
		"system,host=car2 uptime=3,freememory8=4 200\n"
	if got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

func TestSessionStrictClosesOnNonArray(t *testing.T) {
	w := newFakeWriter(false)
	_, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `{"uptime": 1}`)

	cerr := readClose(t, conn)
	if cerr.Code != websocket.CloseInvalidFramePayloadData {
		t.Errorf("close code = %d, want %d", cerr.Code, websocket.CloseInvalidFramePayloadData)
	}
	if !strings.Contains(cerr.Text, "not an array") {
		t.Errorf("close reason = %q, want it to mention not an array", cerr.Text)
	}
	if len(w.written) != 0 {
		t.Errorf("writer received %d payloads, want none", len(w.written))
	}
}

func TestSessionStrictClosesOnMalformedRecord(t *testing.T) {
	w := newFakeWriter(false)
	_, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `[[1, 2, 3], [4, null, 6], [7, 8, 9]]`)

	cerr := readClose(t, conn)
	if cerr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", cerr.Code, websocket.ClosePolicyViolation)
	}
	if cerr.Text != "record 1: utc is missing" {
		t.Errorf("close reason = %q", cerr.Text)
	}
	if len(w.written) != 0 {
		t.Errorf("writer received %d payloads, want none", len(w.written))
	}
}

func TestSessionLenientDropsBadMessages(t *testing.T) {
	w := newFakeWriter(false)
	_, srv := startBridge(t, PolicyLenient, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `{"uptime": 1}`)
	send(t, conn, `not json`)
	send(t, conn, `[[4, null, 6]]`)
	send(t, conn, `[[1, 2, 3], [4, null, 6], [7, 8, 9]]`)

	got := receive(t, w.written, "payload")
	want := "system,host=car1 uptime=1,freememory8=3 2\n" +
		"system,host=car1 uptime=7,freememory8=9 8\n"
	if got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}

	// The connection must still be usable.
	send(t, conn, `[5, 6, 7]`)
	if got := receive(t, w.written, "second payload"); got != "system,host=car1 uptime=5,freememory8=7 6\n" {
		t.Errorf("second payload = %q", got)
	}
}

func TestSessionDoesNotWaitForWrites(t *testing.T) {
	w := newFakeWriter(true)
	_, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `[1, 2, 3]`)
	send(t, conn, `[4, 5, 6]`)

	// Both writes start although neither has completed.
	first := receive(t, w.written, "first write")
	second := receive(t, w.written, "second write")
	if first == second {
		t.Errorf("expected two distinct payloads, got %q twice", first)
	}
	close(w.release)
}

func TestDisconnectDoesNotCancelWrite(t *testing.T) {
	w := newFakeWriter(true)
	b, srv := startBridge(t, PolicyStrict, w)
	conn := dial(t, srv, "/car1")

	send(t, conn, `[1, 2, 3]`)
	receive(t, w.written, "write")
	_ = conn.Close()

	close(w.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.ctxErrs) != 1 || w.ctxErrs[0] != nil {
		t.Errorf("write contexts = %v, want one uncancelled", w.ctxErrs)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := startBridge(t, PolicyStrict, newFakeWriter(false))
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := startBridge(t, PolicyStrict, newFakeWriter(false))
	resp, err := http.Get(srv.URL + DefaultMetricsPath)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "bobbycloud_connections_active") {
		t.Errorf("metrics output missing bridge gauge")
	}
}

package uplink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type received struct {
	path string
	msg  string
}

// echoBridge accepts websocket connections and reports every text message.
// When rejectFirst is set the first connection is closed with a policy violation
// after its first message.
func echoBridge(t *testing.T, rejectFirst bool) (string, <-chan received) {
	t.Helper()
	out := make(chan received, 16)
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			out <- received{path: r.URL.Path, msg: string(msg)}
			if rejectFirst && n == 1 {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "record 0: utc is missing"))
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), out
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return received{}
}

func TestNewForwarder(t *testing.T) {
	f, err := NewForwarder("ws://localhost:1234", "car1")
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	if f.URL != "ws://localhost:1234/car1" {
		t.Errorf("URL = %q", f.URL)
	}
	for _, bad := range []string{"http://localhost:1234", "::"} {
		if _, err := NewForwarder(bad, "car1"); err == nil {
			t.Errorf("NewForwarder(%q) succeeded, want error", bad)
		}
	}
	if _, err := NewForwarder("ws://localhost", ""); err == nil {
		t.Error("NewForwarder with empty id succeeded, want error")
	}
}

func TestForwarderSendsMessages(t *testing.T) {
	url, got := echoBridge(t, false)
	f, err := NewForwarder(url, "car7")
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	in := make(chan []byte, 2)
	in <- []byte(`[1, 2, 3]`)
	in <- []byte(`[[4, 5, 6]]`)
	close(in)

	if err := f.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{`[1, 2, 3]`, `[[4, 5, 6]]`} {
		r := next(t, got)
		if r.path != "/car7" || r.msg != want {
			t.Errorf("received %+v, want /car7 %s", r, want)
		}
	}
}

func TestForwarderReconnectsAfterClose(t *testing.T) {
	url, got := echoBridge(t, true)
	f, err := NewForwarder(url, "car1")
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	f.RetryDelay = 10 * time.Millisecond

	in := make(chan []byte)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, in) }()

	in <- []byte(`[4, null, 6]`)
	if r := next(t, got); r.msg != `[4, null, 6]` {
		t.Fatalf("first message = %q", r.msg)
	}

	// Messages sent while the connection is being replaced may be lost; keep
	// sending until one arrives over the second connection.
	deadline := time.After(5 * time.Second)
	for delivered := false; !delivered; {
		select {
		case in <- []byte(`[1, 2, 3]`):
		case r := <-got:
			delivered = r.msg == `[1, 2, 3]`
		case <-deadline:
			t.Fatal("no message delivered after reconnect")
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestForwarderStopsWhileDialing(t *testing.T) {
	f, err := NewForwarder("ws://127.0.0.1:1", "car1")
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	f.RetryDelay = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.Run(ctx, make(chan []byte)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}

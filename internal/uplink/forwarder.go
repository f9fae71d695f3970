// Package uplink forwards controller messages to a bridge over a websocket,
// reconnecting after failures.
package uplink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"BobbyCloud/internal/util"
)

// DefaultRetryDelay is the pause between reconnect attempts.
const DefaultRetryDelay = 2 * time.Second

var errInputClosed = errors.New("input closed")

// Forwarder sends every message from its input as one websocket text message.
type Forwarder struct {
	URL        string
	RetryDelay time.Duration
	Dialer     *websocket.Dialer
}

// NewForwarder targets bridgeURL (ws:// or wss://) under the path /<clientID>.
func NewForwarder(bridgeURL, clientID string) (*Forwarder, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge url %q: %w", bridgeURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid bridge url %q: scheme must be ws or wss", bridgeURL)
	}
	if clientID == "" {
		return nil, errors.New("client id is required")
	}
	return &Forwarder{
		URL:        u.JoinPath(clientID).String(),
		RetryDelay: DefaultRetryDelay,
		Dialer:     websocket.DefaultDialer,
	}, nil
}

// Run forwards messages from in until in is closed or ctx is cancelled.
// A message that fails to send is dropped and the connection is re-established.
func (f *Forwarder) Run(ctx context.Context, in <-chan []byte) error {
	for {
		conn, err := f.connect(ctx)
		if err != nil {
			return err
		}
		err = f.pump(ctx, conn, in)
		_ = conn.Close()
		switch {
		case errors.Is(err, errInputClosed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		util.Warn("[uplink] connection lost: %v", err)
		if err := f.wait(ctx); err != nil {
			return err
		}
	}
}

func (f *Forwarder) connect(ctx context.Context) (*websocket.Conn, error) {
	for {
		conn, _, err := f.Dialer.DialContext(ctx, f.URL, nil)
		if err == nil {
			util.Info("[uplink] connected to %s", f.URL)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		util.Warn("[uplink] dial %s: %v", f.URL, err)
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
	}
}

func (f *Forwarder) wait(ctx context.Context) error {
	t := time.NewTimer(f.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump writes messages until the connection fails. The bridge never sends
// data frames, so the reader only surfaces close frames and read errors.
func (f *Forwarder) pump(ctx context.Context, conn *websocket.Conn, in <-chan []byte) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			closeNormally(conn)
			return ctx.Err()
		case err := <-readErr:
			var cerr *websocket.CloseError
			if errors.As(err, &cerr) {
				util.Warn("[uplink] bridge closed connection: %d %s", cerr.Code, cerr.Text)
			}
			return err
		case msg, ok := <-in:
			if !ok {
				closeNormally(conn)
				return errInputClosed
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			util.Debug("[uplink] sent %d bytes", len(msg))
		}
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

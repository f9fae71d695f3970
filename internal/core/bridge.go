package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BobbyCloud/internal/influx"
	"BobbyCloud/internal/metrics"
	"BobbyCloud/internal/parser"
	"BobbyCloud/internal/util"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Bridge serves vehicle websocket connections. Every connection gets its
// own Session; all sessions share the translator and the writer.
type Bridge struct {
	Addr string

	translator  *Translator
	shape       parser.Shape
	writer      influx.Writer
	metricsPath string

	router   *mux.Router
	server   *http.Server
	listener net.Listener

	mu       sync.Mutex
	sessions map[*Session]struct{}
	running  sync.WaitGroup
	inflight sync.WaitGroup
}

// NewBridge constructs a Bridge listening on addr. An empty metricsPath or
// "-" disables the metrics endpoint.
func NewBridge(addr string, policy Policy, shape parser.Shape, w influx.Writer, metricsPath string) *Bridge {
	b := &Bridge{
		Addr:        addr,
		translator:  NewTranslator(policy),
		shape:       shape,
		writer:      w,
		metricsPath: metricsPath,
		sessions:    map[*Session]struct{}{},
	}
	b.router = b.routes()
	return b
}

func (b *Bridge) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", b.handleHealth).Methods(http.MethodGet)
	if b.metricsPath != "" && b.metricsPath != "-" {
		r.Handle(b.metricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}
	r.PathPrefix("/").HandlerFunc(b.handleWS)
	return r
}

// Handler returns the HTTP handler serving health, metrics and websocket routes.
func (b *Bridge) Handler() http.Handler { return b.router }

// Start binds the listen address and serves in the background.
// A bind failure is returned to the caller.
func (b *Bridge) Start() error {
	ln, err := net.Listen("tcp", b.Addr)
	if err != nil {
		return fmt.Errorf("could not start listening on %s: %w", b.Addr, err)
	}
	b.listener = ln
	b.server = &http.Server{Handler: b.router}
	util.Info("[bridge] listening on %s", ln.Addr())
	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("[bridge] serve: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address, or Addr before Start.
func (b *Bridge) ListenAddr() string {
	if b.listener == nil {
		return b.Addr
	}
	return b.listener.Addr().String()
}

// Stop stops accepting connections, closes open sessions and waits for
// sessions and dispatched writes to finish or ctx to expire.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			util.Warn("[bridge] http shutdown: %v", err)
		}
	}

	b.mu.Lock()
	for s := range b.sessions {
		s.shutdown()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.running.Wait()
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions and writes: %w", ctx.Err())
	}
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleWS upgrades the request and runs a session for its lifetime.
// The request path without its leading slash identifies the vehicle.
func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warn("[bridge] upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	clientID := strings.TrimPrefix(r.URL.Path, "/")
	s := NewSession(conn, clientID, b.translator, b.shape, b.writer, &b.inflight)

	b.running.Add(1)
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	metrics.ConnectionOpened()

	defer func() {
		b.mu.Lock()
		delete(b.sessions, s)
		b.mu.Unlock()
		metrics.ConnectionClosed()
		b.running.Done()
	}()
	s.Run()
}

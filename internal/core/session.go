package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"BobbyCloud/internal/influx"
	"BobbyCloud/internal/metrics"
	"BobbyCloud/internal/parser"
	"BobbyCloud/internal/util"
)

const (
	// maxCloseReason is the payload limit of a close frame minus the status code.
	maxCloseReason = 123
	closeWriteWait = time.Second
)

// Session owns one vehicle connection: it reads messages sequentially,
// translates each into a batch and hands non-empty payloads to the writer
// without waiting for the write to finish.
type Session struct {
	ID       string
	ClientID string

	conn       *websocket.Conn
	translator *Translator
	shape      parser.Shape
	writer     influx.Writer
	inflight   *sync.WaitGroup
}

// NewSession creates a session for an upgraded connection. inflight tracks
// dispatched writes so that shutdown can wait for them.
func NewSession(conn *websocket.Conn, clientID string, t *Translator, shape parser.Shape, w influx.Writer, inflight *sync.WaitGroup) *Session {
	return &Session{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		conn:       conn,
		translator: t,
		shape:      shape,
		writer:     w,
		inflight:   inflight,
	}
}

// Run reads messages until the connection closes or a strict-policy
// violation closes it. The connection is closed on return.
func (s *Session) Run() {
	defer func() {
		if err := s.conn.Close(); err != nil {
			util.Debug("[session %s] close: %v", s.ID, err)
		}
	}()
	util.Info("[session %s] new connection from %s client=%q policy=%s", s.ID, s.conn.RemoteAddr(), s.ClientID, s.translator.Policy())

	for {
		kind, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				util.Warn("[session %s] read error: %v", s.ID, err)
			}
			util.Info("[session %s] disconnected client=%q", s.ID, s.ClientID)
			return
		}
		if kind != websocket.TextMessage {
			util.Warn("[session %s] ignoring non-text message (%d bytes)", s.ID, len(msg))
			metrics.IncrementMessages(metrics.ResultIgnored)
			continue
		}
		util.Debug("[session %s] received %d bytes from client=%q", s.ID, len(msg), s.ClientID)
		if code, reason, ok := s.handle(msg); !ok {
			s.closeWithReason(code, reason)
			return
		}
	}
}

// handle processes one message. It returns ok=false with a close code and
// reason when the connection must be terminated.
func (s *Session) handle(msg []byte) (code int, reason string, ok bool) {
	strict := s.translator.Policy() == PolicyStrict

	records, err := parser.SplitMessage(msg, s.shape)
	if err != nil {
		metrics.IncrementMessages(metrics.ResultParse)
		util.Warn("[session %s] %s client=%q: %v", s.ID, s.conn.RemoteAddr(), s.ClientID, err)
		if strict {
			return websocket.CloseInvalidFramePayloadData, err.Error(), false
		}
		return 0, "", true
	}

	res, err := s.translator.Translate(s.ClientID, records)
	metrics.AddRecords(res.Translated, len(res.Skipped))
	for _, skipped := range res.Skipped {
		util.Warn("[session %s] client=%q skipped %v", s.ID, s.ClientID, skipped)
	}
	for _, dropped := range res.Dropped {
		util.Warn("[session %s] client=%q dropped %v", s.ID, s.ClientID, dropped)
	}

	var rerr *parser.RecordError
	switch {
	case errors.As(err, &rerr):
		metrics.IncrementMessages(metrics.ResultRejected)
		util.Warn("[session %s] client=%q rejected batch: %v", s.ID, s.ClientID, rerr)
		return websocket.ClosePolicyViolation, rerr.Error(), false
	case errors.Is(err, ErrEmptyBatch):
		metrics.IncrementMessages(metrics.ResultEmpty)
		util.Warn("[session %s] client=%q batch of %d records produced no lines", s.ID, s.ClientID, len(records))
		return 0, "", true
	case err != nil:
		metrics.IncrementMessages(metrics.ResultRejected)
		util.Error("[session %s] client=%q translate: %v", s.ID, s.ClientID, err)
		return 0, "", true
	}

	metrics.IncrementMessages(metrics.ResultForwarded)
	metrics.AddLines(res.Lines)
	s.dispatch(res.Payload, res.Lines)
	return 0, "", true
}

// dispatch submits one write in the background. The write is not tied to
// the connection and completes even if the vehicle disconnects.
func (s *Session) dispatch(payload string, lines int) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		start := time.Now()
		err := s.writer.Write(context.Background(), []byte(payload))
		elapsed := time.Since(start)
		metrics.ObserveWrite(elapsed, err)
		if err != nil {
			util.Warn("[session %s] client=%q request finished with error: %v", s.ID, s.ClientID, err)
			return
		}
		util.Debug("[session %s] client=%q wrote %d lines in %s", s.ID, s.ClientID, lines, elapsed)
	}()
}

func (s *Session) closeWithReason(code int, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		util.Warn("[session %s] failed to send close frame: %v", s.ID, err)
	}
	util.Info("[session %s] closed client=%q code=%d reason=%q", s.ID, s.ClientID, code, reason)
}

// shutdown asks the peer to go away; Run returns once the read fails.
func (s *Session) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	_ = s.conn.Close()
}

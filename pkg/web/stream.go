package web

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
)

const writeWait = 10 * time.Second

// wsStream adapts a websocket connection to pipeline.Stream. Binary messages
// carry raw JPEG, text messages carry base64.
type wsStream struct {
	conn *websocket.Conn
}

func (w *wsStream) Read(ctx context.Context) (pipeline.Message, error) {
	typ, data, err := w.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return pipeline.Message{}, io.EOF
		}
		if ctx.Err() != nil {
			return pipeline.Message{}, ctx.Err()
		}
		return pipeline.Message{}, err
	}
	return pipeline.Message{Data: data, Text: typ == websocket.TextMessage}, nil
}

func (w *wsStream) Write(msg pipeline.Message) error {
	typ := websocket.BinaryMessage
	if msg.Text {
		typ = websocket.TextMessage
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(typ, msg.Data)
}

// handleStream runs one pipeline session for the lifetime of the connection.
func (s *Server) handleStream(conn *websocket.Conn) {
	id := uuid.NewString()
	logger := s.logger.With("session", id, "remote", conn.RemoteAddr().String())

	sess, err := pipeline.NewSession(id, s.session, s.deps)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"))
		return
	}

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	s.register(sess)
	defer s.unregister(id)

	// Closing the socket is what unblocks a pending read on shutdown.
	stop := context.AfterFunc(s.ctx, func() {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	err = sess.Run(s.ctx, &wsStream{conn: conn})
	switch {
	case errors.Is(err, pipeline.ErrTooManyDecodeFailures):
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "too many undecodable frames"))
	case err != nil:
		logger.Debug("stream ended", "error", err)
	default:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func (s *Server) register(sess *pipeline.Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.logger.Info("stream connected", "session", sess.ID(), "sessions", n)
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.logger.Info("stream disconnected", "session", id, "sessions", n)
}

// SessionCount returns the number of connected streams.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Session returns a snapshot of one live session.
func (s *Server) Session(id string) (pipeline.SessionStats, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return pipeline.SessionStats{}, false
	}
	return sess.Stats(), true
}

// Sessions returns snapshots of every live session, oldest first.
func (s *Server) Sessions() []pipeline.SessionStats {
	s.mu.RLock()
	out := make([]pipeline.SessionStats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Stats())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

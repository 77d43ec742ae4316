package session

import (
	"context"
	"time"

	"FxPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Serve registers s, pumps frames to the connection and pings it every
// pingInterval. It returns when the peer disconnects, a write fails, the
// session is reaped or ctx is done. The session is always removed on return.
func (r *Registry) Serve(ctx context.Context, s *Session, pingInterval time.Duration) {
	r.Add(s)
	defer r.Remove(s.ID())

	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	_ = s.conn.SetReadDeadline(r.now().Add(pingInterval + r.idle))
	s.conn.SetPongHandler(func(string) error {
		r.Touch(s.ID())
		return s.conn.SetReadDeadline(r.now().Add(pingInterval + r.idle))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
			r.Touch(s.ID())
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(r.now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		case <-s.Done():
			return
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Warn("session read failed", logger.String("session_id", s.ID()), logger.Error(err))
			}
			return
		case frame := <-s.out:
			_ = s.conn.SetWriteDeadline(r.now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				r.log.Warn("session write failed", logger.String("session_id", s.ID()), logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(r.now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

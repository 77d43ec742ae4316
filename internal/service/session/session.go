package session

import (
	"net"
	"sync"
	"time"

	"FxPulse/internal/domain/models"

	"github.com/google/uuid"
)

// Conn is the subset of *websocket.Conn a session needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

// Session is one live in-app connection.
type Session struct {
	mu   sync.RWMutex
	info models.SubscriberSession

	conn      Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps conn for subscriberID. outbox bounds the frames buffered for a slow client.
func New(subscriberID string, conn Conn, outbox int, now time.Time) *Session {
	if outbox <= 0 {
		outbox = 32
	}
	remote := ""
	if conn != nil && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Session{
		info: models.SubscriberSession{
			ID:           uuid.NewString(),
			SubscriberID: subscriberID,
			RemoteAddr:   remote,
			ConnectedAt:  now,
			LastSeen:     now,
		},
		conn: conn,
		out:  make(chan []byte, outbox),
		done: make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.info.ID }

// SubscriberID returns the owning subscriber.
func (s *Session) SubscriberID() string { return s.info.SubscriberID }

// Info returns a copy of the session row.
func (s *Session) Info() models.SubscriberSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	if at.After(s.info.LastSeen) {
		s.info.LastSeen = at
	}
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.LastSeen
}

// Enqueue hands a frame to the write pump. It reports false when the session is
// closed or its outbox is full.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close terminates the session and its connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

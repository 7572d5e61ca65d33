package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Conn is the room's view of one client socket. Implementations must be
// safe for concurrent use: the reply worker and the connection's reader
// may send at the same time.
type Conn interface {
	Send(text string) error
	Close(code int, reason string) error
}

// Session is an accepted connection.
type Session struct {
	ID       string
	Identity string
	JoinedAt time.Time

	conn    Conn
	limiter *rate.Limiter

	mu           sync.Mutex
	lastActivity time.Time
}

func newSession(conn Conn, identity string, interval time.Duration, now time.Time) *Session {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		JoinedAt:     now,
		conn:         conn,
		limiter:      rate.NewLimiter(limit, 1),
		lastActivity: now,
	}
}

// allow reports whether a message at now respects the minimum interval
// since this session's last accepted message, and records it if so.
func (s *Session) allow(now time.Time) bool {
	if !s.limiter.AllowN(now, 1) {
		return false
	}
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
	return true
}

// LastActivity returns when the session last had a message accepted.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Participant is a snapshot of an online session.
type Participant struct {
	SessionID    string    `json:"session_id"`
	Identity     string    `json:"identity"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Session) snapshot() Participant {
	return Participant{
		SessionID:    s.ID,
		Identity:     s.Identity,
		JoinedAt:     s.JoinedAt,
		LastActivity: s.LastActivity(),
	}
}

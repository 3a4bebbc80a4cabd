package streaming

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session describes one active proxied stream.
type Session struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	Filename      string    `json:"filename"`
	ClientIP      string    `json:"client_ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	RangeStart    int64     `json:"range_start"`
	ContentLength int64     `json:"content_length"`
	BytesStreamed int64     `json:"bytes_streamed"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// SessionTracker records the streams currently being served. A nil tracker is a no-op.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*Session)}
}

// Start registers a session and returns its id.
func (t *SessionTracker) Start(s Session) string {
	s.ID = uuid.NewString()
	if t == nil {
		return s.ID
	}
	now := time.Now().UTC()
	s.StartedAt = now
	s.LastActivity = now

	t.mu.Lock()
	t.sessions[s.ID] = &s
	t.mu.Unlock()
	return s.ID
}

func (t *SessionTracker) Progress(id string, n int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if s, ok := t.sessions[id]; ok {
		s.BytesStreamed += n
		s.LastActivity = time.Now().UTC()
	}
	t.mu.Unlock()
}

func (t *SessionTracker) Finish(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

// Active returns a snapshot of the running sessions, oldest first.
func (t *SessionTracker) Active() []Session {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (t *SessionTracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

package mcpserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// sessionIdleTimeout is spec.md §4.9's 30-minute eviction window, adapted
// from the teacher's session.go (which used a 24h TTL with a 5-minute
// reaper tick — this spec pins a shorter idle window for the streamable
// HTTP transport specifically).
const sessionIdleTimeout = 30 * time.Minute

const reaperInterval = 5 * time.Minute

// Session is one streamable-HTTP MCP peer: a session id plus bookkeeping
// for the reaper. Tool execution is stateless per call (dispatched through
// the shared tools.Registry), so unlike the teacher's MCPSession this
// carries no per-user attachment list — there is no per-user auth model in
// this spec, only the single shared admin credential.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastAccessed time.Time
}

// SessionManager tracks live streamable-HTTP sessions and evicts idle ones
// on a ticker, grounded on the teacher's session.go cleanupExpired loop.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	stopCh   chan struct{}
}

func NewSessionManager() *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Create allocates a new session with a fresh UUID id.
func (m *SessionManager) Create() *Session {
	now := time.Now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, LastAccessed: now}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id and refreshes its LastAccessed, or false
// if id is unknown or already evicted.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.LastAccessed = time.Now()
	return s, true
}

// Delete tears down an existing session (DELETE /mcp per spec.md §4.9).
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count reports the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) reapLoop() {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *SessionManager) reapExpired() {
	cutoff := time.Now().Add(-sessionIdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			log.Debug().Str("session_id", id).Msg("mcpserver: reaped idle session")
		}
	}
}

// Stop terminates the reaper goroutine. Intended for tests and graceful
// shutdown; the live process otherwise runs it for its lifetime.
func (m *SessionManager) Stop() {
	close(m.stopCh)
}

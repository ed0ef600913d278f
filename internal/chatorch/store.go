package chatorch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spencerjireh/portfoliobridge/internal/idgen"
)

// SessionStatus is ChatSession.Status's domain (spec.md §3).
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// sessionTTL is ChatSession.expiresAt's offset from createdAt (spec.md §3).
const sessionTTL = 24 * time.Hour

// Session is spec.md §3's ChatSession.
type Session struct {
	ID           string
	VisitorID    string
	IPHash       string
	UserAgent    *string
	MessageCount int
	Status       SessionStatus
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
}

// MessageRole is ChatMessage.Role's domain.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is spec.md §3's ChatMessage.
type Message struct {
	ID         string
	SessionID  string
	Role       MessageRole
	Content    string
	TokensUsed *int
	Model      *string
	CreatedAt  time.Time
}

// Store is the persistence port the orchestrator depends on: session
// resolution/creation and ordered message append, grounded on the
// teacher's content.Repository transactional shape (internal/content/postgres.go).
type Store interface {
	FindActiveSession(ctx context.Context, visitorID string) (*Session, error)
	CreateSession(ctx context.Context, visitorID, ipHash string, userAgent *string) (*Session, error)
	AppendMessage(ctx context.Context, sessionID string, role MessageRole, content string, tokensUsed *int, model *string) (*Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// PGStore is the pgx-backed Store implementation.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, visitor_id, ip_hash, user_agent, message_count, status, created_at, last_active_at, expires_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var status string
	if err := row.Scan(&s.ID, &s.VisitorID, &s.IPHash, &s.UserAgent, &s.MessageCount,
		&status, &s.CreatedAt, &s.LastActiveAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.Status = SessionStatus(status)
	return &s, nil
}

// FindActiveSession implements the invariant from spec.md §3: the
// most-recently-active row where status=active and expiresAt>now.
func (s *PGStore) FindActiveSession(ctx context.Context, visitorID string) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE visitor_id = $1 AND status = 'active' AND expires_at > now()
		ORDER BY last_active_at DESC LIMIT 1`, visitorID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PGStore) CreateSession(ctx context.Context, visitorID, ipHash string, userAgent *string) (*Session, error) {
	id := idgen.New("sess")
	now := time.Now().UTC()
	expiresAt := now.Add(sessionTTL)

	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_sessions (id, visitor_id, ip_hash, user_agent, message_count, status, created_at, last_active_at, expires_at)
		VALUES ($1, $2, $3, $4, 0, 'active', $5, $5, $6)`,
		id, visitorID, ipHash, userAgent, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID: id, VisitorID: visitorID, IPHash: ipHash, UserAgent: userAgent,
		Status: SessionActive, CreatedAt: now, LastActiveAt: now, ExpiresAt: expiresAt,
	}, nil
}

// AppendMessage inserts a message and atomically refreshes the owning
// session's messageCount/lastActiveAt in one transaction, per spec.md §4.8
// step 4 and §5's single-session total-order guarantee.
func (s *PGStore) AppendMessage(ctx context.Context, sessionID string, role MessageRole, content string, tokensUsed *int, model *string) (*Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	id := idgen.New("msg")
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, tokens_used, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, sessionID, string(role), content, tokensUsed, model, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE chat_sessions SET message_count = message_count + 1, last_active_at = $1 WHERE id = $2`,
		now, sessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &Message{
		ID: id, SessionID: sessionID, Role: role, Content: content,
		TokensUsed: tokensUsed, Model: model, CreatedAt: now,
	}, nil
}

// RecentMessages returns the last limit messages for sessionID in
// chronological order, implementing spec.md §4.8 step 5's recency window.
func (s *PGStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, tokens_used, model, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.TokensUsed, &m.Model, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first for the LIMIT to bite correctly; reverse
	// to chronological order for prompt assembly.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

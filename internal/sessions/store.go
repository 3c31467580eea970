// Package sessions provides the in-process session memory store.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Store keeps session memory in process. Messages are append-only and a
// session's role never changes after creation. All reads return clones so
// callers cannot bypass those invariants.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		locks:    make(map[string]*sessionLock),
	}
}

// Create allocates a new session for a user with the given role.
func (s *Store) Create(userID string, role models.Role) *models.Session {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Messages:  []models.AgentMessage{},
		Variables: map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return cloneSession(session)
}

// Get returns a clone of the session, or ErrNotFound.
func (s *Store) Get(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

// GetOrCreate returns the session with the given id, creating a fresh one
// when id is empty or unknown.
func (s *Store) GetOrCreate(id, userID string, role models.Role) *models.Session {
	if id != "" {
		if session, err := s.Get(id); err == nil {
			return session
		}
	}
	return s.Create(userID, role)
}

// Clear removes a session. Clearing an unknown id is not an error.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// AppendMessage appends one message to a session's history and bumps
// updated_at. History is never truncated or rewritten.
func (s *Store) AppendMessage(id string, msg models.AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = time.Now()
	return nil
}

// History returns the last n messages, or all of them when n <= 0.
func (s *Store) History(id string, n int) ([]models.AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	msgs := session.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]models.AgentMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SetVariable stores a session variable.
func (s *Store) SetVariable(id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Variables[key] = value
	session.UpdatedAt = time.Now()
	return nil
}

// List returns summaries of all sessions.
func (s *Store) List() []models.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, summarize(session))
	}
	return out
}

// Summary returns the compact view of one session.
func (s *Store) Summary(id string) (models.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.SessionSummary{}, ErrNotFound
	}
	return summarize(session), nil
}

func summarize(session *models.Session) models.SessionSummary {
	toolCalls := 0
	for _, m := range session.Messages {
		toolCalls += len(m.ToolCalls)
	}
	return models.SessionSummary{
		SessionID:     session.ID,
		UserID:        session.UserID,
		Role:          session.Role,
		MessageCount:  len(session.Messages),
		ToolCallCount: toolCalls,
		VariableCount: len(session.Variables),
		LastActivity:  session.UpdatedAt,
	}
}

func cloneSession(in *models.Session) *models.Session {
	out := *in
	out.Messages = make([]models.AgentMessage, len(in.Messages))
	copy(out.Messages, in.Messages)
	out.Variables = make(map[string]any, len(in.Variables))
	for k, v := range in.Variables {
		out.Variables[k] = v
	}
	return &out
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Lock serializes runs on one session. It returns the unlock function.
// Concurrent requests against the same session queue here so the
// append-only history invariant holds across interleaved runs.
func (s *Store) Lock(sessionID string) func() {
	if sessionID == "" {
		return func() {}
	}

	s.locksMu.Lock()
	lock := s.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		s.locks[sessionID] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(s.locks, sessionID)
		}
		s.locksMu.Unlock()
	}
}

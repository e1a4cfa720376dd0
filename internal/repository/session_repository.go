package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/marksheet-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
)

// SessionRepository keeps editing sessions in memory. Every read returns a
// clone; Update applies its callback to a clone and commits only on success,
// so a failed batch leaves the stored session untouched.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	limit    int
	now      func() time.Time
}

// NewSessionRepository builds a store holding at most limit sessions (0 = unbounded).
func NewSessionRepository(limit int) *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*models.Session),
		limit:    limit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new session and assigns its identifier.
func (r *SessionRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return appErrors.Clonef(appErrors.ErrConflict, "session limit of %d reached", r.limit)
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, exists := r.sessions[session.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "session already exists")
	}
	now := r.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.LastAccessed = now
	if session.Matrix == nil {
		matrix, err := models.NewScoreMatrix(nil, nil)
		if err != nil {
			return err
		}
		session.Matrix = matrix
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the session and marks it as accessed.
func (r *SessionRepository) Get(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	session.LastAccessed = r.now()
	return session.Clone(), nil
}

// Update runs fn against a working copy and stores it if fn succeeds.
func (r *SessionRepository) Update(_ context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = r.now()
	working.LastAccessed = working.UpdatedAt
	r.sessions[id] = working
	return working.Clone(), nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	delete(r.sessions, id)
	return nil
}

// DeleteIdleSince drops sessions neither read nor written since cutoff and
// returns their ids.
func (r *SessionRepository) DeleteIdleSince(_ context.Context, cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]string, 0)
	for id, session := range r.sessions {
		if session.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// Count returns the number of live sessions.
func (r *SessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

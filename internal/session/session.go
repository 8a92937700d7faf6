package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 2 * time.Hour

// Session owns one binder. All access goes through With.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	binder   *binder.Binder
	lastUsed time.Time
}

// With runs fn with exclusive access to the session's binder.
func (s *Session) With(fn func(b *binder.Binder) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now()
	return fn(s.binder)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Registry maps session ids to sessions.
type Registry struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	// OnExpire, when set, is called with the number of sessions removed by a sweep.
	OnExpire func(n int)
}

var now = time.Now

// NewRegistry returns an empty registry. ttl <= 0 selects DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, sessions: map[string]*Session{}}
}

// Create starts a session with an empty binder.
func (r *Registry) Create() *Session {
	t := now()
	s := &Session{ID: uuid.NewString(), Created: t, lastUsed: t, binder: binder.New()}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	log.Debug().Str("session", s.ID).Msg("session created")
	return s
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if now().Sub(s.idleSince()) > r.ttl {
		r.Delete(id)
		return nil, ErrNotFound
	}
	return s, nil
}

// With looks up id and runs fn on its binder.
func (r *Registry) With(id string, fn func(b *binder.Binder) error) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.With(fn)
}

// Delete ends a session. Unknown ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of sessions held, expired or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL and reports how many went.
func (r *Registry) Sweep() int {
	cutoff := now().Add(-r.ttl)
	r.mu.Lock()
	var removed int
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("expired sessions removed")
		if r.OnExpire != nil {
			r.OnExpire(removed)
		}
	}
	return removed
}

// Janitor sweeps every interval until ctx is done.
func (r *Registry) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

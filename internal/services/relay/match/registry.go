package match

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/louisbranch/matchwarden/internal/platform/id"
)

var (
	// ErrMatchExists is returned when creating a duplicate match id.
	ErrMatchExists = errors.New("match already exists")
	// ErrMatchNotFound is returned for unknown match ids.
	ErrMatchNotFound = errors.New("match not found")
)

// Registry holds the sessions running in this process.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: map[string]*Session{}}
}

// Create starts a session. An empty matchID gets a generated one.
func (r *Registry) Create(matchID string, policy Policy, events Events) (*Session, error) {
	policy = policy.Normalized()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		generated, err := id.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate match id: %w", err)
		}
		matchID = generated
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[matchID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchExists, matchID)
	}
	session := newSession(matchID, policy, r.deps, events)
	r.sessions[matchID] = session
	return session, nil
}

// Get returns the session for matchID.
func (r *Registry) Get(matchID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return session, nil
}

// Remove closes and forgets the session.
func (r *Registry) Remove(matchID string) {
	r.mu.Lock()
	session, ok := r.sessions[matchID]
	delete(r.sessions, matchID)
	r.mu.Unlock()
	if ok {
		session.Close()
	}
}

// IDs lists running match ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for matchID := range r.sessions {
		ids = append(ids, matchID)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}

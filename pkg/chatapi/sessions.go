package chatapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/backlog-agent/internal/observability"
)

// Conversation is the part of an agent session the HTTP surface drives.
type Conversation interface {
	Submit(ctx context.Context, text string) (string, error)
	ClearHistory()
	TrimHistory(maxMessages int) int
}

// SessionFactory creates the conversation for a new session ID.
type SessionFactory func(id string) (Conversation, error)

type sessionEntry struct {
	conversation Conversation
	lastUsed     time.Time
	// inFlight counts acquisitions not yet released
	inFlight int
}

// SessionRegistry maps session IDs to conversations, creating them on
// first use and forgetting them after an idle period.
type SessionRegistry struct {
	factory     SessionFactory
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// NewSessionRegistry creates a registry. idleTimeout <= 0 keeps sessions
// for the life of the registry.
func NewSessionRegistry(factory SessionFactory, idleTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		factory:     factory,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*sessionEntry),
		now:         time.Now,
	}
}

// Acquire returns the conversation for id, creating it when absent. The
// session is not swept until release is called; release also restarts its
// idle period.
func (r *SessionRegistry) Acquire(id string) (Conversation, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		conversation, err := r.factory(id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session %s: %w", id, err)
		}
		entry = &sessionEntry{conversation: conversation}
		r.sessions[id] = entry
		observability.SetActiveSessions(len(r.sessions))
	}
	entry.lastUsed = r.now()
	entry.inFlight++

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			entry.inFlight--
			entry.lastUsed = r.now()
		})
	}
	return entry.conversation, release, nil
}

// Get returns the conversation for id without creating one
func (r *SessionRegistry) Get(id string) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastUsed = r.now()
	return entry.conversation, true
}

// Count returns the number of live sessions
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed. Acquired sessions are never removed.
func (r *SessionRegistry) Sweep() int {
	if r.idleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTimeout)
	removed := 0
	for id, entry := range r.sessions {
		if entry.inFlight == 0 && entry.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		observability.SetActiveSessions(len(r.sessions))
	}
	return removed
}

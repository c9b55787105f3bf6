package session

import (
	"sync"

	"github.com/harun/backlog-agent/internal/observability"
)

// DefaultMaxMessages is the history bound used when none is configured.
const DefaultMaxMessages = 20

// Role tags the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is a single conversation message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// History is an ordered, capacity-bounded sequence of turns. Append never
// enforces the bound; callers trim explicitly.
type History struct {
	mu          sync.RWMutex
	turns       []Turn
	maxMessages int
}

// NewHistory creates an empty history. maxMessages <= 0 selects DefaultMaxMessages.
func NewHistory(maxMessages int) *History {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &History{maxMessages: maxMessages}
}

// Append adds a turn at the tail.
func (h *History) Append(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Trim evicts turns until at most maxMessages remain and returns how many
// were removed. The oldest non-System turns go first; only when none are
// left are the remaining turns dropped from the head regardless of role.
func (h *History) Trim(maxMessages int) int {
	if maxMessages < 0 {
		maxMessages = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	excess := len(h.turns) - maxMessages
	if excess <= 0 {
		return 0
	}
	evicted := excess

	kept := make([]Turn, 0, len(h.turns))
	for _, turn := range h.turns {
		if excess > 0 && turn.Role != RoleSystem {
			excess--
			continue
		}
		kept = append(kept, turn)
	}

	if excess > 0 {
		kept = append([]Turn(nil), kept[excess:]...)
	}

	h.turns = kept
	observability.RecordHistoryEviction(evicted)
	return evicted
}

// TrimToCapacity trims to the history's configured bound.
func (h *History) TrimToCapacity() int {
	return h.Trim(h.MaxMessages())
}

// Clear removes all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Snapshot returns a copy of the turns in insertion order.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// MaxMessages returns the configured bound.
func (h *History) MaxMessages() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxMessages
}

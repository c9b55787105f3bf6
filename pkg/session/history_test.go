package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(h *History, turns ...Turn) {
	for _, turn := range turns {
		h.Append(turn)
	}
}

func roles(turns []Turn) []Role {
	out := make([]Role, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turn.Role)
	}
	return out
}

func TestNewHistory(t *testing.T) {
	assert.Equal(t, DefaultMaxMessages, NewHistory(0).MaxMessages())
	assert.Equal(t, DefaultMaxMessages, NewHistory(-5).MaxMessages())
	assert.Equal(t, 7, NewHistory(7).MaxMessages())
	assert.Zero(t, NewHistory(7).Len())
}

func TestHistory_AppendDoesNotEnforceBound(t *testing.T) {
	h := NewHistory(2)
	for i := 0; i < 5; i++ {
		h.Append(UserTurn(fmt.Sprintf("m%d", i)))
	}
	assert.Equal(t, 5, h.Len())
}

func TestHistory_TrimPrefersNonSystemTurns(t *testing.T) {
	h := NewHistory(20)
	fill(h,
		SystemTurn("instructions"),
		UserTurn("u1"),
		AssistantTurn("a1"),
		UserTurn("u2"),
		AssistantTurn("a2"),
	)

	evicted := h.Trim(3)

	assert.Equal(t, 2, evicted)
	assert.Equal(t, []Turn{
		SystemTurn("instructions"),
		UserTurn("u2"),
		AssistantTurn("a2"),
	}, h.Snapshot())
}

func TestHistory_TrimAllSystemFallsBackToHead(t *testing.T) {
	h := NewHistory(20)
	for i := 0; i < 5; i++ {
		h.Append(SystemTurn(fmt.Sprintf("s%d", i)))
	}

	evicted := h.Trim(2)

	assert.Equal(t, 3, evicted)
	assert.Equal(t, []Turn{SystemTurn("s3"), SystemTurn("s4")}, h.Snapshot())
}

func TestHistory_TrimSecondPassAfterNonSystemExhausted(t *testing.T) {
	h := NewHistory(20)
	fill(h,
		SystemTurn("s0"),
		UserTurn("u0"),
		SystemTurn("s1"),
		SystemTurn("s2"),
	)

	evicted := h.Trim(2)

	assert.Equal(t, 2, evicted)
	assert.Equal(t, []Turn{SystemTurn("s1"), SystemTurn("s2")}, h.Snapshot())
}

func TestHistory_TrimPreservesRelativeOrder(t *testing.T) {
	h := NewHistory(20)
	fill(h,
		UserTurn("u0"),
		SystemTurn("s0"),
		UserTurn("u1"),
		AssistantTurn("a1"),
		SystemTurn("s1"),
		UserTurn("u2"),
	)

	h.Trim(4)

	assert.Equal(t, []Turn{
		SystemTurn("s0"),
		AssistantTurn("a1"),
		SystemTurn("s1"),
		UserTurn("u2"),
	}, h.Snapshot())
}

func TestHistory_TrimPostconditionAndIdempotence(t *testing.T) {
	pattern := []Role{RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleSystem, RoleAssistant, RoleUser}

	for size := 0; size <= len(pattern); size++ {
		for maxMessages := -1; maxMessages <= size+1; maxMessages++ {
			t.Run(fmt.Sprintf("size=%d/max=%d", size, maxMessages), func(t *testing.T) {
				h := NewHistory(20)
				systemCount := 0
				for i := 0; i < size; i++ {
					h.Append(Turn{Role: pattern[i], Content: fmt.Sprint(i)})
					if pattern[i] == RoleSystem {
						systemCount++
					}
				}

				bound := maxMessages
				if bound < 0 {
					bound = 0
				}

				evicted := h.Trim(maxMessages)
				first := h.Snapshot()

				assert.LessOrEqual(t, len(first), bound)
				assert.Equal(t, size-len(first), evicted)

				// System turns are lost only when nothing else is left to evict
				survivingSystem := 0
				for _, turn := range first {
					if turn.Role == RoleSystem {
						survivingSystem++
					}
				}
				if systemCount <= bound {
					assert.Equal(t, systemCount, survivingSystem)
				}

				assert.Zero(t, h.Trim(maxMessages))
				assert.Equal(t, first, h.Snapshot())
			})
		}
	}
}

func TestHistory_TrimNoOpWithinBound(t *testing.T) {
	h := NewHistory(20)
	fill(h, SystemTurn("s"), UserTurn("u"))

	assert.Zero(t, h.Trim(2))
	assert.Zero(t, h.Trim(10))
	assert.Equal(t, []Role{RoleSystem, RoleUser}, roles(h.Snapshot()))
}

func TestHistory_TrimToCapacity(t *testing.T) {
	h := NewHistory(2)
	fill(h, UserTurn("u1"), AssistantTurn("a1"), UserTurn("u2"))

	assert.Equal(t, 1, h.TrimToCapacity())
	assert.Equal(t, []Turn{AssistantTurn("a1"), UserTurn("u2")}, h.Snapshot())
}

func TestHistory_TrimToZero(t *testing.T) {
	h := NewHistory(20)
	fill(h, SystemTurn("s"), UserTurn("u"))

	assert.Equal(t, 2, h.Trim(0))
	assert.Zero(t, h.Len())
}

func TestHistory_ClearThenReuse(t *testing.T) {
	fresh := NewHistory(3)
	used := NewHistory(3)
	fill(used, SystemTurn("old"), UserTurn("old"), AssistantTurn("old"), UserTurn("old"))

	used.Clear()
	assert.Zero(t, used.Len())
	assert.Empty(t, used.Snapshot())

	turns := []Turn{SystemTurn("s"), UserTurn("u1"), AssistantTurn("a1"), UserTurn("u2"), AssistantTurn("a2")}
	fill(fresh, turns...)
	fill(used, turns...)

	assert.Equal(t, fresh.TrimToCapacity(), used.TrimToCapacity())
	assert.Equal(t, fresh.Snapshot(), used.Snapshot())
}

func TestHistory_SnapshotIsACopy(t *testing.T) {
	h := NewHistory(5)
	h.Append(UserTurn("original"))

	snapshot := h.Snapshot()
	snapshot[0].Content = "changed"

	require.Equal(t, 1, h.Len())
	assert.Equal(t, "original", h.Snapshot()[0].Content)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

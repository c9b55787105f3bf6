// Package session holds the bounded conversation history of an agent session.
//
// Invariants:
// - Turns keep their insertion order; trimming only removes, never reorders.
// - After Trim(n), Len() <= n.
// - System turns survive a trim as long as any non-System turn can be evicted instead.
//
// Usage:
//
//	h := session.NewHistory(20)
//	h.Append(session.SystemTurn("You are a helpful assistant"))
//	h.Append(session.UserTurn("add a story for CSV export"))
//	evicted := h.TrimToCapacity()
//	_ = evicted
package session

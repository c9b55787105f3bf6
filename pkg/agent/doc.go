// Package agent runs conversations between a user and a completion backend,
// executing the backend's tool calls along the way.
//
// Invariants:
// - Submissions to one Session are serialized.
// - Only user, assistant and system turns are kept in history; tool exchanges are per submission.
// - Backend failures surface as ErrCompletionFailed and leave the session usable.
// - Tool calls route through toolexecutor only.
//
// Usage:
//
//	provider, _ := (&agent.ProviderFactory{}).NewProvider(profile)
//	sess, _ := agent.NewSession(agent.SessionConfig{
//		Provider:     provider,
//		Tools:        tools,
//		Model:        profile.Model,
//		Instructions: agent.DefaultInstructions,
//		MaxMessages:  20,
//	})
//	reply, err := sess.Submit(ctx, "Create a story for CSV export")
package agent

package toolexecutor

import "context"

type execContextKey struct{}

// WithExecutionContext makes execCtx visible to tool handlers.
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecutionContextFrom returns the execution context a handler was invoked
// with, or nil outside of Execute.
func ExecutionContextFrom(ctx context.Context) *ExecutionContext {
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}

// SessionKeyFrom returns the session key of the invoking execution context.
func SessionKeyFrom(ctx context.Context) string {
	if execCtx := ExecutionContextFrom(ctx); execCtx != nil {
		return execCtx.SessionKey
	}
	return ""
}

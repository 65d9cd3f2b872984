package models

import (
	"context"
)

type executionContextKey struct{}

// ExecutionContext carries pass-level data to collaborators (journal metadata,
// log fields) without widening every interface.
type ExecutionContext struct {
	RunId   string // uuid of the engine pass or manual execution
	Trigger string // "cron", "http", "cli", "execute-now"
}

// WithExecutionContext attaches execution data to a context.
func WithExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, ec)
}

// GetExecutionContext retrieves execution data from context, or nil if absent.
func GetExecutionContext(ctx context.Context) *ExecutionContext {
	ec, _ := ctx.Value(executionContextKey{}).(*ExecutionContext)
	return ec
}

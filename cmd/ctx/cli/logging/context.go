package logging

import (
	"context"
)

// Context keys for logging values.
// Using private types to avoid key collisions.
type contextKey int

const (
	sessionIDKey contextKey = iota
	projectKey
	sourceKey
	agentKey
)

// WithSession adds a session id to the context.
func WithSession(ctx context.Context, sessionID int64) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithProject adds the project path to the context.
func WithProject(ctx context.Context, projectPath string) context.Context {
	return context.WithValue(ctx, projectKey, projectPath)
}

// WithSource adds an event source tag to the context
// (e.g. "git", "filesystem", "adapter:claude").
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// WithAgent adds an agent label to the context (e.g. "claude", "cursor").
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// SessionIDFromContext extracts the session id from the context.
// Returns zero if not set.
func SessionIDFromContext(ctx context.Context) int64 {
	if v := ctx.Value(sessionIDKey); v != nil {
		if s, ok := v.(int64); ok {
			return s
		}
	}
	return 0
}

// SourceFromContext extracts the source tag from the context.
// Returns empty string if not set.
func SourceFromContext(ctx context.Context) string {
	if v := ctx.Value(sourceKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

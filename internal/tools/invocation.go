package tools

import (
	"context"

	"github.com/nexagent/nexagent/internal/timeline"
)

// Invocation is the per-call context the dispatcher hands to a tool so it
// can record observability detail (e.g. per-attempt events) as children
// of its own tool_call event, without the tool holding a back-reference
// to the dispatcher.
type Invocation struct {
	ConversationID string
	ParentEventID  string
	Events         *timeline.Store
}

type invocationKey struct{}

// WithInvocation attaches inv to ctx for the duration of one tool call.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom extracts the call's Invocation, if the dispatcher set one.
func InvocationFrom(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}

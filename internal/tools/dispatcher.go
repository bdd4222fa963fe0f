package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexagent/nexagent/internal/timeline"
	"github.com/nexagent/nexagent/pkg/models"
)

// DefaultTimeout is the per-tool-call timeout when the caller does not
// specify one.
const DefaultTimeout = 30 * time.Second

// Dispatcher invokes a tool by name, normalizing results/errors into
// models.ToolResult and recording a tool_call timeline event around each
// call.
type Dispatcher struct {
	registry *Registry
	events   *timeline.Store
}

// NewDispatcher creates a Dispatcher bound to a Registry and an optional
// timeline Store for observability. A nil events store disables timeline
// recording (useful for unit tests of the dispatch contract alone).
func NewDispatcher(registry *Registry, events *timeline.Store) *Dispatcher {
	return &Dispatcher{registry: registry, events: events}
}

// DispatchOptions configures one Dispatch call.
type DispatchOptions struct {
	CheckDeps      bool
	Timeout        time.Duration
	ConversationID string
	ParentEventID  string
}

// Dispatch runs a tool with the given JSON arguments: lookup, dependency
// check, bounded-timeout execution, and panic-to-error normalization.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage, opts DispatchOptions) models.ToolResult {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var eventID string
	if d.events != nil && opts.ConversationID != "" {
		eventID = d.events.AddEvent(opts.ConversationID, models.EventToolCall, name, name, opts.ParentEventID, map[string]any{"args": json.RawMessage(args)})
		ctx = WithInvocation(ctx, Invocation{
			ConversationID: opts.ConversationID,
			ParentEventID:  eventID,
			Events:         d.events,
		})
	}

	result, kind := d.dispatchOne(ctx, name, args, opts)

	if d.events != nil && opts.ConversationID != "" {
		status := models.StatusSuccess
		meta := map[string]any{"output": result.Output}
		if result.IsError() {
			status = models.StatusError
			meta = map[string]any{"error": result.Error, "error_kind": string(kind)}
		}
		d.events.CloseEvent(opts.ConversationID, eventID, status, meta)
	}

	return result
}

// dispatchOne runs one call and reports, alongside the normalized result,
// which error kind a failure falls under so the timeline records it.
func (d *Dispatcher) dispatchOne(ctx context.Context, name string, args json.RawMessage, opts DispatchOptions) (models.ToolResult, models.ErrorKind) {
	tool, ok := d.registry.Get(name)
	if !ok {
		return models.ToolResult{Error: fmt.Sprintf("tool %s invalid", name)}, models.KindValidation
	}

	if opts.CheckDeps {
		if ok, missing := d.registry.ValidateDependencies(name); !ok {
			return models.ToolResult{Error: "missing dependencies: " + strings.Join(missing, ", ")}, models.KindDependency
		}
	}

	if len(args) > MaxToolParamsSize {
		return models.ToolResult{Error: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)}, models.KindValidation
	}
	if err := d.registry.validateArgs(name, args); err != nil {
		return models.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, models.KindValidation
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type execOutcome struct {
		result *models.ToolResult
		err    error
	}
	done := make(chan execOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := tool.Execute(callCtx, args)
		done <- execOutcome{result: res, err: err}
	}()

	select {
	case <-callCtx.Done():
		return models.ToolResult{Error: "timed out"}, models.KindTimeout
	case outcome := <-done:
		if outcome.err != nil {
			kind := models.KindToolExecution
			var ke *models.KindedError
			if errors.As(outcome.err, &ke) {
				kind = ke.Kind
			}
			return models.ToolResult{Error: outcome.err.Error()}, kind
		}
		if outcome.result == nil || !outcome.result.Valid() {
			return models.ToolResult{Error: "tool returned an invalid result"}, models.KindToolExecution
		}
		return *outcome.result, ""
	}
}

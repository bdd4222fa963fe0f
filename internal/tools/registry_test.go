package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

type stubTool struct {
	name     string
	requires []string
	exec     func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
	schema   json.RawMessage
}

func (s stubTool) Name() string            { return s.name }
func (s stubTool) Description() string     { return "stub" }
func (s stubTool) RequiredTools() []string { return s.requires }
func (s stubTool) Schema() json.RawMessage {
	if s.schema != nil {
		return s.schema
	}
	return json.RawMessage(`{"type":"object"}`)
}
func (s stubTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	if s.exec != nil {
		return s.exec(ctx, args)
	}
	return &models.ToolResult{Output: "ok"}, nil
}

func TestRegisterRejectsCycle(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubTool{name: "a", requires: []string{"b"}}); err != nil {
		t.Fatalf("unexpected error registering a: %v", err)
	}
	err := r.Register(stubTool{name: "b", requires: []string{"a"}})
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
	if _, ok := r.Get("b"); ok {
		t.Fatalf("registry must be unchanged after a rejected cycle")
	}
}

func TestValidateDependenciesReportsMissing(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{name: "a", requires: []string{"b", "c"}})

	ok, missing := r.ValidateDependencies("a")
	if ok {
		t.Fatalf("expected missing dependencies")
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing deps, got %v", missing)
	}
}

func TestExecutionOrderTopological(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{name: "c"})
	_ = r.Register(stubTool{name: "b", requires: []string{"c"}})
	_ = r.Register(stubTool{name: "a", requires: []string{"b"}})

	order, err := r.ExecutionOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	if pos["c"] > pos["b"] || pos["b"] > pos["a"] {
		t.Fatalf("expected c before b before a, got %v", order)
	}
}

func TestDispatchToolNotFound(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)
	res := d.Dispatch(context.Background(), "missing", nil, DispatchOptions{})
	if !res.IsError() || res.Error != "tool missing invalid" {
		t.Fatalf("expected invalid-tool error, got %+v", res)
	}
}

func TestDispatchMissingDependency(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{name: "needs", requires: []string{"absent"}})
	d := NewDispatcher(r, nil)

	res := d.Dispatch(context.Background(), "needs", json.RawMessage(`{}`), DispatchOptions{CheckDeps: true})
	if !res.IsError() {
		t.Fatalf("expected dependency error")
	}
}

func TestDispatchTimeout(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{name: "slow", exec: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &models.ToolResult{Output: "too slow"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})
	d := NewDispatcher(r, nil)

	res := d.Dispatch(context.Background(), "slow", json.RawMessage(`{}`), DispatchOptions{Timeout: 10 * time.Millisecond})
	if res.Error != "timed out" {
		t.Fatalf("expected timed out error, got %+v", res)
	}
}

func TestDispatchSuccess(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{name: "fast"})
	d := NewDispatcher(r, nil)

	res := d.Dispatch(context.Background(), "fast", json.RawMessage(`{}`), DispatchOptions{})
	if res.IsError() || res.Output != "ok" {
		t.Fatalf("expected success result, got %+v", res)
	}
}

func TestDispatchValidatesArgsAgainstSchema(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubTool{
		name:   "typed",
		schema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
	})
	d := NewDispatcher(r, nil)

	res := d.Dispatch(context.Background(), "typed", json.RawMessage(`{"n":"not-a-number"}`), DispatchOptions{})
	if !res.IsError() {
		t.Fatalf("expected schema validation error")
	}
}

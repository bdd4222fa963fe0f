// Package tools implements the tool registry and dispatcher: typed tool
// invocation with dependency resolution, schema validation, and
// normalized result envelopes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexagent/nexagent/pkg/models"
)

// Tool parameter limits guard against resource exhaustion.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// Tool is the capability set every tool implements. Dispatch is tagged
// by name, not duck-typed.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	RequiredTools() []string
	Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

// CycleError is returned when registering a tool would introduce a cycle
// in the dependency graph.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tool dependency cycle detected: %v", e.Cycle)
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry owns the set of callable tools and their dependency graph.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register inserts a tool and rebuilds the dependency graph. If the
// resulting graph would contain a cycle, registration is rejected and the
// registry is left unchanged.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", tool.Name(), err)
	}

	trial := make(map[string]*registeredTool, len(r.tools)+1)
	for k, v := range r.tools {
		trial[k] = v
	}
	trial[tool.Name()] = &registeredTool{tool: tool, schema: compiled}

	if cycle := findCycle(trial); cycle != nil {
		return &CycleError{Cycle: cycle}
	}

	r.tools = trial
	return nil
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return jsonschema.CompileString("tool_"+name, string(schema))
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// ValidateDependencies returns all unmet RequiredTools in the transitive
// closure of name's dependencies.
func (r *Registry) ValidateDependencies(name string) (ok bool, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var missingSet []string
	var walk func(n string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		rt, exists := r.tools[n]
		if !exists {
			missingSet = append(missingSet, n)
			return
		}
		for _, dep := range rt.tool.RequiredTools() {
			walk(dep)
		}
	}
	if rt, exists := r.tools[name]; exists {
		for _, dep := range rt.tool.RequiredTools() {
			walk(dep)
		}
	} else {
		return false, []string{name}
	}
	return len(missingSet) == 0, missingSet
}

// ExecutionOrder returns tool names topologically sorted by dependency.
func (r *Registry) ExecutionOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cycle := findCycle(r.tools); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.tools))
	var order []string
	var visit func(n string)
	visit = func(n string) {
		if color[n] == black {
			return
		}
		color[n] = gray
		if rt, ok := r.tools[n]; ok {
			for _, dep := range rt.tool.RequiredTools() {
				visit(dep)
			}
		}
		color[n] = black
		order = append(order, n)
	}
	for name := range r.tools {
		visit(name)
	}
	return order, nil
}

// findCycle returns a cycle (as tool names) if the dependency graph of
// tools contains one, or nil if it is a DAG.
func findCycle(tools map[string]*registeredTool) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tools))
	var path []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		switch color[n] {
		case black:
			return false
		case gray:
			// Found the back-edge; extract the cycle from path.
			idx := len(path) - 1
			for idx >= 0 && path[idx] != n {
				idx--
			}
			if idx >= 0 {
				cycle = append([]string{}, path[idx:]...)
				cycle = append(cycle, n)
			}
			return true
		}
		color[n] = gray
		path = append(path, n)
		if rt, ok := tools[n]; ok {
			for _, dep := range rt.tool.RequiredTools() {
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for name := range tools {
		if color[name] == white {
			if visit(name) {
				return cycle
			}
		}
	}
	return nil
}

// AsDeclarations returns the static shape of every registered tool, for
// presenting to the model.
func (r *Registry) AsDeclarations() []models.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDeclaration, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, models.ToolDeclaration{
			Name:            rt.tool.Name(),
			Description:     rt.tool.Description(),
			ParameterSchema: rt.tool.Schema(),
			RequiredTools:   rt.tool.RequiredTools(),
		})
	}
	return out
}

func (r *Registry) validateArgs(name string, args json.RawMessage) error {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("invalid JSON arguments: %w", err)
	}
	if rt.schema == nil {
		return nil
	}
	return rt.schema.Validate(v)
}

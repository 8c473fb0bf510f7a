// Package tools defines the capabilities the orchestration loop can offer to
// the model, and the registry that dispatches them by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
)

// ErrUnknownTool signals that the model requested an unregistered capability.
// This is an internal defect and is never silently ignored.
var ErrUnknownTool = errors.New("unknown tool")

// Result is the outcome of one tool execution. Sources are returned as part
// of the value so the loop can aggregate citations without shared state.
type Result struct {
	Content string
	Sources []corpus.Source
}

// Tool is one capability: a schema the model selects against, and an
// executor. Adding a capability never requires changing the loop.
type Tool interface {
	Definition() llm.ToolDef
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Registry maps declared tool names to implementations.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its declared name.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the schema list in registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute dispatches a tool call by name.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.Execute(ctx, input)
}

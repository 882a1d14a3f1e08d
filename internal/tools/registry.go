package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps tool names to tools. Names are unique.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. A duplicate or empty name is an error.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every tool definition, sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()
	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		t, _ := r.Get(n)
		defs = append(defs, t.Definition())
	}
	return defs
}

// Invoke validates raw against the named tool and runs it. Validation
// failures return *ValidationError; failures inside the tool return
// *ToolExecutionError wrapping the cause.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) (out string, err error) {
	t, ok := r.Get(name)
	if !ok {
		return "", &ValidationError{Tool: name, Message: "unknown tool; available: " + strings.Join(r.Names(), ", ")}
	}

	input, err := t.Decode(raw)
	if err != nil {
		return "", asValidation(name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = "", &ToolExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	out, err = t.Call(ctx, input)
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

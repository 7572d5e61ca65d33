// Package tools defines the tools the agent may call while answering.
//
// Tools are side-effect free. They are registered once at startup into a
// Registry that is then shared read-mostly by every room.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nugget/emoroom/internal/llm"
)

// Handler runs a tool. args is never nil.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Ephemeral marks results that are only true at the moment they are
	// produced (the current time, for instance). They are kept for audit
	// but never fed back to the model on later turns.
	Ephemeral bool `json:"ephemeral"`

	Handler Handler `json:"-"`
}

// Registry holds available tools. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// NewDefaultRegistry creates a registry with the built-in tools.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(TimeTool(nil))
	return r
}

// Register adds a tool. Registering a name again replaces the earlier tool.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		r.logger.Debug("tool replaced", "tool", t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns every tool sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns the catalogue in the generic function-calling shape
// the provider adapters translate.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// IsEphemeral reports whether results of the named tool are ephemeral.
// Unknown tools are not.
func (r *Registry) IsEphemeral(name string) bool {
	t := r.Get(name)
	return t != nil && t.Ephemeral
}

// Execute runs the named tool. The only error it returns is
// *ErrToolNotFound. A handler error or panic becomes failure text in the
// result so one bad call cannot abort a reasoning turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string, err error) {
	tool := r.Get(name)
	if tool == nil {
		return "", &ErrToolNotFound{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			result, err = failureText(name, fmt.Errorf("panic: %v", p)), nil
		}
	}()

	r.logger.Debug("executing tool", "tool", name, "args", args)

	out, herr := tool.Handler(ctx, args)
	if herr != nil {
		r.logger.Warn("tool failed", "tool", name, "error", herr)
		return failureText(name, herr), nil
	}
	return out, nil
}

func failureText(name string, err error) string {
	return fmt.Sprintf("工具 %s 执行失败: %v", name, err)
}

package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at construction time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Declarations returns the wire declarations for all registered tools,
// sorted by name for a stable order.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]Declaration, 0, len(names))
	for _, name := range names {
		decls = append(decls, r.tools[name].Declare())
	}
	return decls
}

// Dispatcher executes tool calls by exact name against a registry.
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Dispatch executes the named tool and returns its text result. An
// unrecognized name yields a descriptive string rather than an error: the
// orchestration layer must never crash on a hallucinated tool name.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) string {
	tool := d.registry.Get(name)
	if tool == nil {
		d.log.Warn("unknown tool requested", zap.String("tool", name))
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	d.log.Debug("dispatching tool", zap.String("tool", name), zap.Int("args", len(args)))
	return tool.Execute(ctx, args)
}

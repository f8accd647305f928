// Package local is the builtin backend: tools implemented as Go handlers
// compiled into the binary, served next to dynamically compiled ones.
package local

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolcompiler/backend"
)

// HandlerFunc handles one call. The tenant is available through
// tool.TenantFromContext(ctx).
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDef defines a builtin tool with its handler.
type ToolDef struct {
	Name        string
	Title       string
	Description string
	InputSchema map[string]any
	Annotations *mcp.ToolAnnotations
	Tags        []string
	Handler     HandlerFunc
}

// Backend serves builtin handlers.
type Backend struct {
	name     string
	mu       sync.RWMutex
	enabled  bool
	handlers map[string]ToolDef
}

var _ backend.Backend = (*Backend)(nil)

// New creates an enabled, empty builtin backend.
func New(name string) *Backend {
	return &Backend{
		name:     name,
		enabled:  true,
		handlers: make(map[string]ToolDef),
	}
}

// Kind returns backend.KindBuiltin.
func (b *Backend) Kind() string { return backend.KindBuiltin }

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Enabled reports whether the backend serves calls.
func (b *Backend) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// SetEnabled enables or disables the backend.
func (b *Backend) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Register adds or replaces a handler. def.Name is required.
func (b *Backend) Register(def ToolDef) error {
	if def.Name == "" {
		return fmt.Errorf("builtin tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("builtin tool %s has no handler", def.Name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[def.Name] = def
	return nil
}

// Unregister removes a handler.
func (b *Backend) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// ListTools returns the builtin tools ordered by name. Builtins are visible
// to every tenant.
func (b *Backend) ListTools(_ context.Context) ([]model.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Tool, 0, len(b.handlers))
	for _, def := range b.handlers {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, model.Tool{
			Tool: mcp.Tool{
				Name:        def.Name,
				Title:       def.Title,
				Description: def.Description,
				InputSchema: schema,
				Annotations: def.Annotations,
			},
			Namespace: b.name,
			Tags:      model.NormalizeTags(def.Tags),
		})
	}
	slices.SortFunc(out, func(x, y model.Tool) int { return cmp.Compare(x.Name, y.Name) })
	return out, nil
}

// Execute runs the named handler.
func (b *Backend) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	b.mu.RLock()
	enabled := b.enabled
	def, ok := b.handlers[name]
	b.mu.RUnlock()

	if !enabled {
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendDisabled, b.name)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrToolNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return def.Handler(ctx, args)
}

// Start is a no-op.
func (b *Backend) Start(_ context.Context) error { return nil }

// Stop is a no-op.
func (b *Backend) Stop() error { return nil }

package tool

import "context"

// Context is the value injected into a running tool as the first argument of
// its entry point. It is exposed to interpreted code as toolctx.Context.
//
// Contract:
// - Concurrency: Invoke may be called from the tool's own goroutine; nested
// calls share the call stack of the enclosing execution tree.
// - Context: Done/Err/Deadline reflect the time budget of the current
// invocation; tools are expected to return promptly once Done is closed.
// - Errors: Invoke returns *CircularDependencyError before delegating when
// toolID is already on the call stack.
type Context interface {
	context.Context

	// Invoke executes another tool within the same execution tree.
	Invoke(toolID string, params map[string]any) (any, error)

	// TenantID returns the tenant the execution tree runs for.
	TenantID() string

	// CallStack returns a snapshot of the tool IDs currently executing in
	// this tree, outermost first.
	CallStack() []string
}

// EntryPoint is the opaque callable bound from a tool's Execute function.
type EntryPoint func(ctx Context, params map[string]any) (any, error)

type tenantKey struct{}

// WithTenant attaches a tenant ID to ctx. Protocol adapters use it to pass the
// authenticated tenant to backends that only receive a context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant ID attached by WithTenant, or "".
func TenantFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

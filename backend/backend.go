package backend

import (
	"context"
	"errors"

	"github.com/jonwraymond/toolfoundation/model"
)

// Backend kinds shipped with the module.
const (
	KindBuiltin = "builtin"
	KindDynamic = "dynamic"
)

// Common errors for backend operations.
var (
	ErrBackendNotFound = errors.New("backend not found")
	ErrBackendDisabled = errors.New("backend disabled")
	ErrToolNotFound    = errors.New("tool not found in backend")
)

// Backend is a named group of tools.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods must honor cancellation/deadlines; the tenant is read
// from ctx with tool.TenantFromContext.
// - Errors: use ErrBackendDisabled/ErrToolNotFound where applicable.
// - Ownership: returned tools are caller-owned.
type Backend interface {
	// Kind returns the backend type (KindBuiltin, KindDynamic, ...).
	Kind() string

	// Name returns the unique instance name. It is the namespace of the
	// backend's tools.
	Name() string

	// Enabled returns whether this backend is currently enabled.
	Enabled() bool

	// ListTools returns the tools visible to the tenant in ctx.
	ListTools(ctx context.Context) ([]model.Tool, error)

	// Execute invokes a tool by its name within this backend.
	Execute(ctx context.Context, tool string, args map[string]any) (any, error)

	// Start prepares the backend, e.g. precompiling tools.
	Start(ctx context.Context) error

	// Stop releases backend resources.
	Stop() error
}

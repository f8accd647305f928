// Package dynamic exposes the tools compiled by a service.Service as a
// backend.Backend. Listing and execution are scoped to the tenant carried
// by the request context.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/service"
	"github.com/jonwraymond/toolcompiler/tool"
)

// Options configures a Backend.
type Options struct {
	// Name is the backend name and tool namespace. Defaults to "dynamic".
	Name string

	// Preload compiles every active tool on Start. Failures are logged.
	Preload bool

	// Logger is optional.
	Logger *zerolog.Logger
}

// Backend adapts a service to backend.Backend.
type Backend struct {
	svc      *service.Service
	name     string
	preload  bool
	log      zerolog.Logger
	disabled atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend over svc.
func New(svc *service.Service, opts Options) *Backend {
	if opts.Name == "" {
		opts.Name = backend.KindDynamic
	}
	return &Backend{
		svc:     svc,
		name:    opts.Name,
		preload: opts.Preload,
		log:     logging.OrNop(opts.Logger),
	}
}

// Kind returns backend.KindDynamic.
func (b *Backend) Kind() string { return backend.KindDynamic }

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Enabled reports whether the backend serves calls.
func (b *Backend) Enabled() bool { return !b.disabled.Load() }

// SetEnabled enables or disables the backend.
func (b *Backend) SetEnabled(enabled bool) { b.disabled.Store(!enabled) }

// ListTools returns the tools visible to the tenant in ctx.
func (b *Backend) ListTools(ctx context.Context) ([]model.Tool, error) {
	infos, err := b.svc.Tools(ctx, tool.TenantFromContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]model.Tool, 0, len(infos))
	for _, info := range infos {
		schema := objectSchema(info.Schema.InputSchema)
		out = append(out, model.Tool{
			Tool: mcp.Tool{
				Name:        info.ID,
				Title:       info.Schema.Name,
				Description: info.Schema.Description,
				InputSchema: schema,
			},
			Namespace: b.name,
		})
	}
	return out, nil
}

// objectSchema returns schema with "type": "object" filled in when the
// definition leaves the type out. Tool parameters are always an object.
func objectSchema(schema map[string]any) map[string]any {
	if _, ok := schema["type"]; ok {
		return schema
	}
	out := maps.Clone(schema)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out["type"] = "object"
	return out
}

// Execute runs toolID for the tenant in ctx as the root of a new
// execution tree.
func (b *Backend) Execute(ctx context.Context, toolID string, args map[string]any) (any, error) {
	if !b.Enabled() {
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendDisabled, b.name)
	}
	result, err := b.svc.Execute(ctx, toolID, args, tool.TenantFromContext(ctx))
	if errors.Is(err, tool.ErrToolNotFound) {
		return nil, fmt.Errorf("%w: %w", backend.ErrToolNotFound, err)
	}
	return result, err
}

// Start compiles every active tool when Preload is set. Individual tool
// failures do not fail Start.
func (b *Backend) Start(ctx context.Context) error {
	if !b.preload {
		return nil
	}
	report, err := b.svc.LoadAll(ctx, "")
	if err != nil {
		return fmt.Errorf("preload tools: %w", err)
	}
	for _, f := range report.Failed {
		b.log.Warn().Err(f.Err).Str(logging.FieldToolID, f.ToolID).Msg("tool failed to preload")
	}
	return nil
}

// Stop is a no-op. The service is owned by the caller.
func (b *Backend) Stop() error { return nil }

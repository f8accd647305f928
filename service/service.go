// Package service is the public surface of the tool compiler. It resolves
// definitions from a source, validates and compiles them, caches the result
// by content digest, and executes tools with nested-call support.
//
// # Resolution
//
// Every execution fetches the current definition from the Source, so a
// changed definition is picked up on the next call and an unchanged one is
// served from the cache. Tenant scope is enforced on every call, including
// cache hits.
//
// # Errors
//
// Failures are classified by the sentinels in package tool; use errors.Is.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/cache"
	"github.com/jonwraymond/toolcompiler/engine"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/tool"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("service closed")

// Service orchestrates validation, compilation, caching, and execution.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: all operations honor cancellation/deadlines.
// - Errors: see package documentation.
type Service struct {
	cfg    Config
	engine *engine.Engine
	log    zerolog.Logger
	closed atomic.Bool
}

// New creates a Service. CompileOnDemand defaults to true.
// Returns ErrConfiguration if the configuration is invalid.
func New(opts ...ConfigOption) (*Service, error) {
	cfg := Config{CompileOnDemand: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &Service{
		cfg:    cfg,
		engine: engine.New(engine.WithTimeout(cfg.Timeout), engine.WithLogger(cfg.Logger)),
		log:    logging.OrNop(cfg.Logger),
	}, nil
}

// Compile validates and builds def, storing the result in the cache. An
// unchanged definition is served from the cache; concurrent compiles of the
// same version share one build. Validation and build errors are returned
// unchanged and leave the cache untouched.
func (s *Service) Compile(ctx context.Context, def tool.Definition) (*tool.Compiled, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	digest := tool.Digest(def.Source)
	return s.cfg.Cache.Do(ctx, def.ID, digest, s.builder(ctx, def, digest))
}

// builder returns the shared build for one tool version. It is not canceled
// with the caller that started it; the compile budget bounds it.
func (s *Service) builder(ctx context.Context, def tool.Definition, digest string) cache.BuildFunc {
	ctx = context.WithoutCancel(ctx)
	return func() (*tool.Compiled, error) {
		return s.build(ctx, def, digest)
	}
}

func (s *Service) build(ctx context.Context, def tool.Definition, digest string) (*tool.Compiled, error) {
	log := s.log.With().Str(logging.FieldToolID, def.ID).Str(logging.FieldDigest, tool.ShortDigest(digest)).Logger()
	start := time.Now()

	if err := s.cfg.Validator.Validate(def.Source, def.ID); err != nil {
		log.Warn().Err(err).Msg("tool rejected")
		return nil, err
	}
	entry, err := s.cfg.Compiler.Build(ctx, def.Source, def.ID)
	if err != nil {
		log.Warn().Err(err).Msg("tool build failed")
		return nil, err
	}
	compiled, err := tool.NewCompiled(def, entry, s.cfg.Clock())
	if err != nil {
		log.Warn().Err(err).Msg("tool build failed")
		return nil, err
	}
	log.Info().Dur(logging.FieldDuration, time.Since(start)).Msg("tool compiled")
	return compiled, nil
}

// Execute runs toolID for tenantID as the root of a new execution tree.
func (s *Service) Execute(ctx context.Context, toolID string, params map[string]any, tenantID string) (any, error) {
	return s.ExecuteTool(ctx, toolID, params, tenantID, nil)
}

// ExecuteString runs toolID and renders the result for text protocols:
// strings are returned verbatim and other values are JSON-encoded.
func (s *Service) ExecuteString(ctx context.Context, toolID string, params map[string]any, tenantID string) (string, error) {
	v, err := s.Execute(ctx, toolID, params, tenantID)
	if err != nil {
		return "", err
	}
	return Render(v)
}

// Render converts a tool result into text.
func Render(v any) (string, error) {
	switch r := v.(type) {
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: result is not JSON-encodable: %v", tool.ErrExecution, err)
	}
	return string(b), nil
}

// ExecuteTool runs toolID. A nil parent starts a new execution tree with
// toolID at its root; otherwise the call joins parent, whose stack already
// holds toolID. It implements engine.Invoker.
func (s *Service) ExecuteTool(ctx context.Context, toolID string, params map[string]any, tenantID string, parent *engine.ExecutionContext) (any, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ec := parent
	if ec == nil {
		ec = engine.NewExecutionContext(tenantID, s)
		release, err := ec.Enter(toolID)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	s.engine.Transition(ec, toolID, engine.StatePending)

	compiled, err := s.resolve(ctx, toolID, tenantID, ec)
	if err != nil {
		s.engine.Transition(ec, toolID, engine.StateFailed)
		return nil, err
	}
	return s.engine.Run(ctx, compiled, params, ec)
}

// resolve returns the compiled tool to run, compiling on a miss when
// allowed.
func (s *Service) resolve(ctx context.Context, toolID, tenantID string, ec *engine.ExecutionContext) (*tool.Compiled, error) {
	s.engine.Transition(ec, toolID, engine.StateResolving)

	if s.cfg.Source == nil {
		c, ok := s.cfg.Cache.Get(toolID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", tool.ErrToolNotCompiled, toolID)
		}
		if !c.VisibleTo(tenantID) {
			return nil, fmt.Errorf("%w: %s", tool.ErrToolNotFound, toolID)
		}
		return c, nil
	}

	def, err := s.cfg.Source.Definition(ctx, toolID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", toolID, err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %s", tool.ErrToolNotFound, toolID)
	}

	digest := tool.Digest(def.Source)
	if c, ok := s.cfg.Cache.Lookup(toolID, digest); ok {
		return c, nil
	}
	if !s.cfg.CompileOnDemand {
		return nil, fmt.Errorf("%w: %s", tool.ErrToolNotCompiled, toolID)
	}
	s.engine.Transition(ec, toolID, engine.StateValidating)
	return s.cfg.Cache.Build(ctx, toolID, digest, s.builder(ctx, *def, digest))
}

// ClearCache drops every compiled tool.
func (s *Service) ClearCache() {
	s.cfg.Cache.Clear()
	s.log.Info().Msg("compilation cache cleared")
}

// CompiledTool returns the live compiled version of toolID, if any.
func (s *Service) CompiledTool(toolID string) (*tool.Compiled, bool) {
	return s.cfg.Cache.Get(toolID)
}

// Timeout returns the per-invocation budget.
func (s *Service) Timeout() time.Duration {
	return s.cfg.Timeout
}

// Close stops the service. Later calls fail with ErrClosed. Running
// executions are not interrupted.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cfg.Cache.Clear()
	return nil
}

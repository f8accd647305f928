package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/cache"
	"github.com/jonwraymond/toolcompiler/compile"
	"github.com/jonwraymond/toolcompiler/engine"
	"github.com/jonwraymond/toolcompiler/policy"
	"github.com/jonwraymond/toolcompiler/source"
	"github.com/jonwraymond/toolcompiler/tool"
)

// Builder turns validated source into an entry point. *compile.Compiler is
// the production implementation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: failures should be *tool.CompileError.
type Builder interface {
	Build(ctx context.Context, source, toolID string) (tool.EntryPoint, error)
}

// Config controls how the service resolves, compiles, and runs tools.
type Config struct {
	// Resolution

	// Source provides tool definitions. When nil, only tools compiled
	// explicitly through Compile can be executed.
	Source source.Source

	// CompileOnDemand compiles tools on a cache miss during execution.
	// When false a miss fails with ErrToolNotCompiled and tools must be
	// loaded up front with Compile or LoadAll.
	// Defaults to true.
	CompileOnDemand bool

	// Compilation

	// Validator is the static policy check.
	// Defaults to policy.New().
	Validator *policy.Validator

	// Compiler builds entry points.
	// Defaults to compile.New with CompileTimeout and Logger.
	Compiler Builder

	// CompileTimeout bounds one build of the default Compiler.
	// Defaults to compile.DefaultTimeout.
	CompileTimeout time.Duration

	// Cache holds compiled tools.
	// Defaults to cache.New().
	Cache *cache.Cache

	// Execution

	// Timeout is the wall-clock budget of one invocation.
	// Defaults to engine.DefaultTimeout.
	Timeout time.Duration

	// Observability

	// Logger receives lifecycle events. Nil disables logging.
	Logger *zerolog.Logger

	// Clock stamps compiled tools. Defaults to time.Now.
	Clock func() time.Time
}

// Validate checks the configuration for invalid values.
// Returns ErrConfiguration on failure.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative Timeout", tool.ErrConfiguration)
	}
	if c.CompileTimeout < 0 {
		return fmt.Errorf("%w: negative CompileTimeout", tool.ErrConfiguration)
	}
	return nil
}

// applyDefaults sets default values for unset Config fields.
func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = engine.DefaultTimeout
	}
	if c.CompileTimeout == 0 {
		c.CompileTimeout = compile.DefaultTimeout
	}
	if c.Validator == nil {
		c.Validator = policy.New()
	}
	if c.Compiler == nil {
		c.Compiler = compile.New(compile.WithTimeout(c.CompileTimeout), compile.WithLogger(c.Logger))
	}
	if c.Cache == nil {
		c.Cache = cache.New()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ConfigOption is a functional option for configuring a Service.
type ConfigOption func(*Config)

// WithSource sets the definition source.
func WithSource(src source.Source) ConfigOption {
	return func(c *Config) {
		c.Source = src
	}
}

// WithCompileOnDemand sets whether execution compiles on a cache miss.
func WithCompileOnDemand(enabled bool) ConfigOption {
	return func(c *Config) {
		c.CompileOnDemand = enabled
	}
}

// WithValidator sets a custom policy validator.
func WithValidator(v *policy.Validator) ConfigOption {
	return func(c *Config) {
		c.Validator = v
	}
}

// WithCompiler sets a custom builder.
func WithCompiler(b Builder) ConfigOption {
	return func(c *Config) {
		c.Compiler = b
	}
}

// WithCompileTimeout sets the build budget of the default compiler.
func WithCompileTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.CompileTimeout = d
	}
}

// WithCache sets a shared cache.
func WithCache(ch *cache.Cache) ConfigOption {
	return func(c *Config) {
		c.Cache = ch
	}
}

// WithTimeout sets the per-invocation budget.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClock sets the clock used to stamp compiled tools.
func WithClock(now func() time.Time) ConfigOption {
	return func(c *Config) {
		c.Clock = now
	}
}

// Package compile turns validated tool source into an invocable entry point
// using an embedded Go interpreter.
//
// Every build gets a fresh interpreter whose symbol table holds only the
// allowlisted standard library packages and the toolctx package. Source is
// never loaded from disk, and the process environment and arguments are not
// visible to tools.
package compile

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"go/scanner"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/policy"
	"github.com/jonwraymond/toolcompiler/tool"
)

// DefaultTimeout bounds a single build.
const DefaultTimeout = 10 * time.Second

// entrySignature is the Go type every Execute function must have.
type entrySignature = func(tool.Context, map[string]any) (any, error)

// emptyFS backs the interpreter's source loader so that imports not present
// in the symbol table fail instead of being read from GOPATH.
var emptyFS embed.FS

// Option configures a Compiler.
type Option func(*Compiler)

// WithTimeout sets the build budget. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger that receives build events and tool output.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logging.OrNop(l)
	}
}

// WithAllowedImports exposes additional standard library packages to tools.
// The validator must be configured with the same paths.
func WithAllowedImports(paths ...string) Option {
	return func(c *Compiler) {
		c.allowed = append(c.allowed, paths...)
	}
}

// Compiler builds tool source into entry points.
//
// Contract:
// - Concurrency: safe for concurrent use; each build owns its interpreter.
// - Context: the build is abandoned when ctx is done or the budget elapses.
// - Errors: every failure is a *tool.CompileError.
type Compiler struct {
	timeout time.Duration
	logger  zerolog.Logger
	allowed []string
	symbols interp.Exports
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
		allowed: append([]string(nil), policy.DefaultAllowedImports...),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.symbols = restrictedSymbols(c.allowed)
	return c
}

// Timeout returns the build budget.
func (c *Compiler) Timeout() time.Duration {
	return c.timeout
}

// Build interprets source and returns its Execute function.
func (c *Compiler) Build(ctx context.Context, source, toolID string) (entry tool.EntryPoint, err error) {
	if err := ctx.Err(); err != nil {
		return nil, &tool.CompileError{ToolID: toolID, Diagnostic: "build canceled", Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			entry = nil
			err = &tool.CompileError{ToolID: toolID, Diagnostic: fmt.Sprintf("interpreter panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.logger.With().Str(logging.FieldToolID, toolID).Logger()
	i := interp.New(interp.Options{
		Stdout:               logging.Writer(log, "stdout"),
		Stderr:               logging.Writer(log, "stderr"),
		Env:                  []string{},
		Args:                 []string{},
		SourcecodeFilesystem: emptyFS,
	})
	if err := i.Use(c.symbols); err != nil {
		return nil, &tool.CompileError{ToolID: toolID, Diagnostic: "load symbols: " + err.Error(), Err: err}
	}

	src, lineOffset := mainPackage(source)
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &tool.CompileError{
				ToolID:     toolID,
				Diagnostic: fmt.Sprintf("build did not finish within %v", c.timeout),
				Err:        err,
			}
		}
		return nil, diagnose(toolID, err, lineOffset)
	}

	v, err := i.EvalWithContext(ctx, "main."+policy.EntryPoint)
	if err != nil {
		return nil, &tool.CompileError{ToolID: toolID, Diagnostic: "entry point not bound: " + err.Error(), Err: err}
	}
	fn, ok := v.Interface().(entrySignature)
	if !ok {
		return nil, &tool.CompileError{
			ToolID: toolID,
			Diagnostic: fmt.Sprintf("%s has type %s, want func(toolctx.Context, map[string]any) (any, error)",
				policy.EntryPoint, v.Type()),
		}
	}
	log.Debug().Msg("tool built")
	return tool.EntryPoint(fn), nil
}

// restrictedSymbols returns the subset of the interpreter's standard library
// table whose import paths are allowed, plus the toolctx package.
func restrictedSymbols(allowed []string) interp.Exports {
	want := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		want[p] = true
	}
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// Keys are "import/path/pkgname".
		idx := strings.LastIndex(key, "/")
		if idx < 0 || !want[key[:idx]] {
			continue
		}
		out[key] = syms
	}
	if want[policy.ContextPackage] {
		out[policy.ContextPackage+"/"+policy.ContextPackage] = map[string]reflect.Value{
			"Context": reflect.ValueOf((*tool.Context)(nil)),
		}
	}
	return out
}

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_]\w*)`)

// mainPackage rewrites source into package main and reports how many lines
// were prepended.
func mainPackage(source string) (string, int) {
	loc := packageClause.FindStringSubmatchIndex(source)
	if loc == nil {
		return "package main\n\n" + source, 2
	}
	if source[loc[2]:loc[3]] == "main" {
		return source, 0
	}
	return source[:loc[2]] + "main" + source[loc[3]:], 0
}

var position = regexp.MustCompile(`(\d+):(\d+): (.+)`)

// diagnose converts an interpreter error into a CompileError positioned
// against the caller's source.
func diagnose(toolID string, err error, lineOffset int) *tool.CompileError {
	ce := &tool.CompileError{ToolID: toolID, Diagnostic: err.Error(), Err: err}

	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		ce.Diagnostic = list[0].Msg
		ce.Line = list[0].Pos.Line
		ce.Column = list[0].Pos.Column
	} else if m := position.FindStringSubmatch(err.Error()); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
		ce.Column, _ = strconv.Atoi(m[2])
		ce.Diagnostic = m[3]
	}

	if ce.Line > lineOffset {
		ce.Line -= lineOffset
	}
	return ce
}

// Package engine runs compiled tools under a time budget and provides the
// execution context through which one tool calls another.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/tool"
)

// DefaultTimeout is the wall-clock budget for one invocation.
const DefaultTimeout = 30 * time.Second

// State is a step in the life of one invocation.
type State string

// Invocation states, in order.
const (
	StatePending    State = "pending"
	StateResolving  State = "resolving"
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-invocation budget. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(l)
	}
}

// Engine runs entry points.
//
// Contract:
// - Concurrency: safe for concurrent use; runs take no shared locks.
// - Context: the budget is derived from ctx, so an earlier parent deadline wins.
// - Errors: returns *tool.TimeoutError, *tool.CircularDependencyError, or
// *tool.ExecutionError; panics in tools are recovered.
type Engine struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the per-invocation budget.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Transition logs an invocation state change.
func (e *Engine) Transition(ec *ExecutionContext, toolID string, s State) {
	ev := e.logger.Debug().Str(logging.FieldToolID, toolID).Str(logging.FieldState, string(s))
	if ec != nil {
		ev = ev.Str(logging.FieldExecID, ec.ID()).Str(logging.FieldTenantID, ec.TenantID())
	}
	ev.Msg("tool state")
}

type outcome struct {
	value any
	err   error
}

// Run invokes compiled with params inside the execution tree ec. The engine
// stops waiting when the budget elapses; a tool that ignores ctx.Done may
// keep running in the background.
func (e *Engine) Run(ctx context.Context, compiled *tool.Compiled, params map[string]any, ec *ExecutionContext) (any, error) {
	if compiled == nil || compiled.Entry == nil {
		return nil, &tool.ExecutionError{Cause: errors.New("no entry point")}
	}

	args, err := compiled.NormalizeParams(params)
	if err != nil {
		e.Transition(ec, compiled.ID, StateFailed)
		return nil, &tool.ExecutionError{ToolID: compiled.ID, Cause: err}
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	budget := e.timeout
	if dl, ok := runCtx.Deadline(); ok && dl.Sub(start) < budget {
		// An earlier parent deadline bounds this call.
		budget = dl.Sub(start)
	}

	e.Transition(ec, compiled.ID, StateRunning)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := compiled.Entry(NewFrame(runCtx, ec), args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.Transition(ec, compiled.ID, StateFailed)
			return nil, classify(compiled.ID, out.err)
		}
		e.logger.Debug().
			Str(logging.FieldToolID, compiled.ID).
			Str(logging.FieldState, string(StateSucceeded)).
			Dur(logging.FieldDuration, time.Since(start)).
			Msg("tool state")
		return out.value, nil

	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			e.Transition(ec, compiled.ID, StateTimedOut)
			return nil, &tool.TimeoutError{ToolID: compiled.ID, Budget: budget}
		}
		e.Transition(ec, compiled.ID, StateFailed)
		return nil, &tool.ExecutionError{ToolID: compiled.ID, Cause: runCtx.Err()}
	}
}

// classify maps an error returned by a tool. Cycle and timeout errors raised
// by nested calls keep their kind; everything else is an execution error.
func classify(toolID string, err error) error {
	var cycle *tool.CircularDependencyError
	if errors.As(err, &cycle) {
		return cycle
	}
	var timeout *tool.TimeoutError
	if errors.As(err, &timeout) {
		return timeout
	}
	return &tool.ExecutionError{ToolID: toolID, Cause: err}
}

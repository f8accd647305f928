package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/toolcompiler/tool"
)

// Invoker executes a tool on behalf of a running tool. The service
// implements it; ExecutionContext holds it without owning it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: cycle and timeout errors are returned as their own kinds.
type Invoker interface {
	ExecuteTool(ctx context.Context, toolID string, params map[string]any, tenantID string, parent *ExecutionContext) (any, error)
}

// CallRecord captures one nested tool invocation.
type CallRecord struct {
	// ToolID is the tool that was invoked.
	ToolID string `json:"toolId"`

	// Caller is the tool that made the call.
	Caller string `json:"caller,omitempty"`

	// Depth is the call stack depth of the invoked tool, starting at 1 for
	// the top-level tool.
	Depth int `json:"depth"`

	// Duration is the wall time of the call.
	Duration time.Duration `json:"duration"`

	// Error contains the error message if the call failed.
	Error string `json:"error,omitempty"`
}

// ExecutionContext is the state shared by one execution tree: the tenant,
// the call stack used for cycle detection, and a trace of nested calls.
// A new one is created for every top-level execution and discarded when it
// returns.
type ExecutionContext struct {
	id       string
	tenantID string
	invoker  Invoker

	mu      sync.Mutex
	stack   []string
	records []CallRecord
}

// NewExecutionContext creates the context for a new execution tree.
func NewExecutionContext(tenantID string, invoker Invoker) *ExecutionContext {
	return &ExecutionContext{
		id:       uuid.NewString(),
		tenantID: tenantID,
		invoker:  invoker,
	}
}

// ID identifies the execution tree in logs.
func (ec *ExecutionContext) ID() string { return ec.id }

// TenantID returns the tenant the tree runs for.
func (ec *ExecutionContext) TenantID() string { return ec.tenantID }

// CallStack returns a snapshot of the current call stack, outermost first.
func (ec *ExecutionContext) CallStack() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return slices.Clone(ec.stack)
}

// CallRecords returns a snapshot of the nested calls made so far.
func (ec *ExecutionContext) CallRecords() []CallRecord {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return slices.Clone(ec.records)
}

// Enter pushes toolID onto the call stack. If toolID is already on the stack
// nothing is pushed and a *tool.CircularDependencyError carrying the full
// chain is returned. The returned release pops exactly this frame and must
// be called on every exit path; calling it more than once is harmless.
func (ec *ExecutionContext) Enter(toolID string) (release func(), err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if slices.Contains(ec.stack, toolID) {
		chain := append(slices.Clone(ec.stack), toolID)
		return func() {}, &tool.CircularDependencyError{Chain: chain}
	}
	ec.stack = append(ec.stack, toolID)

	var once sync.Once
	return func() {
		once.Do(func() { ec.pop(toolID) })
	}, nil
}

// pop removes the frame for toolID. IDs never repeat on the stack, so frames
// pushed after it by concurrent siblings are left in place.
func (ec *ExecutionContext) pop(toolID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if i := slices.Index(ec.stack, toolID); i >= 0 {
		ec.stack = slices.Delete(ec.stack, i, i+1)
	}
}

// Invoke runs toolID as a nested call within this tree. The tool is pushed
// before the call is delegated and popped when it returns, whether or not
// it succeeded.
func (ec *ExecutionContext) Invoke(ctx context.Context, toolID string, params map[string]any) (any, error) {
	caller := ""
	if s := ec.CallStack(); len(s) > 0 {
		caller = s[len(s)-1]
	}

	release, err := ec.Enter(toolID)
	if err != nil {
		ec.record(CallRecord{ToolID: toolID, Caller: caller, Error: err.Error()})
		return nil, err
	}
	defer release()
	depth := len(ec.CallStack())

	start := time.Now()
	result, err := ec.invoker.ExecuteTool(ctx, toolID, params, ec.tenantID, ec)

	rec := CallRecord{ToolID: toolID, Caller: caller, Depth: depth, Duration: time.Since(start)}
	if err != nil {
		rec.Error = err.Error()
	}
	ec.record(rec)
	return result, err
}

func (ec *ExecutionContext) record(r CallRecord) {
	ec.mu.Lock()
	ec.records = append(ec.records, r)
	ec.mu.Unlock()
}

// Frame is the tool.Context handed to a running entry point. It binds the
// execution tree to the deadline of one invocation.
type Frame struct {
	context.Context
	exec *ExecutionContext
}

// NewFrame binds ec to ctx.
func NewFrame(ctx context.Context, ec *ExecutionContext) *Frame {
	return &Frame{Context: ctx, exec: ec}
}

// Invoke calls another tool within the same execution tree.
func (f *Frame) Invoke(toolID string, params map[string]any) (any, error) {
	return f.exec.Invoke(f.Context, toolID, params)
}

// TenantID returns the tenant of the execution tree.
func (f *Frame) TenantID() string { return f.exec.TenantID() }

// CallStack returns a snapshot of the execution tree's call stack.
func (f *Frame) CallStack() []string { return f.exec.CallStack() }

var _ tool.Context = (*Frame)(nil)

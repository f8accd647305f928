package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/toolcompiler/tool"
)

// fakeInvoker resolves tools from a map and runs them on an Engine, the way
// the service does.
type fakeInvoker struct {
	engine *Engine

	mu    sync.Mutex
	tools map[string]*tool.Compiled
	calls []string
}

func newFakeInvoker(e *Engine) *fakeInvoker {
	return &fakeInvoker{engine: e, tools: make(map[string]*tool.Compiled)}
}

func (f *fakeInvoker) add(id string, entry tool.EntryPoint) {
	f.addWithSchema(id, entry, nil)
}

func (f *fakeInvoker) addWithSchema(id string, entry tool.EntryPoint, schema map[string]any) {
	c, err := tool.NewCompiled(tool.Definition{ID: id, Source: id, InputSchema: schema, Active: true}, entry, time.Now())
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.tools[id] = c
	f.mu.Unlock()
}

func (f *fakeInvoker) ExecuteTool(ctx context.Context, toolID string, params map[string]any, tenantID string, parent *ExecutionContext) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolID)
	c, ok := f.tools[toolID]
	f.mu.Unlock()

	ec := parent
	if ec == nil {
		ec = NewExecutionContext(tenantID, f)
		release, err := ec.Enter(toolID)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", tool.ErrToolNotFound, toolID)
	}
	return f.engine.Run(ctx, c, params, ec)
}

// invoking returns an entry point that calls next with the given params.
func invoking(next string) tool.EntryPoint {
	return func(ctx tool.Context, params map[string]any) (any, error) {
		return ctx.Invoke(next, params)
	}
}

func constant(v any) tool.EntryPoint {
	return func(tool.Context, map[string]any) (any, error) { return v, nil }
}

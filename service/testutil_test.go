package service

import (
	"context"
	"sync/atomic"

	"github.com/jonwraymond/toolcompiler/compile"
	"github.com/jonwraymond/toolcompiler/tool"
)

// countingBuilder wraps the real compiler and counts builds.
type countingBuilder struct {
	inner  *compile.Compiler
	builds atomic.Int32
}

func newCountingBuilder() *countingBuilder {
	return &countingBuilder{inner: compile.New()}
}

func (b *countingBuilder) Build(ctx context.Context, source, toolID string) (tool.EntryPoint, error) {
	b.builds.Add(1)
	return b.inner.Build(ctx, source, toolID)
}

// stubBuilder returns fixed entry points without interpreting anything.
type stubBuilder struct {
	entries map[string]tool.EntryPoint
	builds  atomic.Int32
}

func (b *stubBuilder) Build(_ context.Context, _, toolID string) (tool.EntryPoint, error) {
	b.builds.Add(1)
	e, ok := b.entries[toolID]
	if !ok {
		return nil, &tool.CompileError{ToolID: toolID, Diagnostic: "no stub"}
	}
	return e, nil
}

func def(id, src string) tool.Definition {
	return tool.Definition{ID: id, Source: src, Active: true}
}

const echoSource = `import "toolctx"

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return params["msg"], nil
}
`

const sessionSource = `import (
	"errors"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	value, _ := params["value"].(string)
	stage, _ := params["stage"].(string)
	switch stage {
	case "start":
		return map[string]any{"next": "end", "session": map[string]any{"value": value}}, nil
	case "end":
		session, _ := params["session"].(map[string]any)
		first, _ := session["value"].(string)
		return map[string]any{"done": true, "combined": first + "-" + value}, nil
	}
	return nil, errors.New("unknown stage " + stage)
}
`

// invokerSource returns a tool that calls next with its own params.
func invokerSource(next string) string {
	return `import "toolctx"

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return ctx.Invoke("` + next + `", params)
}
`
}

const stackSource = `import (
	"strings"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return strings.Join(ctx.CallStack(), " -> "), nil
}
`

const sleeperSource = `import (
	"time"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	time.Sleep(2 * time.Second)
	return "late", nil
}
`

// spinSource never yields to the scheduler or checks ctx.
const spinSource = `import "toolctx"

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	n := 0
	for {
		n++
		if n < 0 {
			return n, nil
		}
	}
}
`

// gateBuilder blocks every build until release is closed.
type gateBuilder struct {
	inner   *compile.Compiler
	release chan struct{}
	builds  atomic.Int32
}

func newGateBuilder() *gateBuilder {
	return &gateBuilder{inner: compile.New(), release: make(chan struct{})}
}

func (b *gateBuilder) Build(ctx context.Context, source, toolID string) (tool.EntryPoint, error) {
	b.builds.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.inner.Build(ctx, source, toolID)
}

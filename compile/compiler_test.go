package compile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/tool"
)

// stubContext is a minimal tool.Context for calling built entry points.
type stubContext struct {
	context.Context
	tenant  string
	invoked []string
	result  any
}

func (s *stubContext) Invoke(toolID string, params map[string]any) (any, error) {
	s.invoked = append(s.invoked, toolID)
	return s.result, nil
}

func (s *stubContext) TenantID() string    { return s.tenant }
func (s *stubContext) CallStack() []string { return nil }

const upperSource = `import (
	"strings"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	text, _ := params["text"].(string)
	return map[string]any{"upper": strings.ToUpper(text), "tenant": ctx.TenantID()}, nil
}
`

func TestBuild_RunsEntryPoint(t *testing.T) {
	entry, err := New().Build(context.Background(), upperSource, "upper")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got, err := entry(&stubContext{Context: context.Background(), tenant: "7"}, map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", got)
	}
	if m["upper"] != "HI" || m["tenant"] != "7" {
		t.Errorf("unexpected result: %v", m)
	}
}

func TestBuild_NestedInvoke(t *testing.T) {
	src := `import "toolctx"

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return ctx.Invoke("helper", map[string]any{"n": 1})
}
`
	entry, err := New().Build(context.Background(), src, "caller")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	sc := &stubContext{Context: context.Background(), result: "from helper"}
	got, err := entry(sc, nil)
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if got != "from helper" {
		t.Errorf("got %v", got)
	}
	if len(sc.invoked) != 1 || sc.invoked[0] != "helper" {
		t.Errorf("invoked = %v", sc.invoked)
	}
}

func TestBuild_ReturnsToolError(t *testing.T) {
	src := `import (
	"errors"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return nil, errors.New("bad input")
}
`
	entry, err := New().Build(context.Background(), src, "fails")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := entry(&stubContext{Context: context.Background()}, nil); err == nil || err.Error() != "bad input" {
		t.Errorf("expected tool error, got %v", err)
	}
}

func TestBuild_NonMainPackageClause(t *testing.T) {
	src := "package tools\n\n" + upperSource
	if _, err := New().Build(context.Background(), src, "upper"); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
}

func TestBuild_CompileErrorPosition(t *testing.T) {
	src := `import "toolctx"

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return undefinedName, nil
}
`
	_, err := New().Build(context.Background(), src, "broken")
	var ce *tool.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if ce.ToolID != "broken" {
		t.Errorf("ToolID = %q", ce.ToolID)
	}
	if ce.Line != 4 {
		t.Errorf("Line = %d, want 4 (%v)", ce.Line, err)
	}
	if !strings.Contains(ce.Diagnostic, "undefinedName") {
		t.Errorf("Diagnostic = %q", ce.Diagnostic)
	}
}

func TestBuild_SyntaxError(t *testing.T) {
	src := "func Execute(ctx toolctx.Context, params map[string]any) (any, error) {\n\treturn nil, nil\n"
	_, err := New().Build(context.Background(), src, "unterminated")
	if !errors.Is(err, tool.ErrCompile) {
		t.Fatalf("expected ErrCompile, got %v", err)
	}
}

func TestBuild_WrongSignature(t *testing.T) {
	src := "func Execute(params map[string]any) any { return nil }\n"
	_, err := New().Build(context.Background(), src, "legacy")
	var ce *tool.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if !strings.Contains(ce.Diagnostic, "want func(toolctx.Context") {
		t.Errorf("Diagnostic = %q", ce.Diagnostic)
	}
}

func TestBuild_UnlistedPackageUnavailable(t *testing.T) {
	// The validator rejects this first in practice; the interpreter must not
	// resolve it either.
	src := `import (
	"os"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	return os.Getpid(), nil
}
`
	if _, err := New().Build(context.Background(), src, "escape"); !errors.Is(err, tool.ErrCompile) {
		t.Fatalf("expected ErrCompile, got %v", err)
	}
}

func TestBuild_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Build(ctx, upperSource, "upper"); !errors.Is(err, tool.ErrCompile) {
		t.Fatalf("expected ErrCompile, got %v", err)
	}
}

func TestBuild_OutputGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.DebugLevel)
	src := `import (
	"fmt"
	"toolctx"
)

func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
	fmt.Println("progress")
	return nil, nil
}
`
	entry, err := New(WithLogger(&l)).Build(context.Background(), src, "chatty")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := entry(&stubContext{Context: context.Background()}, nil); err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"message":"progress"`) || !strings.Contains(buf.String(), `"tool_id":"chatty"`) {
		t.Errorf("expected tool output in log, got %q", buf.String())
	}
}

func TestWithTimeout(t *testing.T) {
	if got := New().Timeout(); got != DefaultTimeout {
		t.Errorf("default Timeout = %v", got)
	}
	if got := New(WithTimeout(time.Second)).Timeout(); got != time.Second {
		t.Errorf("Timeout = %v", got)
	}
	if got := New(WithTimeout(-1)).Timeout(); got != DefaultTimeout {
		t.Errorf("negative Timeout = %v", got)
	}
}

func TestRestrictedSymbols(t *testing.T) {
	syms := restrictedSymbols([]string{"strings", "toolctx"})
	if _, ok := syms["strings/strings"]; !ok {
		t.Error("expected strings to be exported")
	}
	if _, ok := syms["toolctx/toolctx"]["Context"]; !ok {
		t.Error("expected toolctx.Context to be exported")
	}
	for _, banned := range []string{"os/os", "os/exec/exec", "net/net", "reflect/reflect", "unsafe/unsafe"} {
		if _, ok := syms[banned]; ok {
			t.Errorf("expected %s to be absent", banned)
		}
	}
}

func TestMainPackage(t *testing.T) {
	tests := []struct {
		in, want string
		offset   int
	}{
		{"func Execute() {}", "package main\n\nfunc Execute() {}", 2},
		{"package main\nfunc Execute() {}", "package main\nfunc Execute() {}", 0},
		{"package tools\nfunc Execute() {}", "package main\nfunc Execute() {}", 0},
	}
	for _, tt := range tests {
		got, off := mainPackage(tt.in)
		if got != tt.want || off != tt.offset {
			t.Errorf("mainPackage(%q) = %q, %d", tt.in, got, off)
		}
	}
}

package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	kind    string
	name    string
	enabled bool
	tools   []string
	listErr error
	stopErr error

	mu      sync.Mutex
	calls   []string
	started bool
	stopped bool
}

func newMock(name string, tools ...string) *mockBackend {
	return &mockBackend{kind: KindBuiltin, name: name, enabled: true, tools: tools}
}

func (m *mockBackend) Kind() string  { return m.kind }
func (m *mockBackend) Name() string  { return m.name }
func (m *mockBackend) Enabled() bool { return m.enabled }

func (m *mockBackend) ListTools(_ context.Context) ([]model.Tool, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.Tool, len(m.tools))
	for i, name := range m.tools {
		out[i] = model.Tool{Tool: mcp.Tool{Name: name, InputSchema: map[string]any{"type": "object"}}}
	}
	return out, nil
}

func (m *mockBackend) Execute(_ context.Context, tool string, args map[string]any) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, tool)
	m.mu.Unlock()
	for _, t := range m.tools {
		if t == tool {
			return m.name + "/" + tool, nil
		}
	}
	return nil, ErrToolNotFound
}

func (m *mockBackend) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *mockBackend) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

var errBoom = errors.New("boom")

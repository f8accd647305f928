// Package source defines where tool definitions come from.
//
// A Source is read-only to the compiler. Every read filters by the active
// flag and, when a tenant ID is given, by tenant membership. Sub-packages
// provide SQLite and TOML file implementations; Memory is an in-process
// implementation for tests and embedding.
package source

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/jonwraymond/toolcompiler/tool"
)

// Source provides tool definitions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: an absent, inactive, or out-of-scope tool is (nil, nil), not an
// error; errors are reserved for storage failures.
// - Ownership: returned values are caller-owned copies.
type Source interface {
	// Definition returns the active definition of toolID visible to tenantID.
	Definition(ctx context.Context, toolID, tenantID string) (*tool.Definition, error)

	// ListActive returns every active definition visible to tenantID,
	// ordered by ID.
	ListActive(ctx context.Context, tenantID string) ([]tool.Definition, error)

	// Schema returns the discovery view of toolID.
	Schema(ctx context.Context, toolID, tenantID string) (*tool.Schema, error)
}

// Memory is a Source backed by a map.
type Memory struct {
	mu   sync.RWMutex
	defs map[string]tool.Definition
}

// NewMemory creates a Memory holding defs.
func NewMemory(defs ...tool.Definition) *Memory {
	m := &Memory{defs: make(map[string]tool.Definition, len(defs))}
	for _, d := range defs {
		m.Put(d)
	}
	return m
}

// Put adds or replaces a definition.
func (m *Memory) Put(def tool.Definition) {
	m.mu.Lock()
	m.defs[def.ID] = clone(def)
	m.mu.Unlock()
}

// Delete removes a definition.
func (m *Memory) Delete(toolID string) {
	m.mu.Lock()
	delete(m.defs, toolID)
	m.mu.Unlock()
}

// Definition implements Source.
func (m *Memory) Definition(ctx context.Context, toolID, tenantID string) (*tool.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	def, ok := m.defs[toolID]
	m.mu.RUnlock()
	if !ok || !Visible(def, tenantID) {
		return nil, nil
	}
	def = clone(def)
	return &def, nil
}

// ListActive implements Source.
func (m *Memory) ListActive(ctx context.Context, tenantID string) ([]tool.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]tool.Definition, 0, len(m.defs))
	for _, def := range m.defs {
		if Visible(def, tenantID) {
			out = append(out, clone(def))
		}
	}
	m.mu.RUnlock()
	SortByID(out)
	return out, nil
}

// Schema implements Source.
func (m *Memory) Schema(ctx context.Context, toolID, tenantID string) (*tool.Schema, error) {
	return SchemaFrom(m.Definition(ctx, toolID, tenantID))
}

// Visible reports whether def is active and visible to tenantID.
func Visible(def tool.Definition, tenantID string) bool {
	return def.Active && def.VisibleTo(tenantID)
}

// SortByID orders defs by ID.
func SortByID(defs []tool.Definition) {
	slices.SortFunc(defs, func(a, b tool.Definition) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// SchemaFrom converts the result of a Definition lookup into a Schema lookup
// result.
func SchemaFrom(def *tool.Definition, err error) (*tool.Schema, error) {
	if err != nil || def == nil {
		return nil, err
	}
	s := tool.SchemaOf(*def)
	return &s, nil
}

func clone(d tool.Definition) tool.Definition {
	d.Tenants = slices.Clone(d.Tenants)
	return d
}

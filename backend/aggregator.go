package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonwraymond/toolfoundation/model"
)

// ErrInvalidToolID is returned for malformed tool IDs.
var ErrInvalidToolID = errors.New("invalid tool ID format")

// Aggregator lists and executes tools across the enabled backends of a
// registry.
type Aggregator struct {
	registry *Registry
}

// NewAggregator creates an aggregator over registry.
func NewAggregator(registry *Registry) *Aggregator {
	return &Aggregator{registry: registry}
}

// ListAllTools returns the tools of every enabled backend, namespaced by
// backend name and ordered by backend registration then tool name.
func (a *Aggregator) ListAllTools(ctx context.Context) ([]model.Tool, error) {
	var all []model.Tool
	for _, b := range a.registry.ListEnabled() {
		tools, err := b.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools of %s: %w", b.Name(), err)
		}
		slices.SortFunc(tools, func(x, y model.Tool) int { return cmp.Compare(x.Name, y.Name) })
		for i := range tools {
			tools[i].Namespace = b.Name()
		}
		all = append(all, tools...)
	}
	return all, nil
}

// Resolve finds the backend serving id. A qualified id ("namespace:tool")
// selects the backend directly. A bare name is matched against the tool
// lists of enabled backends in registration order; the first match wins.
func (a *Aggregator) Resolve(ctx context.Context, id string) (Backend, string, error) {
	backendName, name, err := ParseToolID(id)
	if err != nil {
		return nil, "", err
	}
	if backendName != "" {
		b, ok := a.registry.Get(backendName)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrBackendNotFound, backendName)
		}
		if !b.Enabled() {
			return nil, "", fmt.Errorf("%w: %s", ErrBackendDisabled, backendName)
		}
		return b, name, nil
	}

	for _, b := range a.registry.ListEnabled() {
		tools, err := b.ListTools(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("list tools of %s: %w", b.Name(), err)
		}
		if slices.ContainsFunc(tools, func(t model.Tool) bool { return t.Name == name }) {
			return b, name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// Execute invokes the tool identified by id.
func (a *Aggregator) Execute(ctx context.Context, id string, args map[string]any) (any, error) {
	b, name, err := a.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.Execute(ctx, name, args)
}

// ParseToolID splits a tool ID into backend and tool name. The backend is
// empty for a bare name.
func ParseToolID(id string) (backendName, tool string, err error) {
	backendName, tool, err = model.ParseToolID(id)
	if err != nil || tool == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidToolID, id)
	}
	return backendName, tool, nil
}

// FormatToolID builds a tool ID from backend and tool name.
func FormatToolID(backendName, tool string) string {
	if backendName == "" {
		return tool
	}
	return backendName + ":" + tool
}

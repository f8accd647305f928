package tool

import "slices"

// Definition is a tool as provided by a source. It is owned by the source and
// read-only to the compiler.
type Definition struct {
	// ID is the unique tool identifier.
	ID string `json:"tool_id" toml:"tool_id"`

	// Name is the public tool name. Defaults to ID when empty.
	Name string `json:"name" toml:"name"`

	// Description is a human-readable summary used by discovery surfaces.
	Description string `json:"description,omitempty" toml:"description"`

	// Source is the Go source text of the tool.
	Source string `json:"code" toml:"code"`

	// InputSchema is the JSON Schema of the tool parameters.
	InputSchema map[string]any `json:"input_schema,omitempty" toml:"input_schema"`

	// Tenants lists the tenants allowed to see the tool.
	// An empty list means all tenants.
	Tenants []string `json:"tenants,omitempty" toml:"tenants"`

	// Active reports whether the tool is enabled.
	Active bool `json:"active" toml:"active"`
}

// DisplayName returns Name, falling back to ID.
func (d Definition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// VisibleTo reports whether the definition is visible to tenantID.
// An empty tenantID means no tenant filtering.
func (d Definition) VisibleTo(tenantID string) bool {
	return TenantAllowed(d.Tenants, tenantID)
}

// Schema is the discovery view of a tool.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// SchemaOf returns the discovery view of d. A missing description is derived
// from the name.
func SchemaOf(d Definition) Schema {
	desc := d.Description
	if desc == "" {
		desc = d.DisplayName() + " tool"
	}
	return Schema{
		Name:        d.DisplayName(),
		Description: desc,
		InputSchema: d.InputSchema,
	}
}

// TenantAllowed reports whether tenantID is a member of tenants.
// An empty tenants list allows everyone, and an empty tenantID is never filtered.
func TenantAllowed(tenants []string, tenantID string) bool {
	if tenantID == "" || len(tenants) == 0 {
		return true
	}
	return slices.Contains(tenants, tenantID)
}

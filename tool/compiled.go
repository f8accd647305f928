package tool

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// reservedParam is the parameter name the context is injected under. Callers
// cannot supply it.
const reservedParam = "context"

// Compiled is an immutable, invocable tool version.
type Compiled struct {
	ID          string
	Name        string
	Description string
	Entry       EntryPoint
	InputSchema map[string]any
	Digest      string
	Tenants     []string
	CompiledAt  time.Time

	schema *gojsonschema.Schema
}

// NewCompiled binds entry to def. The input schema is compiled once here;
// an invalid schema is reported as ErrCompile.
func NewCompiled(def Definition, entry EntryPoint, compiledAt time.Time) (*Compiled, error) {
	schema, err := compileSchema(def.InputSchema)
	if err != nil {
		return nil, &CompileError{
			ToolID:     def.ID,
			Diagnostic: "invalid input schema: " + err.Error(),
			Err:        err,
		}
	}
	return &Compiled{
		ID:          def.ID,
		Name:        def.DisplayName(),
		Description: def.Description,
		Entry:       entry,
		InputSchema: def.InputSchema,
		Digest:      Digest(def.Source),
		Tenants:     append([]string(nil), def.Tenants...),
		CompiledAt:  compiledAt,
		schema:      schema,
	}, nil
}

// VisibleTo reports whether the compiled tool may run for tenantID.
func (c *Compiled) VisibleTo(tenantID string) bool {
	return TenantAllowed(c.Tenants, tenantID)
}

// NormalizeParams checks params against the input schema and returns a new
// map with schema defaults filled in. The reserved "context" key is dropped.
// Failures wrap ErrInvalidParams.
func (c *Compiled) NormalizeParams(params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	maps.Copy(out, params)
	delete(out, reservedParam)

	if props, ok := c.InputSchema["properties"].(map[string]any); ok {
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if _, present := out[name]; present {
				continue
			}
			if def, ok := prop["default"]; ok {
				out[name] = def
			}
		}
	}

	if c.schema == nil {
		return out, nil
	}
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(msgs, "; "))
	}
	return out, nil
}

func compileSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}

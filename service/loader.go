package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/tool"
)

// errNoSource is returned by operations that need a Source when none is
// configured.
var errNoSource = fmt.Errorf("%w: no Source configured", tool.ErrConfiguration)

// LoadFailure records one tool that could not be compiled.
type LoadFailure struct {
	ToolID string
	Err    error
}

// LoadReport summarizes a LoadAll run.
type LoadReport struct {
	Compiled []string
	Failed   []LoadFailure
}

// Err joins every failure, or returns nil when all tools compiled.
func (r LoadReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// LoadAll compiles every active definition visible to tenantID. A tool that
// fails is recorded in the report and does not stop the others; only a
// source failure is returned as an error.
func (s *Service) LoadAll(ctx context.Context, tenantID string) (LoadReport, error) {
	if s.closed.Load() {
		return LoadReport{}, ErrClosed
	}
	if s.cfg.Source == nil {
		return LoadReport{}, errNoSource
	}
	defs, err := s.cfg.Source.ListActive(ctx, tenantID)
	if err != nil {
		return LoadReport{}, fmt.Errorf("list tools: %w", err)
	}

	var report LoadReport
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.Compile(ctx, def); err != nil {
			report.Failed = append(report.Failed, LoadFailure{ToolID: def.ID, Err: err})
			continue
		}
		report.Compiled = append(report.Compiled, def.ID)
	}
	s.log.Info().
		Str(logging.FieldTenantID, tenantID).
		Int("compiled", len(report.Compiled)).
		Int("failed", len(report.Failed)).
		Msg("tools loaded")
	return report, nil
}

// Reload recompiles toolID from the source. When the tool is no longer
// active or visible it is dropped from the cache and ErrToolNotFound is
// returned.
func (s *Service) Reload(ctx context.Context, toolID, tenantID string) (*tool.Compiled, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.cfg.Source == nil {
		return nil, errNoSource
	}
	def, err := s.cfg.Source.Definition(ctx, toolID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", toolID, err)
	}
	if def == nil {
		s.cfg.Cache.Remove(toolID)
		s.log.Warn().Str(logging.FieldToolID, toolID).Msg("tool not found for reload")
		return nil, fmt.Errorf("%w: %s", tool.ErrToolNotFound, toolID)
	}
	s.cfg.Cache.Remove(toolID)
	c, err := s.Compile(ctx, *def)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str(logging.FieldToolID, toolID).Msg("tool reloaded")
	return c, nil
}

// ToolInfo pairs a tool ID with its discovery schema.
type ToolInfo struct {
	ID     string
	Schema tool.Schema
}

// Tools lists the tools tenantID may execute, ordered by ID. With a Source
// the active definitions are listed; without one the compiled tools in the
// cache are.
func (s *Service) Tools(ctx context.Context, tenantID string) ([]ToolInfo, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.cfg.Source == nil {
		return s.cachedTools(tenantID), nil
	}
	defs, err := s.cfg.Source.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolInfo, 0, len(defs))
	for _, def := range defs {
		schema, err := s.cfg.Source.Schema(ctx, def.ID, tenantID)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", def.ID, err)
		}
		if schema != nil {
			out = append(out, ToolInfo{ID: def.ID, Schema: *schema})
		}
	}
	return out, nil
}

func (s *Service) cachedTools(tenantID string) []ToolInfo {
	ids := s.cfg.Cache.IDs()
	slices.Sort(ids)
	var out []ToolInfo
	for _, id := range ids {
		c, ok := s.cfg.Cache.Get(id)
		if !ok || !c.VisibleTo(tenantID) {
			continue
		}
		out = append(out, ToolInfo{ID: c.ID, Schema: tool.SchemaOf(tool.Definition{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			InputSchema: c.InputSchema,
		})})
	}
	return out
}

// Available returns the discovery schemas of every active tool visible to
// tenantID, ordered by tool ID.
func (s *Service) Available(ctx context.Context, tenantID string) ([]tool.Schema, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.cfg.Source == nil {
		return nil, errNoSource
	}
	infos, err := s.Tools(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]tool.Schema, len(infos))
	for i, info := range infos {
		out[i] = info.Schema
	}
	return out, nil
}

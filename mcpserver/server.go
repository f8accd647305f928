// Package mcpserver serves the aggregated tools over the Model Context
// Protocol.
//
// Every tool is published under its bare name. When two backends list the
// same name, the backend registered first wins, matching how the
// aggregator resolves bare names. Results are rendered as text; failures
// are reported as tool errors rather than protocol errors so clients can
// show them to the model.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/service"
	"github.com/jonwraymond/toolcompiler/tool"
)

// Options configures a Server.
type Options struct {
	// Name and Version identify the server to clients.
	Name    string
	Version string

	// Tenant is the tenant every call runs for. Empty means unscoped.
	Tenant string

	// Logger is optional.
	Logger *zerolog.Logger
}

// Server publishes the tools of an aggregator on an MCP server.
type Server struct {
	agg    *backend.Aggregator
	mcp    *mcp.Server
	tenant string
	log    zerolog.Logger

	mu        sync.Mutex
	published map[string]string // name -> qualified ID
}

// New creates a server. Call Sync before serving.
func New(agg *backend.Aggregator, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "toolcompiler"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		agg:       agg,
		mcp:       mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil),
		tenant:    opts.Tenant,
		log:       logging.OrNop(opts.Logger),
		published: make(map[string]string),
	}
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Sync publishes the current tool list and withdraws tools that are gone.
// Connected clients are notified of the change by the protocol server.
func (s *Server) Sync(ctx context.Context) error {
	tools, err := s.agg.ListAllTools(tool.WithTenant(ctx, s.tenant))
	if err != nil {
		return fmt.Errorf("sync tools: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(tools))
	for _, t := range tools {
		id := backend.FormatToolID(t.Namespace, t.Name)
		if prev, dup := next[t.Name]; dup {
			s.log.Warn().Str(logging.FieldToolID, id).Str("published", prev).Msg("tool name shadowed")
			continue
		}
		def := t.Tool
		if err := publishable(&def); err != nil {
			s.log.Warn().Err(err).Str(logging.FieldToolID, id).Msg("tool not published")
			continue
		}
		next[t.Name] = id
		s.mcp.AddTool(&def, s.handler(id))
	}

	var stale []string
	for name := range s.published {
		if _, ok := next[name]; !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.mcp.RemoveTools(stale...)
	}
	s.published = next
	s.log.Info().Int("tools", len(next)).Int("removed", len(stale)).Msg("tools published")
	return nil
}

// publishable reports whether the protocol server accepts t. Its schemas
// must encode to JSON objects of type "object".
func publishable(t *mcp.Tool) error {
	if t.InputSchema == nil {
		return fmt.Errorf("%s: missing input schema", t.Name)
	}
	if err := objectSchema(t.InputSchema); err != nil {
		return fmt.Errorf("%s: input schema: %w", t.Name, err)
	}
	if t.OutputSchema != nil {
		if err := objectSchema(t.OutputSchema); err != nil {
			return fmt.Errorf("%s: output schema: %w", t.Name, err)
		}
	}
	return nil
}

func objectSchema(schema any) error {
	b, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if typ := m["type"]; typ != "object" {
		return fmt.Errorf(`type must be "object", got %v`, typ)
	}
	return nil
}

// Published returns the number of published tools.
func (s *Server) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *Server) handler(id string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := s.log.With().Str(logging.FieldToolID, id).Str(logging.FieldTenantID, s.tenant).Logger()
		start := time.Now()

		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("%w: arguments must be a JSON object: %v", tool.ErrInvalidParams, err)), nil
			}
		}

		result, err := s.agg.Execute(tool.WithTenant(ctx, s.tenant), id, args)
		if err != nil {
			log.Warn().Err(err).Dur(logging.FieldDuration, time.Since(start)).Msg("tool call failed")
			return errorResult(err), nil
		}
		text, err := service.Render(result)
		if err != nil {
			return errorResult(err), nil
		}
		log.Debug().Dur(logging.FieldDuration, time.Since(start)).Msg("tool call finished")
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
	}
}

// Run serves on transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcp.Run(ctx, transport)
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

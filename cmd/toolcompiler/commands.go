package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/catalog"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/mcpserver"
	"github.com/jonwraymond/toolcompiler/service"
	"github.com/jonwraymond/toolcompiler/source/filestore"
	"github.com/jonwraymond/toolcompiler/tool"
)

func newServeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			if err := a.reg.StartAll(ctx); err != nil {
				return err
			}
			srv := mcpserver.New(a.agg, mcpserver.Options{
				Name:    a.cfg.ServerName,
				Version: version,
				Tenant:  a.cfg.Tenant,
				Logger:  &a.log,
			})
			if err := srv.Sync(ctx); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			gctx, cancel := context.WithCancel(gctx)
			g.Go(func() error {
				defer cancel()
				return srv.ServeStdio(gctx)
			})
			if a.cfg.Watch && a.files != nil {
				g.Go(func() error {
					return a.files.Watch(gctx, func(toolID string) {
						reloadTool(gctx, a, toolID)
						if err := srv.Sync(gctx); err != nil {
							a.log.Error().Err(err).Msg("republish tools")
						}
					})
				})
			}
			return g.Wait()
		},
	}
}

// reloadTool recompiles a changed tool. A removed tool only leaves the cache.
func reloadTool(ctx context.Context, a *app, toolID string) {
	_, err := a.svc.Reload(ctx, toolID, "")
	switch {
	case err == nil:
	case errors.Is(err, tool.ErrToolNotFound):
		a.log.Info().Str(logging.FieldToolID, toolID).Msg("tool withdrawn")
	default:
		a.log.Error().Err(err).Str(logging.FieldToolID, toolID).Msg("reload failed")
	}
}

func newCheckCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate and compile tool files",
		Long: `Validates and compiles each file without running it. A .toml file is read
as a tool document; any other file is read as bare Go source named after the file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				var c *tool.Compiled
				def, err := readDefinition(path)
				if err == nil {
					c, err = a.svc.Compile(commandContext(cmd), def)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok    %s (%s)\n", def.ID, tool.ShortDigest(c.Digest))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tools failed", failed, len(args))
			}
			return nil
		},
	}
}

func readDefinition(path string) (tool.Definition, error) {
	if filepath.Ext(path) == filestore.Ext {
		return filestore.LoadFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return tool.Definition{}, err
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return tool.Definition{ID: id, Source: string(src), Active: true}, nil
}

func newRunCmd(open opener) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "run TOOL",
		Short: "Execute a tool and print its result",
		Long: `Executes TOOL, addressed as "namespace:tool" or by bare name, and prints
the result. Strings print verbatim; other values print as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input map[string]any
			if params != "" {
				if err := json.Unmarshal([]byte(params), &input); err != nil {
					return fmt.Errorf("%w: --params must be a JSON object: %v", tool.ErrInvalidParams, err)
				}
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := tool.WithTenant(commandContext(cmd), a.cfg.Tenant)
			result, err := a.agg.Execute(ctx, args[0], input)
			if err != nil {
				return err
			}
			text, err := service.Render(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "tool parameters as a JSON object")
	return cmd
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tools available to the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tools, err := a.agg.ListAllTools(tool.WithTenant(commandContext(cmd), a.cfg.Tenant))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tDESCRIPTION")
			for _, t := range tools {
				fmt.Fprintf(w, "%s\t%s\n", backend.FormatToolID(t.Namespace, t.Name), t.Description)
			}
			return w.Flush()
		},
	}
}

func newSearchCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the tools available to the tenant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cat := catalog.New(a.agg, &a.log)
			if err := cat.Refresh(tool.WithTenant(commandContext(cmd), a.cfg.Tenant)); err != nil {
				return err
			}
			results, err := cat.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s - %s\n", i+1, r.ID, r.ShortDescription)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", catalog.DefaultLimit, "maximum results")
	return cmd
}

func newImportCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Store tool documents in the SQLite source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.sql == nil {
				return fmt.Errorf("%w: import requires the sqlite source", tool.ErrConfiguration)
			}

			ctx := commandContext(cmd)
			for _, path := range args {
				def, err := filestore.LoadFile(path)
				if err != nil {
					return err
				}
				if err := a.sql.Upsert(ctx, def); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", def.ID)
			}
			return nil
		},
	}
}

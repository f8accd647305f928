package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolcompiler/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootFlags override configuration when set on the command line.
type rootFlags struct {
	configPath string
	logLevel   string
	tenant     string
	sourceKind string
	sourcePath string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "toolcompiler",
		Short:         "Compile and serve dynamic Go tools",
		Long:          `Validates, compiles, caches, and executes tools written as Go source, and serves them over MCP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "TOML configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.tenant, "tenant", "", "tenant to run tools for")
	pf.StringVar(&flags.sourceKind, "source", "", "tool source kind (memory, sqlite, dir)")
	pf.StringVar(&flags.sourcePath, "source-path", "", "database file or tool directory")

	// open loads configuration and wires the app for a subcommand.
	open := func(cmd *cobra.Command) (*app, error) {
		cfg, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		set := cmd.Flags().Changed
		if set("log-level") {
			cfg.LogLevel = flags.logLevel
		}
		if set("tenant") {
			cfg.Tenant = flags.tenant
		}
		if set("source") {
			cfg.SourceKind = flags.sourceKind
		}
		if set("source-path") {
			cfg.SourcePath = flags.sourcePath
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return newApp(commandContext(cmd), cfg, cmd.ErrOrStderr())
	}

	root.AddCommand(
		newServeCmd(open),
		newCheckCmd(open),
		newRunCmd(open),
		newListCmd(open),
		newSearchCmd(open),
		newImportCmd(open),
	)
	return root
}

type opener func(cmd *cobra.Command) (*app, error)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

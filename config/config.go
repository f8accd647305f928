// Package config loads process configuration for the toolcompiler command.
//
// Configuration comes from an optional TOML file, then TOOLCOMPILER_*
// environment variables, then command-line flags. Keys absent from the file
// keep their defaults.
//
//	[log]
//	level = "info"
//	pretty = false
//
//	[source]
//	kind = "sqlite"          # memory, sqlite, or dir
//	path = "tools.db"
//	watch = false            # dir only
//
//	[compiler]
//	timeout = "10s"
//	compile_on_demand = true
//	preload = false
//
//	[execution]
//	timeout = "30s"
//
//	[server]
//	name = "toolcompiler"
//	tenant = ""
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jonwraymond/toolcompiler/compile"
	"github.com/jonwraymond/toolcompiler/engine"
	"github.com/jonwraymond/toolcompiler/tool"
)

// Source kinds.
const (
	SourceMemory = "memory"
	SourceSQLite = "sqlite"
	SourceDir    = "dir"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOOLCOMPILER_"

// Config is the process configuration.
type Config struct {
	LogLevel  string
	LogPretty bool

	SourceKind string
	SourcePath string
	Watch      bool

	CompileTimeout  time.Duration
	CompileOnDemand bool
	Preload         bool

	ExecTimeout time.Duration

	ServerName string
	Tenant     string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:        "info",
		SourceKind:      SourceMemory,
		CompileTimeout:  compile.DefaultTimeout,
		CompileOnDemand: true,
		ExecTimeout:     engine.DefaultTimeout,
		ServerName:      "toolcompiler",
	}
}

type fileConfig struct {
	Log struct {
		Level  string `toml:"level"`
		Pretty bool   `toml:"pretty"`
	} `toml:"log"`
	Source struct {
		Kind  string `toml:"kind"`
		Path  string `toml:"path"`
		Watch bool   `toml:"watch"`
	} `toml:"source"`
	Compiler struct {
		Timeout         string `toml:"timeout"`
		CompileOnDemand bool   `toml:"compile_on_demand"`
		Preload         bool   `toml:"preload"`
	} `toml:"compiler"`
	Execution struct {
		Timeout string `toml:"timeout"`
	} `toml:"execution"`
	Server struct {
		Name   string `toml:"name"`
		Tenant string `toml:"tenant"`
	} `toml:"server"`
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %s", undecoded[0])
	}

	if meta.IsDefined("log", "level") {
		c.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "pretty") {
		c.LogPretty = raw.Log.Pretty
	}
	if meta.IsDefined("source", "kind") {
		c.SourceKind = strings.TrimSpace(raw.Source.Kind)
	}
	if meta.IsDefined("source", "path") {
		c.SourcePath = strings.TrimSpace(raw.Source.Path)
	}
	if meta.IsDefined("source", "watch") {
		c.Watch = raw.Source.Watch
	}
	if meta.IsDefined("compiler", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Compiler.Timeout))
		if err != nil {
			return fmt.Errorf("parse compiler.timeout: %w", err)
		}
		c.CompileTimeout = d
	}
	if meta.IsDefined("compiler", "compile_on_demand") {
		c.CompileOnDemand = raw.Compiler.CompileOnDemand
	}
	if meta.IsDefined("compiler", "preload") {
		c.Preload = raw.Compiler.Preload
	}
	if meta.IsDefined("execution", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Execution.Timeout))
		if err != nil {
			return fmt.Errorf("parse execution.timeout: %w", err)
		}
		c.ExecTimeout = d
	}
	if meta.IsDefined("server", "name") {
		c.ServerName = strings.TrimSpace(raw.Server.Name)
	}
	if meta.IsDefined("server", "tenant") {
		c.Tenant = strings.TrimSpace(raw.Server.Tenant)
	}
	return nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies TOOLCOMPILER_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("SOURCE_KIND", &c.SourceKind)
	str("SOURCE_PATH", &c.SourcePath)
	str("SERVER_NAME", &c.ServerName)
	str("TENANT", &c.Tenant)
	return errors.Join(
		boolean("LOG_PRETTY", &c.LogPretty),
		boolean("WATCH", &c.Watch),
		boolean("COMPILE_ON_DEMAND", &c.CompileOnDemand),
		boolean("PRELOAD", &c.Preload),
		duration("COMPILE_TIMEOUT", &c.CompileTimeout),
		duration("EXEC_TIMEOUT", &c.ExecTimeout),
	)
}

// Validate checks the configuration.
// Returns tool.ErrConfiguration for invalid values.
func (c Config) Validate() error {
	switch c.SourceKind {
	case SourceMemory:
	case SourceSQLite, SourceDir:
		if c.SourcePath == "" {
			return fmt.Errorf("%w: source %s requires a path", tool.ErrConfiguration, c.SourceKind)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", tool.ErrConfiguration, c.SourceKind)
	}
	if c.Watch && c.SourceKind != SourceDir {
		return fmt.Errorf("%w: watch requires source kind %s", tool.ErrConfiguration, SourceDir)
	}
	if c.CompileTimeout <= 0 {
		return fmt.Errorf("%w: compiler timeout must be positive", tool.ErrConfiguration)
	}
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("%w: execution timeout must be positive", tool.ErrConfiguration)
	}
	return nil
}

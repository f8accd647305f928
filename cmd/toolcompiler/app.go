package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/backend/dynamic"
	"github.com/jonwraymond/toolcompiler/backend/local"
	"github.com/jonwraymond/toolcompiler/config"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/service"
	"github.com/jonwraymond/toolcompiler/source"
	"github.com/jonwraymond/toolcompiler/source/filestore"
	"github.com/jonwraymond/toolcompiler/source/sqlstore"
)

// app is the wired process: source, service, and backends.
type app struct {
	cfg config.Config
	log zerolog.Logger

	src   source.Source
	sql   *sqlstore.Store
	files *filestore.Store

	svc *service.Service
	reg *backend.Registry
	agg *backend.Aggregator
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: logOut})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	switch cfg.SourceKind {
	case config.SourceSQLite:
		a.sql, err = sqlstore.Open(ctx, sqlstore.Config{Path: cfg.SourcePath, Logger: &a.log})
		a.src = a.sql
	case config.SourceDir:
		a.files, err = filestore.Open(filestore.Config{Dir: cfg.SourcePath, Logger: &a.log})
		a.src = a.files
	}
	if err != nil {
		return nil, err
	}

	opts := []service.ConfigOption{
		service.WithCompileOnDemand(cfg.CompileOnDemand),
		service.WithCompileTimeout(cfg.CompileTimeout),
		service.WithTimeout(cfg.ExecTimeout),
		service.WithLogger(&a.log),
	}
	if a.src != nil {
		opts = append(opts, service.WithSource(a.src))
	}
	if a.svc, err = service.New(opts...); err != nil {
		a.Close()
		return nil, err
	}

	a.reg = backend.NewRegistry()
	if err := a.reg.Register(local.Builtins("builtin", a.probe, nil)); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.reg.Register(dynamic.New(a.svc, dynamic.Options{Preload: cfg.Preload && a.src != nil, Logger: &a.log})); err != nil {
		a.Close()
		return nil, err
	}
	a.agg = backend.NewAggregator(a.reg)
	return a, nil
}

// probe backs health_check by reading from the tool source.
func (a *app) probe(ctx context.Context) error {
	if a.src == nil {
		return nil
	}
	if _, err := a.src.ListActive(ctx, ""); err != nil {
		return fmt.Errorf("tool source unavailable: %w", err)
	}
	return nil
}

// Close releases everything newApp opened.
func (a *app) Close() error {
	var errs []error
	if a.reg != nil {
		errs = append(errs, a.reg.StopAll())
	}
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.sql != nil {
		errs = append(errs, a.sql.Close())
	}
	return errors.Join(errs...)
}

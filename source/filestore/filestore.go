// Package filestore is a source.Source backed by a directory of TOML tool
// documents, one tool per *.toml file:
//
//	tool_id = "word_count"          # defaults to the file name
//	name = "Word Count"
//	description = "Counts words in text"
//	active = true                   # defaults to true
//	tenants = ["1", "2"]            # omitted means all tenants
//	code = '''
//	import (
//		"strings"
//		"toolctx"
//	)
//
//	func Execute(ctx toolctx.Context, params map[string]any) (any, error) {
//		text, _ := params["text"].(string)
//		return len(strings.Fields(text)), nil
//	}
//	'''
//
//	[input_schema]
//	type = "object"
//
// The directory is read into memory by Open and Refresh. Watch keeps the
// snapshot current and reports which tools changed.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/source"
	"github.com/jonwraymond/toolcompiler/tool"
)

// Ext is the extension of tool documents.
const Ext = ".toml"

const schemaKey = "input_schema"

// DefaultDebounce is how long a file must be quiet before a change is
// processed.
const DefaultDebounce = 100 * time.Millisecond

// Config holds store configuration.
type Config struct {
	// Dir is the directory holding tool documents. Required.
	Dir string

	// Debounce delays change processing in Watch.
	// Defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger is optional.
	Logger *zerolog.Logger
}

// Store is a file-backed tool source.
type Store struct {
	dir      string
	debounce time.Duration
	logger   zerolog.Logger

	mu    sync.RWMutex
	defs  map[string]tool.Definition
	files map[string]string // path -> tool ID
}

var _ source.Source = (*Store)(nil)

// Open loads every tool document in cfg.Dir. Documents that fail to parse
// are logged and skipped.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: filestore: Dir is required", tool.ErrConfiguration)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open tool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open tool directory: %s is not a directory", cfg.Dir)
	}

	s := &Store{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		logger:   logging.OrNop(cfg.Logger),
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh rereads the whole directory.
func (s *Store) Refresh() error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+Ext))
	if err != nil {
		return fmt.Errorf("list tool documents: %w", err)
	}
	defs := make(map[string]tool.Definition, len(paths))
	files := make(map[string]string, len(paths))
	for _, p := range paths {
		def, err := LoadFile(p)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", p).Msg("skipping tool document")
			continue
		}
		if _, dup := defs[def.ID]; dup {
			s.logger.Warn().Str(logging.FieldToolID, def.ID).Str("path", p).Msg("duplicate tool_id, later file wins")
		}
		defs[def.ID] = def
		files[p] = def.ID
	}

	s.mu.Lock()
	s.defs = defs
	s.files = files
	s.mu.Unlock()
	s.logger.Debug().Str("dir", s.dir).Int("tools", len(defs)).Msg("tool documents loaded")
	return nil
}

// LoadFile parses one tool document.
func LoadFile(path string) (tool.Definition, error) {
	var def tool.Definition
	meta, err := toml.DecodeFile(path, &def)
	if err != nil {
		return tool.Definition{}, fmt.Errorf("load tool document %s: %w", path, err)
	}
	if !meta.IsDefined("tool_id") || strings.TrimSpace(def.ID) == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), Ext)
	}
	def.ID = strings.TrimSpace(def.ID)
	if !meta.IsDefined("active") {
		def.Active = true
	}
	if keys := unknownKeys(meta); len(keys) > 0 {
		return tool.Definition{}, fmt.Errorf("load tool document %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if strings.TrimSpace(def.Source) == "" {
		return tool.Definition{}, fmt.Errorf("load tool document %s: code is required", path)
	}
	return def, nil
}

// unknownKeys lists undecoded keys outside input_schema. The schema table is
// free-form, so its nested keys are reported as undecoded even though they
// land in the map.
func unknownKeys(meta toml.MetaData) []string {
	var keys []string
	for _, k := range meta.Undecoded() {
		if len(k) > 0 && k[0] == schemaKey {
			continue
		}
		keys = append(keys, k.String())
	}
	return keys
}

// Definition implements source.Source.
func (s *Store) Definition(ctx context.Context, toolID, tenantID string) (*tool.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	def, ok := s.defs[toolID]
	s.mu.RUnlock()
	if !ok || !source.Visible(def, tenantID) {
		return nil, nil
	}
	def.Tenants = append([]string(nil), def.Tenants...)
	return &def, nil
}

// ListActive implements source.Source.
func (s *Store) ListActive(ctx context.Context, tenantID string) ([]tool.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]tool.Definition, 0, len(s.defs))
	for _, def := range s.defs {
		if source.Visible(def, tenantID) {
			def.Tenants = append([]string(nil), def.Tenants...)
			out = append(out, def)
		}
	}
	s.mu.RUnlock()
	source.SortByID(out)
	return out, nil
}

// Schema implements source.Source.
func (s *Store) Schema(ctx context.Context, toolID, tenantID string) (*tool.Schema, error) {
	return source.SchemaFrom(s.Definition(ctx, toolID, tenantID))
}

// ChangeFunc receives the ID of a tool whose document was added, changed,
// or removed.
type ChangeFunc func(toolID string)

// Watch updates the snapshot as documents change and calls onChange for
// each affected tool. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange ChangeFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.logger.Info().Str("dir", s.dir).Msg("watching tool documents")

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for p, t := range timers {
			if t.Stop() {
				wg.Done()
			}
			delete(timers, p)
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != Ext {
				continue
			}
			path := event.Name
			mu.Lock()
			if t, exists := timers[path]; exists && t.Stop() {
				wg.Done()
			}
			wg.Add(1)
			var timer *time.Timer
			timer = time.AfterFunc(s.debounce, func() {
				defer wg.Done()
				mu.Lock()
				if timers[path] == timer {
					delete(timers, path)
				}
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				for _, id := range s.apply(path) {
					onChange(id)
				}
			})
			timers[path] = timer
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// apply brings the snapshot in line with the file at path and returns the
// affected tool IDs.
func (s *Store) apply(path string) []string {
	def, err := LoadFile(path)
	_, statErr := os.Stat(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	prevID, hadPrev := s.files[path]
	if hadPrev {
		delete(s.defs, prevID)
		delete(s.files, path)
		changed = append(changed, prevID)
	}
	if statErr != nil {
		s.logger.Info().Str("path", path).Msg("tool document removed")
		return changed
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("skipping tool document")
		return changed
	}
	s.defs[def.ID] = def
	s.files[path] = def.ID
	if !hadPrev || prevID != def.ID {
		changed = append(changed, def.ID)
	}
	s.logger.Info().Str(logging.FieldToolID, def.ID).Msg("tool document updated")
	return changed
}

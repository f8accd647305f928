// Package sqlstore is a source.Source backed by a SQLite database.
//
// Definitions live in a single tools table keyed by tool_id. The tenants
// column holds a JSON array; NULL or an empty array means all tenants.
// Tenant and active filtering is done in SQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/source"
	"github.com/jonwraymond/toolcompiler/tool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS tools (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL,
		input_schema TEXT,
		tenants TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tools_tool_id ON tools(tool_id);
	CREATE INDEX IF NOT EXISTS idx_tools_tenants_active ON tools(tenants, active);
`

const columns = `tool_id, name, description, code, input_schema, tenants, active`

// visible restricts a query to active rows in scope for the tenant bound to
// the two trailing parameters.
const visible = `active = 1 AND (
	? = ''
	OR tenants IS NULL
	OR json_array_length(tenants) = 0
	OR EXISTS (SELECT 1 FROM json_each(tools.tenants) WHERE json_each.value = ?)
)`

// Config holds store configuration.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory
	// database.
	Path string

	// Logger is optional.
	Logger *zerolog.Logger
}

// Store is a SQLite-backed tool source.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ source.Source = (*Store)(nil)

// Open opens or creates the database at cfg.Path and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlstore: Path is required", tool.ErrConfiguration)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Path == ":memory:" || strings.Contains(cfg.Path, "mode=memory") {
		// Every pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, logger: logging.OrNop(cfg.Logger)}
	s.logger.Debug().Str("path", cfg.Path).Msg("tool store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a definition. It is the administrative write
// path; the compiler itself only reads.
func (s *Store) Upsert(ctx context.Context, def tool.Definition) error {
	if def.ID == "" {
		return errors.New("sqlstore: tool_id is required")
	}
	var inputSchema, tenants sql.NullString
	if len(def.InputSchema) > 0 {
		b, err := json.Marshal(def.InputSchema)
		if err != nil {
			return fmt.Errorf("encode input_schema for %s: %w", def.ID, err)
		}
		inputSchema = sql.NullString{String: string(b), Valid: true}
	}
	if len(def.Tenants) > 0 {
		b, err := json.Marshal(def.Tenants)
		if err != nil {
			return fmt.Errorf("encode tenants for %s: %w", def.ID, err)
		}
		tenants = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tools (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			code = excluded.code,
			input_schema = excluded.input_schema,
			tenants = excluded.tenants,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP`,
		def.ID, def.Name, def.Description, def.Source, inputSchema, tenants, def.Active)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", def.ID, err)
	}
	return nil
}

// SetActive enables or disables a tool. It reports whether the tool exists.
func (s *Store) SetActive(ctx context.Context, toolID string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tools SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE tool_id = ?`, active, toolID)
	if err != nil {
		return false, fmt.Errorf("set active %s: %w", toolID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Definition implements source.Source.
func (s *Store) Definition(ctx context.Context, toolID, tenantID string) (*tool.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM tools WHERE tool_id = ? AND `+visible,
		toolID, tenantID, tenantID)
	def, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", toolID, err)
	}
	return &def, nil
}

// ListActive implements source.Source.
func (s *Store) ListActive(ctx context.Context, tenantID string) ([]tool.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM tools WHERE `+visible+` ORDER BY tool_id`,
		tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []tool.Definition
	for rows.Next() {
		def, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return out, nil
}

// Schema implements source.Source.
func (s *Store) Schema(ctx context.Context, toolID, tenantID string) (*tool.Schema, error) {
	return source.SchemaFrom(s.Definition(ctx, toolID, tenantID))
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (tool.Definition, error) {
	var (
		def         tool.Definition
		inputSchema sql.NullString
		tenants     sql.NullString
	)
	if err := r.Scan(&def.ID, &def.Name, &def.Description, &def.Source, &inputSchema, &tenants, &def.Active); err != nil {
		return tool.Definition{}, err
	}
	if inputSchema.Valid && inputSchema.String != "" {
		if err := json.Unmarshal([]byte(inputSchema.String), &def.InputSchema); err != nil {
			return tool.Definition{}, fmt.Errorf("decode input_schema of %s: %w", def.ID, err)
		}
	}
	if tenants.Valid && tenants.String != "" {
		if err := json.Unmarshal([]byte(tenants.String), &def.Tenants); err != nil {
			return tool.Definition{}, fmt.Errorf("decode tenants of %s: %w", def.ID, err)
		}
	}
	return def, nil
}

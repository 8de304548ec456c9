// Package catalog inspects the table catalog of a sqlite or postgres database
// without modifying it.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the catalog queries.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ErrNotFound is returned by Open when a sqlite file does not exist.
var ErrNotFound = errors.New("database file not found")

// Target is a parsed database location.
type Target struct {
	Dialect Dialect
	// DSN is handed to sql.Open.
	DSN string
	// Path is the sqlite file path; empty for postgres.
	Path string
	// Display is safe to log and persist (postgres passwords are redacted).
	Display string
}

// uriPathEscaper encodes the characters that would end the path part of a
// sqlite file: URI.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// ParseTarget interprets a configured database path. postgres:// and
// postgresql:// URLs select postgres; sqlite:///path, file:path and bare
// paths select sqlite.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("empty database path")
	}

	if strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") {
		u, err := url.Parse(s)
		if err != nil {
			return Target{}, fmt.Errorf("parsing postgres url: %w", err)
		}
		return Target{Dialect: Postgres, DSN: s, Display: u.Redacted()}, nil
	}

	path := s
	switch {
	case strings.HasPrefix(path, "sqlite:///"):
		path = strings.TrimPrefix(path, "sqlite:///")
	case strings.HasPrefix(path, "sqlite://"):
		path = strings.TrimPrefix(path, "sqlite://")
	case strings.HasPrefix(path, "file:"):
		path = strings.TrimPrefix(path, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if decoded, err := url.PathUnescape(path); err == nil {
			path = decoded
		}
	}
	if path == "" {
		return Target{}, fmt.Errorf("empty sqlite path in %q", s)
	}
	return Target{
		Dialect: SQLite,
		DSN:     "file:" + uriPathEscaper.Replace(path) + "?mode=ro&_pragma=busy_timeout(2000)",
		Path:    path,
		Display: path,
	}, nil
}

// Column describes one column of a table.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	Primary bool   `json:"primary_key"`
}

// Catalog wraps a read-only database handle.
type Catalog struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to t and verifies the connection. A sqlite target whose file
// does not exist yields ErrNotFound; the file is never created.
func Open(ctx context.Context, t Target) (*Catalog, error) {
	driver := "sqlite"
	if t.Dialect == Postgres {
		driver = "pgx"
	} else {
		info, err := os.Stat(t.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, t.Path)
		}
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", t.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%q is a directory", t.Path)
		}
	}

	db, err := sql.Open(driver, t.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s at %q: %w", t.Dialect, t.Display, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %q: %w", t.Display, err)
	}
	return &Catalog{db: db, dialect: t.Dialect}, nil
}

// New wraps an existing handle. The caller keeps ownership of db until Close.
func New(db *sql.DB, dialect Dialect) *Catalog {
	return &Catalog{db: db, dialect: dialect}
}

// Close closes the underlying handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Tables returns the user table names in ascending order.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	var q string
	switch c.dialect {
	case Postgres:
		q = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	default:
		q = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	}

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table rows: %w", err)
	}
	return tables, nil
}

// Columns returns the column definitions of table in declaration order.
func (c *Catalog) Columns(ctx context.Context, table string) ([]Column, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch c.dialect {
	case Postgres:
		rows, err = c.db.QueryContext(ctx, `
			SELECT c.column_name, c.data_type, c.is_nullable = 'NO',
				EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage k
						ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
					WHERE tc.constraint_type = 'PRIMARY KEY'
						AND tc.table_schema = c.table_schema
						AND tc.table_name = c.table_name
						AND k.column_name = c.column_name
				)
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = $1
			ORDER BY c.ordinal_position`, table)
	default:
		rows, err = c.db.QueryContext(ctx,
			`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	}
	if err != nil {
		return nil, fmt.Errorf("querying columns of %q: %w", table, err)
	}
	defer rows.Close()

	cols := []Column{}
	for rows.Next() {
		col, err := c.scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning column of %q: %w", table, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns of %q: %w", table, err)
	}
	return cols, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (c *Catalog) scanColumn(row scanner) (Column, error) {
	var col Column
	if c.dialect == Postgres {
		err := row.Scan(&col.Name, &col.Type, &col.NotNull, &col.Primary)
		return col, err
	}
	var notNull, pk int
	if err := row.Scan(&col.Name, &col.Type, &notNull, &pk); err != nil {
		return col, err
	}
	col.NotNull = notNull != 0
	col.Primary = pk > 0
	return col, nil
}

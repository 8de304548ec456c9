package checker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hazz-dev/shipcheck/internal/catalog"
	"github.com/hazz-dev/shipcheck/internal/config"
)

// TableSource is the catalog access the schema checker needs.
type TableSource interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]catalog.Column, error)
	Close() error
}

// Opener connects to a parsed database target.
type Opener func(ctx context.Context, t catalog.Target) (TableSource, error)

// TableStatus records whether one required table exists.
type TableStatus struct {
	Table string `json:"table"`
	Found bool   `json:"found"`
}

type schemaChecker struct {
	db   config.Database
	open Opener
}

// NewSchemaChecker checks that the configured database holds every required table.
func NewSchemaChecker(db config.Database) Checker {
	return &schemaChecker{db: db, open: openCatalog}
}

// NewSchemaCheckerWithOpener creates a schema checker with a custom opener (for testing).
func NewSchemaCheckerWithOpener(db config.Database, open Opener) Checker {
	return &schemaChecker{db: db, open: open}
}

func openCatalog(ctx context.Context, t catalog.Target) (TableSource, error) {
	return catalog.Open(ctx, t)
}

func (c *schemaChecker) Name() string { return NameDatabaseSchema }

func (c *schemaChecker) Check(ctx context.Context) CheckResult {
	result, start := begin(NameDatabaseSchema)

	fail := func(status Status, summary string, err error) CheckResult {
		result.Status = status
		result.Summary = summary
		result.Details["error"] = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	target, err := catalog.ParseTarget(c.db.Path)
	if err != nil {
		result.Details["database_path"] = c.db.Path
		return fail(StatusError, "invalid database path", err)
	}
	result.Details["database_path"] = target.Display
	result.Details["driver"] = string(target.Dialect)
	result.Details["required_tables"] = c.db.RequiredTables

	src, err := c.open(ctx, target)
	if errors.Is(err, catalog.ErrNotFound) {
		return fail(StatusFail, fmt.Sprintf("Database file %s not found", target.Display), err)
	}
	if err != nil {
		return fail(StatusError, "cannot connect to database", err)
	}
	defer src.Close()

	if target.Dialect == catalog.SQLite {
		if info, err := os.Stat(target.Path); err == nil {
			result.Details["database_size_bytes"] = info.Size()
		}
	}

	existing, err := src.Tables(ctx)
	if err != nil {
		return fail(StatusError, "cannot read table catalog", err)
	}
	result.Details["existing_tables"] = existing
	result.Details["total_tables_found"] = len(existing)
	result.Details["total_tables_required"] = len(c.db.RequiredTables)

	// Column listings are supporting evidence; a failure is recorded without
	// changing the verdict, which rests on table presence alone.
	columns := make(map[string][]catalog.Column, len(existing))
	for _, table := range existing {
		cols, err := src.Columns(ctx, table)
		if err != nil {
			result.Details["table_columns_error"] = err.Error()
			break
		}
		columns[table] = cols
	}
	result.Details["table_columns"] = columns

	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}
	tables := make([]TableStatus, 0, len(c.db.RequiredTables))
	missing := []string{}
	for _, t := range c.db.RequiredTables {
		tables = append(tables, TableStatus{Table: t, Found: have[t]})
		if !have[t] {
			missing = append(missing, t)
		}
	}
	result.Details["tables"] = tables
	result.Details["missing_tables"] = missing

	if len(missing) > 0 {
		result.Status = StatusFail
		result.Summary = fmt.Sprintf("Missing %d required tables: %v", len(missing), missing)
	} else {
		result.Status = StatusPass
		result.Summary = fmt.Sprintf("All %d required tables found", len(c.db.RequiredTables))
	}
	result.Duration = time.Since(start)
	return result
}

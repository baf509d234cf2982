// Package sqlite serves page datasets from SQLite tables through the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/provider"
	"github.com/spektr-org/dashspec/schema"
)

// Provider reads one table per page. It is safe for concurrent use.
type Provider struct {
	db     *sql.DB
	tables provider.Tables
	schema schema.FieldSchema
}

var _ engine.Provider = (*Provider)(nil)

// Open connects to the database at dsn ("shop.db", "file:shop.db?mode=ro").
// Cells are typed by fs; columns it does not declare keep their driver
// type. A database that cannot be reached is engine.ErrProviderUnavailable.
func Open(ctx context.Context, dsn string, fs schema.FieldSchema, tables provider.Tables) (*Provider, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w: %w", engine.ErrProviderUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w: %w", engine.ErrProviderUnavailable, err)
	}
	return &Provider{db: db, tables: tables, schema: fs}, nil
}

// DB exposes the underlying handle.
func (p *Provider) DB() *sql.DB { return p.db }

// Close releases the database.
func (p *Provider) Close() error { return p.db.Close() }

// Resolve loads every row of the page's table.
func (p *Provider) Resolve(ctx context.Context, page string) (engine.Dataset, error) {
	table, err := p.tables.Table(page)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	rows, err := p.db.QueryContext(ctx, "SELECT * FROM "+quote(table))
	if err != nil {
		return nil, p.classify(table, err)
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, p.classify(table, err)
	}
	var data [][]any
	for rows.Next() {
		row := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for j := range row {
			ptrs[j] = &row[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", table, err)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, p.classify(table, err)
	}

	view, err := provider.Build(fields, data, p.schema)
	if err != nil {
		return nil, err
	}
	logger.Debug("sqlite: page %s: %d rows from %s in %s", page, view.Len(), table, time.Since(start))
	return view, nil
}

// Metadata names the table serving the page.
func (p *Provider) Metadata(_ context.Context, page string) (map[string]any, error) {
	table, err := p.tables.Table(page)
	if err != nil {
		return nil, err
	}
	return provider.Metadata("sqlite", table), nil
}

// classify separates a lost database (fatal for the run) from a failing
// query (fatal for the page only).
func (p *Provider) classify(table string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("sqlite: %s: %w: %w", table, engine.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("sqlite: %s: %w", table, err)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

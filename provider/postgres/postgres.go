// Package postgres serves page datasets from Postgres tables or views
// through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/provider"
	"github.com/spektr-org/dashspec/schema"
)

// Provider reads one table per page. It is safe for concurrent use.
type Provider struct {
	pool   *pgxpool.Pool
	tables provider.Tables
	schema schema.FieldSchema
}

var _ engine.Provider = (*Provider)(nil)

// Open creates a pool for dsn and checks the server is reachable. An
// unreachable server is engine.ErrProviderUnavailable.
func Open(ctx context.Context, dsn string, fs schema.FieldSchema, tables provider.Tables) (*Provider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w: %w", engine.ErrProviderUnavailable, err)
	}
	return &Provider{pool: pool, tables: tables, schema: fs}, nil
}

// Close releases the pool.
func (p *Provider) Close() { p.pool.Close() }

// Resolve loads every row of the page's table. Table names may be schema
// qualified ("reporting.orders").
func (p *Provider) Resolve(ctx context.Context, page string) (engine.Dataset, error) {
	table, err := p.tables.Table(page)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	rows, err := p.pool.Query(ctx, "SELECT * FROM "+Ident(table))
	if err != nil {
		return nil, classify(table, err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	fields := make([]string, len(descs))
	for j, d := range descs {
		fields[j] = d.Name
	}
	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: %w", table, err)
		}
		for j, v := range vals {
			vals[j] = value(v)
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(table, err)
	}

	view, err := provider.Build(fields, data, p.schema)
	if err != nil {
		return nil, err
	}
	logger.Debug("postgres: page %s: %d rows from %s in %s", page, view.Len(), table, time.Since(start))
	return view, nil
}

// Metadata names the table serving the page.
func (p *Provider) Metadata(_ context.Context, page string) (map[string]any, error) {
	table, err := p.tables.Table(page)
	if err != nil {
		return nil, err
	}
	return provider.Metadata("postgres", table), nil
}

// classify separates errors the server reported about the query (fatal for
// the page) from connection failures (fatal for the run).
func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %s: %w", table, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("postgres: %s: %w: %w", table, engine.ErrProviderUnavailable, err)
}

// value turns pgx decoded values the engine has no cell type for into
// ones it has.
func value(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		return (time.Duration(x.Microseconds) * time.Microsecond).String()
	case pgtype.Interval:
		if !x.Valid {
			return nil
		}
		return fmt.Sprintf("%dmon %dd %s", x.Months, x.Days, time.Duration(x.Microseconds)*time.Microsecond)
	}
	return v
}

// Ident quotes a possibly schema-qualified identifier.
func Ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

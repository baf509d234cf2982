package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/provider"
	"github.com/spektr-org/dashspec/schema"
)

func openShop(t *testing.T) *Provider {
	t.Helper()
	ctx := context.Background()
	fs, err := schema.New("orders", "1", []schema.Field{
		{Name: "order_id", Type: schema.TypeString},
		{Name: "amount", Type: schema.TypeFloat},
		{Name: "refunded", Type: schema.TypeBoolean},
		{Name: "ordered_at", Type: schema.TypeDatetime},
	})
	require.NoError(t, err)

	tables := func(page string) string {
		if page == "ghost" {
			return "no_such_table"
		}
		return "orders"
	}
	p, err := Open(ctx, filepath.Join(t.TempDir(), "shop.db"), fs, tables)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	_, err = p.DB().ExecContext(ctx, `CREATE TABLE orders (
		order_id TEXT, amount REAL, refunded INTEGER, ordered_at TEXT, note TEXT)`)
	require.NoError(t, err)
	_, err = p.DB().ExecContext(ctx, `INSERT INTO orders VALUES
		('o1', 10.5, 0, '2024-01-02', 'a'),
		('o2', NULL, 1, '2024-01-03', NULL),
		('o3', 4, 0, NULL, 'c')`)
	require.NoError(t, err)
	return p
}

func TestResolve(t *testing.T) {
	p := openShop(t)
	ds, err := p.Resolve(context.Background(), "overview")
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"order_id", "amount", "refunded", "ordered_at", "note"}, ds.Fields())
	assert.Equal(t, "o2", ds.Value(1, "order_id"))
	assert.Nil(t, ds.Value(1, "amount"))
	assert.Equal(t, 4.0, ds.Value(2, "amount"))
	assert.Equal(t, true, ds.Value(1, "refunded"))
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), ds.Value(1, "ordered_at"))
	assert.Equal(t, "c", ds.Value(2, "note"), "undeclared column kept")

	total, err := engine.Aggregate(ds, "amount", ir.AggSum)
	require.NoError(t, err)
	assert.Equal(t, engine.Some(14.5), total)

	meta, err := p.Metadata(context.Background(), "overview")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "sqlite", "table": "orders"}, meta)
}

func TestResolveErrors(t *testing.T) {
	p := openShop(t)

	_, err := p.Resolve(context.Background(), "ghost")
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrProviderUnavailable, "missing table fails the page only")

	require.NoError(t, p.Close())
	_, err = p.Resolve(context.Background(), "overview")
	assert.ErrorIs(t, err, engine.ErrProviderUnavailable)
}

func TestNoTableConfigured(t *testing.T) {
	p, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), schema.FieldSchema{}, provider.Single(""))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Resolve(context.Background(), "any")
	assert.Error(t, err)

	_, err = Open(context.Background(), " ", schema.FieldSchema{}, nil)
	assert.Error(t, err)
}

func TestExecuteOverSQLite(t *testing.T) {
	p := openShop(t)
	d := &ir.Dashboard{ID: "shop", Pages: []ir.Page{
		{ID: "overview", Metrics: []ir.Metric{{ID: "n", Aggregation: ir.AggCount}}},
		{ID: "ghost", Metrics: []ir.Metric{{ID: "n", Aggregation: ir.AggCount}}},
	}}

	res, err := engine.Execute(context.Background(), d, nil, p)
	require.NoError(t, err)
	assert.Equal(t, engine.Some(3), res.Pages[0].Metrics["n"])
	require.NotNil(t, res.Pages[1].Error)
	assert.Equal(t, engine.StageResolve, res.Pages[1].Error.Stage)
}

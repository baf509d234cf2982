package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[registry]
paths = ["a.toml", "b.toml"]

[engine]
workers = 4

[metrics]
backend = "Prometheus"
textfile = "out.prom"

[log]
verbose = true

[data]
kind = "sqlite"
path = "shop.db"
table = "orders"

[data.page_tables]
refunds = "refunds_view"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.toml", "b.toml"}, c.Registry.Paths)
	assert.Equal(t, 4, c.Engine.Workers)
	assert.Equal(t, BackendPrometheus, c.Metrics.Backend)
	assert.Equal(t, "out.prom", c.Metrics.Textfile)
	assert.True(t, c.Log.Verbose)
	assert.Equal(t, DataSQLite, c.Data.Kind)
	assert.Equal(t, "refunds_view", c.Data.TableFor("refunds"))
	assert.Equal(t, "orders", c.Data.TableFor("overview"))
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, BackendNone, c.Metrics.Backend)
	assert.Equal(t, DataCSV, c.Data.Kind)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "[engine]\nthreads = 2\n"},
		{"negative workers", "[engine]\nworkers = -1\n"},
		{"unknown backend", "[metrics]\nbackend = \"statsd\"\n"},
		{"unknown data kind", "[data]\nkind = \"mongo\"\n"},
		{"postgres without dsn", "[data]\nkind = \"postgres\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("[engine\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashspec.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Engine.Workers)

	t.Setenv(EnvVar, path)
	c, err = Load("")
	require.NoError(t, err)
	assert.True(t, c.Log.Verbose)

	t.Setenv(EnvVar, "")
	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	b, err := Marshal(c)
	require.NoError(t, err)
	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

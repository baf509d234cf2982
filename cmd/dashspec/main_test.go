package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec"
	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/metrics"
	"github.com/spektr-org/dashspec/provider"
	"github.com/spektr-org/dashspec/provider/sqlite"
	"github.com/spektr-org/dashspec/schema"
)

const salesSpec = `
dsl_version: "1.2"
dashboard:
  id: sales
  title: Sales
  data_source:
    schema:
      amount: float
      region: category
  pages:
    - id: overview
      filters:
        - {id: region, field: region, kind: categorical}
      metrics:
        - {id: total, field: amount, aggregation: sum}
        - {id: orders, aggregation: count}
`

const salesCSV = `Amount,Region
10,north
20,south
5,north
`

// execute runs the root command with args and returns what it printed.
// Flag variables are package state, so they are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose = "", false
	validateJSON, validateWatch, validateRegistry = false, false, nil
	buildOut, buildRegistry = "", nil
	runData, runInputs, runJSON, runSlices, runRegistry = "", nil, false, true, nil
	discoverName, discoverVersion, discoverSample, discoverOut, discoverJSON = "dataset", "1", 1000, "", false
	inspectColumn, inspectHead, inspectJSON = "", 5, false
	t.Setenv("DASHSPEC_CONFIG", "")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-1.0.0"
	defer func() { version = original }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dashspec version test-1.0.0")
}

func TestValidateClean(t *testing.T) {
	out, err := execute(t, "validate", writeFile(t, "sales.yaml", salesSpec))
	require.NoError(t, err)
	assert.Contains(t, out, "ok: no findings")
}

func TestValidatePrintsFindingsWithRepair(t *testing.T) {
	path := writeFile(t, "bad.yaml", salesSpec+`        - {id: avg, field: amonut, aggregation: mean}
`)
	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, dashspec.ErrInvalidSpec)
	assert.Equal(t, exitInvalidSpec, exitCode(err))

	assert.Contains(t, out, "CRITICAL INVALID_REFERENCE dashboard.pages[0].metrics[2].field")
	assert.Contains(t, out, "repair: replace 'amonut' with 'amount'")
}

func TestValidateWritesPrometheusTextfile(t *testing.T) {
	t.Cleanup(func() { metrics.SetBackend(nil) })
	textfile := filepath.Join(t.TempDir(), "dashspec.prom")
	cfgPath := writeFile(t, "dashspec.toml", fmt.Sprintf(`
[metrics]
backend = "prometheus"
textfile = %q
`, textfile))

	_, err := execute(t, "--config", cfgPath, "validate", writeFile(t, "sales.yaml", salesSpec))
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dashspec_step_total{dashboard="sales",status="success",step="build"} 1`)
}

func TestValidateJSON(t *testing.T) {
	path := writeFile(t, "bad.yaml", "dashboard: [unclosed")
	out, err := execute(t, "validate", "--json", path)
	require.Error(t, err)

	var rep validateReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.False(t, rep.Valid)
	assert.NotEmpty(t, rep.ParseError)
	assert.Empty(t, rep.Violations)
}

func TestBuildPrintsIR(t *testing.T) {
	out, err := execute(t, "build", writeFile(t, "sales.yaml", salesSpec))
	require.NoError(t, err)

	var ir map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ir))
	assert.Equal(t, "sales", ir["id"])
	assert.Len(t, ir["pages"], 1)
}

func TestRunCSV(t *testing.T) {
	specPath := writeFile(t, "sales.yaml", salesSpec)
	csvPath := writeFile(t, "sales.csv", salesCSV)

	out, err := execute(t, "run", specPath, "--data", csvPath, "--input", `region=["north"]`)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 3 rows")
	assert.Contains(t, out, "15.00")

	out, err = execute(t, "run", specPath, "--data", csvPath, "--json")
	require.NoError(t, err)
	var res struct {
		Pages []struct {
			Metrics map[string]any `json:"metrics"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Pages, 1)
	assert.Equal(t, 35.0, res.Pages[0].Metrics["total"])
}

func TestRunSQLiteFromConfig(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sales.db")
	fs, err := schema.FromMap("sales", "1", map[string]string{"amount": "float", "region": "category"})
	require.NoError(t, err)
	p, err := sqlite.Open(context.Background(), dbPath, fs, provider.Single("sales"))
	require.NoError(t, err)
	_, err = p.DB().Exec(`CREATE TABLE sales (amount REAL, region TEXT);
		INSERT INTO sales VALUES (1.5, 'north'), (2.5, 'south')`)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	cfgPath := writeFile(t, "dashspec.toml", fmt.Sprintf(`
[engine]
workers = 2

[data]
kind = "sqlite"
path = %q
table = "sales"
`, dbPath))

	out, err := execute(t, "--config", cfgPath, "run", writeFile(t, "sales.yaml", salesSpec))
	require.NoError(t, err)
	assert.Contains(t, out, "4.00")
	assert.Contains(t, out, "2 of 2 rows")
}

func TestRunMissingDataFile(t *testing.T) {
	_, err := execute(t, "run", writeFile(t, "sales.yaml", salesSpec))
	assert.ErrorContains(t, err, "no CSV file given")
}

func TestDiscoverRoundTrips(t *testing.T) {
	out, err := execute(t, "discover", "--name", "sales", "--version", "2", writeFile(t, "sales.csv", salesCSV))
	require.NoError(t, err)

	reg, err := schema.ParseRegistry([]byte(out))
	require.NoError(t, err)
	s, err := reg.Lookup("sales", "2")
	require.NoError(t, err)
	typ, ok := s.TypeOf("amount")
	require.True(t, ok)
	assert.True(t, typ.IsNumeric())
}

func TestInspectColumn(t *testing.T) {
	out, err := execute(t, "inspect", "--json", "--column", "amount", writeFile(t, "sales.csv", salesCSV))
	require.NoError(t, err)

	var info datasetInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 3, info.Rows)
	require.Len(t, info.Columns, 1)
	assert.Equal(t, 3, info.Columns[0].Unique)
	require.NotNil(t, info.Columns[0].Max)
	assert.Equal(t, engine.Some(20), *info.Columns[0].Max)
	assert.Len(t, info.Head, 3)

	_, err = execute(t, "inspect", "--column", "ghost", writeFile(t, "sales.csv", salesCSV))
	assert.Error(t, err)
}

func TestParseInputs(t *testing.T) {
	in, err := parseInputs([]string{`region=["north","south"]`, "refunded=false", "name=plain text", "when=null"})
	require.NoError(t, err)
	assert.Equal(t, []any{"north", "south"}, in["region"])
	assert.Equal(t, false, in["refunded"])
	assert.Equal(t, "plain text", in["name"])
	v, ok := in["when"]
	assert.True(t, ok)
	assert.Nil(t, v)

	_, err = parseInputs([]string{"=x"})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitInvalidSpec, exitCode(fmt.Errorf("x: %w", dashspec.ErrInvalidSpec)))
	assert.Equal(t, exitUnavailable, exitCode(fmt.Errorf("x: %w", engine.ErrProviderUnavailable)))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

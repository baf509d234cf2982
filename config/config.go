// Package config loads the dashspec TOML configuration file.
//
// Every section is optional. A missing file named by the DASHSPEC_CONFIG
// environment variable is an error; no file at all means defaults.
//
//	[registry]
//	paths = ["schemas/orders.toml"]
//
//	[engine]
//	workers = 4
//
//	[metrics]
//	backend = "prometheus"
//	textfile = "/var/lib/node_exporter/dashspec.prom"
//
//	[log]
//	verbose = true
//
//	[data]
//	kind = "sqlite"            # csv | sqlite | postgres
//	path = "shop.db"           # csv file or sqlite database
//	dsn = ""                   # postgres connection string
//	table = "orders"           # default table for every page
//	[data.page_tables]
//	refunds = "refunds_view"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvVar names the config file used when no path is given.
const EnvVar = "DASHSPEC_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Metrics backends.
const (
	BackendNone       = "none"
	BackendPrometheus = "prometheus"
)

// Data source kinds.
const (
	DataCSV      = "csv"
	DataSQLite   = "sqlite"
	DataPostgres = "postgres"
)

type Config struct {
	Registry Registry `toml:"registry"`
	Engine   Engine   `toml:"engine"`
	Metrics  Metrics  `toml:"metrics"`
	Log      Log      `toml:"log"`
	Data     Data     `toml:"data"`
}

type Registry struct {
	Paths []string `toml:"paths"`
}

type Engine struct {
	// Workers bounds concurrently executed pages; 0 means one per CPU.
	Workers int `toml:"workers"`
}

type Metrics struct {
	Backend  string `toml:"backend"`
	Textfile string `toml:"textfile"`
}

type Log struct {
	Verbose bool `toml:"verbose"`
}

type Data struct {
	Kind       string            `toml:"kind"`
	Path       string            `toml:"path"`
	DSN        string            `toml:"dsn"`
	Table      string            `toml:"table"`
	PageTables map[string]string `toml:"page_tables"`
}

// TableFor returns the table serving a page.
func (d Data) TableFor(page string) string {
	if t := d.PageTables[page]; t != "" {
		return t
	}
	return d.Table
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Metrics: Metrics{Backend: BackendNone},
		Data:    Data{Kind: DataCSV},
	}
}

// Parse decodes TOML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads path, or the file named by DASHSPEC_CONFIG when path is
// empty. With neither, it returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Marshal encodes c as TOML.
func Marshal(c Config) ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) normalize() {
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = BackendNone
	}
	c.Data.Kind = strings.ToLower(strings.TrimSpace(c.Data.Kind))
	if c.Data.Kind == "" {
		c.Data.Kind = DataCSV
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.Engine.Workers < 0 {
		return fmt.Errorf("%w: engine.workers must be >= 0, got %d", ErrInvalid, c.Engine.Workers)
	}
	switch c.Metrics.Backend {
	case BackendNone:
	case BackendPrometheus:
	default:
		return fmt.Errorf("%w: unknown metrics.backend %q", ErrInvalid, c.Metrics.Backend)
	}
	switch c.Data.Kind {
	case DataCSV, DataSQLite:
	case DataPostgres:
		if c.Data.DSN == "" {
			return fmt.Errorf("%w: data.dsn is required for postgres", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown data.kind %q", ErrInvalid, c.Data.Kind)
	}
	return nil
}

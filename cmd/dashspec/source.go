package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spektr-org/dashspec/config"
	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/helpers"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/provider"
	"github.com/spektr-org/dashspec/provider/postgres"
	"github.com/spektr-org/dashspec/provider/sqlite"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// DATA SOURCES: engine.Provider selection from [data] config
// ============================================================================

// openProvider builds the provider configured in data. The returned close
// function must be called when execution is done.
func openProvider(ctx context.Context, data config.Data, fs schema.FieldSchema) (engine.Provider, func(), error) {
	tables := provider.Tables(data.TableFor)
	switch data.Kind {
	case config.DataSQLite:
		p, err := sqlite.Open(ctx, data.Path, fs, tables)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	case config.DataPostgres:
		p, err := postgres.Open(ctx, data.DSN, fs, tables)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case config.DataCSV, "":
		if data.Path == "" && len(data.PageTables) == 0 {
			return nil, nil, fmt.Errorf("no CSV file given: use --data or [data] path")
		}
		return newCSVSource(data, fs), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown data kind %q", data.Kind)
}

// csvSource serves pages from CSV files. [data] path is the file of every
// page; [data.page_tables] maps single pages to their own files. Each file
// is parsed once, however many pages read it concurrently.
type csvSource struct {
	data   config.Data
	schema schema.FieldSchema

	group  singleflight.Group
	mu     sync.Mutex
	loaded map[string]*engine.TableView
}

func newCSVSource(data config.Data, fs schema.FieldSchema) *csvSource {
	return &csvSource{data: data, schema: fs, loaded: make(map[string]*engine.TableView)}
}

func (s *csvSource) file(page string) string {
	if f := s.data.PageTables[page]; f != "" {
		return f
	}
	return s.data.Path
}

func (s *csvSource) Resolve(ctx context.Context, page string) (engine.Dataset, error) {
	path := s.file(page)
	if path == "" {
		return nil, fmt.Errorf("csv: no file configured for page %q", page)
	}
	s.mu.Lock()
	view, ok := s.loaded[path]
	s.mu.Unlock()
	if ok {
		return view, nil
	}

	ch := s.group.DoChan(path, func() (any, error) {
		return s.load(path)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*engine.TableView), nil
	}
}

func (s *csvSource) load(path string) (*engine.TableView, error) {
	start := time.Now()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	view, err := helpers.ParseCSV(raw, s.schema)
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", path, err)
	}
	s.mu.Lock()
	s.loaded[path] = view
	s.mu.Unlock()
	logger.Debug("csv: %s: %d rows in %s", path, view.Len(), time.Since(start))
	return view, nil
}

func (s *csvSource) Metadata(_ context.Context, page string) (map[string]any, error) {
	return map[string]any{"source": "csv", "path": s.file(page)}, nil
}

package helpers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// CSV HELPER: Parses CSV data into an engine.TableView
// ============================================================================
// Consumer reads the CSV from wherever it lives (file, S3, Sheets).
// This helper converts the raw bytes into typed cells using the schema.
// Headers are mapped to field names the way schema discovery names them.
// ============================================================================

// ParseCSV parses CSV bytes into a view holding the schema's fields, in
// schema order. Header columns the schema does not declare are skipped;
// declared fields missing from the header are left out of the view.
//
// Null tokens ("", "NULL", "N/A", ...) become null. A cell that does not
// parse as its declared type is kept as text, so numeric aggregation over it
// fails loudly instead of silently dropping it.
func ParseCSV(data []byte, fs schema.FieldSchema) (*engine.TableView, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	// Build column index → field mapping
	position := make(map[string]int, len(headers))
	for i, h := range headers {
		key := schema.FieldKey(h)
		if _, dup := position[key]; !dup {
			position[key] = i
		}
	}
	var fields []string
	var types []schema.FieldType
	var index []int
	for _, f := range fs.Fields() {
		i, ok := position[f.Name]
		if !ok {
			logger.Debug("csv: schema field %q has no column", f.Name)
			continue
		}
		fields = append(fields, f.Name)
		types = append(types, f.Type)
		index = append(index, i)
	}

	// Read rows
	columns := make([][]any, len(fields))
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("csv: skipping malformed row %d: %v", line, err)
			continue
		}
		for j, i := range index {
			var raw string
			if i < len(row) {
				raw = row[i]
			}
			columns[j] = append(columns[j], Cell(raw, types[j]))
		}
	}

	for j := range columns {
		if columns[j] == nil {
			columns[j] = []any{}
		}
	}
	return engine.NewTableView(fields, columns...)
}

// ParseCSVAuto discovers a schema from the data and parses with it.
// Consumers can use this for quick demos before writing a schema.
func ParseCSVAuto(data []byte) (*engine.TableView, schema.FieldSchema, error) {
	d, err := schema.DiscoverFromCSV(data)
	if err != nil {
		return nil, schema.FieldSchema{}, err
	}
	v, err := ParseCSV(data, d.Schema)
	if err != nil {
		return nil, schema.FieldSchema{}, err
	}
	return v, d.Schema, nil
}

// Cell converts one raw CSV value to a cell of the given type.
func Cell(raw string, t schema.FieldType) any {
	s := strings.TrimSpace(raw)
	if schema.IsNullToken(s) {
		return nil
	}
	switch t {
	case schema.TypeInteger, schema.TypeFloat:
		if f, ok := schema.ParseNumber(s); ok {
			return f
		}
	case schema.TypeBoolean:
		if b, ok := schema.ParseBool(s); ok {
			return b
		}
	case schema.TypeDatetime:
		if ts, ok := schema.ParseTime(s); ok {
			return ts
		}
	default:
		return s
	}
	return s
}

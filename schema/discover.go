package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ============================================================================
// AUTO-DISCOVERY: Heuristic field typing from raw CSV
// ============================================================================
// Inspects a CSV sample and proposes a FieldSchema. Used by the CLI to
// bootstrap a registry entry for a new data source; the result is a
// suggestion and is expected to be reviewed before it is registered.
//
// Classification pipeline per column:
//   1. Sample values → detect shape (numeric, date, bool, string)
//   2. Numeric + decimals → float, otherwise integer
//   3. String + low cardinality → category, otherwise string
//   4. Profile nulls, uniques and samples for inspection output
// ============================================================================

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize int    // Max rows to inspect (0 = all, capped). Default: 1000
	Name       string // Data source name (default "dataset")
	Version    string // Schema version (default "1")
	KeepKeys   bool   // Keep header names as-is instead of snake_casing
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		SampleSize: 1000,
		Name:       "dataset",
		Version:    "1",
	}
}

// ColumnProfile summarizes one column of a discovered CSV.
type ColumnProfile struct {
	Header      string    `json:"header"`
	Field       string    `json:"field"`
	Type        FieldType `json:"type"`
	Rows        int       `json:"rows"`
	Nulls       int       `json:"nulls"`
	Unique      int       `json:"unique"`
	Cardinality string    `json:"cardinality"` // "low", "medium", "high"
	Samples     []string  `json:"samples,omitempty"`
}

// Discovery is the output of DiscoverFromCSV.
type Discovery struct {
	Schema       FieldSchema     `json:"-"`
	Columns      []ColumnProfile `json:"columns"`
	SampledRows  int             `json:"sampledRows"`
	DiscoveredAt string          `json:"discoveredAt"`
}

// DiscoverFromCSV proposes a FieldSchema by inspecting CSV data.
func DiscoverFromCSV(data []byte, opts ...DiscoverOptions) (*Discovery, error) {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
		if opt.Name == "" {
			opt.Name = "dataset"
		}
		if opt.Version == "" {
			opt.Version = "1"
		}
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	// 1. Read headers
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("CSV has no columns")
	}

	// 2. Read sample rows
	var rows [][]string
	limit := opt.SampleSize
	if limit <= 0 {
		limit = 100000 // safety cap
	}
	for i := 0; i < limit; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV has no data rows")
	}

	// 3. Analyze each column
	fields := make([]Field, 0, len(headers))
	profiles := make([]ColumnProfile, 0, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, header := range headers {
		col := analyzeColumn(header, i, rows)
		key := col.key
		if opt.KeepKeys {
			key = strings.TrimSpace(header)
		}
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		for base, n := key, 2; seen[key]; n++ {
			key = fmt.Sprintf("%s_%d", base, n)
		}
		seen[key] = true

		fields = append(fields, Field{Name: key, Type: col.fieldType})
		profiles = append(profiles, ColumnProfile{
			Header:      header,
			Field:       key,
			Type:        col.fieldType,
			Rows:        len(rows),
			Nulls:       col.nullCount,
			Unique:      col.uniqueCount,
			Cardinality: col.cardinalityHint,
			Samples:     col.sampleVals,
		})
	}

	s, err := New(opt.Name, opt.Version, fields)
	if err != nil {
		return nil, err
	}
	return &Discovery{
		Schema:       s,
		Columns:      profiles,
		SampledRows:  len(rows),
		DiscoveredAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ============================================================================
// COLUMN ANALYSIS
// ============================================================================

type columnShape int

const (
	shapeString columnShape = iota
	shapeNumeric
	shapeDate
	shapeBool
)

type columnAnalysis struct {
	key       string
	shape     columnShape
	fieldType FieldType

	uniqueCount     int
	nullCount       int
	hasDecimals     bool
	sampleVals      []string
	cardinalityHint string
}

// analyzeColumn inspects all values in a column and classifies it.
func analyzeColumn(header string, index int, rows [][]string) columnAnalysis {
	col := columnAnalysis{key: toSnakeCase(header)}

	values := make([]string, 0, len(rows))
	uniqueSet := make(map[string]bool)
	for _, row := range rows {
		if index >= len(row) {
			col.nullCount++
			continue
		}
		val := strings.TrimSpace(row[index])
		if IsNullToken(val) {
			col.nullCount++
			continue
		}
		values = append(values, val)
		uniqueSet[val] = true
	}
	col.uniqueCount = len(uniqueSet)
	col.sampleVals = collectSamples(uniqueSet, 10)

	switch {
	case col.uniqueCount <= 10:
		col.cardinalityHint = "low"
	case col.uniqueCount <= 100:
		col.cardinalityHint = "medium"
	default:
		col.cardinalityHint = "high"
	}

	if len(values) == 0 {
		col.fieldType = TypeString
		return col
	}

	col.shape = detectShape(values)
	if col.shape == shapeNumeric {
		for _, v := range values {
			if strings.ContainsAny(v, ".eE") {
				col.hasDecimals = true
				break
			}
		}
	}
	col.fieldType = col.classify(len(values))
	return col
}

// classify maps the detected shape onto a declared field type.
func (col *columnAnalysis) classify(nonNull int) FieldType {
	switch col.shape {
	case shapeNumeric:
		if col.hasDecimals {
			return TypeFloat
		}
		return TypeInteger
	case shapeDate:
		return TypeDatetime
	case shapeBool:
		return TypeBoolean
	default:
		// Ratio-based: few unique values relative to rows → category.
		// Absolute < 20 alone fails on small samples where 6/12 is really 50%.
		ratio := float64(col.uniqueCount) / float64(nonNull)
		if col.uniqueCount < 20 && ratio < 0.5 {
			return TypeCategory
		}
		return TypeString
	}
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectShape inspects values to determine column shape.
// Requires 80%+ of non-null values to match for numeric/date/bool.
func detectShape(values []string) columnShape {
	numCount, dateCount, boolCount := 0, 0, 0
	for _, v := range values {
		if isNumeric(v) {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if isBool(v) {
			boolCount++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}
	if boolCount >= threshold {
		return shapeBool
	}
	if numCount >= threshold {
		return shapeNumeric
	}
	if dateCount >= threshold {
		return shapeDate
	}
	return shapeString
}

// IsNullToken reports whether a raw cell value denotes a missing value.
func IsNullToken(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "NULL", "N/A", "n/a", "NaN", "nan", "None":
		return true
	}
	return false
}

func isNumeric(s string) bool {
	_, ok := ParseNumber(s)
	return ok
}

// ParseNumber parses a numeric cell, tolerating thousands separators and a
// leading currency symbol.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "") // handle "1,234.56"
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimPrefix(s, "£")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"Jan-2006",
	"January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseTime parses a datetime cell in any of the recognized layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDate(s string) bool {
	_, ok := ParseTime(s)
	return ok
}

func isBool(s string) bool {
	_, ok := ParseBool(s)
	return ok
}

// ParseBool accepts true/false, yes/no and 1/0 in any case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "t", "1":
		return true, true
	case "false", "no", "n", "f", "0":
		return false, true
	}
	return false, false
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// FieldKey returns the field name discovery derives from a CSV header.
func FieldKey(header string) string { return toSnakeCase(header) }

// toSnakeCase converts "Column Name" or "columnName" → "column_name".
func toSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}

	s = strings.ToLower(result.String())
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}
	sort.Strings(samples)
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}

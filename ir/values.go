package ir

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spektr-org/dashspec/schema"
)

// ErrFilterValue reports a filter default or runtime input that does not fit
// the filter's kind.
var ErrFilterValue = errors.New("ir: invalid filter value")

// FilterValue is a typed filter argument. Exactly the member matching Kind
// is meaningful.
//
//	range:       Min/Max, either may be nil (unbounded); bounds are inclusive
//	categorical: Values, compared case-insensitively
//	boolean:     Bool
//
// Datetime bounds are stored as Unix seconds (see TimeValue).
type FilterValue struct {
	Kind   FilterKind `json:"kind"`
	Min    *float64   `json:"min,omitempty"`
	Max    *float64   `json:"max,omitempty"`
	Values []string   `json:"values,omitempty"`
	Bool   *bool      `json:"bool,omitempty"`
}

// TimeValue maps a time onto the numeric axis range filters compare on.
func TimeValue(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// ParseFilterValue converts a raw document or runtime value into a typed
// FilterValue. A nil raw value yields (nil, nil): no filter.
func ParseFilterValue(kind FilterKind, fieldType schema.FieldType, raw any) (*FilterValue, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case FilterRange:
		return parseRange(fieldType, raw)
	case FilterCategorical:
		return parseCategorical(raw)
	case FilterBoolean:
		b, ok := ParseBoolInput(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a boolean", ErrFilterValue, raw)
		}
		return &FilterValue{Kind: FilterBoolean, Bool: &b}, nil
	}
	return nil, fmt.Errorf("%w: unknown filter kind %q", ErrFilterValue, kind)
}

func parseRange(fieldType schema.FieldType, raw any) (*FilterValue, error) {
	fv := &FilterValue{Kind: FilterRange}
	var lo, hi any
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: range needs [low, high], got %d values", ErrFilterValue, len(v))
		}
		lo, hi = v[0], v[1]
	case []float64:
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: range needs [low, high], got %d values", ErrFilterValue, len(v))
		}
		lo, hi = v[0], v[1]
	case map[string]any:
		lo, hi = firstOf(v, "min", "low", "from"), firstOf(v, "max", "high", "to")
	default:
		// A single value selects exactly that value.
		lo, hi = raw, raw
	}

	var err error
	if fv.Min, err = parseBound(fieldType, lo); err != nil {
		return nil, err
	}
	if fv.Max, err = parseBound(fieldType, hi); err != nil {
		return nil, err
	}
	if fv.Min != nil && fv.Max != nil && *fv.Min > *fv.Max {
		return nil, fmt.Errorf("%w: range low %v exceeds high %v", ErrFilterValue, *fv.Min, *fv.Max)
	}
	return fv, nil
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func parseBound(fieldType schema.FieldType, raw any) (*float64, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case time.Time:
		f = TimeValue(v)
	case string:
		if fieldType == schema.TypeDatetime {
			t, ok := schema.ParseTime(v)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a datetime", ErrFilterValue, v)
			}
			f = TimeValue(t)
			break
		}
		n, ok := schema.ParseNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a number", ErrFilterValue, v)
		}
		f = n
	default:
		return nil, fmt.Errorf("%w: unsupported range bound %v", ErrFilterValue, raw)
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN range bound", ErrFilterValue)
	}
	return &f, nil
}

func parseCategorical(raw any) (*FilterValue, error) {
	fv := &FilterValue{Kind: FilterCategorical, Values: []string{}}
	switch v := raw.(type) {
	case []any:
		for _, x := range v {
			if x == nil {
				continue
			}
			s, ok := scalarText(x)
			if !ok {
				return nil, fmt.Errorf("%w: category %v is not a scalar", ErrFilterValue, x)
			}
			fv.Values = append(fv.Values, s)
		}
	case []string:
		fv.Values = append(fv.Values, v...)
	default:
		s, ok := scalarText(raw)
		if !ok {
			return nil, fmt.Errorf("%w: category %v is not a scalar", ErrFilterValue, raw)
		}
		fv.Values = append(fv.Values, s)
	}
	return fv, nil
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

// ParseBoolInput accepts a bool, the numbers 0 and 1, or a boolean word.
func ParseBoolInput(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case int:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case string:
		return schema.ParseBool(v)
	}
	return false, false
}

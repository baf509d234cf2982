package engine

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/spektr-org/dashspec/ir"
)

// cellText renders a cell for labels and case-folded comparison.
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	}
	return ""
}

// cellFloat returns the numeric value of a cell. Only float64 cells are
// numeric.
func cellFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// sameCell compares two cells exactly.
func sameCell(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case nil:
		return b == nil
	}
	return a == b
}

// Cell type tags keep "1" (string) and 1 (number) apart in row hashes.
const (
	tagNull byte = iota
	tagFloat
	tagString
	tagBool
	tagTime
)

// rowHasher hashes the canonical bytes of a sequence of cells. The buffer
// is reused across rows.
type rowHasher struct {
	buf []byte
}

func newRowHasher() *rowHasher {
	return &rowHasher{buf: make([]byte, 0, 64)}
}

func (r *rowHasher) sum(ds Dataset, i int, fields []string) uint64 {
	r.buf = r.buf[:0]
	for _, f := range fields {
		r.buf = appendCell(r.buf, ds.Value(i, f))
	}
	return xxh3.Hash(r.buf)
}

func appendCell(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(b, tagNull)
	case float64:
		if x == 0 {
			x = 0 // -0 and +0 hash alike
		}
		b = append(b, tagFloat)
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	case string:
		b = append(b, tagString)
		b = binary.LittleEndian.AppendUint64(b, uint64(len(x)))
		return append(b, x...)
	case bool:
		if x {
			return append(b, tagBool, 1)
		}
		return append(b, tagBool, 0)
	case time.Time:
		b = append(b, tagTime)
		return binary.LittleEndian.AppendUint64(b, uint64(x.UnixNano()))
	}
	return b
}

// sameRow compares the key cells of two rows exactly.
func sameRow(ds Dataset, i, j int, fields []string) bool {
	for _, f := range fields {
		if !sameCell(ds.Value(i, f), ds.Value(j, f)) {
			return false
		}
	}
	return true
}

// timeOf maps a time cell onto the numeric axis range filters use.
func timeOf(v any) (float64, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	return ir.TimeValue(t), true
}

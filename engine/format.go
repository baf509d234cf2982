package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spektr-org/dashspec/ir"
)

// ============================================================================
// FORMATTING: display strings for metric values
// ============================================================================

// NullDisplay is how a null Number is shown.
const NullDisplay = "n/a"

// FormatNumber renders n according to f. A nil format renders with two
// decimals and no grouping. Percent values are taken as already scaled.
func FormatNumber(n Number, f *ir.Format) string {
	if !n.Valid {
		return NullDisplay
	}
	if f == nil {
		return strconv.FormatFloat(n.Value, 'f', 2, 64)
	}

	body := formatDecimal(math.Abs(n.Value), f.Precision, f.Thousands)
	switch f.Type {
	case "currency":
		if f.Currency != "" {
			body = f.Currency + " " + body
		}
	case "percent":
		body += "%"
	}
	body = f.Prefix + body + f.Suffix
	if n.Value < 0 && body != "" && formatDecimal(math.Abs(n.Value), f.Precision, false) != zeroAt(f.Precision) {
		body = "-" + body
	}
	return body
}

// FormatCurrency formats an amount with currency prefix and comma separators.
func FormatCurrency(amount float64, currency string) string {
	return FormatNumber(Some(amount), &ir.Format{Type: "currency", Precision: 2, Thousands: true, Currency: currency})
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", FormatInt(n/1000), n%1000)
}

func formatDecimal(v float64, precision int, thousands bool) string {
	if precision < 0 {
		precision = 0
	}
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if !thousands {
		return s
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}
	if len(intPart) <= 3 {
		return s
	}
	var parts []string
	for len(intPart) > 3 {
		parts = append([]string{intPart[len(intPart)-3:]}, parts...)
		intPart = intPart[:len(intPart)-3]
	}
	parts = append([]string{intPart}, parts...)
	return strings.Join(parts, ",") + frac
}

func zeroAt(precision int) string {
	return strconv.FormatFloat(0, 'f', max(precision, 0), 64)
}

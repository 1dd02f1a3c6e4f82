// Package money canonicalizes textual monetary values into the local
// decimal form used everywhere in the ledger: comma as decimal separator,
// dot as thousands grouping (e.g. "7.698,18").
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyRe = regexp.MustCompile(`(?i)(r\$|us\$|\$|€|£|\s|\x{00a0})`)
	numericRe  = regexp.MustCompile(`^\d+([.,]\d+)*$`)
)

// Normalize converts raw into canonical decimal form. It never fails:
// input that cannot be read as a number is returned unchanged, so callers
// can store whatever the source gave them. Normalize is idempotent.
//
// Separator rules, in order:
//   - both separators present: the right-most one is the decimal point,
//     the other is thousands grouping;
//   - only comma: decimal point;
//   - only dot with 1-2 trailing digits: decimal point;
//   - only dot with exactly 3 trailing digits: thousands grouping when the
//     integer part has at most 3 digits ("1.000" is one thousand),
//     otherwise decimal. Receipts genuinely underdetermine this case; the
//     rule is chosen for consistency, not correctness.
func Normalize(raw string) string {
	s := currencyRe.ReplaceAllString(raw, "")
	if s == "" || !numericRe.MatchString(s) {
		return raw
	}

	intPart, fracPart, ok := splitParts(s)
	if !ok {
		return raw
	}

	d, err := decimal.NewFromString(intPart + "." + padFraction(fracPart))
	if err != nil {
		return raw
	}
	return format(d, fracPart != "")
}

// splitParts breaks a bare numeric string into integer and fractional
// digits according to the separator rules. ok is false when the string
// has a shape the rules cannot place (e.g. two decimal points).
func splitParts(s string) (intPart, fracPart string, ok bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Right-most separator wins as the decimal point.
		sep := lastDot
		if lastComma > lastDot {
			sep = lastComma
		}
		intPart = stripSeparators(s[:sep])
		fracPart = s[sep+1:]
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return "", "", false
		}
		intPart = s[:lastComma]
		fracPart = s[lastComma+1:]
	case lastDot >= 0:
		trailing := len(s) - lastDot - 1
		if strings.Count(s, ".") > 1 {
			// "1.234.567": already thousands-grouped.
			if trailing != 3 {
				return "", "", false
			}
			intPart = stripSeparators(s)
		} else if trailing == 3 && lastDot <= 3 {
			intPart = stripSeparators(s)
		} else if trailing >= 1 && trailing <= 3 {
			intPart = s[:lastDot]
			fracPart = s[lastDot+1:]
		} else {
			return "", "", false
		}
	default:
		intPart = s
	}

	if strings.ContainsAny(fracPart, ".,") {
		return "", "", false
	}
	return intPart, fracPart, true
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", "")
}

func padFraction(frac string) string {
	if frac == "" {
		return "0"
	}
	if len(frac) == 1 {
		return frac + "0"
	}
	return frac
}

// format renders d in canonical form. Values that carried a fractional
// part keep exactly two decimals; whole amounts written without one stay
// bare ("1.000", not "1.000,00").
func format(d decimal.Decimal, withDecimals bool) string {
	var intStr, fracStr string
	if withDecimals {
		fixed := d.StringFixed(2)
		i := strings.LastIndex(fixed, ".")
		intStr, fracStr = fixed[:i], fixed[i+1:]
	} else {
		intStr = d.Truncate(0).String()
	}

	grouped := groupThousands(intStr)
	if withDecimals {
		return grouped + "," + fracStr
	}
	return grouped
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Parse reads a canonical (or normalizable) amount into a decimal for
// arithmetic. Empty strings parse to zero.
func Parse(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	s := currencyRe.ReplaceAllString(raw, "")
	if !numericRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("money.Parse: %q is not an amount", raw)
	}
	intPart, fracPart, ok := splitParts(s)
	if !ok {
		return decimal.Zero, fmt.Errorf("money.Parse: %q is ambiguous", raw)
	}
	d, err := decimal.NewFromString(intPart + "." + padFraction(fracPart))
	if err != nil {
		return decimal.Zero, fmt.Errorf("money.Parse: %w", err)
	}
	return d, nil
}

// Format renders a decimal in canonical form with two decimal places.
func Format(d decimal.Decimal) string {
	return format(d, true)
}

// Valid reports whether raw looks like an amount Normalize can read,
// which is what the correction engine accepts as a manual override.
func Valid(raw string) bool {
	s := currencyRe.ReplaceAllString(raw, "")
	if !numericRe.MatchString(s) {
		return false
	}
	_, _, ok := splitParts(s)
	return ok
}

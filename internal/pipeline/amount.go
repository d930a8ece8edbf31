package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a raw monetary cell into a float.
//
// Values that are already numeric are converted directly. Anything else is
// turned into text, stripped of every rune except digits and ",.+-", and the
// rightmost of ',' and '.' is taken as the decimal separator; the other one is
// treated as thousands grouping and dropped.
//
// The rule cannot tell "1.234" (one thousand two hundred thirty-four) from
// "1.234" (one point two three four). It always reads it as the latter.
// Callers needing the other reading must fix the source format.
//
// The second result is false when the cell is empty or cannot be parsed.
func ParseAmount(v any) (float64, bool) {
	if f, ok := numericValue(v); ok {
		if math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	if v == nil {
		return 0, false
	}

	cleaned := keepAmountRunes(strings.TrimSpace(cellText(v)))
	if cleaned == "" {
		return 0, false
	}

	lastComma := strings.LastIndexByte(cleaned, ',')
	lastDot := strings.LastIndexByte(cleaned, '.')
	switch {
	case lastComma == -1 && lastDot == -1:
		// plain integer or sign literal
	case lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case lastDot > lastComma:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// keepAmountRunes drops everything except digits, separators and signs.
func keepAmountRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '+', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// numericValue reports whether v holds a Go numeric kind and returns it as float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/araddon/dateparse"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
)

// NormalizeColumns renames raw columns to canonical names through mapping and
// coerces the canonical columns that are present:
//
//   - date: parsed into civil.Date, nil when unparseable
//   - amount: parsed with ParseAmount, nil when unparseable
//   - partner: missing becomes "", whitespace trimmed and collapsed
//
// Columns not named in mapping pass through untouched. A canonical column the
// batch does not have stays absent; AssembleBronze fills it later.
// The input table is never modified.
func NormalizeColumns(raw *table.Table, mapping domain.ColumnMapping) *table.Table {
	out := raw.Rename(mapping)

	out = out.MapColumn(domain.ColumnDate, func(v any) any {
		if d, ok := ParseDate(v); ok {
			return d
		}
		return nil
	})

	out = out.MapColumn(domain.ColumnAmount, func(v any) any {
		if f, ok := ParseAmount(v); ok {
			return f
		}
		return nil
	})

	out = out.MapColumn(domain.ColumnPartner, func(v any) any {
		return CleanPartner(v)
	})

	return out
}

// CleanPartner turns a raw partner cell into trimmed text with every run of
// internal whitespace collapsed to one space. Nil becomes "".
func CleanPartner(v any) string {
	if v == nil {
		return ""
	}
	return strings.Join(strings.Fields(cellText(v)), " ")
}

// ParseDate interprets a cell as a calendar date. Text is parsed best-effort:
// ISO forms and day/month/year with '/', '-' or '.' separators are accepted.
// Ambiguous numeric forms are read day first, so "01/03/2024" is 1 March 2024.
// Any time-of-day component is discarded.
func ParseDate(v any) (civil.Date, bool) {
	switch d := v.(type) {
	case nil:
		return civil.Date{}, false
	case civil.Date:
		return d, d.IsValid()
	case time.Time:
		if d.IsZero() {
			return civil.Date{}, false
		}
		return civil.DateOf(d), true
	case bool:
		return civil.Date{}, false
	}

	s := strings.TrimSpace(cellText(v))
	if s == "" {
		return civil.Date{}, false
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, plausibleYear(d)
	}
	if d, ok, matched := parseDayFirst(s); matched {
		return d, ok
	}
	t, err := dateparse.ParseAny(s, dateparse.PreferMonthFirst(false))
	if err != nil {
		return civil.Date{}, false
	}
	d := civil.DateOf(t)
	return d, plausibleYear(d)
}

// dayFirstPattern matches numeric day/month/year tokens with a four-digit
// year, e.g. 1.3.2024, 15/03/2024, 15-03-2024.
var dayFirstPattern = regexp.MustCompile(`^(\d{1,2})([./-])(\d{1,2})([./-])(\d{4})$`)

// parseDayFirst reads the leading date token of s as day/month/year. A
// trailing time of day is ignored. matched reports whether the token had the
// day/month/year shape at all; such tokens never fall through to dateparse.
func parseDayFirst(s string) (d civil.Date, ok, matched bool) {
	token := s
	if i := strings.IndexAny(s, " T"); i > 0 {
		token = s[:i]
	}
	m := dayFirstPattern.FindStringSubmatch(token)
	if m == nil || m[2] != m[4] {
		return civil.Date{}, false, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])
	d = civil.Date{Year: year, Month: time.Month(month), Day: day}
	return d, plausibleYear(d), true
}

// dateparse fills missing parts with zeros, so fragments such as "1.000,00"
// come back as year 0.
func plausibleYear(d civil.Date) bool {
	return d.IsValid() && d.Year >= minYear && d.Year <= maxYear
}

const (
	minYear = 1000
	maxYear = 9999
)

// cellText renders a non-nil cell as text.
func cellText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

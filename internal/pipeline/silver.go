package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
	"github.com/shopspring/decimal"
)

// ErrMissingColumns is returned by ToSilver when the Bronze table lacks one of
// the canonical columns. Columns that exist but hold only nulls are fine.
var ErrMissingColumns = errors.New("bronze table missing required columns")

type silverKey struct {
	partner string
	month   civil.Date
}

// ToSilver aggregates a validated Bronze table into partner × month sums.
//
// Date and amount are coerced again; values that do not convert become nil.
// Rows with a nil partner or a nil date are dropped. Nil amounts add zero.
// The result has one row per (partner, month), sorted by partner and then by
// month ascending, and does not depend on the order of the input rows.
func ToSilver(bronze *table.Table) ([]domain.SilverRow, error) {
	var missing []string
	for _, col := range domain.CanonicalColumns {
		if !bronze.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("ToSilver: %w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	sums := make(map[silverKey]decimal.Decimal)
	for i := 0; i < bronze.Len(); i++ {
		p, _ := bronze.Value(i, domain.ColumnPartner)
		if p == nil {
			continue
		}
		dv, _ := bronze.Value(i, domain.ColumnDate)
		d, ok := ParseDate(dv)
		if !ok {
			continue
		}

		key := silverKey{partner: cellText(p), month: MonthStart(d)}
		sum := sums[key]
		av, _ := bronze.Value(i, domain.ColumnAmount)
		if f, ok := toFloat(av); ok && !math.IsInf(f, 0) {
			sum = sum.Add(decimal.NewFromFloat(f))
		}
		sums[key] = sum
	}

	rows := make([]domain.SilverRow, 0, len(sums))
	for k, sum := range sums {
		amount, _ := sum.Float64()
		rows = append(rows, domain.SilverRow{Partner: k.partner, Month: k.month, Amount: amount})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Partner != rows[j].Partner {
			return rows[i].Partner < rows[j].Partner
		}
		return rows[i].Month.Before(rows[j].Month)
	})

	return rows, nil
}

// MonthStart truncates d to the first day of its month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// toFloat is a plain numeric conversion: numbers pass through and text must be
// a well-formed number. Unlike ParseAmount it applies no separator heuristic.
func toFloat(v any) (float64, bool) {
	if f, ok := numericValue(v); ok {
		return f, !math.IsNaN(f)
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

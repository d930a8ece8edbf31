package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
	"github.com/shopspring/decimal"
)

// Summary holds headline figures for one ingestion run.
type Summary struct {
	BronzeRows     int         `json:"bronze_rows"`
	UniquePartners int         `json:"unique_partners"`
	TotalAmount    float64     `json:"total_amount"`
	DateMin        *civil.Date `json:"date_min,omitempty"`
	DateMax        *civil.Date `json:"date_max,omitempty"`
	Completeness   float64     `json:"completeness_pct"`
	Duplicates     int         `json:"duplicates"`
}

// MonthTotal is the sum of all partners for one month.
type MonthTotal struct {
	Month  civil.Date `json:"month"`
	Amount float64    `json:"amount"`
}

// Summarize computes run KPIs from the Bronze table and its Silver rows.
// Silver may be nil when aggregation was skipped.
func Summarize(bronze *table.Table, silver []domain.SilverRow) Summary {
	s := Summary{BronzeRows: bronze.Len()}

	if partners, ok := bronze.Column(domain.ColumnPartner); ok {
		seen := make(map[string]bool)
		for _, p := range partners {
			if p != nil {
				seen[cellText(p)] = true
			}
		}
		s.UniquePartners = len(seen)
	}

	total := decimal.Zero
	for _, r := range silver {
		total = total.Add(decimal.NewFromFloat(r.Amount))
	}
	s.TotalAmount, _ = total.Float64()

	if dates, ok := bronze.Column(domain.ColumnDate); ok {
		for _, v := range dates {
			d, ok := ParseDate(v)
			if !ok {
				continue
			}
			if s.DateMin == nil || d.Before(*s.DateMin) {
				lo := d
				s.DateMin = &lo
			}
			if s.DateMax == nil || d.After(*s.DateMax) {
				hi := d
				s.DateMax = &hi
			}
		}
	}

	s.Completeness = completeness(bronze)
	s.Duplicates = countDuplicates(bronze)
	return s
}

// MonthlyTotals sums Silver amounts per month across partners, in month order.
func MonthlyTotals(silver []domain.SilverRow) []MonthTotal {
	sums := make(map[civil.Date]decimal.Decimal)
	for _, r := range silver {
		sums[r.Month] = sums[r.Month].Add(decimal.NewFromFloat(r.Amount))
	}

	out := make([]MonthTotal, 0, len(sums))
	for m, sum := range sums {
		f, _ := sum.Float64()
		out = append(out, MonthTotal{Month: m, Amount: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// completeness is 100 × (1 − mean null ratio over all columns).
func completeness(t *table.Table) float64 {
	cols := t.Columns()
	if len(cols) == 0 || t.Len() == 0 {
		return 100
	}

	var ratioSum float64
	for _, c := range cols {
		values, _ := t.Column(c)
		nulls := 0
		for _, v := range values {
			if v == nil {
				nulls++
			}
		}
		ratioSum += float64(nulls) / float64(len(values))
	}
	return 100 * (1 - ratioSum/float64(len(cols)))
}

// countDuplicates counts rows identical to an earlier row.
func countDuplicates(t *table.Table) int {
	seen := make(map[string]bool, t.Len())
	dups := 0
	for i := 0; i < t.Len(); i++ {
		var b strings.Builder
		for _, v := range t.Row(i) {
			fmt.Fprintf(&b, "%T:%v\x1f", v, v)
		}
		key := b.String()
		if seen[key] {
			dups++
			continue
		}
		seen[key] = true
	}
	return dups
}

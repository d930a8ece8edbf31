package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
)

// Validation rule identifiers.
const (
	RuleMissingColumn = "missing_column"
	RuleNonNumeric    = "non_numeric"
	RuleNegative      = "negative"
	RuleInvalidDate   = "invalid_date"
)

// maxSampleRows caps the row indexes listed in one violation.
const maxSampleRows = 5

// Violation is one failed data-quality rule. A rule that fails on many rows is
// reported once, with the number of offending rows and a sample of them.
type Violation struct {
	Rule    string `json:"rule"`
	Column  string `json:"column"`
	Count   int    `json:"count,omitempty"`
	Rows    []int  `json:"rows,omitempty"` // zero-based, at most maxSampleRows
	Message string `json:"message"`
}

// Validate runs every check against a Bronze table and returns the violations
// found. All checks run even when an earlier one fails. An empty result means
// the table is valid. The table is not modified.
func Validate(t *table.Table) []Violation {
	var out []Violation

	for _, col := range domain.CanonicalColumns {
		if !t.Has(col) {
			out = append(out, Violation{
				Rule:    RuleMissingColumn,
				Column:  col,
				Message: fmt.Sprintf("missing canonical column %q", col),
			})
		}
	}

	if amounts, ok := t.Column(domain.ColumnAmount); ok {
		var nonNumeric, negative []int
		for i, v := range amounts {
			if v == nil {
				continue
			}
			f, numeric := numericValue(v)
			switch {
			case !numeric:
				nonNumeric = append(nonNumeric, i)
			case math.IsNaN(f):
				// NaN is a null amount
			case f < 0:
				negative = append(negative, i)
			}
		}
		if len(nonNumeric) > 0 {
			out = append(out, rowViolation(RuleNonNumeric, domain.ColumnAmount, nonNumeric, "non-numeric value(s)"))
		}
		if len(negative) > 0 {
			out = append(out, rowViolation(RuleNegative, domain.ColumnAmount, negative, "negative value(s), expected >= 0"))
		}
	}

	if dates, ok := t.Column(domain.ColumnDate); ok {
		var invalid []int
		for i, v := range dates {
			if v == nil {
				continue
			}
			if _, ok := ParseDate(v); !ok {
				invalid = append(invalid, i)
			}
		}
		if len(invalid) > 0 {
			out = append(out, rowViolation(RuleInvalidDate, domain.ColumnDate, invalid, "value(s) that are not calendar dates"))
		}
	}

	return out
}

// Messages returns the human-readable text of each violation.
func Messages(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Message
	}
	return out
}

func rowViolation(rule, column string, rows []int, what string) Violation {
	sample := rows
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}
	sample = append([]int(nil), sample...)

	idx := make([]string, len(sample))
	for i, r := range sample {
		idx[i] = fmt.Sprint(r)
	}
	more := ""
	if len(rows) > len(sample) {
		more = ", ..."
	}

	return Violation{
		Rule:    rule,
		Column:  column,
		Count:   len(rows),
		Rows:    sample,
		Message: fmt.Sprintf("column %q has %d %s (rows %s%s)", column, len(rows), what, strings.Join(idx, ", "), more),
	}
}

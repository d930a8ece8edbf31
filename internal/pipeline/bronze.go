package pipeline

import (
	"time"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
)

// AssembleBronze concatenates tagged batches into the Bronze table.
//
// Each batch is restricted to date, partner, amount, source_file, ingested_at
// in that order; columns a batch lacks are filled with nil and extra columns
// are dropped. Batch order and row order are preserved and nothing is
// deduplicated. With no batches the result is an empty table that still has
// the five columns.
func AssembleBronze(batches ...*table.Table) *table.Table {
	return table.Concat(domain.BronzeColumns, batches...)
}

// BronzeRows projects a Bronze table into typed rows for exporters and
// storage. Cells that do not fit their column's type become nil.
func BronzeRows(bronze *table.Table) []domain.BronzeRow {
	canonical := bronze.Select(domain.BronzeColumns...)
	rows := make([]domain.BronzeRow, canonical.Len())

	for i := range rows {
		row := &rows[i]

		if v, _ := canonical.Value(i, domain.ColumnDate); v != nil {
			if d, ok := ParseDate(v); ok {
				row.Date = &d
			}
		}
		if v, _ := canonical.Value(i, domain.ColumnPartner); v != nil {
			p := cellText(v)
			row.Partner = &p
		}
		if v, _ := canonical.Value(i, domain.ColumnAmount); v != nil {
			if f, ok := toFloat(v); ok {
				row.Amount = &f
			}
		}
		if v, _ := canonical.Value(i, domain.ColumnSourceFile); v != nil {
			row.SourceFile = cellText(v)
		}
		if v, _ := canonical.Value(i, domain.ColumnIngestedAt); v != nil {
			switch ts := v.(type) {
			case time.Time:
				row.IngestedAt = ts.UTC()
			default:
				if parsed, err := time.Parse(IngestedAtLayout, cellText(v)); err == nil {
					row.IngestedAt = parsed.UTC()
				}
			}
		}
	}

	return rows
}

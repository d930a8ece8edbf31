package pipeline

import (
	"time"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
)

// IngestedAtLayout is the layout of the ingested_at lineage column.
const IngestedAtLayout = time.RFC3339Nano

// Tagger stamps normalized batches with lineage columns.
type Tagger struct {
	// Now returns the wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Tag appends source_file and ingested_at to every row of batch. The clock is
// read once, so all rows of one call share the same ingested_at value.
func (g Tagger) Tag(batch *table.Table, source string) *table.Table {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	ingestedAt := now().UTC().Format(IngestedAtLayout)

	return batch.
		WithConstant(domain.ColumnSourceFile, source).
		WithConstant(domain.ColumnIngestedAt, ingestedAt)
}

// TagLineage tags batch using the system clock.
func TagLineage(batch *table.Table, source string) *table.Table {
	return Tagger{}.Tag(batch, source)
}

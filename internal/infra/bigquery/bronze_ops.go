package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// insertBatchSize keeps each streaming insert request well under the API limits.
const insertBatchSize = 500

// InsertBronzeRowsWithClient appends rows to the bronze table with streaming
// inserts, in batches.
func InsertBronzeRowsWithClient(ctx context.Context, client *bigquery.Client, table Table, rows []*BronzeRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := table.Ref(client).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertBronzeRows: inserting rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

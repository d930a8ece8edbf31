package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// loadTimestampLayout is the timestamp form BigQuery load jobs accept.
const loadTimestampLayout = "2006-01-02 15:04:05.000000"

var silverSchema = bigquery.Schema{
	{Name: "partner", Type: bigquery.StringFieldType, Required: true},
	{Name: "month", Type: bigquery.DateFieldType, Required: true},
	{Name: "amount", Type: bigquery.FloatFieldType, Required: true},
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "updated_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// ReplaceSilverWithClient replaces the contents of the silver table with rows
// in a single load job (WRITE_TRUNCATE), so readers never see a partial table.
// The table is a snapshot of the latest valid run: every row carries that
// run's run_id and matches SUM over bronze rows with the same run_id.
func ReplaceSilverWithClient(ctx context.Context, client *bigquery.Client, table Table, rows []*SilverRow) error {
	src, err := silverLoadSource(rows)
	if err != nil {
		return fmt.Errorf("ReplaceSilver: encoding rows: %w", err)
	}

	loader := table.Ref(client).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceSilver: starting load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceSilver: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("ReplaceSilver: job error: %w", err)
	}
	return nil
}

// silverLoadSource wraps rows as newline-delimited JSON. JSON keeps an empty
// partner as "" where a CSV load would read the empty field as NULL.
func silverLoadSource(rows []*SilverRow) (*bigquery.ReaderSource, error) {
	data, err := silverNDJSON(rows)
	if err != nil {
		return nil, err
	}
	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.JSON
	src.Schema = silverSchema
	return src, nil
}

type silverRecord struct {
	Partner   string  `json:"partner"`
	Month     string  `json:"month"`
	Amount    float64 `json:"amount"`
	RunID     string  `json:"run_id"`
	UpdatedTS string  `json:"updated_ts"`
}

// silverNDJSON encodes one JSON object per row in silverSchema field order.
func silverNDJSON(rows []*SilverRow) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		rec := silverRecord{
			Partner:   r.Partner,
			Month:     r.Month.String(),
			Amount:    r.Amount,
			RunID:     r.RunID,
			UpdatedTS: r.UpdatedTS.UTC().Format(loadTimestampLayout),
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// QuerySilverWithClient reads silver rows for months between from and to
// inclusive, ordered by partner and month.
func QuerySilverWithClient(ctx context.Context, client *bigquery.Client, table Table, partner string, from, to civil.Date) ([]*SilverRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT partner, month, amount, run_id, updated_ts
		FROM %s
		WHERE month >= @from_month
		  AND month <= @to_month
		  AND (@partner = "" OR partner = @partner)
		ORDER BY partner, month
	`, table.SQL()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_month", Value: from},
		{Name: "to_month", Value: to},
		{Name: "partner", Value: partner},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QuerySilver: query read: %w", err)
	}

	var rows []*SilverRow
	for {
		var r SilverRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QuerySilver: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

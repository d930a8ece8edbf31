package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ledger-lake/internal/bigquery"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"google.golang.org/api/iterator"
)

// maxErrorMessageLen caps error_message to keep run rows small.
const maxErrorMessageLen = 2000

// StartIngestionRunWithClient inserts a run row with status=RUNNING.
func StartIngestionRunWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, sources []string, started time.Time) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			sources,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@sources,
			@started_ts,
			@status
		)
	`, table.SQL()))

	if sources == nil {
		sources = []string{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "sources", Value: sources},
		{Name: "started_ts", Value: started},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("StartIngestionRun: %w", err)
	}
	return nil
}

// MarkIngestionRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Failures are logged, not returned.
func MarkIngestionRunFailedWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, table.SQL()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkIngestionRunFailed: update failed")
	}
}

// MarkIngestionRunSucceededWithClient sets status=SUCCESS, finished_ts and the
// run figures.
func MarkIngestionRunSucceededWithClient(ctx context.Context, client *bigquery.Client, table Table, runID string, stats RunCounts) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = NULL,
		    source_errors = @source_errors,
		    bronze_rows = @bronze_rows,
		    silver_rows = @silver_rows,
		    violations = @violations
		WHERE run_id = @run_id
	`, table.SQL()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "source_errors", Value: stats.SourceErrors},
		{Name: "bronze_rows", Value: stats.BronzeRows},
		{Name: "silver_rows", Value: stats.SilverRows},
		{Name: "violations", Value: stats.Violations},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkIngestionRunSucceeded: %w", err)
	}
	return nil
}

// ListIngestionRunsWithClient returns up to limit runs, newest first.
func ListIngestionRunsWithClient(ctx context.Context, client *bigquery.Client, table Table, limit int) ([]*IngestionRunRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			sources,
			started_ts,
			finished_ts,
			status,
			error_message,
			source_errors,
			bronze_rows,
			silver_rows,
			violations
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, table.SQL()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListIngestionRuns: reading query: %w", err)
	}

	var runs []*IngestionRunRow
	for {
		var row IngestionRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListIngestionRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

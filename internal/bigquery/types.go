package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
)

// Ingestion run statuses stored in ingestion_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// LedgerRepository provides an interface for warehouse operations on the
// ledger tables. This interface enables mocking and testing.
type LedgerRepository interface {
	// InsertBronzeRows appends rows to the bronze table.
	InsertBronzeRows(ctx context.Context, rows []*BronzeRow) error

	// ReplaceSilver truncates the silver table and loads rows into it.
	ReplaceSilver(ctx context.Context, rows []*SilverRow) error

	// QuerySilver returns silver rows for months in [from, to], optionally
	// restricted to one partner when partner is non-empty.
	QuerySilver(ctx context.Context, partner string, from, to civil.Date) ([]*SilverRow, error)

	// StartIngestionRun inserts a run with status=RUNNING.
	StartIngestionRun(ctx context.Context, runID string, sources []string) error

	// MarkIngestionRunFailed sets status=FAILED, finished_ts and error_message.
	MarkIngestionRunFailed(ctx context.Context, runID string, runErr error)

	// MarkIngestionRunSucceeded sets status=SUCCESS, finished_ts and the run figures.
	MarkIngestionRunSucceeded(ctx context.Context, runID string, stats RunCounts) error

	// ListIngestionRuns returns the most recent runs first.
	ListIngestionRuns(ctx context.Context, limit int) ([]*IngestionRunRow, error)
}

// RunCounts are the figures written when a run succeeds.
type RunCounts struct {
	SourceErrors int64
	BronzeRows   int64
	SilverRows   int64
	Violations   int64
}

// BronzeRow represents a bronze record in BigQuery.
type BronzeRow struct {
	RunID string `bigquery:"run_id"`

	Date    bigquery.NullDate    `bigquery:"date"`
	Partner bigquery.NullString  `bigquery:"partner"`
	Amount  bigquery.NullFloat64 `bigquery:"amount"`

	SourceFile string    `bigquery:"source_file"`
	IngestedAt time.Time `bigquery:"ingested_at"`
}

// SilverRow represents a partner × month aggregate in BigQuery.
type SilverRow struct {
	Partner string     `bigquery:"partner"`
	Month   civil.Date `bigquery:"month"`
	Amount  float64    `bigquery:"amount"`

	RunID     string    `bigquery:"run_id"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

// IngestionRunRow represents an ingestion run record in BigQuery.
type IngestionRunRow struct {
	RunID   string   `bigquery:"run_id"`
	Sources []string `bigquery:"sources"`

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`

	Status       string              `bigquery:"status"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"`

	SourceErrors bigquery.NullInt64 `bigquery:"source_errors"`
	BronzeRows   bigquery.NullInt64 `bigquery:"bronze_rows"`
	SilverRows   bigquery.NullInt64 `bigquery:"silver_rows"`
	Violations   bigquery.NullInt64 `bigquery:"violations"`
}

// NewBronzeRows converts domain Bronze rows for insertion under runID.
func NewBronzeRows(runID string, rows []domain.BronzeRow) []*BronzeRow {
	out := make([]*BronzeRow, len(rows))
	for i, r := range rows {
		row := &BronzeRow{
			RunID:      runID,
			SourceFile: r.SourceFile,
			IngestedAt: r.IngestedAt,
		}
		if r.Date != nil {
			row.Date = bigquery.NullDate{Date: *r.Date, Valid: true}
		}
		if r.Partner != nil {
			row.Partner = bigquery.NullString{StringVal: *r.Partner, Valid: true}
		}
		if r.Amount != nil {
			row.Amount = bigquery.NullFloat64{Float64: *r.Amount, Valid: true}
		}
		out[i] = row
	}
	return out
}

// NewSilverRows converts domain Silver rows for loading under runID.
func NewSilverRows(runID string, rows []domain.SilverRow, updated time.Time) []*SilverRow {
	out := make([]*SilverRow, len(rows))
	for i, r := range rows {
		out[i] = &SilverRow{
			Partner:   r.Partner,
			Month:     r.Month,
			Amount:    r.Amount,
			RunID:     runID,
			UpdatedTS: updated,
		}
	}
	return out
}

// DomainSilver converts warehouse Silver rows back to domain rows.
func DomainSilver(rows []*SilverRow) []domain.SilverRow {
	out := make([]domain.SilverRow, len(rows))
	for i, r := range rows {
		out[i] = domain.SilverRow{Partner: r.Partner, Month: r.Month, Amount: r.Amount}
	}
	return out
}

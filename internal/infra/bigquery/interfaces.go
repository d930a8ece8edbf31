package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/ledger-lake/internal/bigquery"
)

// Re-export shared types
type (
	LedgerRepository = bq.LedgerRepository
	BronzeRow        = bq.BronzeRow
	SilverRow        = bq.SilverRow
	IngestionRunRow  = bq.IngestionRunRow
	RunCounts        = bq.RunCounts
)

// Table names inside the ledger dataset.
const (
	bronzeTable        = "bronze"
	silverTable        = "silver"
	ingestionRunsTable = "ingestion_runs"
)

// Table addresses one table of the ledger dataset.
type Table struct {
	ProjectID string
	DatasetID string
	Name      string
}

// Ref returns the table handle.
func (t Table) Ref(client *bigquery.Client) *bigquery.Table {
	return client.DatasetInProject(t.ProjectID, t.DatasetID).Table(t.Name)
}

// SQL returns the backquoted table path for use in queries.
func (t Table) SQL() string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, t.Name)
}

// BigQueryLedgerRepository is the concrete implementation of LedgerRepository
// that interacts with BigQuery. It holds a shared client to avoid creating a
// new connection for each operation.
type BigQueryLedgerRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryLedgerRepository creates a repository for projectID.datasetID.
func NewBigQueryLedgerRepository(ctx context.Context, projectID, datasetID string) (*BigQueryLedgerRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: creating client: %w", err)
	}
	return &BigQueryLedgerRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryLedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryLedgerRepository) table(name string) Table {
	return Table{ProjectID: r.projectID, DatasetID: r.datasetID, Name: name}
}

// InsertBronzeRows delegates to InsertBronzeRowsWithClient.
func (r *BigQueryLedgerRepository) InsertBronzeRows(ctx context.Context, rows []*BronzeRow) error {
	return InsertBronzeRowsWithClient(ctx, r.client, r.table(bronzeTable), rows)
}

// ReplaceSilver delegates to ReplaceSilverWithClient.
func (r *BigQueryLedgerRepository) ReplaceSilver(ctx context.Context, rows []*SilverRow) error {
	return ReplaceSilverWithClient(ctx, r.client, r.table(silverTable), rows)
}

// QuerySilver delegates to QuerySilverWithClient.
func (r *BigQueryLedgerRepository) QuerySilver(ctx context.Context, partner string, from, to civil.Date) ([]*SilverRow, error) {
	return QuerySilverWithClient(ctx, r.client, r.table(silverTable), partner, from, to)
}

// StartIngestionRun delegates to StartIngestionRunWithClient.
func (r *BigQueryLedgerRepository) StartIngestionRun(ctx context.Context, runID string, sources []string) error {
	return StartIngestionRunWithClient(ctx, r.client, r.table(ingestionRunsTable), runID, sources, time.Now())
}

// MarkIngestionRunFailed delegates to MarkIngestionRunFailedWithClient.
func (r *BigQueryLedgerRepository) MarkIngestionRunFailed(ctx context.Context, runID string, runErr error) {
	MarkIngestionRunFailedWithClient(ctx, r.client, r.table(ingestionRunsTable), runID, runErr)
}

// MarkIngestionRunSucceeded delegates to MarkIngestionRunSucceededWithClient.
func (r *BigQueryLedgerRepository) MarkIngestionRunSucceeded(ctx context.Context, runID string, stats RunCounts) error {
	return MarkIngestionRunSucceededWithClient(ctx, r.client, r.table(ingestionRunsTable), runID, stats)
}

// ListIngestionRuns delegates to ListIngestionRunsWithClient.
func (r *BigQueryLedgerRepository) ListIngestionRuns(ctx context.Context, limit int) ([]*IngestionRunRow, error) {
	return ListIngestionRunsWithClient(ctx, r.client, r.table(ingestionRunsTable), limit)
}

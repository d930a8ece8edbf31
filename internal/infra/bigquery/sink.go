package bigquery

import (
	"context"
	"fmt"
	"time"

	bq "github.com/dvloznov/ledger-lake/internal/bigquery"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
)

var (
	_ pipeline.Publisher   = (*Sink)(nil)
	_ pipeline.RunRecorder = (*Sink)(nil)
)

// Sink publishes pipeline output to the warehouse and records runs in
// ingestion_runs.
type Sink struct {
	Repo LedgerRepository

	// Now stamps silver rows. Defaults to time.Now.
	Now func() time.Time
}

// NewSink wraps repo.
func NewSink(repo LedgerRepository) *Sink {
	return &Sink{Repo: repo}
}

func (s *Sink) PublishBronze(ctx context.Context, runID string, rows []domain.BronzeRow) error {
	if err := s.Repo.InsertBronzeRows(ctx, bq.NewBronzeRows(runID, rows)); err != nil {
		return fmt.Errorf("Sink.PublishBronze: %w", err)
	}
	return nil
}

func (s *Sink) PublishSilver(ctx context.Context, runID string, rows []domain.SilverRow) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := s.Repo.ReplaceSilver(ctx, bq.NewSilverRows(runID, rows, now().UTC())); err != nil {
		return fmt.Errorf("Sink.PublishSilver: %w", err)
	}
	return nil
}

func (s *Sink) StartRun(ctx context.Context, runID string, sources []string) error {
	return s.Repo.StartIngestionRun(ctx, runID, sources)
}

func (s *Sink) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	s.Repo.MarkIngestionRunFailed(ctx, runID, runErr)
}

func (s *Sink) MarkRunSucceeded(ctx context.Context, runID string, stats pipeline.RunStats) error {
	return s.Repo.MarkIngestionRunSucceeded(ctx, runID, RunCounts{
		SourceErrors: int64(stats.SourceErrors),
		BronzeRows:   int64(stats.BronzeRows),
		SilverRows:   int64(stats.SilverRows),
		Violations:   int64(stats.Violations),
	})
}

package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-lake/internal/domain"
)

// Publisher delivers run output to a destination such as a directory, a
// bucket or a warehouse table.
type Publisher interface {
	// PublishBronze receives the Bronze rows of every run, valid or not.
	PublishBronze(ctx context.Context, runID string, rows []domain.BronzeRow) error

	// PublishSilver receives the Silver rows of runs that passed validation.
	PublishSilver(ctx context.Context, runID string, rows []domain.SilverRow) error
}

// RunRecorder keeps bookkeeping about ingestion runs.
// This interface enables mocking and testing of run tracking.
type RunRecorder interface {
	// StartRun records a new run with status RUNNING.
	StartRun(ctx context.Context, runID string, sources []string) error

	// MarkRunFailed records a failed run. Failures here are logged, not returned.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded records a finished run with its figures.
	MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error
}

// RunStats are the figures stored with a finished run.
type RunStats struct {
	Sources      int
	SourceErrors int
	BronzeRows   int
	SilverRows   int
	Violations   int
}

// Recorders fans run bookkeeping out to several recorders in order. Nil
// entries are skipped. StartRun and MarkRunSucceeded stop at the first error.
type Recorders []RunRecorder

func (rs Recorders) StartRun(ctx context.Context, runID string, sources []string) error {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.StartRun(ctx, runID, sources); err != nil {
			return err
		}
	}
	return nil
}

func (rs Recorders) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	for _, r := range rs {
		if r != nil {
			r.MarkRunFailed(ctx, runID, runErr)
		}
	}
}

func (rs Recorders) MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.MarkRunSucceeded(ctx, runID, stats); err != nil {
			return err
		}
	}
	return nil
}

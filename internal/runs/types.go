package runs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
)

// ErrRunNotFound is returned when a run ID is unknown to the store.
var ErrRunNotFound = errors.New("run not found")

// Status represents the outcome of an ingestion run.
type Status string

const (
	// StatusCompleted indicates the run produced Bronze. Validation may still
	// have reported violations.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run stopped on an error.
	StatusFailed Status = "failed"
)

// Run is the stored result of one ingestion.
type Run struct {
	// ID is the pipeline run ID.
	ID string `json:"id"`

	// Status is the outcome of the run.
	Status Status `json:"status"`

	// Sources are the names of the submitted files, in order.
	Sources []string `json:"sources"`

	// CreatedAt is when the run started.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Error contains error details if the run failed.
	Error string `json:"error,omitempty"`

	SourceErrors  []pipeline.SourceError `json:"source_errors"`
	Violations    []pipeline.Violation   `json:"violations"`
	Summary       pipeline.Summary       `json:"summary"`
	MonthlyTotals []pipeline.MonthTotal  `json:"monthly_totals"`

	// Bronze and Silver are served as downloads, not inline.
	Bronze []domain.BronzeRow `json:"-"`
	Silver []domain.SilverRow `json:"-"`
}

// Valid reports whether the run finished without violations, i.e. whether
// Silver was produced.
func (r *Run) Valid() bool {
	return r.Status == StatusCompleted && len(r.Violations) == 0
}

// FromState builds a run record from the final pipeline state and the error
// returned by the pipeline, if any.
func FromState(state *pipeline.PipelineState, runErr error, started, finished time.Time) *Run {
	run := &Run{
		ID:           state.RunID,
		Status:       StatusCompleted,
		CreatedAt:    started,
		CompletedAt:  finished,
		SourceErrors: state.SourceErrors,
		Violations:   state.Violations,
		Summary:      state.Summary,
		Silver:       state.Silver,
	}
	for _, s := range state.Sources {
		run.Sources = append(run.Sources, s.Name)
	}
	if state.Bronze != nil {
		run.Bronze = pipeline.BronzeRows(state.Bronze)
	}
	if len(state.Silver) > 0 {
		run.MonthlyTotals = pipeline.MonthlyTotals(state.Silver)
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	return run
}

// Store defines the interface for storing and retrieving runs.
type Store interface {
	// SaveRun saves or replaces a run.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Unknown IDs yield ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns retrieves runs, newest first, with optional filtering.
	ListRuns(ctx context.Context, filter Filter) ([]*Run, error)
}

// Filter defines filtering criteria for listing runs.
type Filter struct {
	// Status filters runs by status.
	Status Status

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

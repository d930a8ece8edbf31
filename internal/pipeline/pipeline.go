package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/google/uuid"
)

// Deps are the collaborators of an ingestion run. All fields are optional.
type Deps struct {
	Tagger     Tagger
	Recorder   RunRecorder
	Publishers []Publisher
}

// Ingest runs the full ingestion for one set of sources and returns the final
// state. Data-quality problems end up in state.Violations and state.SourceErrors;
// the returned error is reserved for failures that stop the run (bookkeeping,
// publishing, a Bronze table without canonical columns).
func Ingest(ctx context.Context, mapping domain.ColumnMapping, sources []Source, deps Deps) (*PipelineState, error) {
	state := &PipelineState{
		RunID:   uuid.NewString(),
		Mapping: mapping,
		Sources: sources,
	}

	ctx, log := logger.ForRun(ctx, state.RunID)

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}

	if deps.Recorder != nil {
		if err := deps.Recorder.StartRun(ctx, state.RunID, names); err != nil {
			return state, err
		}
	}

	log.Info().Int("sources", len(sources)).Msg("Starting ingestion run")

	if err := NewIngestionPipeline(deps.Tagger, deps.Publishers...).Execute(ctx, state); err != nil {
		if deps.Recorder != nil {
			deps.Recorder.MarkRunFailed(ctx, state.RunID, err)
		}
		return state, err
	}

	if deps.Recorder != nil {
		if err := deps.Recorder.MarkRunSucceeded(ctx, state.RunID, state.Stats()); err != nil {
			return state, err
		}
	}

	log.Info().
		Int("bronze_rows", state.Summary.BronzeRows).
		Int("silver_rows", len(state.Silver)).
		Int("violations", len(state.Violations)).
		Int("source_errors", len(state.SourceErrors)).
		Msg("Ingestion run finished")

	return state, nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/table"
)

// Source is one raw batch handed over by the I/O layer. Err is set when the
// batch could not be read; such sources are reported and skipped.
type Source struct {
	Name  string
	Batch *table.Table
	Err   error
}

// SourceError records a source that did not make it into Bronze.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID   string
	Mapping domain.ColumnMapping
	Sources []Source

	Tagged       []*table.Table
	SourceErrors []SourceError
	Bronze       *table.Table
	Violations   []Violation
	Silver       []domain.SilverRow
	Summary      Summary
}

// Clean reports whether Bronze was assembled and passed validation.
func (s *PipelineState) Clean() bool {
	return s.Bronze != nil && len(s.Violations) == 0
}

// Stats returns the run figures for bookkeeping.
func (s *PipelineState) Stats() RunStats {
	st := RunStats{
		Sources:      len(s.Sources),
		SourceErrors: len(s.SourceErrors),
		SilverRows:   len(s.Silver),
		Violations:   len(s.Violations),
	}
	if s.Bronze != nil {
		st.BronzeRows = s.Bronze.Len()
	}
	return st
}

// NormalizeSourcesStep normalizes and tags every readable source. A source
// that failed to load is recorded in SourceErrors and does not stop the others.
type NormalizeSourcesStep struct {
	Tagger Tagger
}

func (s *NormalizeSourcesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Tagged = make([]*table.Table, 0, len(state.Sources))
	for _, src := range state.Sources {
		if src.Err == nil && src.Batch == nil {
			src.Err = fmt.Errorf("no data")
		}
		if src.Err != nil {
			log.Warn().Err(src.Err).Str("source", src.Name).Msg("Skipping unreadable source")
			state.SourceErrors = append(state.SourceErrors, SourceError{Source: src.Name, Error: src.Err.Error()})
			continue
		}

		normalized := NormalizeColumns(src.Batch, state.Mapping)
		state.Tagged = append(state.Tagged, s.Tagger.Tag(normalized, src.Name))

		log.Debug().
			Str("source", src.Name).
			Int("rows", src.Batch.Len()).
			Msg("Normalized source")
	}
	return nil
}

// AssembleBronzeStep concatenates the tagged batches into Bronze.
type AssembleBronzeStep struct{}

func (s *AssembleBronzeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Bronze = AssembleBronze(state.Tagged...)
	log := logger.FromContext(ctx)
	log.Info().
		Int("batches", len(state.Tagged)).
		Int("rows", state.Bronze.Len()).
		Msg("Assembled bronze table")
	return nil
}

// ValidateBronzeStep collects violations. It never fails the pipeline.
type ValidateBronzeStep struct{}

func (s *ValidateBronzeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Violations = Validate(state.Bronze)

	log := logger.FromContext(ctx)
	for _, v := range state.Violations {
		log.Warn().Str("rule", v.Rule).Str("column", v.Column).Int("count", v.Count).Msg(v.Message)
	}
	return nil
}

// AggregateSilverStep derives Silver from a clean Bronze table. It is a no-op
// when validation reported violations.
type AggregateSilverStep struct{}

func (s *AggregateSilverStep) Execute(ctx context.Context, state *PipelineState) error {
	if !state.Clean() {
		log := logger.FromContext(ctx)
		log.Info().
			Int("violations", len(state.Violations)).
			Msg("Skipping silver aggregation")
		return nil
	}

	silver, err := ToSilver(state.Bronze)
	if err != nil {
		return err
	}
	state.Silver = silver
	return nil
}

// SummarizeStep computes the run KPIs.
type SummarizeStep struct{}

func (s *SummarizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Summary = Summarize(state.Bronze, state.Silver)
	return nil
}

// PublishStep hands Bronze, and Silver when the run is clean, to every publisher.
type PublishStep struct {
	Publishers []Publisher
}

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(s.Publishers) == 0 {
		return nil
	}

	bronze := BronzeRows(state.Bronze)
	for _, p := range s.Publishers {
		if err := p.PublishBronze(ctx, state.RunID, bronze); err != nil {
			return fmt.Errorf("PublishStep: bronze: %w", err)
		}
		if state.Clean() {
			if err := p.PublishSilver(ctx, state.RunID, state.Silver); err != nil {
				return fmt.Errorf("PublishStep: silver: %w", err)
			}
		}
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewIngestionPipeline creates the standard pipeline:
// normalize → bronze → validate → silver → summarize → publish.
func NewIngestionPipeline(tagger Tagger, publishers ...Publisher) *Pipeline {
	return NewPipeline(
		&NormalizeSourcesStep{Tagger: tagger},
		&AssembleBronzeStep{},
		&ValidateBronzeStep{},
		&AggregateSilverStep{},
		&SummarizeStep{},
		&PublishStep{Publishers: publishers},
	)
}

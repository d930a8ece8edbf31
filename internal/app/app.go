// Package app assembles the pipeline collaborators described by a Config.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/ledger-lake/internal/config"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/export"
	"github.com/dvloznov/ledger-lake/internal/gcs"
	"github.com/dvloznov/ledger-lake/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ledger-lake/internal/infra/bigquery"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
)

// Runtime holds the pipeline dependencies and the clients behind them.
type Runtime struct {
	Deps pipeline.Deps

	// Storage is set when GCS uploads are configured or requested.
	Storage gcs.StorageService

	// Repo is set when BigQuery publishing is configured.
	Repo infraBQ.LedgerRepository

	closers []io.Closer
}

// Build creates the configured publishers. Local exports need no client.
// A Cloud Storage client is created when cfg enables uploads or when
// needStorage is true, e.g. for gs:// inputs. A BigQuery client is created
// when cfg enables it; the resulting sink also records ingestion runs.
func Build(ctx context.Context, cfg *config.Config, needStorage bool) (*Runtime, error) {
	log := logger.FromContext(ctx)
	rt := &Runtime{}

	if cfg.Export.Dir != "" {
		rt.Deps.Publishers = append(rt.Deps.Publishers, &export.DirPublisher{
			Dir:     cfg.Export.Dir,
			Formats: cfg.Export.Formats,
		})
		log.Info().Str("dir", cfg.Export.Dir).Strs("formats", cfg.Export.Formats).Msg("Local export enabled")
	}

	if cfg.GCSEnabled() || needStorage {
		storage, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		rt.Storage = storage
		rt.closers = append(rt.closers, storage)
	}

	if cfg.GCSEnabled() {
		rt.Deps.Publishers = append(rt.Deps.Publishers, &export.GCSPublisher{
			Storage: rt.Storage,
			Bucket:  cfg.GCS.Bucket,
			Prefix:  cfg.GCS.Prefix,
			Formats: cfg.Export.Formats,
		})
		log.Info().Str("bucket", cfg.GCS.Bucket).Str("prefix", cfg.GCS.Prefix).Msg("GCS export enabled")
	}

	if cfg.BigQueryEnabled() {
		repo, err := infraBQ.NewBigQueryLedgerRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		rt.Repo = repo
		rt.closers = append(rt.closers, repo)

		sink := infraBQ.NewSink(repo)
		rt.Deps.Recorder = sink
		rt.Deps.Publishers = append(rt.Deps.Publishers, sink)
		log.Info().
			Str("project_id", cfg.BigQuery.ProjectID).
			Str("dataset_id", cfg.BigQuery.DatasetID).
			Msg("BigQuery publishing enabled")
	}

	return rt, nil
}

// Close releases every client, logging failures.
func (rt *Runtime) Close() {
	log := logger.New()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
	rt.closers = nil
}

// Mapping builds the column mapping from the configured source names.
func Mapping(cfg *config.Config) domain.ColumnMapping {
	return domain.BuildMapping(cfg.Mapping.Date, cfg.Mapping.Partner, cfg.Mapping.Amount)
}

package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-lake/internal/gcs"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the fetch limit used when FetchAll is given limit <= 0.
const DefaultConcurrency = 4

// Decode reads one file into a pipeline source. Decoding errors are kept on
// the source instead of being returned.
func Decode(name string, data []byte) pipeline.Source {
	batch, err := Read(name, data)
	return pipeline.Source{Name: name, Batch: batch, Err: err}
}

// FetchAll loads and decodes every location concurrently, at most limit at a
// time. Locations starting with gs:// are downloaded through storage; anything
// else is read from the local filesystem. The result has one source per
// location, in input order. A location that cannot be loaded yields a source
// with Err set. The returned error is non-nil only when ctx is cancelled.
func FetchAll(ctx context.Context, storage gcs.StorageService, locations []string, limit int) ([]pipeline.Source, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	log := logger.FromContext(ctx)

	sources := make([]pipeline.Source, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := fetch(gctx, storage, loc)
			if err != nil {
				sources[i] = pipeline.Source{Name: loc, Err: err}
			} else {
				sources[i] = Decode(loc, data)
			}

			if sources[i].Err != nil {
				log.Warn().Err(sources[i].Err).Str("location", loc).Msg("Failed to load source")
			} else {
				log.Debug().Str("location", loc).Int("rows", sources[i].Batch.Len()).Msg("Loaded source")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("FetchAll: %w", err)
	}
	return sources, nil
}

func fetch(ctx context.Context, storage gcs.StorageService, location string) ([]byte, error) {
	if gcs.IsGCSURI(location) {
		if storage == nil {
			return nil, fmt.Errorf("no storage client configured for %s", location)
		}
		return storage.FetchFromGCS(ctx, location)
	}

	data, err := os.ReadFile(filepath.Clean(location))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return data, nil
}

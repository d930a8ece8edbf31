package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/ledger-lake/internal/runs"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of runs NewStore keeps.
const DefaultCapacity = 100

// Store is an in-memory implementation of runs.Store.
// It is safe for concurrent use. Data is lost on restart. Once full, saving a
// new run evicts the least recently saved or read one.
type Store struct {
	runs *lru.Cache[string, *runs.Run]
}

// NewStore creates a run store holding up to DefaultCapacity runs.
func NewStore() *Store {
	s, err := NewStoreWithCapacity(DefaultCapacity)
	if err != nil {
		panic(err)
	}
	return s
}

// NewStoreWithCapacity creates a run store holding up to capacity runs.
func NewStoreWithCapacity(capacity int) (*Store, error) {
	cache, err := lru.New[string, *runs.Run](capacity)
	if err != nil {
		return nil, fmt.Errorf("NewStoreWithCapacity: %w", err)
	}
	return &Store{runs: cache}, nil
}

// SaveRun implements the runs.Store interface.
func (s *Store) SaveRun(ctx context.Context, run *runs.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	// Copy so callers cannot modify stored state
	runCopy := *run
	s.runs.Add(run.ID, &runCopy)

	return nil
}

// GetRun implements the runs.Store interface.
func (s *Store) GetRun(ctx context.Context, id string) (*runs.Run, error) {
	run, exists := s.runs.Get(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", runs.ErrRunNotFound, id)
	}

	runCopy := *run
	return &runCopy, nil
}

// ListRuns implements the runs.Store interface.
func (s *Store) ListRuns(ctx context.Context, filter runs.Filter) ([]*runs.Run, error) {
	stored := s.runs.Values()
	result := make([]*runs.Run, 0, len(stored))
	for _, run := range stored {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runCopy := *run
		result = append(result, &runCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*runs.Run{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements the runs.Store interface.
var _ runs.Store = (*Store)(nil)

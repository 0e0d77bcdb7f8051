package store

import (
	"context"
	"sync"

	"github.com/i474232898/fred-data-proxy/internal/fred"
)

// ObservationHistory holds the cached observations of one series keyed by date.
type ObservationHistory struct {
	Observations map[string]fred.Observation
}

// MemoryStore is a concurrency-safe in-memory cache backend. Nothing survives
// a restart; it exists for tests and throwaway deployments.
type MemoryStore struct {
	mu sync.RWMutex

	// key: series id
	data   map[string]*ObservationHistory
	series map[string]fred.SeriesMetadata
}

var _ fred.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]*ObservationHistory),
		series: make(map[string]fred.SeriesMetadata),
	}
}

func (s *MemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// PutObservations upserts rows for seriesID.
func (s *MemoryStore) PutObservations(ctx context.Context, seriesID string, rows []fred.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[seriesID]
	if !ok {
		history = &ObservationHistory{Observations: make(map[string]fred.Observation)}
		s.data[seriesID] = history
	}

	for _, row := range rows {
		row.SeriesID = seriesID
		history.Observations[row.Date.String()] = row
	}
	return nil
}

// GetObservations returns all rows for seriesID between since and until
// (inclusive, zero bounds open), ascending by date.
func (s *MemoryStore) GetObservations(ctx context.Context, seriesID string, since, until fred.Date) ([]fred.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[seriesID]
	if !ok {
		return nil, nil
	}

	var result []fred.Observation
	for _, obs := range history.Observations {
		if !since.IsZero() && obs.Date.Before(since) {
			continue
		}
		if !until.IsZero() && obs.Date.After(until) {
			continue
		}
		result = append(result, obs)
	}

	fred.SortObservations(result)
	return result, nil
}

func (s *MemoryStore) GetSeries(ctx context.Context, seriesID string) (fred.SeriesMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.series[seriesID]
	return meta, ok, nil
}

func (s *MemoryStore) PutSeries(ctx context.Context, meta fred.SeriesMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[meta.ID] = meta
	return nil
}

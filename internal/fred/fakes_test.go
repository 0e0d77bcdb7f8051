package fred

import (
	"context"
	"errors"
	"sync"
)

var errDiskFull = errors.New("disk full")

// fakeStore is an in-memory Store that counts calls.
type fakeStore struct {
	mu           sync.Mutex
	observations map[string]map[string]Observation
	series       map[string]SeriesMetadata

	reads      int
	obsWrites  int
	seriesPuts int

	getErr       error
	putErr       error
	getSeriesErr error
	putSeriesErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		observations: map[string]map[string]Observation{},
		series:       map[string]SeriesMetadata{},
	}
}

func (s *fakeStore) seed(seriesID string, rows ...Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observations[seriesID] == nil {
		s.observations[seriesID] = map[string]Observation{}
	}
	for _, r := range rows {
		r.SeriesID = seriesID
		s.observations[seriesID][r.Date.String()] = r
	}
}

func (s *fakeStore) count(seriesID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations[seriesID])
}

func (s *fakeStore) Initialize(ctx context.Context) error { return nil }

func (s *fakeStore) GetObservations(ctx context.Context, seriesID string, since, until Date) ([]Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.getErr != nil {
		return nil, &StorageError{Op: "get observations", Err: s.getErr}
	}
	var out []Observation
	for _, o := range s.observations[seriesID] {
		if inRange(o.Date, since, until) {
			out = append(out, o)
		}
	}
	SortObservations(out)
	return out, nil
}

func (s *fakeStore) PutObservations(ctx context.Context, seriesID string, rows []Observation) error {
	s.mu.Lock()
	s.obsWrites++
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return &StorageError{Op: "put observations", Err: err}
	}
	s.seed(seriesID, rows...)
	return nil
}

func (s *fakeStore) GetSeries(ctx context.Context, seriesID string) (SeriesMetadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.getSeriesErr != nil {
		return SeriesMetadata{}, false, &StorageError{Op: "get series", Err: s.getSeriesErr}
	}
	meta, ok := s.series[seriesID]
	return meta, ok, nil
}

func (s *fakeStore) PutSeries(ctx context.Context, meta SeriesMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seriesPuts++
	if s.putSeriesErr != nil {
		return &StorageError{Op: "put series", Err: s.putSeriesErr}
	}
	s.series[meta.ID] = meta
	return nil
}

// fakeUpstream answers from a fixed "truth" and records every call.
type fakeUpstream struct {
	mu     sync.Mutex
	truth  map[string][]Observation
	series map[string]SeriesMetadata
	calls  []RequestedRange

	seriesCalls int

	// failOnCall makes the n-th observations call (1-based) fail.
	failOnCall int
	err        error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		truth:  map[string][]Observation{},
		series: map[string]SeriesMetadata{},
	}
}

func (u *fakeUpstream) FetchObservations(ctx context.Context, q RequestedRange) ([]Observation, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, q)
	if u.err != nil && (u.failOnCall == 0 || u.failOnCall == len(u.calls)) {
		return nil, u.err
	}
	var out []Observation
	for _, o := range u.truth[q.SeriesID] {
		if inRange(o.Date, q.ObservationStart, q.ObservationEnd) {
			o.SeriesID = q.SeriesID
			out = append(out, o)
		}
	}
	return out, nil
}

func (u *fakeUpstream) FetchSeries(ctx context.Context, seriesID string) (SeriesMetadata, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seriesCalls++
	if u.err != nil {
		return SeriesMetadata{}, u.err
	}
	meta, ok := u.series[seriesID]
	if !ok {
		return SeriesMetadata{}, ErrNotFound
	}
	return meta, nil
}

func inRange(d, since, until Date) bool {
	if !since.IsZero() && d.Before(since) {
		return false
	}
	if !until.IsZero() && d.After(until) {
		return false
	}
	return true
}

// days builds one observation per calendar day in [from, to].
func days(from, to string, value string) []Observation {
	var out []Observation
	for d := MustParseDate(from); !d.After(MustParseDate(to)); d = d.AddDays(1) {
		out = append(out, Observation{Date: d, Value: value})
	}
	return out
}

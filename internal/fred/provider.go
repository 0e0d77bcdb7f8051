package fred

import "context"

// Upstream abstracts the FRED API. Every call is independent.
type Upstream interface {
	// FetchObservations returns all observations matching q, ascending by date,
	// following pagination until the provider is exhausted.
	FetchObservations(ctx context.Context, q RequestedRange) ([]Observation, error)

	// FetchSeries returns the metadata of one series, or ErrNotFound.
	FetchSeries(ctx context.Context, seriesID string) (SeriesMetadata, error)
}

// Store is the contract the cache backends (SQLite, in-memory) must satisfy.
// Zero since/until bounds are open.
type Store interface {
	Initialize(ctx context.Context) error
	GetObservations(ctx context.Context, seriesID string, since, until Date) ([]Observation, error)
	PutObservations(ctx context.Context, seriesID string, rows []Observation) error
	GetSeries(ctx context.Context, seriesID string) (SeriesMetadata, bool, error)
	PutSeries(ctx context.Context, meta SeriesMetadata) error
}

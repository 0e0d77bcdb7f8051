package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/fred-data-proxy/internal/fred"
)

//go:embed schema.sql
var schemaSQL string

// Open bounds for range scans; dates are stored as YYYY-MM-DD text so they
// compare lexically.
const (
	minDateKey = "0000-01-01"
	maxDateKey = "9999-12-31"
)

// SQLiteStore is the durable cache backend.
type SQLiteStore struct {
	db *sql.DB
}

var _ fred.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path with WAL mode
// and a busy timeout. Call Initialize before use.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Initialize creates the schema. It is safe to call on every start.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return &fred.StorageError{Op: "initialize", Err: err}
	}
	return nil
}

// GetObservations returns cached rows of seriesID in [since, until], ascending.
func (s *SQLiteStore) GetObservations(ctx context.Context, seriesID string, since, until fred.Date) ([]fred.Observation, error) {
	lo, hi := minDateKey, maxDateKey
	if !since.IsZero() {
		lo = since.String()
	}
	if !until.IsZero() {
		hi = until.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, value
		FROM realtime_observations
		WHERE series_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, seriesID, lo, hi)
	if err != nil {
		return nil, &fred.StorageError{Op: "get observations", Err: err}
	}
	defer rows.Close()

	var out []fred.Observation
	for rows.Next() {
		var dateStr, value string
		if err := rows.Scan(&dateStr, &value); err != nil {
			return nil, &fred.StorageError{Op: "get observations", Err: err}
		}
		d, err := fred.ParseDate(dateStr)
		if err != nil {
			return nil, &fred.StorageError{Op: "get observations", Err: fmt.Errorf("stored date formatted incorrectly: %w", err)}
		}
		out = append(out, fred.Observation{SeriesID: seriesID, Date: d, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, &fred.StorageError{Op: "get observations", Err: err}
	}
	return out, nil
}

// PutObservations upserts rows in one transaction; a row with an existing
// (series_id, date) key has its value replaced.
func (s *SQLiteStore) PutObservations(ctx context.Context, seriesID string, rows []fred.Observation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &fred.StorageError{Op: "put observations", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO realtime_observations (series_id, date, value)
		VALUES (?, ?, ?)
		ON CONFLICT (series_id, date) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return &fred.StorageError{Op: "put observations", Err: err}
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, seriesID, row.Date.String(), row.Value); err != nil {
			return &fred.StorageError{Op: "put observations", Err: fmt.Errorf("%s %s: %w", seriesID, row.Date, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &fred.StorageError{Op: "put observations", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// GetSeries returns the cached metadata of seriesID, if any.
func (s *SQLiteStore) GetSeries(ctx context.Context, seriesID string) (fred.SeriesMetadata, bool, error) {
	var m fred.SeriesMetadata
	var rtStart, rtEnd, obsStart, obsEnd, lastUpdated string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, realtime_start, realtime_end, title, observation_start, observation_end,
			frequency, frequency_short, units, units_short,
			seasonal_adjustment, seasonal_adjustment_short, last_updated, popularity, notes
		FROM series
		WHERE id = ?
	`, seriesID).Scan(
		&m.ID, &rtStart, &rtEnd, &m.Title, &obsStart, &obsEnd,
		&m.Frequency, &m.FrequencyShort, &m.Units, &m.UnitsShort,
		&m.SeasonalAdjustment, &m.SeasonalAdjustmentShort, &lastUpdated, &m.Popularity, &m.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fred.SeriesMetadata{}, false, nil
	}
	if err != nil {
		return fred.SeriesMetadata{}, false, &fred.StorageError{Op: "get series", Err: err}
	}

	for _, f := range []struct {
		dst *fred.Date
		src string
	}{
		{&m.RealtimeStart, rtStart},
		{&m.RealtimeEnd, rtEnd},
		{&m.ObservationStart, obsStart},
		{&m.ObservationEnd, obsEnd},
	} {
		if *f.dst, err = fred.ParseDate(f.src); err != nil {
			return fred.SeriesMetadata{}, false, &fred.StorageError{Op: "get series", Err: err}
		}
	}
	if m.LastUpdated, err = fred.ParseTimestamp(lastUpdated); err != nil {
		return fred.SeriesMetadata{}, false, &fred.StorageError{Op: "get series", Err: err}
	}

	return m, true, nil
}

// PutSeries upserts metadata unconditionally.
func (s *SQLiteStore) PutSeries(ctx context.Context, m fred.SeriesMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series (
			id, realtime_start, realtime_end, title, observation_start, observation_end,
			frequency, frequency_short, units, units_short,
			seasonal_adjustment, seasonal_adjustment_short, last_updated, popularity, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			realtime_start = excluded.realtime_start,
			realtime_end = excluded.realtime_end,
			title = excluded.title,
			observation_start = excluded.observation_start,
			observation_end = excluded.observation_end,
			frequency = excluded.frequency,
			frequency_short = excluded.frequency_short,
			units = excluded.units,
			units_short = excluded.units_short,
			seasonal_adjustment = excluded.seasonal_adjustment,
			seasonal_adjustment_short = excluded.seasonal_adjustment_short,
			last_updated = excluded.last_updated,
			popularity = excluded.popularity,
			notes = excluded.notes
	`,
		m.ID, m.RealtimeStart.String(), m.RealtimeEnd.String(), m.Title,
		m.ObservationStart.String(), m.ObservationEnd.String(),
		m.Frequency, m.FrequencyShort, m.Units, m.UnitsShort,
		m.SeasonalAdjustment, m.SeasonalAdjustmentShort, m.LastUpdated.String(), m.Popularity, m.Notes,
	)
	if err != nil {
		return &fred.StorageError{Op: "put series", Err: err}
	}
	return nil
}

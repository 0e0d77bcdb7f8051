package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/fred-data-proxy/internal/fred"
	"github.com/i474232898/fred-data-proxy/internal/store"
)

// stubUpstream serves canned data and counts observation calls.
type stubUpstream struct {
	mu    sync.Mutex
	calls int
	rows  []fred.Observation
	meta  map[string]fred.SeriesMetadata
	err   error
}

func (s *stubUpstream) FetchObservations(ctx context.Context, q fred.RequestedRange) ([]fred.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []fred.Observation
	for _, r := range s.rows {
		if !q.ObservationStart.IsZero() && r.Date.Before(q.ObservationStart) {
			continue
		}
		if !q.ObservationEnd.IsZero() && r.Date.After(q.ObservationEnd) {
			continue
		}
		r.SeriesID = q.SeriesID
		out = append(out, r)
	}
	return out, nil
}

func (s *stubUpstream) FetchSeries(ctx context.Context, seriesID string) (fred.SeriesMetadata, error) {
	if s.err != nil {
		return fred.SeriesMetadata{}, s.err
	}
	meta, ok := s.meta[seriesID]
	if !ok {
		return fred.SeriesMetadata{}, fred.ErrNotFound
	}
	return meta, nil
}

// newTestApp mirrors the production error handler.
func newTestApp(up fred.Upstream) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	RegisterRoutes(app, fred.NewService(store.NewMemoryStore(), up))
	return app
}

func get(t *testing.T, app *fiber.App, target string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestObservationsValidation(t *testing.T) {
	app := newTestApp(&stubUpstream{})

	for _, target := range []string{
		"/v0/observations",
		"/v0/observations?series_id=SP500&observation_start=2020-13-01",
		"/v0/observations?series_id=SP500&realtime_end=yesterday",
		"/v0/observations?series_id=SP500&observation_start=2020-01-10&observation_end=2020-01-01",
	} {
		status, _ := get(t, app, target)
		assert.Equal(t, http.StatusBadRequest, status, target)
	}
}

func TestObservationsServedFromCacheOnRepeat(t *testing.T) {
	up := &stubUpstream{rows: []fred.Observation{
		{Date: fred.MustParseDate("2020-01-02"), Value: "3257.85"},
		{Date: fred.MustParseDate("2020-01-03"), Value: "3234.85"},
		{Date: fred.MustParseDate("2020-01-06"), Value: "3246.28"},
	}}
	app := newTestApp(up)
	target := "/v0/observations?series_id=SP500&observation_start=2020-01-02&observation_end=2020-01-06"

	status, body := get(t, app, target)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[
		{"date":"2020-01-02","value":"3257.85"},
		{"date":"2020-01-03","value":"3234.85"},
		{"date":"2020-01-06","value":"3246.28"}
	]`, string(body))

	status, _ = get(t, app, target)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, up.calls)

	// Empty optional dates mean "not provided".
	status, body = get(t, app, "/v0/observations?series_id=SP500&observation_start=&observation_end=")
	require.Equal(t, http.StatusOK, status)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, 3)
	assert.Equal(t, 1, up.calls)
}

func TestObservationsEmptyResultIsArray(t *testing.T) {
	app := newTestApp(&stubUpstream{})
	status, body := get(t, app, "/v0/observations?series_id=NONE&observation_start=2020-01-01")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", string(body))
}

func TestUpstreamStatusIsForwarded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", &fred.UpstreamError{StatusCode: 429, Message: "Too Many Requests"}, http.StatusTooManyRequests},
		{"bad request", &fred.UpstreamError{StatusCode: 400, Message: "Bad Request"}, http.StatusBadRequest},
		{"no status", &fred.UpstreamError{Message: "connection refused"}, http.StatusServiceUnavailable},
		{"nonsense status", &fred.UpstreamError{StatusCode: 42}, http.StatusServiceUnavailable},
		{"storage", &fred.StorageError{Op: "get", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&stubUpstream{err: tt.err})

			status, body := get(t, app, "/v0/observations?series_id=SP500&realtime_start=2015-01-01")
			assert.Equal(t, tt.want, status)
			assert.Contains(t, string(body), `"error":true`)

			status, _ = get(t, app, "/v0/series?series_id=SP500")
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestSeries(t *testing.T) {
	ts, err := fred.ParseTimestamp("2013-07-31 09:26:16-05")
	require.NoError(t, err)
	up := &stubUpstream{meta: map[string]fred.SeriesMetadata{
		"GNPCA": {
			ID:               "GNPCA",
			Title:            "Real Gross National Product",
			ObservationStart: fred.MustParseDate("1929-01-01"),
			ObservationEnd:   fred.MustParseDate("2012-01-01"),
			RealtimeStart:    fred.MustParseDate("2013-08-14"),
			RealtimeEnd:      fred.MustParseDate("2013-08-14"),
			Frequency:        "Annual",
			FrequencyShort:   "A",
			LastUpdated:      ts,
			Popularity:       39,
		},
	}}
	app := newTestApp(up)

	status, body := get(t, app, "/v0/series?series_id=GNPCA")
	require.Equal(t, http.StatusOK, status)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "GNPCA", got["id"])
	assert.Equal(t, "1929-01-01", got["observation_start"])
	assert.Equal(t, "2013-07-31 14:26:16+00", got["last_updated"])
	assert.Equal(t, float64(39), got["popularity"])

	status, _ = get(t, app, "/v0/series?series_id=MISSING")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, app, "/v0/series")
	assert.Equal(t, http.StatusBadRequest, status)
}

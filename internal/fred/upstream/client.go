package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/fred-data-proxy/internal/fred"
	"github.com/i474232898/fred-data-proxy/internal/logger"
)

const (
	// DefaultBaseURL is the public FRED API root.
	DefaultBaseURL = "https://api.stlouisfed.org/fred"

	// DefaultPageSize is the largest page FRED serves for observations.
	DefaultPageSize = 10_000
)

// Config holds the FRED client settings.
type Config struct {
	BaseURL string
	APIKey  string

	// PageSize is the observations page limit; 0 means DefaultPageSize.
	PageSize int

	// RequestsPerSecond and Burst size the token bucket in front of every
	// request. RequestsPerSecond <= 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client implements fred.Upstream against the FRED REST API.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	circuit  *gobreaker.CircuitBreaker
	log      *logger.Entry
}

var _ fred.Upstream = (*Client)(nil)

// NewClient creates a FRED client on top of the shared HTTP client, whose
// Timeout bounds every call.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fred",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		http:     httpClient,
		limiter:  limiter,
		circuit:  cb,
		log:      logger.GetLogger().WithComponent("fred-client"),
	}
}

type observationsPayload struct {
	Count        int `json:"count"`
	Offset       int `json:"offset"`
	Limit        int `json:"limit"`
	Observations []struct {
		Date  fred.Date `json:"date"`
		Value string    `json:"value"`
	} `json:"observations"`
}

type seriesPayload struct {
	Seriess []fred.SeriesMetadata `json:"seriess"`
}

// FetchObservations pages through series/observations until a page comes back
// shorter than the page size. A failure on any page fails the whole call.
func (c *Client) FetchObservations(ctx context.Context, q fred.RequestedRange) ([]fred.Observation, error) {
	var (
		observations []fred.Observation
		offset       int
	)

	for {
		params := c.observationParams(q, offset)

		var page observationsPayload
		if err := c.get(ctx, "series/observations", params, &page); err != nil {
			return nil, err
		}

		for _, o := range page.Observations {
			observations = append(observations, fred.Observation{
				SeriesID: q.SeriesID,
				Date:     o.Date,
				Value:    o.Value,
			})
		}

		if len(page.Observations) < c.pageSize {
			break
		}
		offset += len(page.Observations)
	}

	return observations, nil
}

// FetchSeries returns the first series of the series endpoint's response.
func (c *Client) FetchSeries(ctx context.Context, seriesID string) (fred.SeriesMetadata, error) {
	values := c.baseParams()
	values.Set("series_id", seriesID)

	var payload seriesPayload
	if err := c.get(ctx, "series", values, &payload); err != nil {
		return fred.SeriesMetadata{}, err
	}
	if len(payload.Seriess) == 0 {
		return fred.SeriesMetadata{}, fred.ErrNotFound
	}
	return payload.Seriess[0], nil
}

func (c *Client) baseParams() url.Values {
	values := url.Values{}
	values.Set("api_key", c.apiKey)
	values.Set("file_type", "json")
	return values
}

func (c *Client) observationParams(q fred.RequestedRange, offset int) url.Values {
	values := c.baseParams()
	values.Set("limit", strconv.Itoa(c.pageSize))
	values.Set("sort_order", "asc")
	values.Set("series_id", q.SeriesID)

	optional := map[string]fred.Date{
		"observation_start": q.ObservationStart,
		"observation_end":   q.ObservationEnd,
		"realtime_start":    q.RealtimeStart,
		"realtime_end":      q.RealtimeEnd,
	}
	for key, d := range optional {
		if !d.IsZero() {
			values.Set(key, d.String())
		}
	}

	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	return values
}

func (c *Client) get(ctx context.Context, endpoint string, values url.Values, dst interface{}) error {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, values.Encode())

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	began := time.Now()
	status, body, err := doRequest(ctx, c.http, c.limiter, c.circuit, buildRequest)
	if err == nil {
		err = decodePayload(status, body, dst)
	}

	entry := c.log.WithFields(logger.Fields{
		"endpoint":    endpoint,
		"series_id":   values.Get("series_id"),
		"offset":      values.Get("offset"),
		"status":      status,
		"duration_ms": float64(time.Since(began).Nanoseconds()) / 1e6,
	})
	if err != nil {
		entry.WithError(err).Warn("fred request failed")
		return err
	}
	entry.Debug("fred request completed")
	return nil
}

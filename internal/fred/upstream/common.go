package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/fred-data-proxy/internal/fred"
)

var (
	errNoHTTPClient = errors.New("http client not configured")
	errCircuitOpen  = errors.New("circuit breaker open")
)

// maxErrorBody bounds how much of a non-JSON error body ends up in a message.
const maxErrorBody = 512

// statusFailure carries a response the breaker should count as a failure.
type statusFailure struct {
	status int
	body   []byte
}

func (e *statusFailure) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.status)
}

// providerError is the payload FRED sends instead of data, sometimes with HTTP 200.
type providerError struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// doRequest executes one GET through the rate limiter and the circuit breaker
// and returns the status and body. There are no retries: any failure is
// returned as a *fred.UpstreamError.
func doRequest(
	ctx context.Context,
	client *http.Client,
	limiter *rate.Limiter,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (int, []byte, error) {
	if client == nil {
		return 0, nil, &fred.UpstreamError{Message: errNoHTTPClient.Error()}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return 0, nil, transportError(err)
		}
	}

	req, err := buildRequest()
	if err != nil {
		return 0, nil, &fred.UpstreamError{StatusCode: http.StatusInternalServerError, Message: err.Error()}
	}
	req = req.WithContext(ctx)

	type response struct {
		status int
		body   []byte
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}

		// Rate limiting and server errors count against the breaker.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &statusFailure{status: resp.StatusCode, body: body}
		}
		return response{status: resp.StatusCode, body: body}, nil
	})

	if err != nil {
		var sf *statusFailure
		switch {
		case errors.As(err, &sf):
			return sf.status, sf.body, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return 0, nil, &fred.UpstreamError{
				StatusCode: http.StatusServiceUnavailable,
				Message:    fmt.Sprintf("%v: %v", errCircuitOpen, err),
			}
		default:
			return 0, nil, transportError(err)
		}
	}

	resp, ok := result.(response)
	if !ok {
		return 0, nil, &fred.UpstreamError{Message: "unexpected result type from circuit breaker"}
	}
	return resp.status, resp.body, nil
}

// transportError classifies a failure that produced no HTTP response.
// Timeouts become a synthetic 503 so callers can treat them as retryable.
func transportError(err error) *fred.UpstreamError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &fred.UpstreamError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "upstream request timed out",
		}
	}
	return &fred.UpstreamError{Message: err.Error()}
}

// decodePayload turns a response into dst, or into an UpstreamError when the
// body is a provider error payload, the status is not 2xx, or the body is
// not the expected JSON.
func decodePayload(status int, body []byte, dst interface{}) error {
	var perr providerError
	if err := json.Unmarshal(body, &perr); err == nil && perr.ErrorCode != 0 {
		return &fred.UpstreamError{StatusCode: perr.ErrorCode, Message: perr.ErrorMessage}
	}

	if status < 200 || status >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &fred.UpstreamError{StatusCode: status, Message: msg}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &fred.UpstreamError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("malformed response: %v", err),
		}
	}
	return nil
}

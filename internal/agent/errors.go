package agent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConfigured is returned when a client has no API key.
	ErrNotConfigured = errors.New("agent: client not configured")

	// ErrRateLimited is returned on HTTP 429 from a provider.
	ErrRateLimited = errors.New("agent: rate limit exceeded")

	// ErrModelUnavailable is returned on 5xx from a provider.
	ErrModelUnavailable = errors.New("agent: model temporarily unavailable")

	// ErrAPICallFailed wraps every other non-2xx response.
	ErrAPICallFailed = errors.New("agent: API call failed")

	// ErrMalformedResponse is returned when the model output holds no usable JSON.
	ErrMalformedResponse = errors.New("agent: malformed model response")

	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("agent: empty model response")
)

const maxErrorBody = 512

// statusError maps a provider HTTP status to one of the sentinel errors,
// keeping a truncated copy of the response body for the log.
func statusError(provider string, resp *http.Response, body []byte) error {
	var base error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		base = ErrRateLimited
	case resp.StatusCode >= 500:
		base = ErrModelUnavailable
	default:
		base = ErrAPICallFailed
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("%w: %s returned %s: %s", base, provider, resp.Status, string(body))
}

// Package upstream performs the GET-and-decode round trip shared by the
// water-data adapters and maps failures onto domain error kinds.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
)

// maxErrorBody bounds how much of a failed response is kept for the error message.
const maxErrorBody = 512

// maxBody bounds a successful response body.
const maxBody = 64 << 20

// Get issues a GET request and returns the response body. Non-2xx statuses,
// transport failures and timeouts are returned as *domain.FetchError.
func Get(ctx context.Context, client *http.Client, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.FetchError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, transportError(err)
	}
	return body, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.FetchError{Timeout: true, Cause: err}
	}
	return &domain.FetchError{Cause: err}
}

// Malformed wraps a decode failure as domain.ErrMalformedResponse.
func Malformed(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
}

// Outcome classifies a fetch result for metrics labels.
func Outcome(err error, n int) string {
	var fe *domain.FetchError
	switch {
	case err == nil && n == 0:
		return "empty"
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case errors.As(err, &fe) && fe.Timeout:
		return "timeout"
	case errors.As(err, &fe) && fe.Status != 0:
		return "http_error"
	default:
		return "network"
	}
}

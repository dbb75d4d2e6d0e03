package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// Resolution errors. The Crawler sorts every resolver failure into one of
// these classes with errors.Is / errors.As.
var (
	// ErrTimeout means the request did not complete within the per-request
	// timeout. The URL is reinstated after a cooldown.
	ErrTimeout = errors.New("request timed out")

	// ErrInvalidURL means the URL cannot be requested at all.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrUnreachable means the host could not be reached (DNS failure,
	// connection refused, TLS failure, too many redirects).
	ErrUnreachable = errors.New("host unreachable")

	// ErrSeedUnresolvable is returned by Crawl when the seed page fails.
	ErrSeedUnresolvable = errors.New("seed URL could not be resolved")
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status signals throttling rather than a
// missing page.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// isRetryable reports whether err should trigger the cooldown and a
// reinstatement instead of marking the URL invalid.
func isRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return false
}

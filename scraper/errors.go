package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransportError reports a page fetch that failed on the wire or with an
// HTTP error status. It aborts the crawl.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind(), e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind(), e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s: http status %d", e.URL, e.Kind(), e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Kind is the metric label for the failure.
func (e *TransportError) Kind() string {
	return classifyError(e.Err, e.StatusCode)
}

func classifyError(err error, statusCode int) string {
	if err == nil && statusCode == 0 {
		return "unknown"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}

	switch {
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	}
	return "other"
}

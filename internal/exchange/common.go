package exchange

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// isNetworkFailure classifies an error returned from a REST call as a
// breaker-counting failure (connection/timeout/5xx) versus something the
// breaker should ignore (a 4xx ExchangeError, a context cancellation).
func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	var exchErr *ExchangeError
	if errors.As(err, &exchErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return true
}

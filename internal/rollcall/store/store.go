package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrRateLimited and ErrUnavailable mark failures worth retrying.
	ErrRateLimited = errors.New("store: rate limited")
	ErrUnavailable = errors.New("store: temporarily unavailable")
)

// StatusError carries an HTTP-style status code from a remote backend.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("store: status %d", e.Code)
	}
	return fmt.Sprintf("store: status %d: %s", e.Code, e.Msg)
}

// Unwrap maps quota and availability codes onto the retryable sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrUnavailable
	}
	return nil
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrMalformedResponse = errors.New("malformed response")
	ErrLockHeld          = errors.New("lock already held")
	ErrParse             = errors.New("parse failure")
)

// NetworkError is a transport-level failure talking to the exchange: DNS,
// refused connections, timeouts, cancelled contexts.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// APIError is a non-success HTTP response from the exchange.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kalshi api error %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("kalshi api error %d: %s", e.StatusCode, e.Message)
}

// ParseError marks a single malformed market record. Callers ranking a batch
// skip the record and carry on.
type ParseError struct {
	Ticker string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Ticker != "" {
		return fmt.Sprintf("parse market %s: %s: %s", e.Ticker, e.Field, e.Reason)
	}
	return fmt.Sprintf("parse market: %s: %s", e.Field, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

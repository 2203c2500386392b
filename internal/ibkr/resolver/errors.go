package resolver

import (
	"errors"
	"fmt"
)

// ErrNotFound means the gateway knows no contract for the request.
var ErrNotFound = errors.New("contract not found")

// ServerError wraps a gateway failure or rejection.
type ServerError struct {
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway lookup failed: %s", e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// InvalidTickerError is returned for option tickers that fail validation.
type InvalidTickerError struct {
	Ticker string
	Reason error
}

func (e *InvalidTickerError) Error() string {
	return fmt.Sprintf("invalid option ticker %q: %v", e.Ticker, e.Reason)
}

func (e *InvalidTickerError) Unwrap() error {
	return e.Reason
}

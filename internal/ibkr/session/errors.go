package session

import "fmt"

// TransportError reports a dial, read or write failure on the market-data
// connection. It always ends the session.
type TransportError struct {
	Op  string // "dial", "read" or "subscribe"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

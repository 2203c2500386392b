package stream

import (
	"encoding/json"
	"errors"
)

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrNotObjectOrArray = errors.New("frame is not a json object or array")

	// ErrRecordRejected marks a record without a usable contract id.
	ErrRecordRejected = errors.New("record rejected: missing or invalid conid")
)

// RawRecord is one flat market-data object as it came off the wire. Values
// stay undecoded until a field coercion reads them.
type RawRecord map[string]json.RawMessage

// DecodeResult is one of ControlToken, DataBatch or Unparsable.
type DecodeResult interface {
	isDecodeResult()
}

// ControlToken is the session handshake frame carrying the session token.
type ControlToken struct {
	Token string
}

// DataBatch holds the records of one data frame in wire order.
type DataBatch struct {
	Records []RawRecord
}

// Unparsable is a frame that is not a JSON object or array of objects.
type Unparsable struct {
	Err error
}

func (ControlToken) isDecodeResult() {}
func (DataBatch) isDecodeResult()    {}
func (Unparsable) isDecodeResult()   {}

package aerostat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyCommandField is returned when a ballast or gas value is empty.
	// Nothing is written to the transport.
	ErrEmptyCommandField = errors.New("command ballast and gas values must not be empty")

	// ErrTransportClosed is returned when a command is sent without an open transport.
	ErrTransportClosed = errors.New("transport is not open")
)

// TransportError is an I/O failure on the transport. On the read path it ends
// the ingest for that transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Cause() error {
	return e.Err
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a telemetry line that claimed to be a frame but could not be
// decoded. The frame is dropped.
type DecodeError struct {
	Line   string
	Field  string
	Index  int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode: %s", e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("decode: field %s at index %d: %s: %v", e.Field, e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: field %s at index %d: %s", e.Field, e.Index, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

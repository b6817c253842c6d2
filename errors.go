package gvsingest

import (
	"errors"
	"fmt"

	"github.com/hupe1980/gvsingest/bulk"
)

var (
	// ErrNoResponse is wrapped by write failures for which the executor
	// returned neither a response nor an error.
	ErrNoResponse = errors.New("no response")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("loader closed")
)

// ConfigurationError indicates an unusable setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// WriteFailure describes one document the store did not create.
//
// The underlying error, if any, can be accessed via errors.Unwrap.
type WriteFailure struct {
	DocumentID    string
	PartitionKey  int64
	StatusCode    int
	SubStatusCode int
	Outcome       Outcome
	Err           error
}

func newWriteFailure(res bulk.Result, outcome Outcome) *WriteFailure {
	f := &WriteFailure{
		DocumentID:   res.Operation.ID,
		PartitionKey: res.Operation.PartitionKey,
		Outcome:      outcome,
		Err:          res.Err,
	}
	if res.Response != nil {
		f.StatusCode = res.Response.StatusCode
		f.SubStatusCode = res.Response.SubStatusCode
	}
	return f
}

func (e *WriteFailure) Error() string {
	switch e.Outcome {
	case OutcomeUnsuccessful:
		return fmt.Sprintf("document %s (partition %d): status %d, sub-status %d",
			e.DocumentID, e.PartitionKey, e.StatusCode, e.SubStatusCode)
	case OutcomeNoResponse:
		return fmt.Sprintf("document %s (partition %d): %v", e.DocumentID, e.PartitionKey, ErrNoResponse)
	default:
		return fmt.Sprintf("document %s (partition %d): %v", e.DocumentID, e.PartitionKey, e.Err)
	}
}

func (e *WriteFailure) Unwrap() error {
	if e.Outcome == OutcomeNoResponse {
		return ErrNoResponse
	}
	return e.Err
}

package bulk

import (
	"context"
	"errors"

	"github.com/hupe1980/gvsingest/bundle"
)

// Status codes reported in ItemResponse.
const (
	StatusCreated         = 201
	StatusConflict        = 409
	StatusTooManyRequests = 429
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("bulk: executor closed")

// Operation is one create request for a document.
type Operation struct {
	ID           string
	PartitionKey int64
	Document     *bundle.Document
}

// NewCreateOperation creates the operation for doc. The document id is the
// item id and the sample id is the partition key.
func NewCreateOperation(doc *bundle.Document) Operation {
	return Operation{
		ID:           doc.ID,
		PartitionKey: doc.SampleID,
		Document:     doc,
	}
}

// ItemResponse is the store's answer for one operation.
type ItemResponse struct {
	StatusCode    int
	SubStatusCode int
	// Attempts is the number of write calls the item took part in.
	Attempts int
}

// IsSuccess reports a 2xx status.
func (r *ItemResponse) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Result pairs an operation with its outcome. Exactly one of Response and
// Err is normally set; both nil means the executor produced no response.
type Result struct {
	Operation Operation
	Response  *ItemResponse
	Err       error
}

// Executor writes operations to a document store.
type Executor interface {
	// Execute submits ops and returns one result per op, in op order.
	// Per-item failures are reported in the results, never as a call error.
	Execute(ctx context.Context, ops []Operation) []Result

	// Close releases the executor. It is safe to call more than once.
	Close() error
}

func newResults(ops []Operation) []Result {
	results := make([]Result, len(ops))
	for i, op := range ops {
		results[i].Operation = op
	}
	return results
}

func failAll(results []Result, err error) []Result {
	for i := range results {
		results[i].Err = err
	}
	return results
}

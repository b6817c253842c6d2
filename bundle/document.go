package bundle

import (
	"strconv"
	"sync/atomic"

	"github.com/hupe1980/gvsingest/record"
)

// Location is the inclusive genomic span of a document.
type Location struct {
	Start int64 `json:"start" dynamodbav:"start"`
	End   int64 `json:"end" dynamodbav:"end"`
}

// FieldDescriptor describes one field of the source record schema. It lets
// consumers re-inflate fields that normalization removed.
type FieldDescriptor struct {
	Name string `json:"name" dynamodbav:"name"`
	Type string `json:"type" dynamodbav:"type"`
}

// Document is the unit of storage: contiguous records of one sample on one
// chromosome.
//
// Once sealed by the Bundler a Document must be treated as immutable.
type Document struct {
	ID         string            `json:"id" dynamodbav:"id"`
	SampleID   int64             `json:"sample_id" dynamodbav:"sample_id"`
	Chromosome int64             `json:"chromosome" dynamodbav:"chromosome"`
	Location   Location          `json:"location" dynamodbav:"location"`
	Schema     []FieldDescriptor `json:"schema" dynamodbav:"schema"`
	DropState  string            `json:"dropState,omitempty" dynamodbav:"dropState,omitempty"`
	Entries    []*record.Record  `json:"entries" dynamodbav:"entries"`
}

// NumericID returns the document id as an integer. Ids produced by the
// Bundler always parse.
func (d *Document) NumericID() (uint64, bool) {
	id, err := strconv.ParseUint(d.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Counter is a monotonic counter safe for concurrent use.
//
// Record and document counters are shared across every file of a run by
// passing the same *Counter to each Bundler.
type Counter struct {
	n atomic.Int64
}

// Inc increments the counter and returns the new value.
func (c *Counter) Inc() int64 { return c.n.Add(1) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.n.Load() }

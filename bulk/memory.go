package bulk

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/codec"
)

// MemoryExecutor keeps items in memory with create semantics: a second
// create of the same id in the same partition reports 409.
// It is used for dry runs and tests. Thread-safe.
type MemoryExecutor struct {
	codec codec.Codec

	mu     sync.Mutex
	items  map[string]map[string]types.AttributeValue
	order  []string
	closed bool
}

// NewMemoryExecutor creates an empty executor. Items are marshalled with
// c exactly as DynamoDBExecutor would; nil means codec.None.
func NewMemoryExecutor(c codec.Codec) *MemoryExecutor {
	if c == nil {
		c = codec.None{}
	}
	return &MemoryExecutor{
		codec: c,
		items: make(map[string]map[string]types.AttributeValue),
	}
}

// Execute implements Executor.
func (m *MemoryExecutor) Execute(ctx context.Context, ops []Operation) []Result {
	results := newResults(ops)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return failAll(results, ErrClosed)
	}

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		item, err := marshalForWrite(op.Document, m.codec)
		if err != nil {
			results[i].Err = err
			continue
		}
		key := fmt.Sprintf("%d/%s", op.PartitionKey, op.ID)
		if _, ok := m.items[key]; ok {
			results[i].Response = &ItemResponse{StatusCode: StatusConflict, Attempts: 1}
			continue
		}
		m.items[key] = item
		m.order = append(m.order, key)
		results[i].Response = &ItemResponse{StatusCode: StatusCreated, Attempts: 1}
	}
	return results
}

// Len returns the number of stored items.
func (m *MemoryExecutor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Items returns the stored items in insertion order.
func (m *MemoryExecutor) Items() []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]types.AttributeValue, len(m.order))
	for i, k := range m.order {
		out[i] = m.items[k]
	}
	return out
}

// Documents decodes the stored items in insertion order.
func (m *MemoryExecutor) Documents() ([]*bundle.Document, error) {
	items := m.Items()
	docs := make([]*bundle.Document, len(items))
	for i, item := range items {
		d, err := UnmarshalItem(item)
		if err != nil {
			return nil, err
		}
		docs[i] = d
	}
	return docs, nil
}

// Close implements Executor.
func (m *MemoryExecutor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

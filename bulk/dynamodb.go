package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/gvsingest/codec"
	"github.com/hupe1980/gvsingest/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Client is the subset of the DynamoDB API the executor needs.
type Client interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// MaxBatchWriteItems is the DynamoDB limit for one BatchWriteItem call.
const MaxBatchWriteItems = 25

// ExecutionOptions tune how operations are split and paced.
type ExecutionOptions struct {
	// MaxMicroBatchSize caps items per write call. Default 25.
	MaxMicroBatchSize int

	// MaxMicroBatchConcurrency caps micro-batches in flight across every
	// Execute call of the executor. Default 1.
	MaxMicroBatchConcurrency int

	// MinMicroBatchRetryRate and MaxMicroBatchRetryRate bound the tolerated
	// share of unprocessed items. Above the band the effective micro-batch
	// size shrinks, below it the size grows back. Defaults 0.1 and 0.2.
	MinMicroBatchRetryRate float64
	MaxMicroBatchRetryRate float64

	// MaxMicroBatchInterval caps the backoff between retries. Default 1s.
	MaxMicroBatchInterval time.Duration

	// MaxRetries bounds retries of unprocessed items. Default 10.
	MaxRetries int

	// TargetThroughput paces writes in items per second. 0 is unlimited.
	TargetThroughput int64

	// EntriesCodec compresses the entries attribute. Default zstd, which
	// keeps full documents under MaxItemSize. nil or codec.None stores a
	// plain list.
	EntriesCodec codec.Codec

	// CreateOnly writes each item with a conditional put so existing ids
	// report 409 instead of being overwritten. Batching is not used.
	CreateOnly bool
}

// DefaultExecutionOptions returns the defaults.
func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		MaxMicroBatchSize:        MaxBatchWriteItems,
		MaxMicroBatchConcurrency: 1,
		MinMicroBatchRetryRate:   0.1,
		MaxMicroBatchRetryRate:   0.2,
		MaxMicroBatchInterval:    time.Second,
		MaxRetries:               10,
		EntriesCodec:             codec.ZSTD{},
	}
}

// Validate checks the options.
func (o ExecutionOptions) Validate() error {
	switch {
	case o.MaxMicroBatchSize < 1 || o.MaxMicroBatchSize > MaxBatchWriteItems:
		return fmt.Errorf("bulk: max micro batch size must be in [1, %d], got %d", MaxBatchWriteItems, o.MaxMicroBatchSize)
	case o.MaxMicroBatchConcurrency < 1:
		return fmt.Errorf("bulk: max micro batch concurrency must be positive, got %d", o.MaxMicroBatchConcurrency)
	case o.MinMicroBatchRetryRate < 0 || o.MaxMicroBatchRetryRate > 1 || o.MinMicroBatchRetryRate > o.MaxMicroBatchRetryRate:
		return fmt.Errorf("bulk: invalid retry rate band [%g, %g]", o.MinMicroBatchRetryRate, o.MaxMicroBatchRetryRate)
	case o.MaxMicroBatchInterval <= 0:
		return fmt.Errorf("bulk: max micro batch interval must be positive, got %s", o.MaxMicroBatchInterval)
	case o.MaxRetries < 0:
		return fmt.Errorf("bulk: max retries must not be negative, got %d", o.MaxRetries)
	case o.TargetThroughput < 0:
		return fmt.Errorf("bulk: target throughput must not be negative, got %d", o.TargetThroughput)
	}
	return nil
}

// initialBackoff is the first wait before retrying unprocessed items.
const initialBackoff = 50 * time.Millisecond

// DynamoDBExecutor writes documents to one DynamoDB table.
//
// Table schema:
//   - Partition key: sample_id (number)
//   - Sort key: id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name gvs.vets \
//	  --attribute-definitions AttributeName=sample_id,AttributeType=N AttributeName=id,AttributeType=S \
//	  --key-schema AttributeName=sample_id,KeyType=HASH AttributeName=id,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoDBExecutor struct {
	client Client
	table  string
	opts   ExecutionOptions
	rc     *resource.Controller

	// effective micro-batch size, adapted to the observed retry rate
	size atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewDynamoDBExecutor creates an executor for table.
func NewDynamoDBExecutor(client Client, table string, opts ExecutionOptions) (*DynamoDBExecutor, error) {
	if table == "" {
		return nil, errors.New("bulk: table name is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.EntriesCodec == nil {
		opts.EntriesCodec = codec.None{}
	}

	e := &DynamoDBExecutor{
		client: client,
		table:  table,
		opts:   opts,
		rc: resource.NewController(resource.Config{
			MaxInFlightBatches: int64(opts.MaxMicroBatchConcurrency),
			ItemsPerSecond:     opts.TargetThroughput,
		}),
	}
	e.size.Store(int64(opts.MaxMicroBatchSize))
	return e, nil
}

// Table returns the target table name.
func (e *DynamoDBExecutor) Table() string { return e.table }

// MicroBatchSize returns the current effective micro-batch size.
func (e *DynamoDBExecutor) MicroBatchSize() int { return int(e.size.Load()) }

// Execute implements Executor.
func (e *DynamoDBExecutor) Execute(ctx context.Context, ops []Operation) []Result {
	results := newResults(ops)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return failAll(results, ErrClosed)
	}

	items := make([]map[string]types.AttributeValue, len(ops))
	ready := make([]int, 0, len(ops))
	for i, op := range ops {
		item, err := marshalForWrite(op.Document, e.opts.EntriesCodec)
		if err != nil {
			results[i].Err = err
			continue
		}
		items[i] = item
		ready = append(ready, i)
	}

	var g errgroup.Group
	size := e.MicroBatchSize()
	if e.opts.CreateOnly {
		size = 1
	}
	for start := 0; start < len(ready); start += size {
		batch := ready[start:min(start+size, len(ready))]
		g.Go(func() error {
			e.runMicroBatch(ctx, batch, items, results)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DynamoDBExecutor) runMicroBatch(ctx context.Context, batch []int, items []map[string]types.AttributeValue, results []Result) {
	if err := e.rc.AcquireBatch(ctx); err != nil {
		e.fail(batch, results, err)
		return
	}
	defer e.rc.ReleaseBatch()

	if err := e.rc.AcquireItems(ctx, len(batch)); err != nil {
		e.fail(batch, results, err)
		return
	}

	if e.opts.CreateOnly {
		for _, idx := range batch {
			e.create(ctx, idx, items[idx], results)
		}
		return
	}
	e.batchWrite(ctx, batch, items, results)
}

// create writes one item unless its key already exists.
func (e *DynamoDBExecutor) create(ctx context.Context, idx int, item map[string]types.AttributeValue, results []Result) {
	_, err := e.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(e.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			results[idx].Response = &ItemResponse{StatusCode: StatusConflict, Attempts: 1}
			return
		}
		results[idx].Err = fmt.Errorf("bulk: put item: %w", err)
		return
	}
	results[idx].Response = &ItemResponse{StatusCode: StatusCreated, Attempts: 1}
}

// batchWrite sends batch and retries unprocessed items with capped
// exponential backoff.
func (e *DynamoDBExecutor) batchWrite(ctx context.Context, batch []int, items []map[string]types.AttributeValue, results []Result) {
	remaining := batch
	backoff := min(initialBackoff, e.opts.MaxMicroBatchInterval)

	for attempt := 1; ; attempt++ {
		byKey := make(map[string]int, len(remaining))
		requests := make([]types.WriteRequest, len(remaining))
		for i, idx := range remaining {
			byKey[itemKey(items[idx])] = idx
			requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: items[idx]}}
		}

		out, err := e.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{e.table: requests},
		})
		if err != nil {
			e.fail(remaining, results, fmt.Errorf("bulk: batch write: %w", err))
			return
		}

		var unprocessed []int
		if out != nil {
			for _, req := range out.UnprocessedItems[e.table] {
				if req.PutRequest == nil {
					continue
				}
				if idx, ok := byKey[itemKey(req.PutRequest.Item)]; ok {
					unprocessed = append(unprocessed, idx)
					delete(byKey, itemKey(req.PutRequest.Item))
				}
			}
		}
		for _, idx := range byKey {
			results[idx].Response = &ItemResponse{StatusCode: StatusCreated, Attempts: attempt}
		}
		e.adapt(len(remaining), len(unprocessed))

		if len(unprocessed) == 0 {
			return
		}
		if attempt > e.opts.MaxRetries {
			for _, idx := range unprocessed {
				results[idx].Response = &ItemResponse{
					StatusCode:    StatusTooManyRequests,
					SubStatusCode: attempt,
					Attempts:      attempt,
				}
			}
			return
		}

		select {
		case <-ctx.Done():
			e.fail(unprocessed, results, ctx.Err())
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, e.opts.MaxMicroBatchInterval)
		remaining = unprocessed
	}
}

// adapt moves the effective micro-batch size according to the retry rate
// of the last call.
func (e *DynamoDBExecutor) adapt(sent, unprocessed int) {
	if sent == 0 {
		return
	}
	rate := float64(unprocessed) / float64(sent)
	for {
		cur := e.size.Load()
		next := cur
		switch {
		case rate > e.opts.MaxMicroBatchRetryRate:
			next = max(1, cur/2)
		case rate < e.opts.MinMicroBatchRetryRate:
			next = min(int64(e.opts.MaxMicroBatchSize), cur+1)
		}
		if next == cur || e.size.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (e *DynamoDBExecutor) fail(batch []int, results []Result, err error) {
	for _, idx := range batch {
		results[idx].Err = err
	}
}

// Close stops accepting operations and waits for in-flight Execute calls.
func (e *DynamoDBExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

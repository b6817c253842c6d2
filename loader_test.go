package gvsingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/gvsingest/blobstore"
	"github.com/hupe1980/gvsingest/bulk"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/record"
	"github.com/hupe1980/gvsingest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor answers every operation through respond and records
// each window it sees.
type recordingExecutor struct {
	mu      sync.Mutex
	windows [][]string
	respond func(op bulk.Operation) bulk.Result
	delay   time.Duration
	closes  atomic.Int64

	inFlight atomic.Int64
	peak     atomic.Int64
}

func (e *recordingExecutor) Execute(_ context.Context, ops []bulk.Operation) []bulk.Result {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(e.delay)

	ids := make([]string, len(ops))
	results := make([]bulk.Result, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
		if e.respond != nil {
			results[i] = e.respond(op)
			continue
		}
		results[i] = bulk.Result{Operation: op, Response: &bulk.ItemResponse{StatusCode: bulk.StatusCreated, Attempts: 1}}
	}

	e.mu.Lock()
	e.windows = append(e.windows, ids)
	e.mu.Unlock()
	return results
}

func (e *recordingExecutor) Close() error {
	e.closes.Add(1)
	return nil
}

func (e *recordingExecutor) windowSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	sizes := make([]int, len(e.windows))
	for i, w := range e.windows {
		sizes[i] = len(w)
	}
	return sizes
}

func (e *recordingExecutor) allIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, w := range e.windows {
		ids = append(ids, w...)
	}
	return ids
}

// fixture holds two files: 88 + 12 variants of sample 1 on chromosomes 24
// and 1, then 30 variants of sample 2 on chromosome 3.
func fixture(t *testing.T) (*blobstore.MemoryStore, []string) {
	t.Helper()
	rng := testutil.NewRNG(4711)
	store := blobstore.NewMemoryStore()
	store.Put("vets_001.avro", testutil.EncodeOCF(t, testutil.VetsSchema,
		testutil.Concat(rng.Vets(1, 24, 88, 1000), rng.Vets(1, 1, 12, 500))))
	store.Put("vets_002.avro", testutil.EncodeOCF(t, testutil.VetsSchema, rng.Vets(2, 3, 30, 0)))
	return store, []string{"vets_001.avro", "vets_002.avro"}
}

func seqIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

func TestLoad_DefaultBundling(t *testing.T) {
	store, paths := fixture(t)
	exec := &recordingExecutor{}
	l, err := New(store, exec)
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)

	assert.Equal(t, int64(130), stats.Records)
	assert.Equal(t, int64(3), stats.Documents)
	assert.Equal(t, int64(2), stats.Windows)
	assert.Equal(t, []int{2, 1}, exec.windowSizes())
	assert.NotEmpty(t, stats.RunID)
}

func TestLoad_SchemaSharedAcrossFiles(t *testing.T) {
	for _, continuous := range []bool{false, true} {
		store, paths := fixture(t)
		store.Put("ref_ranges_001.avro", testutil.EncodeOCF(t, testutil.RefRangesSchema,
			testutil.NewRNG(1).RefRanges(3, 2, 10, 0)))
		paths = append(paths, "ref_ranges_001.avro")

		var mu sync.Mutex
		schemas := make(map[string][]bundle.FieldDescriptor)
		exec := &recordingExecutor{respond: func(op bulk.Operation) bulk.Result {
			mu.Lock()
			schemas[op.ID] = op.Document.Schema
			mu.Unlock()
			return bulk.Result{Operation: op, Response: &bulk.ItemResponse{StatusCode: bulk.StatusCreated, Attempts: 1}}
		}}
		l, err := New(store, exec, WithContinuous(continuous))
		require.NoError(t, err)

		_, err = l.Load(t.Context(), paths)
		require.NoError(t, err)

		require.Len(t, schemas, 4)
		// Documents 1 and 2 come from the first file, 3 from the second,
		// 4 from the reference ranges.
		assert.Same(t, &schemas["1"][0], &schemas["3"][0])
		assert.NotSame(t, &schemas["1"][0], &schemas["4"][0])
		assert.Equal(t, "length", schemas["4"][2].Name)
	}
}

func TestLoad_PerFileWindows(t *testing.T) {
	store, paths := fixture(t)
	exec := &recordingExecutor{delay: time.Millisecond}
	l, err := New(store, exec, WithMaxEntriesPerDocument(10), WithSubmissionBatchSize(4))
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)

	// Windows never span files in per-file mode.
	assert.Equal(t, []int{4, 4, 3, 3}, exec.windowSizes())
	assert.Equal(t, seqIDs(14), exec.allIDs())
	assert.Equal(t, int64(1), exec.peak.Load())

	assert.Equal(t, int64(130), stats.Records)
	assert.Equal(t, int64(14), stats.Documents)
	assert.Equal(t, int64(4), stats.Windows)
	assert.Equal(t, int64(14), stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, stats.FailedIDs)
}

func TestLoad_Continuous(t *testing.T) {
	store, paths := fixture(t)
	exec := &recordingExecutor{delay: time.Millisecond}
	l, err := New(store, exec,
		WithMaxEntriesPerDocument(10),
		WithSubmissionBatchSize(4),
		WithContinuous(true),
	)
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)

	sizes := exec.windowSizes()
	slices.Sort(sizes)
	assert.Equal(t, []int{2, 4, 4, 4}, sizes)

	ids := exec.allIDs()
	slices.SortFunc(ids, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return x - y
	})
	assert.Equal(t, seqIDs(14), ids)
	assert.Equal(t, int64(4), stats.Windows)
	assert.Equal(t, int64(14), stats.Succeeded)
}

func TestLoad_ContinuousMaxInFlightWindows(t *testing.T) {
	store, paths := fixture(t)
	exec := &recordingExecutor{delay: 5 * time.Millisecond}
	l, err := New(store, exec,
		WithMaxEntriesPerDocument(5),
		WithSubmissionBatchSize(2),
		WithContinuous(true),
		WithMaxInFlightWindows(2),
	)
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)

	assert.LessOrEqual(t, exec.peak.Load(), int64(2))
	assert.Equal(t, stats.Documents, stats.Succeeded)
}

func TestLoad_WriteFailuresDoNotAbort(t *testing.T) {
	store, paths := fixture(t)
	boom := errors.New("service unavailable")
	exec := &recordingExecutor{respond: func(op bulk.Operation) bulk.Result {
		res := bulk.Result{Operation: op}
		switch op.ID {
		case "2":
			res.Err = boom
		case "3":
			res.Response = &bulk.ItemResponse{StatusCode: bulk.StatusTooManyRequests, SubStatusCode: 11}
		case "4":
		default:
			res.Response = &bulk.ItemResponse{StatusCode: bulk.StatusCreated}
		}
		return res
	}}

	var buf bytes.Buffer
	metrics := &BasicMetricsCollector{}
	l, err := New(store, exec,
		WithMaxEntriesPerDocument(10),
		WithLogger(NewLogger(slog.NewJSONHandler(&buf, nil))),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)

	assert.Equal(t, int64(14), stats.Documents)
	assert.Equal(t, int64(3), stats.Failed)
	assert.Equal(t, int64(11), stats.Succeeded)
	assert.Equal(t, []uint64{2, 3, 4}, stats.FailedIDs)

	ms := metrics.GetStats()
	assert.Equal(t, int64(1), ms.Exceptions)
	assert.Equal(t, int64(1), ms.Unsuccessful)
	assert.Equal(t, int64(1), ms.NoResponse)
	assert.Equal(t, int64(14), ms.DocumentCount)
	assert.Equal(t, int64(130), ms.EntryCount)
	assert.Equal(t, int64(3), ms.WindowFailed)

	logs := buf.String()
	assert.Contains(t, logs, `"msg":"document write failed"`)
	assert.Contains(t, logs, `"id":"2","partition_key":1,"outcome":"exception","error":"service unavailable"`)
	assert.Contains(t, logs, `"id":"3","partition_key":1,"outcome":"unsuccessful","status":429,"sub_status":11`)
	assert.Contains(t, logs, `"id":"4","partition_key":1,"outcome":"no_response"`)
	assert.Contains(t, logs, `"msg":"ingest completed"`)
}

func TestLoad_MissingResultsAreNoResponse(t *testing.T) {
	store, paths := fixture(t)
	l, err := New(store, truncatingExecutor{})
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), paths)
	require.NoError(t, err)
	assert.Equal(t, stats.Documents, stats.Failed)
}

type truncatingExecutor struct{}

func (truncatingExecutor) Execute(context.Context, []bulk.Operation) []bulk.Result { return nil }
func (truncatingExecutor) Close() error                                            { return nil }

func malformedStore(t *testing.T) (*blobstore.MemoryStore, []string) {
	t.Helper()
	rows := testutil.NewRNG(1).RefRanges(1, 1, 10, 0)
	rows[7][record.FieldLength] = int64(0)

	store, paths := fixture(t)
	store.Put("ranges.avro", testutil.EncodeOCF(t, testutil.RefRangesSchema, rows))
	return store, append(paths, "ranges.avro")
}

func TestLoad_MalformedRecordAborts(t *testing.T) {
	for _, continuous := range []bool{false, true} {
		store, paths := malformedStore(t)
		exec := &recordingExecutor{}
		l, err := New(store, exec, WithContinuous(continuous))
		require.NoError(t, err)

		stats, err := l.Load(t.Context(), paths)
		require.ErrorIs(t, err, record.ErrMalformedRecord)
		assert.Contains(t, err.Error(), "ranges.avro")

		var mre *record.MalformedRecordError
		require.ErrorAs(t, err, &mre)
		assert.Equal(t, record.FieldLength, mre.Field)
		assert.Equal(t, int64(138), stats.Records)

		if continuous {
			// The partial window is dropped with the run.
			assert.Empty(t, exec.allIDs())
		} else {
			// Earlier files were submitted; nothing of the bad file.
			assert.Len(t, exec.allIDs(), 3)
		}
	}
}

func TestLoad_DropState(t *testing.T) {
	rng := testutil.NewRNG(99)
	store := blobstore.NewMemoryStore()
	store.Put("ranges.avro", testutil.EncodeOCF(t, testutil.RefRangesSchema, rng.RefRanges(5, 2, 200, 0, "1", "4")))

	exec := bulk.NewMemoryExecutor(nil)
	l, err := New(store, exec, WithDropState("4"), WithMaxEntriesPerDocument(25))
	require.NoError(t, err)

	stats, err := l.Load(t.Context(), []string{"ranges.avro"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), stats.Records)

	docs, err := exec.Documents()
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	kept := 0
	for _, d := range docs {
		assert.Equal(t, "4", d.DropState)
		for _, e := range d.Entries {
			s, _ := e.String(record.FieldState)
			assert.Equal(t, "1", s)
			kept++
		}
	}
	assert.Less(t, kept, 200)
}

func TestLoad_MaxRecords(t *testing.T) {
	for _, continuous := range []bool{false, true} {
		store, paths := fixture(t)
		exec := &recordingExecutor{}
		l, err := New(store, exec, WithMaxRecords(50), WithContinuous(continuous))
		require.NoError(t, err)

		stats, err := l.Load(t.Context(), paths)
		require.NoError(t, err)
		assert.Equal(t, int64(50), stats.Records)
		assert.Equal(t, int64(1), stats.Documents)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	store, _ := fixture(t)
	l, err := New(store, &recordingExecutor{})
	require.NoError(t, err)

	_, err = l.Load(t.Context(), []string{"missing.avro"})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoad_CanceledContext(t *testing.T) {
	store, paths := fixture(t)
	l, err := New(store, &recordingExecutor{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = l.Load(ctx, paths)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_ConfigurationError(t *testing.T) {
	store := blobstore.NewMemoryStore()
	exec := &recordingExecutor{}

	for name, opt := range map[string]Option{
		"submission-batch-size":    WithSubmissionBatchSize(0),
		"max-records-per-document": WithMaxEntriesPerDocument(-1),
		"num-progress":             WithNumProgress(0),
		"max-records":              WithMaxRecords(-1),
		"max-inflight-windows":     WithMaxInFlightWindows(-1),
	} {
		_, err := New(store, exec, opt)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce, name)
		assert.Equal(t, name, ce.Field)
	}

	_, err := New(nil, exec)
	assert.Error(t, err)
	_, err = New(store, nil)
	assert.Error(t, err)
}

func TestLoader_Close(t *testing.T) {
	exec := &recordingExecutor{}
	l, err := New(blobstore.NewMemoryStore(), exec)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, int64(1), exec.closes.Load())

	_, err = l.Load(t.Context(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

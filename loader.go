package gvsingest

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"github.com/hupe1980/gvsingest/blobstore"
	"github.com/hupe1980/gvsingest/bulk"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/source"
	"golang.org/x/sync/errgroup"
)

// Stats summarizes one Load call.
type Stats struct {
	RunID     string
	Records   int64
	Documents int64
	Windows   int64
	Succeeded int64
	Failed    int64
	// FailedIDs holds the numeric ids of documents that were not created,
	// ascending.
	FailedIDs []uint64
	Duration  time.Duration
}

// Loader reads record files, bundles them into documents and submits the
// documents through a bulk.Executor.
type Loader struct {
	store   blobstore.Store
	exec    bulk.Executor
	opts    options
	logger  *Logger
	metrics MetricsCollector

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// New creates a Loader. The Loader owns exec and closes it in Close.
func New(store blobstore.Store, exec bulk.Executor, optFns ...Option) (*Loader, error) {
	if store == nil {
		return nil, &ConfigurationError{Field: "store", Reason: "is required"}
	}
	if exec == nil {
		return nil, &ConfigurationError{Field: "executor", Reason: "is required"}
	}
	opts := applyOptions(optFns)
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Loader{
		store:   store,
		exec:    exec,
		opts:    opts,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}, nil
}

// run holds the state shared by every file and window of one Load call.
type run struct {
	logger  *Logger
	ids     bundle.Counter
	records bundle.Counter
	windows atomic.Int64

	schemaMu sync.Mutex
	schemas  map[[32]byte][]bundle.FieldDescriptor

	succeeded atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	failedIDs *roaring64.Bitmap
}

// Load ingests paths in order. Write failures are logged and counted but do
// not fail the call; a malformed record, a source error or a canceled
// context does.
func (l *Loader) Load(ctx context.Context, paths []string) (Stats, error) {
	if l.closed.Load() {
		return Stats{}, ErrClosed
	}

	start := time.Now()
	runID := uuid.NewString()
	r := &run{
		logger:    l.logger.WithRunID(runID),
		schemas:   make(map[[32]byte][]bundle.FieldDescriptor),
		failedIDs: roaring64.New(),
	}

	var err error
	if l.opts.continuous {
		err = l.loadContinuous(ctx, r, paths)
	} else {
		err = l.loadPerFile(ctx, r, paths)
	}

	r.mu.Lock()
	failedIDs := r.failedIDs.ToArray()
	r.mu.Unlock()

	stats := Stats{
		RunID:     runID,
		Records:   r.records.Load(),
		Documents: r.ids.Load(),
		Windows:   r.windows.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		FailedIDs: failedIDs,
		Duration:  time.Since(start),
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "ingest aborted", "error", err)
		return stats, err
	}
	r.logger.LogSummary(ctx, stats)
	return stats, nil
}

func (l *Loader) newBundler(r *run, fileLogger *Logger, schema bundle.SchemaFunc) (*bundle.Bundler, error) {
	cfg := bundle.Config{
		MaxEntriesPerDocument: l.opts.maxEntriesPerDocument,
		DropState:             l.opts.dropState,
		NumProgress:           l.opts.numProgress,
		MaxRecords:            l.opts.maxRecords,
		Progress: func(n int64) {
			fileLogger.LogProgress(context.Background(), n)
		},
	}
	return bundle.NewBundler(cfg, schema, &r.ids, &r.records)
}

// schemaOf returns the descriptors of rd's schema. They are computed once
// per distinct schema and shared by every document of the run.
func (r *run) schemaOf(rd *source.Reader) bundle.SchemaFunc {
	return func() []bundle.FieldDescriptor {
		key := rd.Fingerprint()

		r.schemaMu.Lock()
		defer r.schemaMu.Unlock()
		if s, ok := r.schemas[key]; ok {
			return s
		}
		s := rd.Schema()
		r.schemas[key] = s
		return s
	}
}

// loadPerFile bundles each file completely, then submits its windows one
// after another.
func (l *Loader) loadPerFile(ctx context.Context, r *run, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.opts.maxRecords > 0 && r.records.Load() >= l.opts.maxRecords {
			break
		}

		before := r.records.Load()
		var docs []*bundle.Document
		err := source.Each(ctx, l.store, path, func(rd *source.Reader) error {
			b, err := l.newBundler(r, r.logger.WithFile(path), r.schemaOf(rd))
			if err != nil {
				return err
			}
			docs, err = bundle.Collect(l.observe(bundle.Bundle(rd.Records(), b)))
			return err
		})
		r.logger.LogFile(ctx, path, r.records.Load()-before, int64(len(docs)), err)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		for start := 0; start < len(docs); start += l.opts.submissionBatchSize {
			window := docs[start:min(start+l.opts.submissionBatchSize, len(docs))]
			l.submit(ctx, r, r.windows.Add(1), window)
		}
	}
	return nil
}

// loadContinuous streams documents of all files through one window
// pipeline. Each full window is submitted in its own goroutine.
func (l *Loader) loadContinuous(ctx context.Context, r *run, paths []string) error {
	var g errgroup.Group
	if l.opts.maxInFlightWindows > 0 {
		g.SetLimit(l.opts.maxInFlightWindows)
	}
	dispatch := func(window []*bundle.Document) {
		n := r.windows.Add(1)
		g.Go(func() error {
			l.submit(ctx, r, n, window)
			return nil
		})
	}

	window := make([]*bundle.Document, 0, l.opts.submissionBatchSize)
	var err error
	for doc, derr := range l.observe(l.stream(ctx, r, paths)) {
		if derr != nil {
			err = derr
			break
		}
		window = append(window, doc)
		if len(window) == l.opts.submissionBatchSize {
			dispatch(window)
			window = make([]*bundle.Document, 0, l.opts.submissionBatchSize)
		}
	}
	if err == nil && len(window) > 0 {
		dispatch(window)
	}

	_ = g.Wait()
	return err
}

// stream yields the documents of every file in order.
func (l *Loader) stream(ctx context.Context, r *run, paths []string) iter.Seq2[*bundle.Document, error] {
	return func(yield func(*bundle.Document, error) bool) {
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if l.opts.maxRecords > 0 && r.records.Load() >= l.opts.maxRecords {
				return
			}

			before := r.records.Load()
			var docs int64
			stop := false
			err := source.Each(ctx, l.store, path, func(rd *source.Reader) error {
				b, err := l.newBundler(r, r.logger.WithFile(path), r.schemaOf(rd))
				if err != nil {
					return err
				}
				for doc, err := range bundle.Bundle(rd.Records(), b) {
					if err != nil {
						return err
					}
					docs++
					if !yield(doc, nil) {
						stop = true
						return nil
					}
				}
				return nil
			})
			if stop {
				return
			}
			r.logger.LogFile(ctx, path, r.records.Load()-before, docs, err)
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", path, err))
				return
			}
		}
	}
}

// observe reports every sealed document to the metrics collector.
func (l *Loader) observe(docs iter.Seq2[*bundle.Document, error]) iter.Seq2[*bundle.Document, error] {
	return func(yield func(*bundle.Document, error) bool) {
		for d, err := range docs {
			if err == nil {
				l.metrics.RecordDocument(len(d.Entries))
			}
			if !yield(d, err) {
				return
			}
		}
	}
}

// submit writes one window and classifies every result. It never fails:
// non-successful results are logged and counted.
func (l *Loader) submit(ctx context.Context, r *run, n int64, window []*bundle.Document) {
	ops := make([]bulk.Operation, len(window))
	for i, d := range window {
		ops[i] = bulk.NewCreateOperation(d)
	}

	start := time.Now()
	results := l.exec.Execute(ctx, ops)
	duration := time.Since(start)

	failed := 0
	for i, op := range ops {
		res := bulk.Result{Operation: op}
		if i < len(results) {
			res = results[i]
		}

		outcome := Classify(res)
		if outcome == OutcomeSucceeded {
			r.succeeded.Add(1)
			continue
		}

		failed++
		r.failed.Add(1)
		f := newWriteFailure(res, outcome)
		r.logger.LogWriteFailure(ctx, f)
		l.metrics.RecordWriteFailure(outcome)

		if id, ok := op.Document.NumericID(); ok {
			r.mu.Lock()
			r.failedIDs.Add(id)
			r.mu.Unlock()
		}
	}

	l.metrics.RecordWindow(len(window), failed, duration)
	r.logger.LogWindow(ctx, n, len(window), failed, duration)
}

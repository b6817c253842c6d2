package gvsingest

import (
	"github.com/hupe1980/gvsingest/bundle"
)

// DefaultSubmissionBatchSize is the number of documents per window.
const DefaultSubmissionBatchSize = 100

type options struct {
	maxEntriesPerDocument int
	dropState             string
	numProgress           int64
	maxRecords            int64
	submissionBatchSize   int
	continuous            bool
	maxInFlightWindows    int
	metricsCollector      MetricsCollector
	logger                *Logger
}

// Option configures a Loader.
type Option func(*options)

// WithMaxEntriesPerDocument caps the entries of one document.
// Default bundle.DefaultMaxEntriesPerDocument.
func WithMaxEntriesPerDocument(n int) Option {
	return func(o *options) {
		o.maxEntriesPerDocument = n
	}
}

// WithDropState excludes records whose state equals state and tags every
// document with it. Empty disables filtering.
func WithDropState(state string) Option {
	return func(o *options) {
		o.dropState = state
	}
}

// WithNumProgress sets the number of records between progress log lines.
// Default bundle.DefaultNumProgress.
func WithNumProgress(n int64) Option {
	return func(o *options) {
		o.numProgress = n
	}
}

// WithMaxRecords stops reading after n records across all files.
// 0 means no limit.
func WithMaxRecords(n int64) Option {
	return func(o *options) {
		o.maxRecords = n
	}
}

// WithSubmissionBatchSize sets the number of documents per window.
// Default DefaultSubmissionBatchSize.
func WithSubmissionBatchSize(n int) Option {
	return func(o *options) {
		o.submissionBatchSize = n
	}
}

// WithContinuous selects the streaming mode: documents from all files flow
// through one pipeline and every window is submitted without waiting for
// the previous one.
//
// Per-file mode (the default) bundles a whole file first and then
// submits its windows one at a time.
func WithContinuous(continuous bool) Option {
	return func(o *options) {
		o.continuous = continuous
	}
}

// WithMaxInFlightWindows bounds concurrent windows in continuous mode.
//
// 0 means unbounded: on a fast source the number of windows awaiting the
// store grows without limit, and so does memory. The executor's own
// micro-batch concurrency still caps requests to the store.
func WithMaxInFlightWindows(n int) Option {
	return func(o *options) {
		o.maxInFlightWindows = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &gvsingest.BasicMetricsCollector{}
//	l, _ := gvsingest.New(store, exec, gvsingest.WithMetricsCollector(metrics))
//	// ... run l.Load ...
//	stats := metrics.GetStats()
//	fmt.Printf("Windows: %d, Avg latency: %dns\n", stats.WindowCount, stats.WindowAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := gvsingest.NewJSONLogger(os.Stderr, slog.LevelInfo)
//	l, _ := gvsingest.New(store, exec, gvsingest.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxEntriesPerDocument: bundle.DefaultMaxEntriesPerDocument,
		numProgress:           bundle.DefaultNumProgress,
		submissionBatchSize:   DefaultSubmissionBatchSize,
		metricsCollector:      NoopMetricsCollector{},
		logger:                NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) validate() error {
	switch {
	case o.maxEntriesPerDocument < 1:
		return &ConfigurationError{Field: "max-records-per-document", Reason: "must be positive"}
	case o.numProgress < 1:
		return &ConfigurationError{Field: "num-progress", Reason: "must be positive"}
	case o.maxRecords < 0:
		return &ConfigurationError{Field: "max-records", Reason: "must not be negative"}
	case o.submissionBatchSize < 1:
		return &ConfigurationError{Field: "submission-batch-size", Reason: "must be positive"}
	case o.maxInFlightWindows < 0:
		return &ConfigurationError{Field: "max-inflight-windows", Reason: "must not be negative"}
	}
	return nil
}

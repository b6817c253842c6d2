package gvsingest

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordDocument is called for every sealed document with its entry count.
	RecordDocument(entries int)

	// RecordWindow is called after each submitted window.
	// documents is the window size, failed the number of non-successful
	// results, duration the time the executor took.
	RecordWindow(documents, failed int, duration time.Duration)

	// RecordWriteFailure is called for each non-successful result.
	RecordWriteFailure(outcome Outcome)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDocument(int)                   {}
func (NoopMetricsCollector) RecordWindow(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordWriteFailure(Outcome)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	DocumentCount    atomic.Int64
	EntryCount       atomic.Int64
	WindowCount      atomic.Int64
	WindowDocuments  atomic.Int64
	WindowFailed     atomic.Int64
	WindowTotalNanos atomic.Int64
	Exceptions       atomic.Int64
	Unsuccessful     atomic.Int64
	NoResponse       atomic.Int64
}

// RecordDocument implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDocument(entries int) {
	b.DocumentCount.Add(1)
	b.EntryCount.Add(int64(entries))
}

// RecordWindow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWindow(documents, failed int, duration time.Duration) {
	b.WindowCount.Add(1)
	b.WindowDocuments.Add(int64(documents))
	b.WindowFailed.Add(int64(failed))
	b.WindowTotalNanos.Add(duration.Nanoseconds())
}

// RecordWriteFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWriteFailure(outcome Outcome) {
	switch outcome {
	case OutcomeException:
		b.Exceptions.Add(1)
	case OutcomeUnsuccessful:
		b.Unsuccessful.Add(1)
	case OutcomeNoResponse:
		b.NoResponse.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		DocumentCount:   b.DocumentCount.Load(),
		EntryCount:      b.EntryCount.Load(),
		WindowCount:     b.WindowCount.Load(),
		WindowDocuments: b.WindowDocuments.Load(),
		WindowFailed:    b.WindowFailed.Load(),
		WindowAvgNanos:  b.getAvgWindowNanos(),
		Exceptions:      b.Exceptions.Load(),
		Unsuccessful:    b.Unsuccessful.Load(),
		NoResponse:      b.NoResponse.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgWindowNanos() int64 {
	count := b.WindowCount.Load()
	if count == 0 {
		return 0
	}
	return b.WindowTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	DocumentCount   int64
	EntryCount      int64
	WindowCount     int64
	WindowDocuments int64
	WindowFailed    int64
	WindowAvgNanos  int64
	Exceptions      int64
	Unsuccessful    int64
	NoResponse      int64
}

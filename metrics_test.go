package gvsingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}

	m.RecordDocument(10)
	m.RecordDocument(5)
	m.RecordWindow(2, 1, 2*time.Millisecond)
	m.RecordWindow(4, 0, 4*time.Millisecond)
	m.RecordWriteFailure(OutcomeException)
	m.RecordWriteFailure(OutcomeUnsuccessful)
	m.RecordWriteFailure(OutcomeUnsuccessful)
	m.RecordWriteFailure(OutcomeNoResponse)

	s := m.GetStats()
	assert.Equal(t, int64(2), s.DocumentCount)
	assert.Equal(t, int64(15), s.EntryCount)
	assert.Equal(t, int64(2), s.WindowCount)
	assert.Equal(t, int64(6), s.WindowDocuments)
	assert.Equal(t, int64(1), s.WindowFailed)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), s.WindowAvgNanos)
	assert.Equal(t, int64(1), s.Exceptions)
	assert.Equal(t, int64(2), s.Unsuccessful)
	assert.Equal(t, int64(1), s.NoResponse)
}

func TestBasicMetricsCollector_Empty(t *testing.T) {
	assert.Zero(t, (&BasicMetricsCollector{}).GetStats().WindowAvgNanos)
}

func TestNoopMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoopMetricsCollector{}
	m.RecordDocument(1)
	m.RecordWindow(1, 0, time.Second)
	m.RecordWriteFailure(OutcomeException)
}

package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// BufferMetrics holds the metric instruments for the page buffer.
type BufferMetrics struct {
	HitsCounter       metric.Int64Counter
	MissesCounter     metric.Int64Counter
	EvictionsCounter  metric.Int64Counter
	PageWritesCounter metric.Int64Counter
}

// NewBufferMetrics creates and registers all the metrics for the page buffer.
func NewBufferMetrics(meter metric.Meter) (*BufferMetrics, error) {
	hits, err := meter.Int64Counter(
		"minidb.buffer.hits",
		metric.WithDescription("Page fetches served from the resident cache."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"minidb.buffer.misses",
		metric.WithDescription("Page fetches that had to read the page from disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"minidb.buffer.evictions",
		metric.WithDescription("Resident pages evicted to make room for another page."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	writes, err := meter.Int64Counter(
		"minidb.buffer.page_writes",
		metric.WithDescription("Dirty pages written back to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &BufferMetrics{
		HitsCounter:       hits,
		MissesCounter:     misses,
		EvictionsCounter:  evictions,
		PageWritesCounter: writes,
	}, nil
}

// RecordMetrics holds the metric instruments for record store operations.
type RecordMetrics struct {
	OpsCounter        metric.Int64Counter
	RowsCounter       metric.Int64Counter
	DurationHistogram metric.Int64Histogram
}

// NewRecordMetrics creates and registers all the metrics for the record store.
func NewRecordMetrics(meter metric.Meter) (*RecordMetrics, error) {
	ops, err := meter.Int64Counter(
		"minidb.record.ops",
		metric.WithDescription("Record store operations completed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := meter.Int64Counter(
		"minidb.record.rows",
		metric.WithDescription("Records inserted, returned, deleted or updated."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Int64Histogram(
		"minidb.record.duration",
		metric.WithDescription("The latency of record store operations."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	return &RecordMetrics{
		OpsCounter:        ops,
		RowsCounter:       rows,
		DurationHistogram: duration,
	}, nil
}

// IndexMetrics holds the metric instruments for secondary index calls.
type IndexMetrics struct {
	OpsCounter       metric.Int64Counter
	LatencyHistogram metric.Float64Histogram
}

// NewIndexMetrics creates and registers all the metrics for secondary indexes.
func NewIndexMetrics(meter metric.Meter) (*IndexMetrics, error) {
	ops, err := meter.Int64Counter(
		"minidb.index.ops",
		metric.WithDescription("Index add, remove and lookup calls."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"minidb.index.latency",
		metric.WithDescription("The latency of index calls."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &IndexMetrics{
		OpsCounter:       ops,
		LatencyHistogram: latency,
	}, nil
}

// NoopBufferMetrics returns instruments that record nothing, for tests and disabled telemetry.
func NoopBufferMetrics() *BufferMetrics {
	m, _ := NewBufferMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// NoopRecordMetrics returns instruments that record nothing.
func NoopRecordMetrics() *RecordMetrics {
	m, _ := NewRecordMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// NoopIndexMetrics returns instruments that record nothing.
func NoopIndexMetrics() *IndexMetrics {
	m, _ := NewIndexMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// Package telemetry records cache load and store outcomes as OpenTelemetry metrics
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ScopeName is the instrumentation scope of every instrument
const ScopeName = "github.com/Norgate-AV/outcache"

// Outcome of a load or store
type Outcome string

const (
	OutcomeHit           Outcome = "hit"
	OutcomeMiss          Outcome = "miss"
	OutcomeStored        Outcome = "stored"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
	OutcomeUnrecoverable Outcome = "unrecoverable"
)

// Metrics holds the cache instruments. It is safe for concurrent use.
type Metrics struct {
	loads    metric.Int64Counter
	stores   metric.Int64Counter
	entries  metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates the instruments on meter
func New(meter metric.Meter) (*Metrics, error) {
	loads, err := meter.Int64Counter(
		"outcache.load.total",
		metric.WithDescription("Cache loads by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	stores, err := meter.Int64Counter(
		"outcache.store.total",
		metric.WithDescription("Cache stores by outcome"),
		metric.WithUnit("{store}"),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64Counter(
		"outcache.archive.entries",
		metric.WithDescription("Archive entries packed or unpacked"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64Counter(
		"outcache.archive.bytes",
		metric.WithDescription("Archive bytes transferred to or from the store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"outcache.operation.duration_ms",
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		loads:    loads,
		stores:   stores,
		entries:  entries,
		bytes:    bytes,
		duration: duration,
	}, nil
}

// Noop returns metrics that record nothing
func Noop() *Metrics {
	m, err := New(noop.NewMeterProvider().Meter(ScopeName))
	if err != nil {
		// The noop meter never fails
		panic(err)
	}

	return m
}

// RecordLoad records one load attempt
func (m *Metrics) RecordLoad(ctx context.Context, outcome Outcome, entries int, size int64, elapsed time.Duration) {
	m.record(ctx, m.loads, "load", outcome, entries, size, elapsed)
}

// RecordStore records one store attempt
func (m *Metrics) RecordStore(ctx context.Context, outcome Outcome, entries int, size int64, elapsed time.Duration) {
	m.record(ctx, m.stores, "store", outcome, entries, size, elapsed)
}

func (m *Metrics) record(ctx context.Context, counter metric.Int64Counter, op string, outcome Outcome, entries int, size int64, elapsed time.Duration) {
	opAttr := attribute.String("operation", op)

	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))

	if entries > 0 {
		m.entries.Add(ctx, int64(entries), metric.WithAttributes(opAttr))
	}

	if size > 0 {
		m.bytes.Add(ctx, size, metric.WithAttributes(opAttr))
	}

	m.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(opAttr, attribute.String("outcome", string(outcome))))
}

// NewStdoutProvider creates a meter provider that writes metrics to w as JSON.
// Shut it down to flush.
func NewStdoutProvider(w io.Writer) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp))), nil
}

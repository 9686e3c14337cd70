package observability

import (
	"context"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/cache"
	"github.com/TaskifaiDavid/bibbi-site/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedWindowStore wraps a ratelimit.WindowStore with OpenTelemetry
// tracing and metrics instrumentation.
type InstrumentedWindowStore struct {
	inner    ratelimit.WindowStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedWindowStore creates a window store wrapper that records
// trace spans, operation latency histograms, and error counters. Errors on
// this store are the signal that the limiter is running fail-open.
func NewInstrumentedWindowStore(inner ratelimit.WindowStore) (*InstrumentedWindowStore, error) {
	tracer := otel.Tracer("gateway/ratelimit")
	meter := otel.Meter("gateway/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.window.duration",
		metric.WithDescription("Duration of window store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.window.errors",
		metric.WithDescription("Number of window store errors (fail-open admissions)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedWindowStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

// RecordAndCount delegates to the inner store, wrapping the call in a span
// and recording its latency and outcome.
func (s *InstrumentedWindowStore) RecordAndCount(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.RecordAndCount",
		trace.WithAttributes(attribute.String("ratelimit.window", window.String())),
	)
	start := time.Now()

	count, err := s.inner.RecordAndCount(ctx, key, window, now)

	s.duration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.errors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	return count, err
}

// Close closes the inner store.
func (s *InstrumentedWindowStore) Close() error {
	return s.inner.Close()
}

// InstrumentedCacheStore wraps a cache.Store with OpenTelemetry tracing and
// metrics instrumentation, including hit/miss counters.
type InstrumentedCacheStore struct {
	inner    cache.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	lookups  metric.Int64Counter
}

// NewInstrumentedCacheStore creates a cache store wrapper that records trace
// spans, operation latency histograms, error counters, and a lookup counter
// partitioned by hit/miss.
func NewInstrumentedCacheStore(inner cache.Store) (*InstrumentedCacheStore, error) {
	tracer := otel.Tracer("gateway/cache")
	meter := otel.Meter("gateway/cache")

	duration, err := meter.Float64Histogram(
		"cache.operation.duration",
		metric.WithDescription("Duration of cache store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"cache.operation.errors",
		metric.WithDescription("Number of cache store errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Number of cache lookups, partitioned by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedCacheStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
		lookups:  lookups,
	}, nil
}

func (s *InstrumentedCacheStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedCacheStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "cache.Get")
	start := time.Now()
	entry, err := s.inner.Get(ctx, key)
	s.record(ctx, span, "Get", start, err)

	if err == nil {
		result := "miss"
		if entry != nil {
			result = "hit"
		}
		s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}

	return entry, err
}

func (s *InstrumentedCacheStore) Set(ctx context.Context, key string, entry *cache.Entry, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "cache.Set",
		trace.WithAttributes(attribute.Int("cache.body_bytes", len(entry.Body))),
	)
	start := time.Now()
	err := s.inner.Set(ctx, key, entry, ttl)
	s.record(ctx, span, "Set", start, err)
	return err
}

func (s *InstrumentedCacheStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "cache.Delete")
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedCacheStore) Clear(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "cache.Clear")
	start := time.Now()
	err := s.inner.Clear(ctx)
	s.record(ctx, span, "Clear", start, err)
	return err
}

// Close closes the inner store.
func (s *InstrumentedCacheStore) Close() error {
	return s.inner.Close()
}

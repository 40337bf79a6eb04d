package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/inventory/internal/fetch"
	"github.com/yairfalse/inventory/internal/lbassoc"
	"github.com/yairfalse/inventory/pkg/inventory"
)

const meterName = "inventory"

// MetricsOption configures a MetricsEmitter.
type MetricsOption func(*MetricsEmitter)

// WithMeter uses m instead of the global meter.
func WithMeter(m metric.Meter) MetricsOption {
	return func(e *MetricsEmitter) {
		e.meter = m
	}
}

// MetricsEmitter records region scans as OTEL metrics.
type MetricsEmitter struct {
	meter metric.Meter

	regionResources  metric.Int64ObservableGauge
	scanDuration     metric.Float64Histogram
	resourcesTotal   metric.Int64Counter
	regionErrors     metric.Int64Counter
	artifactsWritten metric.Int64Counter

	// State for observable gauge
	mu     sync.RWMutex
	counts map[string]map[inventory.Kind]int
}

// NewMetricsEmitter creates a metrics emitter.
func NewMetricsEmitter(opts ...MetricsOption) (*MetricsEmitter, error) {
	e := &MetricsEmitter{
		meter:  otel.Meter(meterName),
		counts: make(map[string]map[inventory.Kind]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *MetricsEmitter) initMetrics() error {
	var err error

	e.regionResources, err = e.meter.Int64ObservableGauge(
		"inventory_region_resources",
		metric.WithDescription("Resources found by the last scan of a region"),
		metric.WithInt64Callback(e.observeResources),
	)
	if err != nil {
		return fmt.Errorf("create region_resources gauge: %w", err)
	}

	e.scanDuration, err = e.meter.Float64Histogram(
		"inventory_region_scan_duration_seconds",
		metric.WithDescription("Time taken to scan one region"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create scan_duration histogram: %w", err)
	}

	e.resourcesTotal, err = e.meter.Int64Counter(
		"inventory_resources_total",
		metric.WithDescription("Total resources scanned"),
	)
	if err != nil {
		return fmt.Errorf("create resources counter: %w", err)
	}

	e.regionErrors, err = e.meter.Int64Counter(
		"inventory_region_errors_total",
		metric.WithDescription("Total failed region scans"),
	)
	if err != nil {
		return fmt.Errorf("create region_errors counter: %w", err)
	}

	e.artifactsWritten, err = e.meter.Int64Counter(
		"inventory_artifacts_written_total",
		metric.WithDescription("Total artifact writes"),
	)
	if err != nil {
		return fmt.Errorf("create artifacts_written counter: %w", err)
	}

	return nil
}

// Emit records the region result as metrics.
func (e *MetricsEmitter) Emit(ctx context.Context, result inventory.RegionResult) error {
	status := "ok"
	if result.Error != nil {
		status = "error"
	}
	e.scanDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(
		attribute.String("region", result.Region),
		attribute.String("status", status),
	))

	if result.Error != nil {
		e.regionErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("region", result.Region),
			attribute.String("kind", ErrorKind(result.Error)),
		))
		return nil // Don't fail on scan errors
	}
	if result.Bundle == nil {
		return nil
	}

	counts := result.Bundle.Counts()
	for kind, n := range counts {
		e.resourcesTotal.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("region", result.Region),
			attribute.String("kind", string(kind)),
		))
	}

	e.mu.Lock()
	e.counts[result.Region] = counts
	e.mu.Unlock()

	log.Debug().
		Str("region", result.Region).
		Int("instances", counts[inventory.KindInstances]).
		Dur("duration", result.Duration).
		Msg("region metrics recorded")

	return nil
}

// RecordArtifact counts one artifact write attempt.
func (e *MetricsEmitter) RecordArtifact(ctx context.Context, file string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.artifactsWritten.Add(ctx, 1, metric.WithAttributes(
		attribute.String("artifact", file),
		attribute.String("status", status),
	))
}

// observeResources is the callback for the region_resources gauge.
func (e *MetricsEmitter) observeResources(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for region, counts := range e.counts {
		for kind, n := range counts {
			o.Observe(int64(n), metric.WithAttributes(
				attribute.String("region", region),
				attribute.String("kind", string(kind)),
			))
		}
	}
	return nil
}

// Close is a no-op.
func (e *MetricsEmitter) Close() error {
	return nil
}

// ErrorKind labels a region failure for metrics.
func ErrorKind(err error) string {
	if fe, ok := fetch.AsRegionFetchError(err); ok {
		return string(fe.Kind)
	}
	var ae *lbassoc.AssociationResolutionError
	if errors.As(err, &ae) {
		return "association"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

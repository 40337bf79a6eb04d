// Package scan drives the per-region inventory flow: fetch, resolve load
// balancer associations, annotate instances and hand the bundle to the emitters.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/inventory/internal/awsclient"
	"github.com/yairfalse/inventory/internal/emitter"
	"github.com/yairfalse/inventory/internal/fetch"
	"github.com/yairfalse/inventory/internal/lbassoc"
	"github.com/yairfalse/inventory/pkg/inventory"
)

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many regions are scanned at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRegionTimeout bounds the scan of each region. Zero disables it.
func WithRegionTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithTracer sets the tracer used for region spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithFetchOptions passes options to every region's fetcher.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(r *Runner) {
		r.fetchOpts = append(r.fetchOpts, opts...)
	}
}

// Runner scans regions and emits one result per region.
type Runner struct {
	source      awsclient.Source
	emit        emitter.Emitter
	tracer      trace.Tracer
	concurrency int
	timeout     time.Duration
	fetchOpts   []fetch.Option
}

// NewRunner returns a sequential runner unless WithConcurrency says otherwise.
func NewRunner(source awsclient.Source, emit emitter.Emitter, opts ...Option) *Runner {
	r := &Runner{
		source:      source,
		emit:        emit,
		tracer:      otel.Tracer("inventory"),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scans every region. A failing region is recorded in the summary and
// does not stop the others. Run returns an error only when ctx is cancelled;
// results emitted before that point must then be discarded by the caller.
func (r *Runner) Run(ctx context.Context, regions []string) (*Summary, error) {
	start := time.Now()
	results := make([]inventory.RegionResult, len(regions))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = inventory.RegionResult{Region: region, Error: ctx.Err()}
				return nil
			}

			result := r.scanRegion(ctx, region)
			if ctx.Err() == nil {
				if err := r.emit.Emit(ctx, result); err != nil && result.Error == nil {
					result.Error = fmt.Errorf("emit: %w", err)
				}
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("scan cancelled")
		return nil, err
	}

	summary := newSummary(results, time.Since(start))
	summary.Log()
	return summary, nil
}

func (r *Runner) scanRegion(ctx context.Context, region string) inventory.RegionResult {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "region.scan", trace.WithAttributes(
		attribute.String("region", region),
	))
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	bundle, err := r.collect(ctx, region)
	result := inventory.RegionResult{
		Region:   region,
		Duration: time.Since(start),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "region scan failed")
		log.Error().
			Err(err).
			Str("region", region).
			Dur("duration", result.Duration).
			Msg("region scan failed")
		result.Error = err
		return result
	}

	span.SetAttributes(attribute.Int("instances", len(bundle.Instances)))
	log.Info().
		Str("region", region).
		Int("instances", len(bundle.Instances)).
		Int("load_balancers", len(bundle.LoadBalancers)+len(bundle.V2LoadBalancers)).
		Dur("duration", result.Duration).
		Msg("region scanned")

	result.Bundle = bundle
	return result
}

// collect builds the annotated bundle of one region.
func (r *Runner) collect(ctx context.Context, region string) (*inventory.RegionBundle, error) {
	clients := r.source.Clients(region)

	raw, err := fetch.New(clients, r.fetchOpts...).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	assoc, err := lbassoc.NewResolver(region, clients.ELBv2).Resolve(ctx, raw.LoadBalancers, raw.V2LoadBalancers)
	if err != nil {
		return nil, err
	}

	prov := inventory.Provenance{AccountID: raw.AccountID, Region: region}
	bundle := &inventory.RegionBundle{
		AccountID:         raw.AccountID,
		Region:            region,
		Instances:         lbassoc.Annotate(raw.Reservations, assoc, prov),
		Reservations:      make([]inventory.Reservation, 0, len(raw.ReservedInstances)),
		LoadBalancers:     make([]inventory.LoadBalancer, 0, len(raw.LoadBalancers)),
		V2LoadBalancers:   make([]inventory.LoadBalancerV2, 0, len(raw.V2LoadBalancers)),
		AutoScalingGroups: make([]inventory.AutoScalingGroup, 0, len(raw.AutoScalingGroups)),
	}
	for _, ri := range raw.ReservedInstances {
		bundle.Reservations = append(bundle.Reservations, inventory.Reservation{ReservedInstances: ri, Provenance: prov})
	}
	for _, lb := range raw.LoadBalancers {
		bundle.LoadBalancers = append(bundle.LoadBalancers, inventory.LoadBalancer{LoadBalancerDescription: lb, Provenance: prov})
	}
	for _, lb := range raw.V2LoadBalancers {
		bundle.V2LoadBalancers = append(bundle.V2LoadBalancers, inventory.LoadBalancerV2{LoadBalancer: lb, Provenance: prov})
	}
	for _, asg := range raw.AutoScalingGroups {
		bundle.AutoScalingGroups = append(bundle.AutoScalingGroups, inventory.AutoScalingGroup{AutoScalingGroup: asg, Provenance: prov})
	}
	return bundle, nil
}

// IsCancelled reports whether err comes from a cancelled run rather than a region failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

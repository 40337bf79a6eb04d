// Package daemon repeats an inventory run on a fixed interval.
package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// RunFunc performs one complete inventory run.
type RunFunc func(ctx context.Context) error

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	// Metrics is optional.
	Metrics *Metrics
}

// Daemon runs a RunFunc immediately and then on every tick
type Daemon struct {
	interval  time.Duration
	run       RunFunc
	metrics   *Metrics
	startTime time.Time

	runCount     atomic.Int64
	failureCount atomic.Int64
	lastFailed   atomic.Bool
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, run RunFunc) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, errors.New("daemon: interval must be positive")
	}
	if run == nil {
		return nil, errors.New("daemon: run function is required")
	}
	return &Daemon{
		interval:  config.Interval,
		run:       run,
		metrics:   config.Metrics,
		startTime: time.Now(),
	}, nil
}

// Start runs until ctx is done. A failed run is logged and the next tick
// proceeds; Start itself only returns once ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	log.Info().Dur("interval", d.interval).Msg("periodic inventory started")

	d.runOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("runs", d.RunCount()).Msg("periodic inventory stopped")
			return nil
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := d.run(ctx)
	elapsed := time.Since(start)

	// Interrupted runs are neither successes nor failures.
	if ctx.Err() != nil {
		return
	}

	n := d.runCount.Add(1)
	status := "success"
	if err != nil {
		status = "failure"
		d.failureCount.Add(1)
		d.lastFailed.Store(true)
		log.Error().Err(err).Int64("run", n).Dur("duration", elapsed).Msg("inventory run failed")
	} else {
		d.lastFailed.Store(false)
		log.Info().Int64("run", n).Dur("duration", elapsed).Msg("inventory run complete")
	}

	if d.metrics != nil {
		d.metrics.RecordRun(ctx, status, elapsed)
	}
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	status := "healthy"
	if d.lastFailed.Load() {
		status = "degraded"
	}
	return HealthStatus{
		Status:   status,
		Uptime:   int64(time.Since(d.startTime).Seconds()),
		Runs:     d.RunCount(),
		Failures: d.FailureCount(),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status   string
	Uptime   int64
	Runs     int64
	Failures int64
}

// RunCount returns the completed runs.
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}

// FailureCount returns the runs that returned an error.
func (d *Daemon) FailureCount() int64 {
	return d.failureCount.Load()
}

package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// RegionFailure records a region that contributed nothing.
type RegionFailure struct {
	Region string
	Err    error
}

func (f RegionFailure) Error() string {
	return fmt.Sprintf("region %s: %v", f.Region, f.Err)
}

func (f RegionFailure) Unwrap() error {
	return f.Err
}

// Summary is the outcome of a run, in catalog order.
type Summary struct {
	Regions   []string
	Succeeded []string
	Failures  []RegionFailure
	Counts    map[inventory.Kind]int
	Duration  time.Duration
}

func newSummary(results []inventory.RegionResult, d time.Duration) *Summary {
	s := &Summary{
		Counts:   make(map[inventory.Kind]int),
		Duration: d,
	}
	for _, res := range results {
		s.Regions = append(s.Regions, res.Region)
		if res.Error != nil {
			s.Failures = append(s.Failures, RegionFailure{Region: res.Region, Err: res.Error})
			continue
		}
		s.Succeeded = append(s.Succeeded, res.Region)
		if res.Bundle != nil {
			for kind, n := range res.Bundle.Counts() {
				s.Counts[kind] += n
			}
		}
	}
	return s
}

// Err joins every region failure, or returns nil.
func (s *Summary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Log writes the run summary.
func (s *Summary) Log() {
	event := log.Info()
	if len(s.Failures) > 0 {
		event = log.Warn()
	}

	failed := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		failed[i] = f.Region
	}

	event.
		Int("regions", len(s.Regions)).
		Int("succeeded", len(s.Succeeded)).
		Strs("failed", failed).
		Int("instances", s.Counts[inventory.KindInstances]).
		Int("spot_instances", s.Counts[inventory.KindSpotInstances]).
		Int("reservations", s.Counts[inventory.KindReservations]).
		Int("load_balancers", s.Counts[inventory.KindLoadBalancers]).
		Int("v2_load_balancers", s.Counts[inventory.KindV2LoadBalancers]).
		Int("autoscaling_groups", s.Counts[inventory.KindAutoScalingGroups]).
		Dur("duration", s.Duration).
		Msg("scan summary")
}

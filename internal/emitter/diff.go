package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// DiffTracker compares each region's instances with the previous run's
// instances artifact and logs what changed.
type DiffTracker struct {
	mu          sync.RWMutex
	previous    map[string]map[string]inventory.InstanceSummary // region -> key -> summary
	initialized bool

	changesTotal metric.Int64Counter
}

// NewDiffTracker creates a tracker with no baseline.
func NewDiffTracker() *DiffTracker {
	d := &DiffTracker{previous: make(map[string]map[string]inventory.InstanceSummary)}

	counter, err := otel.Meter(meterName).Int64Counter(
		"inventory_instance_changes_total",
		metric.WithDescription("Instances added, deleted or modified since the previous run"),
	)
	if err == nil {
		d.changesTotal = counter
	}
	return d
}

// LoadBaseline reads a previous instances artifact. A missing file leaves
// the tracker without a baseline.
func (d *DiffTracker) LoadBaseline(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("no previous instances artifact")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read baseline: %w", err)
	}

	var doc struct {
		Instances []struct {
			InstanceID   string `json:"InstanceId"`
			InstanceType string `json:"InstanceType"`
			Lifecycle    string `json:"InstanceLifecycle"`
			State        *struct {
				Name string `json:"Name"`
			} `json:"State"`
			LoadBalancers []string `json:"LoadBalancerName"`
			Region        string   `json:"region"`
		} `json:"instances"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse baseline %s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.previous = make(map[string]map[string]inventory.InstanceSummary)
	for _, inst := range doc.Instances {
		s := inventory.InstanceSummary{
			InstanceID:    inst.InstanceID,
			Region:        inst.Region,
			InstanceType:  inst.InstanceType,
			Lifecycle:     inst.Lifecycle,
			LoadBalancers: strings.Join(inst.LoadBalancers, ","),
		}
		if inst.State != nil {
			s.State = inst.State.Name
		}
		d.regionLocked(s.Region)[inventory.InstanceKey(s)] = s
	}
	d.initialized = true
	return nil
}

func (d *DiffTracker) regionLocked(region string) map[string]inventory.InstanceSummary {
	m, ok := d.previous[region]
	if !ok {
		m = make(map[string]inventory.InstanceSummary)
		d.previous[region] = m
	}
	return m
}

// ComputeDiff compares the current instances of region against the baseline.
// Returns nil without a baseline. Diffs are sorted by instance id.
func (d *DiffTracker) ComputeDiff(region string, current []inventory.Instance) []inventory.InstanceDiff {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	prev := d.previous[region]
	curr := make(map[string]inventory.InstanceSummary, len(current))
	for _, inst := range current {
		s := inventory.Summarize(inst)
		curr[inventory.InstanceKey(s)] = s
	}

	diffs := make([]inventory.InstanceDiff, 0)
	for key, p := range prev {
		c, exists := curr[key]
		if !exists {
			diffs = append(diffs, inventory.InstanceDiff{Type: inventory.DiffDeleted, Instance: p})
			continue
		}
		if changes := detectChanges(p, c); len(changes) > 0 {
			diffs = append(diffs, inventory.InstanceDiff{Type: inventory.DiffModified, Instance: c, Changes: changes})
		}
	}
	for key, c := range curr {
		if _, exists := prev[key]; !exists {
			diffs = append(diffs, inventory.InstanceDiff{Type: inventory.DiffAdded, Instance: c})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].Instance.InstanceID < diffs[j].Instance.InstanceID
	})
	return diffs
}

// Emit logs the changes of one region. Failed regions are skipped.
func (d *DiffTracker) Emit(ctx context.Context, result inventory.RegionResult) error {
	if result.Error != nil || result.Bundle == nil {
		return nil
	}

	for _, diff := range d.ComputeDiff(result.Region, result.Bundle.Instances) {
		if d.changesTotal != nil {
			d.changesTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("region", result.Region),
				attribute.String("change_type", string(diff.Type)),
			))
		}

		logEvent := log.Info().
			Str("id", diff.Instance.InstanceID).
			Str("region", diff.Instance.Region).
			Str("change", string(diff.Type))

		if diff.Type == inventory.DiffModified {
			for field, change := range diff.Changes {
				logEvent = logEvent.
					Str(field+".from", change.Previous).
					Str(field+".to", change.Current)
			}
		}

		logEvent.Msg("instance changed")
	}
	return nil
}

// Close is a no-op.
func (d *DiffTracker) Close() error {
	return nil
}

func detectChanges(prev, curr inventory.InstanceSummary) map[string]inventory.Change {
	changes := make(map[string]inventory.Change)

	fields := []struct {
		name       string
		prev, curr string
	}{
		{"instance_type", prev.InstanceType, curr.InstanceType},
		{"state", prev.State, curr.State},
		{"lifecycle", prev.Lifecycle, curr.Lifecycle},
		{"load_balancers", prev.LoadBalancers, curr.LoadBalancers},
	}
	for _, f := range fields {
		if f.prev != f.curr {
			changes[f.name] = inventory.Change{Previous: f.prev, Current: f.curr}
		}
	}
	return changes
}

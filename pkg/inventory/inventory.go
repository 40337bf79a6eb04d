// Package inventory defines the records written to the inventory artifacts.
package inventory

import (
	"time"

	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// Kind names one artifact of the inventory.
type Kind string

const (
	KindInstances         Kind = "instances"
	KindSpotInstances     Kind = "spot_instances"
	KindReservations      Kind = "reservations"
	KindLoadBalancers     Kind = "load_balancers"
	KindV2LoadBalancers   Kind = "v2_load_balancers"
	KindAutoScalingGroups Kind = "autoscaling_groups"
)

// Kinds returns every artifact kind in output order.
func Kinds() []Kind {
	return []Kind{
		KindInstances,
		KindSpotInstances,
		KindReservations,
		KindLoadBalancers,
		KindV2LoadBalancers,
		KindAutoScalingGroups,
	}
}

// Provenance tags a record with the account and region it was read from.
// Artifacts span regions, so every element carries its own.
type Provenance struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
}

// Instance is an EC2 instance annotated with the load balancers serving it.
// LoadBalancers is nil when nothing routes to the instance and is written as null.
type Instance struct {
	ec2types.Instance
	ReservationID string   `json:"ReservationId,omitempty"`
	LoadBalancers []string `json:"LoadBalancerName"`
	Provenance
}

// IsSpot reports whether the instance runs under the spot lifecycle.
func (i Instance) IsSpot() bool {
	return i.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot
}

// Reservation is a reserved instance purchase.
type Reservation struct {
	ec2types.ReservedInstances
	Provenance
}

// LoadBalancer is a classic (v1) load balancer.
type LoadBalancer struct {
	elbtypes.LoadBalancerDescription
	Provenance
}

// LoadBalancerV2 is an application, network or gateway load balancer.
type LoadBalancerV2 struct {
	elbv2types.LoadBalancer
	Provenance
}

// AutoScalingGroup is an auto scaling group.
type AutoScalingGroup struct {
	asgtypes.AutoScalingGroup
	Provenance
}

// RegionBundle holds everything read from one region, ready for aggregation.
type RegionBundle struct {
	AccountID         string
	Region            string
	Instances         []Instance
	Reservations      []Reservation
	LoadBalancers     []LoadBalancer
	V2LoadBalancers   []LoadBalancerV2
	AutoScalingGroups []AutoScalingGroup
}

// SpotInstances returns the instances running under the spot lifecycle.
func (b RegionBundle) SpotInstances() []Instance {
	var spot []Instance
	for _, inst := range b.Instances {
		if inst.IsSpot() {
			spot = append(spot, inst)
		}
	}
	return spot
}

// Counts returns the number of records per artifact kind.
func (b RegionBundle) Counts() map[Kind]int {
	return map[Kind]int{
		KindInstances:         len(b.Instances),
		KindSpotInstances:     len(b.SpotInstances()),
		KindReservations:      len(b.Reservations),
		KindLoadBalancers:     len(b.LoadBalancers),
		KindV2LoadBalancers:   len(b.V2LoadBalancers),
		KindAutoScalingGroups: len(b.AutoScalingGroups),
	}
}

// RegionResult holds the outcome of scanning one region.
type RegionResult struct {
	Region   string
	Bundle   *RegionBundle // nil when Error is set
	Duration time.Duration
	Error    error
}

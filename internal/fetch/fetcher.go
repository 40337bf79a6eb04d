// Package fetch reads the raw compute inventory of one region.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/inventory/internal/awsclient"
	"github.com/yairfalse/inventory/pkg/inventory"
)

// KindAccount tags failures of the caller identity lookup.
const KindAccount inventory.Kind = "account"

// RegionFetchError reports a failed upstream query.
type RegionFetchError struct {
	Region string
	Kind   inventory.Kind
	Err    error
}

func (e *RegionFetchError) Error() string {
	return fmt.Sprintf("fetch %s in %s: %v", e.Kind, e.Region, e.Err)
}

func (e *RegionFetchError) Unwrap() error {
	return e.Err
}

// AsRegionFetchError unwraps err to a RegionFetchError.
func AsRegionFetchError(err error) (*RegionFetchError, bool) {
	var fe *RegionFetchError
	ok := errors.As(err, &fe)
	return fe, ok
}

// Result holds the provider-native collections of one region.
// Collections are never nil: empty means the region has none.
type Result struct {
	AccountID         string
	Reservations      []ec2types.Reservation
	ReservedInstances []ec2types.ReservedInstances
	LoadBalancers     []elbtypes.LoadBalancerDescription
	V2LoadBalancers   []elbv2types.LoadBalancer
	AutoScalingGroups []asgtypes.AutoScalingGroup
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithReservationStates restricts reserved instances to the given states.
func WithReservationStates(states []string) Option {
	return func(f *Fetcher) {
		f.reservationStates = states
	}
}

// Fetcher issues the five read-only queries for one region.
type Fetcher struct {
	clients           *awsclient.Clients
	reservationStates []string
}

// New returns a Fetcher bound to one region's clients.
func New(clients *awsclient.Clients, opts ...Option) *Fetcher {
	f := &Fetcher{clients: clients}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch runs every query in turn and stops at the first failure.
func (f *Fetcher) Fetch(ctx context.Context) (*Result, error) {
	res := &Result{}

	steps := []struct {
		kind inventory.Kind
		fn   func(context.Context, *Result) error
	}{
		{KindAccount, f.fetchAccount},
		{inventory.KindInstances, f.fetchInstances},
		{inventory.KindReservations, f.fetchReservedInstances},
		{inventory.KindLoadBalancers, f.fetchLoadBalancers},
		{inventory.KindV2LoadBalancers, f.fetchV2LoadBalancers},
		{inventory.KindAutoScalingGroups, f.fetchAutoScalingGroups},
	}

	for _, step := range steps {
		if err := step.fn(ctx, res); err != nil {
			return nil, &RegionFetchError{Region: f.clients.Region, Kind: step.kind, Err: err}
		}
	}

	log.Debug().
		Str("region", f.clients.Region).
		Int("reservations", len(res.Reservations)).
		Int("reserved_instances", len(res.ReservedInstances)).
		Int("load_balancers", len(res.LoadBalancers)).
		Int("v2_load_balancers", len(res.V2LoadBalancers)).
		Int("autoscaling_groups", len(res.AutoScalingGroups)).
		Msg("region fetched")

	return res, nil
}

func (f *Fetcher) fetchAccount(ctx context.Context, res *Result) error {
	output, err := f.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("get caller identity: %w", err)
	}
	res.AccountID = aws.ToString(output.Account)
	return nil
}

func (f *Fetcher) fetchInstances(ctx context.Context, res *Result) error {
	res.Reservations = []ec2types.Reservation{}
	var nextToken *string

	for {
		output, err := f.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return fmt.Errorf("describe instances: %w", err)
		}
		res.Reservations = append(res.Reservations, output.Reservations...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}
	return nil
}

func (f *Fetcher) fetchReservedInstances(ctx context.Context, res *Result) error {
	input := &ec2.DescribeReservedInstancesInput{}
	if len(f.reservationStates) > 0 {
		input.Filters = []ec2types.Filter{{Name: aws.String("state"), Values: f.reservationStates}}
	}

	output, err := f.clients.EC2.DescribeReservedInstances(ctx, input)
	if err != nil {
		return fmt.Errorf("describe reserved instances: %w", err)
	}
	res.ReservedInstances = append([]ec2types.ReservedInstances{}, output.ReservedInstances...)
	return nil
}

func (f *Fetcher) fetchLoadBalancers(ctx context.Context, res *Result) error {
	res.LoadBalancers = []elbtypes.LoadBalancerDescription{}
	var marker *string

	for {
		output, err := f.clients.ELB.DescribeLoadBalancers(ctx, &elasticloadbalancing.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return fmt.Errorf("describe load balancers: %w", err)
		}
		res.LoadBalancers = append(res.LoadBalancers, output.LoadBalancerDescriptions...)

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}
	return nil
}

func (f *Fetcher) fetchV2LoadBalancers(ctx context.Context, res *Result) error {
	res.V2LoadBalancers = []elbv2types.LoadBalancer{}
	var marker *string

	for {
		output, err := f.clients.ELBv2.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return fmt.Errorf("describe v2 load balancers: %w", err)
		}
		res.V2LoadBalancers = append(res.V2LoadBalancers, output.LoadBalancers...)

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}
	return nil
}

func (f *Fetcher) fetchAutoScalingGroups(ctx context.Context, res *Result) error {
	res.AutoScalingGroups = []asgtypes.AutoScalingGroup{}
	var nextToken *string

	for {
		output, err := f.clients.AutoScaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{NextToken: nextToken})
		if err != nil {
			return fmt.Errorf("describe auto scaling groups: %w", err)
		}
		res.AutoScalingGroups = append(res.AutoScalingGroups, output.AutoScalingGroups...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}
	return nil
}

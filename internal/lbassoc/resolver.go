// Package lbassoc maps EC2 instances to the load balancers routing traffic to them.
//
// Classic load balancers list their member instances directly. ELBv2 load
// balancers are joined through their target groups and the health of each
// target; only healthy targets count as served.
package lbassoc

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/rs/zerolog/log"
)

// TargetAPI is the ELBv2 subset needed for the v2 join.
type TargetAPI interface {
	DescribeTargetGroups(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetGroupsInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error)
	DescribeTargetHealth(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetHealthInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetHealthOutput, error)
}

// AssociationResolutionError reports a failed v2 sub-query.
type AssociationResolutionError struct {
	Region       string
	LoadBalancer string
	TargetGroup  string // empty when listing target groups failed
	Op           string
	Err          error
}

func (e *AssociationResolutionError) Error() string {
	if e.TargetGroup != "" {
		return fmt.Sprintf("resolve %s in %s: %s for target group %s: %v", e.LoadBalancer, e.Region, e.Op, e.TargetGroup, e.Err)
	}
	return fmt.Sprintf("resolve %s in %s: %s: %v", e.LoadBalancer, e.Region, e.Op, e.Err)
}

func (e *AssociationResolutionError) Unwrap() error {
	return e.Err
}

// Resolver builds the association map of one region.
type Resolver struct {
	region string
	client TargetAPI
}

// NewResolver returns a resolver for region.
func NewResolver(region string, client TargetAPI) *Resolver {
	return &Resolver{region: region, client: client}
}

// Resolve runs the v1 pass and then the v2 pass.
func (r *Resolver) Resolve(ctx context.Context, v1 []elbtypes.LoadBalancerDescription, v2 []elbv2types.LoadBalancer) (*AssociationMap, error) {
	m := NewAssociationMap()

	r.addClassic(m, v1)
	if err := r.addV2(ctx, m, v2); err != nil {
		return nil, err
	}

	log.Debug().
		Str("region", r.region).
		Int("instances", m.Len()).
		Msg("load balancer associations resolved")

	return m, nil
}

func (r *Resolver) addClassic(m *AssociationMap, lbs []elbtypes.LoadBalancerDescription) {
	for _, lb := range lbs {
		name := aws.ToString(lb.LoadBalancerName)
		for _, inst := range lb.Instances {
			if id := aws.ToString(inst.InstanceId); id != "" {
				m.AddV1(id, name)
			}
		}
	}
}

func (r *Resolver) addV2(ctx context.Context, m *AssociationMap, lbs []elbv2types.LoadBalancer) error {
	for _, lb := range lbs {
		name := aws.ToString(lb.LoadBalancerName)
		arn := aws.ToString(lb.LoadBalancerArn)

		groups, err := r.targetGroups(ctx, arn)
		if err != nil {
			return &AssociationResolutionError{
				Region:       r.region,
				LoadBalancer: name,
				Op:           "describe target groups",
				Err:          err,
			}
		}

		for _, tg := range groups {
			if !routesToInstances(tg) {
				continue
			}
			tgArn := aws.ToString(tg.TargetGroupArn)
			ids, err := r.healthyTargets(ctx, tgArn)
			if err != nil {
				return &AssociationResolutionError{
					Region:       r.region,
					LoadBalancer: name,
					TargetGroup:  tgArn,
					Op:           "describe target health",
					Err:          err,
				}
			}
			for _, id := range ids {
				m.SetV2(id, name)
			}
		}
	}
	return nil
}

func (r *Resolver) targetGroups(ctx context.Context, lbArn string) ([]elbv2types.TargetGroup, error) {
	var groups []elbv2types.TargetGroup
	var marker *string

	for {
		output, err := r.client.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
			LoadBalancerArn: aws.String(lbArn),
			Marker:          marker,
		})
		if err != nil {
			return nil, err
		}
		groups = append(groups, output.TargetGroups...)

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}
	return groups, nil
}

// healthyTargets returns the ids of targets whose state is healthy.
func (r *Resolver) healthyTargets(ctx context.Context, tgArn string) ([]string, error) {
	output, err := r.client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(tgArn),
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, desc := range output.TargetHealthDescriptions {
		if desc.Target == nil || desc.TargetHealth == nil {
			continue
		}
		if desc.TargetHealth.State != elbv2types.TargetHealthStateEnumHealthy {
			continue
		}
		if id := aws.ToString(desc.Target.Id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// routesToInstances skips ip and lambda target groups, whose targets are never instance ids.
// An unset target type is treated as instance.
func routesToInstances(tg elbv2types.TargetGroup) bool {
	return tg.TargetType == "" || tg.TargetType == elbv2types.TargetTypeEnumInstance
}

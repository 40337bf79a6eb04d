package awsclient

import (
	"context"
	"sort"
	"sync"

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
)

// Operation names used as MockRegion.Errors keys.
const (
	OpDescribeInstances         = "DescribeInstances"
	OpDescribeReservedInstances = "DescribeReservedInstances"
	OpDescribeRegions           = "DescribeRegions"
	OpDescribeLoadBalancers     = "DescribeLoadBalancers"
	OpDescribeLoadBalancersV2   = "DescribeLoadBalancersV2"
	OpDescribeTargetGroups      = "DescribeTargetGroups"
	OpDescribeTargetHealth      = "DescribeTargetHealth"
	OpDescribeAutoScalingGroups = "DescribeAutoScalingGroups"
	OpGetCallerIdentity         = "GetCallerIdentity"
)

// MockRegion is the canned state of one region in a MockAccount.
type MockRegion struct {
	Reservations      []ec2types.Reservation
	ReservedInstances []ec2types.ReservedInstances
	LoadBalancers     []elbtypes.LoadBalancerDescription
	V2LoadBalancers   []elbv2types.LoadBalancer
	// TargetGroups is keyed by load balancer ARN.
	TargetGroups map[string][]elbv2types.TargetGroup
	// TargetHealth is keyed by target group ARN.
	TargetHealth      map[string][]elbv2types.TargetHealthDescription
	AutoScalingGroups []asgtypes.AutoScalingGroup

	// Errors makes the named operation fail in this region.
	Errors map[string]error
}

// MockCall records one API call made against a MockAccount.
type MockCall struct {
	Region    string
	Operation string
}

// MockAccount is an in-memory AWS account for tests. It implements Source.
type MockAccount struct {
	AccountID string
	Regions   map[string]*MockRegion
	// Enabled is what DescribeRegions returns; defaults to the sorted Regions keys.
	Enabled []string

	mu    sync.Mutex
	calls []MockCall
}

// NewMockAccount creates an empty MockAccount.
func NewMockAccount(accountID string) *MockAccount {
	return &MockAccount{
		AccountID: accountID,
		Regions:   make(map[string]*MockRegion),
	}
}

// Region returns the named region, creating it if needed.
func (m *MockAccount) Region(name string) *MockRegion {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.Regions[name]
	if !ok {
		r = &MockRegion{
			TargetGroups: make(map[string][]elbv2types.TargetGroup),
			TargetHealth: make(map[string][]elbv2types.TargetHealthDescription),
			Errors:       make(map[string]error),
		}
		m.Regions[name] = r
	}
	return r
}

// Calls returns the recorded calls.
func (m *MockAccount) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how often operation was called in region.
func (m *MockAccount) CallCount(region, operation string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Region == region && c.Operation == operation {
			n++
		}
	}
	return n
}

// Clients implements Source.
func (m *MockAccount) Clients(region string) *Clients {
	return &Clients{
		Region:      region,
		EC2:         &mockEC2{account: m, region: region},
		ELB:         &mockELB{account: m, region: region},
		ELBv2:       &mockELBv2{account: m, region: region},
		AutoScaling: &mockAutoScaling{account: m, region: region},
		STS:         &mockSTS{account: m, region: region},
	}
}

// call records the call and returns the region state or the injected error.
func (m *MockAccount) call(region, op string) (*MockRegion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Region: region, Operation: op})
	r, ok := m.Regions[region]
	m.mu.Unlock()

	if !ok {
		return &MockRegion{}, nil
	}
	if err := r.Errors[op]; err != nil {
		return nil, err
	}
	return r, nil
}

type mockEC2 struct {
	account *MockAccount
	region  string
}

func (c *mockEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	r, err := c.account.call(c.region, OpDescribeInstances)
	if err != nil {
		return nil, err
	}
	return &ec2.DescribeInstancesOutput{Reservations: r.Reservations}, nil
}

func (c *mockEC2) DescribeReservedInstances(_ context.Context, _ *ec2.DescribeReservedInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeReservedInstancesOutput, error) {
	r, err := c.account.call(c.region, OpDescribeReservedInstances)
	if err != nil {
		return nil, err
	}
	return &ec2.DescribeReservedInstancesOutput{ReservedInstances: r.ReservedInstances}, nil
}

func (c *mockEC2) DescribeRegions(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if _, err := c.account.call(c.region, OpDescribeRegions); err != nil {
		return nil, err
	}

	c.account.mu.Lock()
	enabled := append([]string(nil), c.account.Enabled...)
	if len(enabled) == 0 {
		for name := range c.account.Regions {
			enabled = append(enabled, name)
		}
		sort.Strings(enabled)
	}
	c.account.mu.Unlock()

	out := &ec2.DescribeRegionsOutput{}
	for _, name := range enabled {
		out.Regions = append(out.Regions, ec2types.Region{
			RegionName:  aws.String(name),
			OptInStatus: aws.String("opt-in-not-required"),
		})
	}
	return out, nil
}

type mockELB struct {
	account *MockAccount
	region  string
}

func (c *mockELB) DescribeLoadBalancers(_ context.Context, _ *elasticloadbalancing.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeLoadBalancersOutput, error) {
	r, err := c.account.call(c.region, OpDescribeLoadBalancers)
	if err != nil {
		return nil, err
	}
	return &elasticloadbalancing.DescribeLoadBalancersOutput{LoadBalancerDescriptions: r.LoadBalancers}, nil
}

type mockELBv2 struct {
	account *MockAccount
	region  string
}

func (c *mockELBv2) DescribeLoadBalancers(_ context.Context, _ *elasticloadbalancingv2.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	r, err := c.account.call(c.region, OpDescribeLoadBalancersV2)
	if err != nil {
		return nil, err
	}
	return &elasticloadbalancingv2.DescribeLoadBalancersOutput{LoadBalancers: r.V2LoadBalancers}, nil
}

func (c *mockELBv2) DescribeTargetGroups(_ context.Context, params *elasticloadbalancingv2.DescribeTargetGroupsInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error) {
	r, err := c.account.call(c.region, OpDescribeTargetGroups)
	if err != nil {
		return nil, err
	}
	return &elasticloadbalancingv2.DescribeTargetGroupsOutput{
		TargetGroups: r.TargetGroups[aws.ToString(params.LoadBalancerArn)],
	}, nil
}

func (c *mockELBv2) DescribeTargetHealth(_ context.Context, params *elasticloadbalancingv2.DescribeTargetHealthInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetHealthOutput, error) {
	r, err := c.account.call(c.region, OpDescribeTargetHealth)
	if err != nil {
		return nil, err
	}
	return &elasticloadbalancingv2.DescribeTargetHealthOutput{
		TargetHealthDescriptions: r.TargetHealth[aws.ToString(params.TargetGroupArn)],
	}, nil
}

type mockAutoScaling struct {
	account *MockAccount
	region  string
}

func (c *mockAutoScaling) DescribeAutoScalingGroups(_ context.Context, _ *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	r, err := c.account.call(c.region, OpDescribeAutoScalingGroups)
	if err != nil {
		return nil, err
	}
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: r.AutoScalingGroups}, nil
}

type mockSTS struct {
	account *MockAccount
	region  string
}

func (c *mockSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if _, err := c.account.call(c.region, OpGetCallerIdentity); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(c.account.AccountID),
		Arn:     aws.String("arn:aws:iam::" + c.account.AccountID + ":user/inventory"),
	}, nil
}

package region

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	DescribeRegionsFunc func(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	calls               int
}

func (m *mockLister) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	m.calls++
	return m.DescribeRegionsFunc(ctx, params, optFns...)
}

func regionsOutput(names ...string) *ec2.DescribeRegionsOutput {
	out := &ec2.DescribeRegionsOutput{}
	for _, n := range names {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(n)})
	}
	return out
}

func TestCatalog_RequestedRegion(t *testing.T) {
	lister := &mockLister{}
	c := NewCatalog(lister, []string{"eu-west-1"})

	regions, err := c.Regions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1"}, regions)
	assert.Equal(t, 0, lister.calls, "must not enumerate when a region is given")
}

func TestCatalog_RequestedRegionsDeduped(t *testing.T) {
	c := NewCatalog(&mockLister{}, []string{"us-west-2, us-east-1", "us-west-2", " "})

	regions, err := c.Regions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"us-west-2", "us-east-1"}, regions)
}

func TestCatalog_EnumeratesEnabledRegions(t *testing.T) {
	lister := &mockLister{
		DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
			out := regionsOutput("us-west-2", "eu-central-1", "us-east-1", "us-west-2")
			out.Regions = append(out.Regions, ec2types.Region{
				RegionName:  aws.String("af-south-1"),
				OptInStatus: aws.String("not-opted-in"),
			})
			return out, nil
		},
	}

	regions, err := NewCatalog(lister, nil).Regions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"eu-central-1", "us-east-1", "us-west-2"}, regions)
}

func TestCatalog_Error(t *testing.T) {
	lister := &mockLister{
		DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
			return nil, errors.New("UnauthorizedOperation")
		},
	}

	_, err := NewCatalog(lister, nil).Regions(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe regions")
	assert.Contains(t, err.Error(), "UnauthorizedOperation")
}

func TestCatalog_NoRegions(t *testing.T) {
	lister := &mockLister{
		DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
			return regionsOutput(), nil
		},
	}

	_, err := NewCatalog(lister, nil).Regions(context.Background())

	require.Error(t, err)
}

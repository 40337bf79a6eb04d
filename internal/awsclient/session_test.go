package awsclient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateAWSEnv keeps the developer's ~/.aws and environment out of the test.
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_PROFILE", "")
}

func TestNewSession_StaticCredentials(t *testing.T) {
	isolateAWSEnv(t)

	s, err := NewSession(context.Background(), Config{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", s.Region())

	creds, err := s.awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

func TestNewSession_DefaultRegion(t *testing.T) {
	isolateAWSEnv(t)

	s, err := NewSession(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, s.Region())
}

func TestNewSession_UnknownProfile(t *testing.T) {
	isolateAWSEnv(t)

	_, err := NewSession(context.Background(), Config{Profile: "does-not-exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load aws config")
}

func TestSession_ClientsReusedPerRegion(t *testing.T) {
	isolateAWSEnv(t)

	s, err := NewSession(context.Background(), Config{Region: "us-east-1"})
	require.NoError(t, err)

	a := s.Clients("us-east-1")
	b := s.Clients("us-east-1")
	c := s.Clients("ap-south-1")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "ap-south-1", c.Region)
	assert.NotNil(t, c.EC2)
	assert.NotNil(t, c.ELB)
	assert.NotNil(t, c.ELBv2)
	assert.NotNil(t, c.AutoScaling)
	assert.NotNil(t, c.STS)
}

func TestSession_BaseEndpoint(t *testing.T) {
	s := &Session{}
	assert.Nil(t, s.baseEndpoint())

	s.endpoint = "http://localhost:4566"
	assert.Equal(t, "http://localhost:4566", aws.ToString(s.baseEndpoint()))
}

func TestMockAccount_InjectedError(t *testing.T) {
	m := NewMockAccount("123456789012")
	m.Region("us-east-1").Errors[OpDescribeInstances] = errors.New("access denied")

	c := m.Clients("us-east-1")
	_, err := c.EC2.DescribeInstances(context.Background(), nil)
	require.Error(t, err)

	out, err := c.EC2.DescribeRegions(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, out.Regions, 1)
	assert.Equal(t, "us-east-1", aws.ToString(out.Regions[0].RegionName))

	assert.Equal(t, 1, m.CallCount("us-east-1", OpDescribeInstances))
}

func TestMockAccount_UnknownRegionIsEmpty(t *testing.T) {
	m := NewMockAccount("123456789012")
	m.Region("us-east-1").Reservations = []ec2types.Reservation{{ReservationId: aws.String("r-1")}}

	out, err := m.Clients("eu-north-1").EC2.DescribeInstances(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Reservations)
}

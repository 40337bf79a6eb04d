package inventory

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	inst := Instance{
		Instance: ec2types.Instance{
			InstanceId:        aws.String("i-1"),
			InstanceType:      ec2types.InstanceTypeM5Large,
			InstanceLifecycle: ec2types.InstanceLifecycleTypeSpot,
			State:             &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		},
		LoadBalancers: []string{"lb-a", "lb-b"},
		Provenance:    Provenance{AccountID: "123456789012", Region: "us-east-1"},
	}

	assert.Equal(t, InstanceSummary{
		InstanceID:    "i-1",
		Region:        "us-east-1",
		InstanceType:  "m5.large",
		State:         "running",
		Lifecycle:     "spot",
		LoadBalancers: "lb-a,lb-b",
	}, Summarize(inst))
}

// No state and no load balancers leave the fields empty
func TestSummarize_Sparse(t *testing.T) {
	s := Summarize(Instance{Instance: ec2types.Instance{InstanceId: aws.String("i-2")}})

	assert.Equal(t, "i-2", s.InstanceID)
	assert.Empty(t, s.State)
	assert.Empty(t, s.LoadBalancers)
}

func TestInstanceKey(t *testing.T) {
	a := InstanceSummary{InstanceID: "i-1", Region: "us-east-1"}
	b := InstanceSummary{InstanceID: "i-1", Region: "eu-west-1"}

	assert.Equal(t, "us-east-1|i-1", InstanceKey(a))
	assert.NotEqual(t, InstanceKey(a), InstanceKey(b))
}

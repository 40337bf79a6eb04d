package inventory

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// DiffType represents the type of change detected between runs.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffDeleted  DiffType = "deleted"
	DiffModified DiffType = "modified"
)

// Change represents a single field change.
// The field name is the map key in InstanceDiff.Changes.
type Change struct {
	Previous string
	Current  string
}

// InstanceSummary is the part of an instance compared between runs.
type InstanceSummary struct {
	InstanceID    string
	Region        string
	InstanceType  string
	State         string
	Lifecycle     string
	LoadBalancers string // comma-joined, empty when unserved
}

// Summarize extracts the compared fields of inst.
func Summarize(inst Instance) InstanceSummary {
	s := InstanceSummary{
		InstanceID:    aws.ToString(inst.InstanceId),
		Region:        inst.Region,
		InstanceType:  string(inst.InstanceType),
		Lifecycle:     string(inst.InstanceLifecycle),
		LoadBalancers: strings.Join(inst.LoadBalancers, ","),
	}
	if inst.State != nil {
		s.State = string(inst.State.Name)
	}
	return s
}

// InstanceDiff represents a change of one instance since the previous run.
type InstanceDiff struct {
	Type     DiffType
	Instance InstanceSummary
	Changes  map[string]Change // nil unless Type is DiffModified
}

// InstanceKey identifies an instance across runs.
func InstanceKey(s InstanceSummary) string {
	return s.Region + "|" + s.InstanceID
}

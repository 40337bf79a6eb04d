package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// Artifact describes one persisted JSON document.
type Artifact struct {
	Kind    inventory.Kind
	File    string
	Field   string
	Version string
}

var artifacts = []Artifact{
	{Kind: inventory.KindInstances, File: "instances.json", Field: "instances"},
	{Kind: inventory.KindSpotInstances, File: "spot_instances.json", Field: "instances"},
	{Kind: inventory.KindReservations, File: "reservations.json", Field: "reservations"},
	{Kind: inventory.KindLoadBalancers, File: "load_balancers.json", Field: "load_balancers", Version: "elb"},
	{Kind: inventory.KindV2LoadBalancers, File: "v2_load_balancers.json", Field: "load_balancers", Version: "elbv2"},
	{Kind: inventory.KindAutoScalingGroups, File: "autoscaling_groups.json", Field: "autoscaling_groups"},
}

// Artifacts returns the artifact table in write order.
func Artifacts() []Artifact {
	return append([]Artifact(nil), artifacts...)
}

// ArtifactFor returns the artifact of kind.
func ArtifactFor(kind inventory.Kind) (Artifact, bool) {
	for _, a := range artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Document is the content of one artifact file.
type Document struct {
	AccountID string
	Field     string
	Version   string
	Items     []any
}

// MarshalJSON writes {account_id, <field>: [...], version?}.
func (d Document) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"account_id": d.AccountID,
		d.Field:      d.Items,
	}
	if d.Version != "" {
		out["version"] = d.Version
	}
	return json.Marshal(out)
}

// encode renders d as one compact JSON value followed by a newline.
func encode(d Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.Field, err)
	}
	return append(data, '\n'), nil
}

// PersistenceError reports a failed artifact write.
type PersistenceError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s to %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

package lbassoc

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// Annotate flattens reservations into instance records and attaches the
// load balancers serving each one.
func Annotate(reservations []ec2types.Reservation, m *AssociationMap, prov inventory.Provenance) []inventory.Instance {
	instances := []inventory.Instance{}
	for _, res := range reservations {
		for _, inst := range res.Instances {
			instances = append(instances, inventory.Instance{
				Instance:      inst,
				ReservationID: aws.ToString(res.ReservationId),
				LoadBalancers: m.Lookup(aws.ToString(inst.InstanceId)),
				Provenance:    prov,
			})
		}
	}
	return instances
}

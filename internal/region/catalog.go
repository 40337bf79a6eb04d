// Package region resolves which AWS regions a scan covers.
package region

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/rs/zerolog/log"
)

// Lister is the EC2 subset needed to enumerate regions.
type Lister interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// Catalog yields the ordered set of regions to scan.
type Catalog struct {
	lister    Lister
	requested []string
}

// NewCatalog returns a catalog. When requested is empty the account's
// enabled regions are listed through lister.
func NewCatalog(lister Lister, requested []string) *Catalog {
	return &Catalog{lister: lister, requested: requested}
}

// Regions returns the regions to scan, without duplicates.
// User-specified regions keep their order; enumerated regions are sorted.
func (c *Catalog) Regions(ctx context.Context) ([]string, error) {
	if regions := dedupe(c.requested); len(regions) > 0 {
		return regions, nil
	}

	out, err := c.lister.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	var names []string
	for _, r := range out.Regions {
		if aws.ToString(r.OptInStatus) == "not-opted-in" {
			continue
		}
		names = append(names, aws.ToString(r.RegionName))
	}

	regions := dedupe(names)
	if len(regions) == 0 {
		return nil, fmt.Errorf("no enabled regions discovered")
	}
	sort.Strings(regions)

	log.Debug().Strs("regions", regions).Msg("enabled regions")
	return regions, nil
}

// dedupe trims, drops empties and removes duplicates, keeping first occurrence.
// Comma-separated entries are split.
func dedupe(input []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range input {
		for _, r := range strings.Split(entry, ",") {
			r = strings.TrimSpace(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Package report renders a savings recommendation document computed elsewhere.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultFile is where the recommendation service leaves its response.
const DefaultFile = "recommendation_response.json"

// Recommendation types.
const (
	TypeSpot         = "SPOT"
	TypeReservations = "RESERVATIONS"
)

// Document is a savings recommendation for one account.
type Document struct {
	AccountID       string          `json:"account_id"`
	SavingsByRegion []RegionSavings `json:"savings_by_region"`
}

// RegionSavings groups the recommendations of one region.
type RegionSavings struct {
	Region            string        `json:"region"`
	SavingsByRuleType []RuleSavings `json:"savings_by_rule_type"`
}

// RuleSavings is one recommendation kind and what it saves.
type RuleSavings struct {
	RecommendedType string          `json:"recommended_type"`
	TotalSavings    decimal.Decimal `json:"total_savings"`
	Details         []Detail        `json:"details"`
}

// Detail is one recommended action. Spot details use InstanceID and
// InstanceType; reservation details use the remaining fields.
type Detail struct {
	InstanceID   string          `json:"InstanceId"`
	InstanceType string          `json:"InstanceType"`
	Count        Text            `json:"RecommendedNumberOfInstancesToPurchase"`
	Term         Text            `json:"Term"`
	UpfrontCost  decimal.Decimal `json:"UpfrontCost"`
}

// Text accepts a JSON string or number and keeps its literal form.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*t = Text(n.String())
	return nil
}

// Load reads a recommendation document from path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recommendation: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a recommendation document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}
	if doc.AccountID == "" {
		return nil, fmt.Errorf("decode recommendation: missing account_id")
	}
	return &doc, nil
}

// TotalSavings sums the savings of every region and rule.
func (d *Document) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for _, region := range d.SavingsByRegion {
		for _, rule := range region.SavingsByRuleType {
			total = total.Add(rule.TotalSavings)
		}
	}
	return total
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func skipUnknown(region string, rule RuleSavings) {
	log.Debug().
		Str("region", region).
		Str("type", rule.RecommendedType).
		Msg("skipping unknown recommendation type")
}

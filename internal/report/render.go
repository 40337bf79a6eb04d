package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Format selects how a document is rendered.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text or table)", s)
	}
}

const separator = "---------------------------------------------------------------------"

// Render writes doc to w in the given format.
func Render(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatTable:
		return renderTable(w, doc)
	default:
		return renderText(w, doc)
	}
}

// renderText prints a numbered list per region and recommendation type.
func renderText(w io.Writer, doc *Document) error {
	var b strings.Builder

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "FOR THE AWS ACCOUNT ID %s\n", doc.AccountID)

	for _, region := range doc.SavingsByRegion {
		fmt.Fprintln(&b, separator)
		fmt.Fprintf(&b, "IN THE REGION %s\n\n", region.Region)

		for _, rule := range region.SavingsByRuleType {
			switch rule.RecommendedType {
			case TypeSpot:
				fmt.Fprintf(&b, "Convert the following instances to SPOT to save %s USD\n", money(rule.TotalSavings))
				for i, d := range rule.Details {
					fmt.Fprintf(&b, "%d) Instance ID: %s of type %s\n", i+1, d.InstanceID, d.InstanceType)
				}
				fmt.Fprintln(&b)
			case TypeReservations:
				fmt.Fprintf(&b, "RESERVE the following instances to save %s USD\n", money(rule.TotalSavings))
				for i, d := range rule.Details {
					fmt.Fprintf(&b, "%d) %s %s for a period of %s years for the upfront cost of %s\n",
						i+1, d.Count, d.InstanceType, d.Term, money(d.UpfrontCost))
				}
				fmt.Fprintln(&b)
			default:
				skipUnknown(region.Region, rule)
			}
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "TOTAL SAVINGS %s USD\n", money(doc.TotalSavings()))

	_, err := io.WriteString(w, b.String())
	return err
}

// renderTable prints one row per recommended action.
func renderTable(w io.Writer, doc *Document) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Region", "Action", "Instance", "Type", "Count", "Term", "Upfront", "Savings"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, region := range doc.SavingsByRegion {
		for _, rule := range region.SavingsByRuleType {
			switch rule.RecommendedType {
			case TypeSpot:
				for _, d := range rule.Details {
					table.Append([]string{region.Region, "spot", d.InstanceID, d.InstanceType, "", "", "", money(rule.TotalSavings)})
				}
			case TypeReservations:
				for _, d := range rule.Details {
					table.Append([]string{region.Region, "reserve", "", d.InstanceType, string(d.Count), string(d.Term), money(d.UpfrontCost), money(rule.TotalSavings)})
				}
			default:
				skipUnknown(region.Region, rule)
			}
		}
	}

	table.SetFooter([]string{"", "", "", "", "", "", "Total", money(doc.TotalSavings())})
	table.Render()
	return nil
}

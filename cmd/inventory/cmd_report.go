package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/inventory/internal/report"
)

var (
	reportFile   string
	reportFormat string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a savings recommendation",
	Long: `Print the savings recommendation computed from the inventory artifacts.

Spot conversions and reservation purchases are listed per region with the
savings of each, followed by the account total.`,
	Example: `  inventory report                                  # Read recommendation_response.json
  inventory report --file out/recommendation.json
  inventory report --format table`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFile, "file", report.DefaultFile, "Recommendation document")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatText), "Output format: text, table")
}

func runReport(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(reportFormat)
	if err != nil {
		return err
	}

	doc, err := report.Load(reportFile)
	if err != nil {
		return err
	}

	return report.Render(cmd.OutOrStdout(), doc, format)
}

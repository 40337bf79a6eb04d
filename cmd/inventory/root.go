package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "inventory",
		Short: "AWS compute inventory",
		Long: `Inventory - AWS compute inventory

Inventory reads the instances, reserved instances, classic and v2 load
balancers and auto scaling groups of every region of an account, records
which load balancers route traffic to each instance, and writes one JSON
artifact per resource kind for cost and capacity reporting.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inventory %s\n", version)
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`inventory {{.Version}}
`)
	rootCmd.AddCommand(versionCmd)
}

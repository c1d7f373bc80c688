package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fulfillment",
	Short: "Retail order fulfillment service",
	Long: `Order fulfillment service for the e-commerce and point-of-sale
channels: ingests order events, tracks each order through the
fulfillment stages and notifies customers and riders along the way.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adforge",
	Short: "adforge - multi-agent marketing campaign generator",
	Long: `adforge generates complete social media campaigns from a business
description.

A pipeline of agents analyzes the business, plans a content strategy,
and generates the visual assets for every planned post. Campaign state
is versioned in a local SQLite store; every run is resumable, auditable,
and individual posts can be regenerated without redoing the campaign.

Examples:
  adforge config init
  adforge create --company "Driftwood Coffee" --industry "specialty coffee" \
      --description "Small-batch roaster in Portland"
  adforge list
  adforge status <campaign-id>
  adforge regenerate <campaign-id> <post-id> --force`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "adforge.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

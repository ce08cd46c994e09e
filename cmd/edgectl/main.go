package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rulesPath string

// rootCmd is the base command for the offline edge tooling
var rootCmd = &cobra.Command{
	Use:   "edgectl",
	Short: "Inspect rulesets and price lines without running the engine",
	Long: `edgectl answers the engine's questions from the command line: which pick a
ruleset gives for a combined value, what a two-way market is worth without
the bookmaker margin, what the count model says about a line, and which
ticket the selector builds from live provider data.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "configs/rulesets.yaml", "Path to the rulesets file")

	rootCmd.AddCommand(rulesetsCmd)
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(devigCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(ticketCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/oddsmath"
	"github.com/Vodeneev/ticketedge/internal/pkg/probability"
	"github.com/Vodeneev/ticketedge/internal/pkg/shrinkage"
)

var devigCmd = &cobra.Command{
	Use:   "devig OVER UNDER",
	Short: "Remove the bookmaker margin from a two-way price",
	Long: `Remove the bookmaker margin from an over/under price pair and print the raw
and fair probabilities. Odds accept either a dot or a comma as the decimal
separator.

Examples:
  edgectl devig 2.10 1.80
  edgectl devig 1,90 1,90 --prob 0.55`,
	Args: cobra.ExactArgs(2),
	RunE: runDevig,
}

var devigProb float64

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Price a totals line from both teams' averages",
	Long: `Blend both teams' per-match averages toward the league prior, pick Poisson
or negative binomial for the category, and print over/under probabilities
for each line.

Examples:
  edgectl model --category goals --home 1.8 --away 1.2 --lines 1.5,2.5,3.5
  edgectl model --category cards --home 2.2 --away 2.0 --samples 3`,
	RunE: runModel,
}

var (
	modelConfigPath string
	modelCategory   string
	modelHome       float64
	modelAway       float64
	modelSamples    int
	modelLines      []float64
)

func init() {
	devigCmd.Flags().Float64Var(&devigProb, "prob", 0, "Model probability for the over side; prints edge and EV when set")

	modelCmd.Flags().StringVar(&modelConfigPath, "config", "", "Engine config for priors and dispersion (default: built-in values)")
	modelCmd.Flags().StringVar(&modelCategory, "category", "goals", "Category to model")
	modelCmd.Flags().Float64Var(&modelHome, "home", 0, "Home team per-match average")
	modelCmd.Flags().Float64Var(&modelAway, "away", 0, "Away team per-match average")
	modelCmd.Flags().IntVar(&modelSamples, "samples", models.MaxSampleSize, "Matches behind each average")
	modelCmd.Flags().Float64SliceVar(&modelLines, "lines", nil, "Lines to price (default: the configured lines)")
	_ = modelCmd.MarkFlagRequired("home")
	_ = modelCmd.MarkFlagRequired("away")
}

func runDevig(cmd *cobra.Command, args []string) error {
	over, err := oddsmath.ParseOdds(args[0])
	if err != nil {
		return fmt.Errorf("over: %w", err)
	}
	under, err := oddsmath.ParseOdds(args[1])
	if err != nil {
		return fmt.Errorf("under: %w", err)
	}
	tw, err := oddsmath.Devig(over, under)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tODDS\tRAW\tFAIR")
	fmt.Fprintf(w, "over\t%.2f\t%.4f\t%.4f\n", over, tw.RawOver, tw.FairOver)
	fmt.Fprintf(w, "under\t%.2f\t%.4f\t%.4f\n", under, tw.RawUnder, tw.FairUnder)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "margin: %.2f%%\n", tw.VigPercentage())

	if cmd.Flags().Changed("prob") {
		fmt.Fprintf(cmd.OutOrStdout(), "edge: %.4f  ev: %.4f\n", devigProb-tw.FairOver, oddsmath.ExpectedValue(devigProb, over))
	}
	return nil
}

func runModel(cmd *cobra.Command, _ []string) error {
	cfg, err := modelConfig()
	if err != nil {
		return err
	}
	category := models.Category(strings.ToLower(modelCategory))
	if !category.Valid() {
		return fmt.Errorf("unknown category %q", modelCategory)
	}

	est, err := shrinkage.New(cfg.Engine.Tau, cfg.Engine.HomeAdvantage)
	if err != nil {
		return err
	}
	home := models.TeamStats{TeamID: "home", SampleSize: modelSamples}
	away := models.TeamStats{TeamID: "away", SampleSize: modelSamples}
	if err := home.SetRate(category, modelHome); err != nil {
		return err
	}
	if err := away.SetRate(category, modelAway); err != nil {
		return err
	}
	rates, err := est.TotalRate(home, away, category, cfg.Engine.LeaguePriors[string(category)])
	if err != nil {
		return err
	}
	dist := probability.ForCategory(rates.Total, cfg.Engine.Dispersion[string(category)])

	lines := modelLines
	if len(lines) == 0 {
		lines = cfg.Engine.Lines[string(category)]
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: home %.3f + away %.3f = %s, confidence %s\n",
		category, rates.Home, rates.Away, dist, models.ConfidenceFor(modelSamples, modelSamples))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tP(OVER)\tP(UNDER)\tFAIR OVER\tFAIR UNDER")
	for _, line := range lines {
		pOver, pUnder := probability.OverUnder(dist, line)
		fmt.Fprintf(w, "%.1f\t%.4f\t%.4f\t%s\t%s\n", line, pOver, pUnder, fairOdds(pOver), fairOdds(pUnder))
	}
	return w.Flush()
}

// modelConfig parses an empty document when no file is given so the
// built-in defaults apply.
func modelConfig() (*config.Config, error) {
	if modelConfigPath != "" {
		return config.Load(modelConfigPath)
	}
	return config.Parse([]byte("rules:\n  path: " + rulesPath + "\n"))
}

func fairOdds(p float64) string {
	o, err := oddsmath.FairOdds(p)
	if err != nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", o)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vodeneev/ticketedge/internal/engine/engine"
	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/source"
	"github.com/Vodeneev/ticketedge/internal/pkg/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Build a ticket from live provider data",
	Long: `Analyze upcoming fixtures (or the given ones) with the provider configured
in the engine config and search for a ticket whose total odds land in the
target band.

Examples:
  edgectl ticket --config configs/local.yaml --min 3 --max 5
  edgectl ticket --config configs/local.yaml --mode line --profile safe --fixture 1035 --fixture 1036`,
	RunE: runTicket,
}

var (
	ticketConfigPath string
	ticketReq        engine.TicketRequest
	ticketSeed       int64
	ticketFormat     string
	ticketTimeout    time.Duration
)

func init() {
	f := ticketCmd.Flags()
	f.StringVar(&ticketConfigPath, "config", "configs/local.yaml", "Engine config file")
	f.StringSliceVar(&ticketReq.FixtureIDs, "fixture", nil, "Fixture id to include (repeatable; default: lookahead window)")
	f.StringVar(&ticketReq.RulesetVersion, "ruleset", "", "Ruleset version")
	f.StringVar(&ticketReq.Mode, "mode", engine.ModeEdge, "Candidate source: edge or line")
	f.Float64Var(&ticketReq.TargetMin, "min", 3, "Lowest acceptable total odds")
	f.Float64Var(&ticketReq.TargetMax, "max", 5, "Highest acceptable total odds")
	f.IntVar(&ticketReq.MinLegs, "min-legs", 2, "Minimum legs")
	f.IntVar(&ticketReq.MaxLegs, "max-legs", 4, "Maximum legs")
	f.StringVar(&ticketReq.RiskProfile, "profile", "balanced", "Risk profile name")
	f.Int64Var(&ticketSeed, "seed", 0, "Random seed for a reproducible search (0: time based)")
	f.StringVar(&ticketFormat, "format", "table", "Output format: table or json")
	f.DurationVar(&ticketTimeout, "timeout", 2*time.Minute, "Overall timeout")
}

func runTicket(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(ticketConfigPath)
	if err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	var deps engine.Deps
	if client := source.NewClient(cfg.Source); client != nil {
		deps.Source = client
	}
	e, err := engine.New(cfg, reg, deps)
	if err != nil {
		return err
	}

	req := ticketReq
	if ticketSeed != 0 {
		req.Seed = &ticketSeed
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ticketTimeout)
	defer cancel()

	res, err := e.BuildTicket(ctx, req)
	if err != nil {
		return err
	}
	return printTicket(cmd, res)
}

func printTicket(cmd *cobra.Command, res ticket.Result) error {
	out := cmd.OutOrStdout()
	if ticketFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "status: %s (attempts %d)\n", res.Status, res.Attempts)
	if res.Ticket == nil {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIXTURE\tMARKET\tSELECTION\tODDS\tBOOKMAKER")
	for _, leg := range res.Ticket.Legs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", leg.Fixture, leg.Market, leg.Selection(), leg.Odds, leg.Bookmaker)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "total odds: %.2f (in range: %t)\n", res.Ticket.TotalOdds, res.Ticket.InRange)
	return nil
}

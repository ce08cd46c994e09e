package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
)

var rulesetsCmd = &cobra.Command{
	Use:   "rulesets",
	Short: "List loaded ruleset versions",
	RunE:  runRulesets,
}

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Look up the pick for a category",
	Long: `Look up the recommended side and line for one category, either from an
already combined value or from both teams' per-match averages.

Examples:
  edgectl pick --category goals --value 2.35
  edgectl pick --category cards --home 2.2 --away 2.0 --ruleset 2025.03-r1`,
	RunE: runPick,
}

var (
	pickRuleset  string
	pickCategory string
	pickValue    float64
	pickHome     float64
	pickAway     float64
)

func init() {
	pickCmd.Flags().StringVar(&pickRuleset, "ruleset", "", "Ruleset version (default: the file's default)")
	pickCmd.Flags().StringVar(&pickCategory, "category", "", "Category: goals, cards, corners, fouls, offsides")
	pickCmd.Flags().Float64Var(&pickValue, "value", 0, "Combined value")
	pickCmd.Flags().Float64Var(&pickHome, "home", 0, "Home team per-match average")
	pickCmd.Flags().Float64Var(&pickAway, "away", 0, "Away team per-match average")
	_ = pickCmd.MarkFlagRequired("category")
	pickCmd.MarkFlagsMutuallyExclusive("value", "home")
	pickCmd.MarkFlagsMutuallyExclusive("value", "away")
	pickCmd.MarkFlagsRequiredTogether("home", "away")
}

func loadRegistry() (*rules.Registry, error) {
	reg, err := rules.LoadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rulesets: %w", err)
	}
	return reg, nil
}

func runRulesets(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tDEFAULT\tFINGERPRINT\tCATEGORIES")
	def := reg.Default().Version
	for _, v := range reg.Versions() {
		rs, _ := reg.Get(v)
		var cats []string
		for _, c := range models.Categories {
			if _, ok := rs.Categories[c]; ok {
				cats = append(cats, string(c))
			}
		}
		mark := ""
		if v == def {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v, mark, rs.Fingerprint()[:12], strings.Join(cats, ","))
	}
	return w.Flush()
}

func runPick(cmd *cobra.Command, _ []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	rs, err := reg.Resolve(pickRuleset)
	if err != nil {
		return err
	}
	category := models.Category(strings.ToLower(pickCategory))

	var (
		pick     *rules.Pick
		combined float64
	)
	switch {
	case cmd.Flags().Changed("value"):
		combined = pickValue
		pick, err = rules.PickLine(rs, category, combined)
	case cmd.Flags().Changed("home"):
		pick, combined, err = rules.PickFromCombined(rs, category, pickHome, pickAway)
	default:
		return fmt.Errorf("either --value or --home and --away are required")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if pick == nil {
		fmt.Fprintf(out, "%s %s combined %.2f: no pick\n", rs.Version, category, combined)
		return nil
	}
	leg := models.TicketLeg{Side: pick.Side, Line: pick.Line}
	fmt.Fprintf(out, "%s %s combined %.2f: %s\n", rs.Version, category, combined, leg.Selection())
	return nil
}

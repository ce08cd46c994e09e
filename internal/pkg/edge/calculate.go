package edge

import (
	"math"
	"sort"
	"time"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/oddsmath"
)

// DefaultLineTolerance matches 2.5 against 2.50 or 2.4999.
const DefaultLineTolerance = 0.01

// Options tune Calculate.
type Options struct {
	FixtureID     string
	LineTolerance float64
	TopN          int // 0 keeps every edge
	Now           time.Time
}

// Calculate devigs every pair, matches it to a model of the same market within
// the line tolerance, and returns strictly positive edges sorted by
// magnitude, largest first.
func Calculate(pairs []LinePair, outputs []models.ModelOutput, opts Options) []models.EdgeResult {
	tol := opts.LineTolerance
	if tol <= 0 {
		tol = DefaultLineTolerance
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var results []models.EdgeResult
	for _, p := range pairs {
		m, ok := matchModel(outputs, p.Market, p.Line, tol)
		if !ok {
			continue
		}
		tw, err := oddsmath.Devig(p.OverOdds, p.UnderOdds)
		if err != nil {
			continue
		}
		for _, side := range []models.Side{models.SideOver, models.SideUnder} {
			bookProb := tw.FairOver
			if side == models.SideUnder {
				bookProb = tw.FairUnder
			}
			modelProb := m.Prob(side)
			e := modelProb - bookProb
			if !(e > 0) {
				continue
			}
			results = append(results, models.EdgeResult{
				FixtureID:    opts.FixtureID,
				Market:       p.Market,
				Line:         p.Line,
				Side:         side,
				ModelProb:    modelProb,
				BookProb:     bookProb,
				Edge:         e,
				Odds:         p.Odds(side),
				Bookmaker:    p.Bookmaker,
				RawOverProb:  tw.RawOver,
				RawUnderProb: tw.RawUnder,
				Overround:    tw.Overround,
				Confidence:   m.Confidence,
				CalculatedAt: now,
			})
		}
	}

	Rank(results)
	if opts.TopN > 0 && len(results) > opts.TopN {
		results = results[:opts.TopN]
	}
	return results
}

// Rank sorts edges by |edge| descending; ties fall back to the edge key so
// output is stable across runs.
func Rank(results []models.EdgeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		ai, aj := math.Abs(results[i].Edge), math.Abs(results[j].Edge)
		if ai != aj {
			return ai > aj
		}
		return results[i].Key() < results[j].Key()
	})
}

// matchModel returns the model for market whose line is closest to line
// within tol.
func matchModel(outputs []models.ModelOutput, market models.Category, line, tol float64) (models.ModelOutput, bool) {
	best := -1
	bestDiff := math.Inf(1)
	for i, m := range outputs {
		if m.Market != market {
			continue
		}
		d := math.Abs(m.Line - line)
		if d <= tol && d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 {
		return models.ModelOutput{}, false
	}
	return outputs[best], true
}

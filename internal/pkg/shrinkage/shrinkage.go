// Package shrinkage blends small-sample team rates with a league prior.
package shrinkage

import (
	"fmt"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// Estimate returns w·teamRate + (1-w)·leaguePrior with w = n/(n+tau).
// sampleSize is clamped to [0, models.MaxSampleSize]; tau must be positive.
func Estimate(teamRate float64, sampleSize int, leaguePrior, tau float64) float64 {
	n := float64(clampSamples(sampleSize))
	if n == 0 {
		return leaguePrior
	}
	w := n / (n + tau)
	return teamRate*w + leaguePrior*(1-w)
}

// Estimator turns two teams' stats into per-side and total rates.
type Estimator struct {
	Tau           float64
	HomeAdvantage float64
}

// New validates the constants and returns an Estimator.
func New(tau, homeAdvantage float64) (Estimator, error) {
	if tau <= 0 {
		return Estimator{}, fmt.Errorf("tau must be > 0, got %v", tau)
	}
	if homeAdvantage < 1 {
		return Estimator{}, fmt.Errorf("home advantage must be >= 1, got %v", homeAdvantage)
	}
	return Estimator{Tau: tau, HomeAdvantage: homeAdvantage}, nil
}

// Rates is the blended per-team expectation for one category.
type Rates struct {
	Home  float64
	Away  float64
	Total float64
}

// TotalRate blends both teams toward the prior and sums them. The home
// multiplier is applied to the home side of goal-type categories only.
func (e Estimator) TotalRate(home, away models.TeamStats, category models.Category, prior float64) (Rates, error) {
	homeRate, err := home.Rate(category)
	if err != nil {
		return Rates{}, err
	}
	awayRate, err := away.Rate(category)
	if err != nil {
		return Rates{}, err
	}

	r := Rates{
		Home: Estimate(homeRate, home.SampleSize, prior, e.Tau),
		Away: Estimate(awayRate, away.SampleSize, prior, e.Tau),
	}
	if category.IsGoalType() && e.HomeAdvantage > 0 {
		r.Home *= e.HomeAdvantage
	}
	r.Total = r.Home + r.Away
	return r, nil
}

func clampSamples(n int) int {
	if n < 0 {
		return 0
	}
	if n > models.MaxSampleSize {
		return models.MaxSampleSize
	}
	return n
}

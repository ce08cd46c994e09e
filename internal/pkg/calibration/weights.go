// Package calibration holds historical hit-rate weights for rule picks.
//
// Weights are loaded per request (or per scan) and passed explicitly; there is
// no package-level cache.
package calibration

import (
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// DefaultWeight applies to picks without history.
const DefaultWeight = 1.0

// Weights maps market|side|line to a multiplier on the pick's model probability.
type Weights map[string]float64

// Key builds the lookup key for a pick.
func Key(market models.Category, side models.Side, line float64) string {
	return string(market) + "|" + string(side) + "|" + models.LineKey(line)
}

// Get returns the weight for a pick, or DefaultWeight when unknown. A nil
// Weights is valid.
func (w Weights) Get(market models.Category, side models.Side, line float64) float64 {
	if v, ok := w[Key(market, side, line)]; ok && v > 0 {
		return v
	}
	return DefaultWeight
}

// Set stores a weight.
func (w Weights) Set(market models.Category, side models.Side, line, weight float64) {
	w[Key(market, side, line)] = weight
}

// Score ranks a line-mode candidate.
func (w Weights) Score(market models.Category, side models.Side, line, modelProb float64) float64 {
	return w.Get(market, side, line) * modelProb
}

// Package oddsmath converts decimal prices to probabilities and removes the
// bookmaker margin from two-way markets.
package oddsmath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ImpliedProbability converts decimal odds to the raw implied probability.
//
// Example: 1.90 -> 0.5263
func ImpliedProbability(decimalOdds float64) (float64, error) {
	if !ValidOdds(decimalOdds) {
		return 0, fmt.Errorf("decimal odds must be > 1, got %v", decimalOdds)
	}
	return 1 / decimalOdds, nil
}

// FairOdds converts a probability back to decimal odds without margin.
func FairOdds(prob float64) (float64, error) {
	if prob <= 0 || prob > 1 || math.IsNaN(prob) {
		return 0, fmt.Errorf("probability must be in (0, 1], got %v", prob)
	}
	return 1 / prob, nil
}

// ValidOdds reports whether a decimal price is usable.
func ValidOdds(decimalOdds float64) bool {
	return decimalOdds > 1 && !math.IsNaN(decimalOdds) && !math.IsInf(decimalOdds, 0)
}

// ParseOdds reads a bookmaker price such as "1.90" or "1,90".
func ParseOdds(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid odds %q: %w", raw, err)
	}
	if !ValidOdds(v) {
		return 0, fmt.Errorf("invalid odds %q: must be > 1", raw)
	}
	return v, nil
}

// TwoWay is a devigged over/under price pair.
type TwoWay struct {
	RawOver   float64 `json:"raw_over"`
	RawUnder  float64 `json:"raw_under"`
	FairOver  float64 `json:"fair_over"`
	FairUnder float64 `json:"fair_under"`
	Overround float64 `json:"overround"` // RawOver + RawUnder - 1
}

// Devig removes the margin from a two-way market with the multiplicative method.
//
// Formula:
//  1. raw = 1/odds for each side
//  2. total = rawOver + rawUnder (>= 1 for a priced market)
//  3. fair = raw / total, so fairOver + fairUnder == 1
//
// Example: 1.90 / 1.90 -> raw 0.5263 each, overround 5.26%, fair 0.50 / 0.50
func Devig(oddsOver, oddsUnder float64) (TwoWay, error) {
	rawOver, err := ImpliedProbability(oddsOver)
	if err != nil {
		return TwoWay{}, fmt.Errorf("over: %w", err)
	}
	rawUnder, err := ImpliedProbability(oddsUnder)
	if err != nil {
		return TwoWay{}, fmt.Errorf("under: %w", err)
	}

	total := rawOver + rawUnder
	return TwoWay{
		RawOver:   rawOver,
		RawUnder:  rawUnder,
		FairOver:  rawOver / total,
		FairUnder: rawUnder / total,
		Overround: total - 1,
	}, nil
}

// VigPercentage is the overround expressed in percent.
func (t TwoWay) VigPercentage() float64 {
	return t.Overround * 100
}

// ExpectedValue returns the expected profit per unit staked at decimal odds
// when the true win probability is prob.
//
// Example: prob 0.55 at 2.00 -> 0.10
func ExpectedValue(prob, decimalOdds float64) float64 {
	return prob*decimalOdds - 1
}

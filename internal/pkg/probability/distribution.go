package probability

import (
	"fmt"
	"math"
)

// Distribution is a discrete count distribution over match totals.
type Distribution interface {
	PMF(k int) float64
	CDF(k int) float64
	Mean() float64
	String() string
}

// Poisson models low-dispersion totals such as goals.
type Poisson struct {
	Lambda float64
}

func (d Poisson) PMF(k int) float64 { return PoissonPMF(d.Lambda, k) }
func (d Poisson) CDF(k int) float64 { return PoissonCDF(d.Lambda, k) }
func (d Poisson) Mean() float64     { return math.Max(d.Lambda, 0) }
func (d Poisson) String() string    { return fmt.Sprintf("poisson(λ=%.3f)", d.Lambda) }

// NegBinomial models over-dispersed totals such as cards or corners.
type NegBinomial struct {
	Mu float64
	R  float64
}

func (d NegBinomial) PMF(k int) float64 { return NegBinPMF(d.Mu, d.R, k) }
func (d NegBinomial) CDF(k int) float64 { return NegBinCDF(d.Mu, d.R, k) }
func (d NegBinomial) Mean() float64     { return math.Max(d.Mu, 0) }
func (d NegBinomial) String() string {
	return fmt.Sprintf("negbin(μ=%.3f, r=%.2f)", d.Mu, d.R)
}

// ForCategory picks Poisson when no dispersion is configured.
func ForCategory(rate, dispersion float64) Distribution {
	if dispersion <= 0 {
		return Poisson{Lambda: rate}
	}
	return NegBinomial{Mu: rate, R: dispersion}
}

// OverUnder prices a totals line. Over is 1 - CDF(floor(line)), so an
// integer line of 3 prices over as X >= 4; a push is counted on the under side.
func OverUnder(d Distribution, line float64) (over, under float64) {
	k := int(math.Floor(line))
	over = clamp01(1 - d.CDF(k))
	return over, 1 - over
}

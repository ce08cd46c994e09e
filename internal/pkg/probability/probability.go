// Package probability holds the count distributions used to price
// over/under totals.
package probability

import "math"

// PoissonPMF returns P(X = k) for a Poisson(lambda) variable.
// A non-positive lambda puts all mass on zero.
func PoissonPMF(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	if lambda <= 0 || math.IsNaN(lambda) {
		if k == 0 {
			return 1
		}
		return 0
	}
	return clamp01(math.Exp(-lambda + float64(k)*math.Log(lambda) - logFactorial(k)))
}

// PoissonCDF returns P(X <= k).
func PoissonCDF(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i <= k; i++ {
		sum += PoissonPMF(lambda, i)
	}
	return clamp01(sum)
}

// NegBinPMF returns P(X = k) for a negative binomial with mean mu and
// dispersion r, using p = r/(r+mu). Variance is mu + mu²/r.
func NegBinPMF(mu, r float64, k int) float64 {
	if k < 0 {
		return 0
	}
	if mu <= 0 || math.IsNaN(mu) {
		if k == 0 {
			return 1
		}
		return 0
	}
	if r <= 0 || math.IsNaN(r) {
		return PoissonPMF(mu, k)
	}

	p := r / (r + mu)
	lgKR, _ := math.Lgamma(float64(k) + r)
	lgR, _ := math.Lgamma(r)
	logProb := lgKR - lgR - logFactorial(k) + r*math.Log(p) + float64(k)*math.Log1p(-p)
	return clamp01(math.Exp(logProb))
}

// NegBinCDF returns P(X <= k).
func NegBinCDF(mu, r float64, k int) float64 {
	if k < 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i <= k; i++ {
		sum += NegBinPMF(mu, r, i)
	}
	return clamp01(sum)
}

func logFactorial(k int) float64 {
	if k <= 1 {
		return 0
	}
	v, _ := math.Lgamma(float64(k + 1))
	return v
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

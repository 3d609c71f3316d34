package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// GofChisquareSampleSize returns the minimum sample size for a
// chi-square goodness-of-fit test over nBins cells to detect the given
// effect size (Cohen's w) with the target power at significance alpha.
func GofChisquareSampleSize(effectSize, alpha, power float64, nBins int) float64 {
	if nBins < 2 {
		nBins = 2
	}
	df := float64(nBins - 1)
	crit := distuv.ChiSquared{K: df}.Quantile(1 - alpha)

	achieved := func(n float64) float64 {
		lambda := n * effectSize * effectSize
		return 1 - noncentralChiSquaredCDF(crit, df, lambda)
	}

	lo, hi := 1.0, 1e9
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if achieved(mid) < power {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// TwoProportionSampleSize returns the minimum per-group sample size
// for a two-sided two-sample proportion z-test at the given effect
// size (Cohen's h), significance and power.
func TwoProportionSampleSize(effectSize, alpha, power float64) float64 {
	zAlpha := stdNormal.Quantile(1 - alpha/2)
	zBeta := stdNormal.Quantile(power)
	ratio := (zAlpha + zBeta) / effectSize
	return ratio * ratio
}

// noncentralChiSquaredCDF evaluates the noncentral chi-squared CDF as
// a Poisson-weighted mixture of central chi-squared CDFs.
func noncentralChiSquaredCDF(x, df, lambda float64) float64 {
	if x <= 0 {
		return 0
	}
	if lambda == 0 {
		return distuv.ChiSquared{K: df}.CDF(x)
	}

	half := lambda / 2
	logWeight := -half // log of the j=0 Poisson weight
	sum := 0.0
	cumWeight := 0.0
	for j := 0; j < 10000; j++ {
		w := math.Exp(logWeight)
		sum += w * distuv.ChiSquared{K: df + 2*float64(j)}.CDF(x)
		cumWeight += w
		if cumWeight > 1-1e-12 && float64(j) > half {
			break
		}
		logWeight += math.Log(half) - math.Log(float64(j+1))
	}
	return math.Min(1, sum)
}

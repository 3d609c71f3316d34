package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OneWayANOVA runs a one-way analysis of variance over the groups.
// ok is false when the test is undefined: fewer than two groups, no
// residual degrees of freedom, or zero within-group variance.
func OneWayANOVA(groups [][]float64) (f, p float64, ok bool) {
	k := len(groups)
	if k < 2 {
		return 0, 1, false
	}

	n := 0
	grandSum := 0.0
	for _, g := range groups {
		n += len(g)
		for _, v := range g {
			grandSum += v
		}
	}
	dfBetween := k - 1
	dfWithin := n - k
	if n == 0 || dfWithin <= 0 {
		return 0, 1, false
	}
	grandMean := grandSum / float64(n)

	ssBetween, ssWithin := 0.0, 0.0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		mean := stat.Mean(g, nil)
		d := mean - grandMean
		ssBetween += float64(len(g)) * d * d
		for _, v := range g {
			e := v - mean
			ssWithin += e * e
		}
	}
	if ssWithin == 0 {
		return 0, 1, false
	}

	f = (ssBetween / float64(dfBetween)) / (ssWithin / float64(dfWithin))
	dist := distuv.F{D1: float64(dfBetween), D2: float64(dfWithin)}
	return f, 1 - dist.CDF(f), true
}

// WelchT runs Welch's two-sample t-test (two-sided). ok is false when
// either sample is too small or the pooled standard error is zero.
func WelchT(x, y []float64) (t, p, df float64, ok bool) {
	nx, ny := float64(len(x)), float64(len(y))
	if nx < 2 || ny < 2 {
		return 0, 1, 0, false
	}

	meanX, varX := stat.MeanVariance(x, nil)
	meanY, varY := stat.MeanVariance(y, nil)

	seX := varX / nx
	seY := varY / ny
	se := math.Sqrt(seX + seY)
	if se == 0 || math.IsNaN(se) {
		return 0, 1, 0, false
	}

	t = (meanX - meanY) / se
	df = (seX + seY) * (seX + seY) / (seX*seX/(nx-1) + seY*seY/(ny-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * (1 - dist.CDF(math.Abs(t)))
	return t, p, df, true
}

// Package stats implements the hypothesis tests and power models the
// decision engine and validity checker run over labeled experiment
// data. All distributions come from gonum; every p-value is exact up
// to distribution-function precision rather than table lookup.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Alternative selects the tail of a test.
type Alternative int

const (
	TwoSided Alternative = iota
	// Larger tests whether the first proportion exceeds the second.
	Larger
)

// TwoProportionZ runs a two-proportion z-test on pooled conversion
// counts. With a zero pooled standard error the test is degenerate and
// reports z=0, p=1.
func TwoProportionZ(conv1, n1, conv2, n2 int, alt Alternative) (z, p float64) {
	if n1 == 0 || n2 == 0 {
		return 0, 1
	}

	p1 := float64(conv1) / float64(n1)
	p2 := float64(conv2) / float64(n2)
	pooled := float64(conv1+conv2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 1
	}

	z = (p1 - p2) / se
	switch alt {
	case Larger:
		p = 1 - stdNormal.CDF(z)
	default:
		p = 2 * (1 - stdNormal.CDF(math.Abs(z)))
	}
	return z, p
}

// WaldInterval returns the normal-approximation confidence interval
// for a proportion. ok is false when the interval is undefined (no
// observations or zero standard error).
func WaldInterval(p float64, n int, confidence float64) (lower, upper float64, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	se := math.Sqrt(p * (1 - p) / float64(n))
	if se == 0 || math.IsNaN(se) {
		return 0, 0, false
	}
	z := stdNormal.Quantile(0.5 + confidence/2)
	return p - z*se, p + z*se, true
}

// DifferenceInterval returns the Wald confidence interval for the
// difference of two independent proportions. ok is false when the
// standard error is zero or undefined.
func DifferenceInterval(p1 float64, n1 int, p2 float64, n2 int, confidence float64) (lower, upper float64, ok bool) {
	if n1 == 0 || n2 == 0 {
		return 0, 0, false
	}
	se := math.Sqrt(p1*(1-p1)/float64(n1) + p2*(1-p2)/float64(n2))
	if se == 0 || math.IsNaN(se) {
		return 0, 0, false
	}
	z := stdNormal.Quantile(0.5 + confidence/2)
	diff := p1 - p2
	return diff - z*se, diff + z*se, true
}

// Bonferroni corrects p-values for the size of the comparison family.
// The adjusted value is min(1, p*m); reject is adjusted <= alpha, so
// an exactly-at-threshold hypothesis is rejected.
// Indexing is stable: adjusted[i] always corresponds to pvals[i].
func Bonferroni(pvals []float64, alpha float64) (reject []bool, adjusted []float64) {
	m := float64(len(pvals))
	reject = make([]bool, len(pvals))
	adjusted = make([]float64, len(pvals))
	for i, p := range pvals {
		adjusted[i] = math.Min(1, p*m)
		reject[i] = adjusted[i] <= alpha
	}
	return reject, adjusted
}

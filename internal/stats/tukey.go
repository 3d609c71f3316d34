package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TukeyComparison is one pairwise comparison from a Tukey HSD run.
// I and J index the input groups; Diff is mean(I) - mean(J).
type TukeyComparison struct {
	I, J         int
	Diff         float64
	Lower, Upper float64
	P            float64
	Reject       bool
}

// TukeyHSD runs Tukey's honestly-significant-difference procedure over
// the groups at the given significance level. ok is false when the
// procedure is undefined (fewer than two groups, no residual degrees
// of freedom, or zero within-group variance).
func TukeyHSD(groups [][]float64, alpha float64) (comparisons []TukeyComparison, ok bool) {
	k := len(groups)
	if k < 2 {
		return nil, false
	}

	n := 0
	ssWithin := 0.0
	means := make([]float64, k)
	for i, g := range groups {
		n += len(g)
		if len(g) == 0 {
			continue
		}
		means[i] = stat.Mean(g, nil)
		for _, v := range g {
			d := v - means[i]
			ssWithin += d * d
		}
	}
	dfWithin := n - k
	if dfWithin <= 0 || ssWithin == 0 {
		return nil, false
	}
	msWithin := ssWithin / float64(dfWithin)

	qCrit := studentizedRangeQuantile(1-alpha, float64(k), float64(dfWithin))

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			ni, nj := len(groups[i]), len(groups[j])
			if ni == 0 || nj == 0 {
				continue
			}
			se := math.Sqrt(msWithin / 2 * (1/float64(ni) + 1/float64(nj)))
			diff := means[i] - means[j]
			q := math.Abs(diff) / se
			p := 1 - studentizedRangeCDF(q, float64(k), float64(dfWithin))
			hw := qCrit * se
			comparisons = append(comparisons, TukeyComparison{
				I:      i,
				J:      j,
				Diff:   diff,
				Lower:  diff - hw,
				Upper:  diff + hw,
				P:      p,
				Reject: p < alpha,
			})
		}
	}
	return comparisons, true
}

// studentizedRangeCDF evaluates P(Q < q) for the studentized range of
// k groups with nu residual degrees of freedom, by integrating the
// range probability of k standard normals over the scale distribution
// sqrt(chi2_nu/nu).
func studentizedRangeCDF(q, k, nu float64) float64 {
	if q <= 0 {
		return 0
	}
	if nu > 1e5 || math.IsInf(nu, 1) {
		return normalRangeCDF(q, k)
	}

	lg, _ := math.Lgamma(nu / 2)
	logC := math.Ln2 + (nu/2)*math.Log(nu/2) - lg

	// The scale density concentrates around 1 with spread ~1/sqrt(2nu).
	spread := 10 / math.Sqrt(2*nu)
	lo := math.Max(1e-9, 1-spread)
	hi := 1 + spread

	f := func(s float64) float64 {
		density := math.Exp(logC + (nu-1)*math.Log(s) - nu*s*s/2)
		return density * normalRangeCDF(q*s, k)
	}
	return simpson(f, lo, hi, 160)
}

// normalRangeCDF is P(range of k iid standard normals < r).
func normalRangeCDF(r, k float64) float64 {
	if r <= 0 {
		return 0
	}
	f := func(z float64) float64 {
		return stdNormal.Prob(z) * math.Pow(stdNormal.CDF(z)-stdNormal.CDF(z-r), k-1)
	}
	v := k * simpson(f, -8, 8, 160)
	return math.Min(1, v)
}

func studentizedRangeQuantile(p, k, nu float64) float64 {
	lo, hi := 0.0, 100.0
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if studentizedRangeCDF(mid, k, nu) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// simpson integrates f over [a, b] with n subintervals (n forced even).
func simpson(f func(float64) float64, a, b float64, n int) float64 {
	if n%2 == 1 {
		n++
	}
	h := (b - a) / float64(n)
	sum := f(a) + f(b)
	for i := 1; i < n; i++ {
		x := a + float64(i)*h
		if i%2 == 0 {
			sum += 2 * f(x)
		} else {
			sum += 4 * f(x)
		}
	}
	return sum * h / 3
}

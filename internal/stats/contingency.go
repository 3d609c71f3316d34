package stats

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquareIndependence runs a chi-square test of independence over a
// contingency table (rows = variants, columns = outcomes). No
// continuity correction is applied; the engine only calls this with
// more than two rows. An empty or degenerate table reports chi2=0,
// p=1.
func ChiSquareIndependence(table [][]float64) (chi2, p float64, df int) {
	rows := len(table)
	if rows == 0 {
		return 0, 1, 0
	}
	cols := len(table[0])
	if cols == 0 {
		return 0, 1, 0
	}

	rowSums := make([]float64, rows)
	colSums := make([]float64, cols)
	total := 0.0
	for i, row := range table {
		for j, v := range row {
			rowSums[i] += v
			colSums[j] += v
			total += v
		}
	}
	if total == 0 {
		return 0, 1, 0
	}

	for i := range table {
		for j := range table[i] {
			expected := rowSums[i] * colSums[j] / total
			if expected == 0 {
				continue
			}
			d := table[i][j] - expected
			chi2 += d * d / expected
		}
	}

	df = (rows - 1) * (cols - 1)
	if df <= 0 {
		return chi2, 1, df
	}
	dist := distuv.ChiSquared{K: float64(df)}
	return chi2, 1 - dist.CDF(chi2), df
}

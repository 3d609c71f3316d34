// Package decision turns labeled experiment data into a winner plus
// the statistical evidence behind it. The procedure branches strictly
// on the number of distinct variants present: a sole variant wins by
// default, two arms get a one-sided proportion z-test with causal
// effect estimates, and more than two arms get a chi-square omnibus
// test with Bonferroni-corrected post-hoc comparisons.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expjudge/expjudge/internal/pipeline"
	"github.com/expjudge/expjudge/internal/stats"
)

var (
	// ErrNoData means the filtered dataset is empty; callers surface
	// it as "experiment not found".
	ErrNoData = errors.New("no labeled data for experiment")

	// ErrCardinality is a contract violation: an operation that only
	// exists for a specific variant count was called with another.
	ErrCardinality = errors.New("wrong variant cardinality for operation")
)

// The sole significance threshold used by the engine.
const alpha = 0.05

const ciConfidence = 0.95

// Branch tags the shape of a Result.
type Branch string

const (
	Single   Branch = "single"
	TwoArm   Branch = "two_arm"
	MultiArm Branch = "multi_arm"
)

// Interval is a two-sided confidence interval. A nil *Interval means
// the interval is undefined (zero standard error), which is reported
// rather than raised.
type Interval struct {
	Lower float64
	Upper float64
}

// MarshalJSON renders the interval as the 2-tuple the wire format
// expects.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{iv.Lower, iv.Upper})
}

// Result is the decision output. Exactly one of TwoArm and MultiArm is
// set, matching Branch; both are nil for a single-variant experiment.
type Result struct {
	Winner   string
	Branch   Branch
	TwoArm   *TwoArmTests
	MultiArm *MultiArmTests
}

// TwoArmTests is the evidence bundle for a two-variant experiment.
type TwoArmTests struct {
	ZStatistic  float64   `json:"z_statistic"`
	PValue      float64   `json:"p_value"`
	Significant bool      `json:"significant_difference"`
	CI          *Interval `json:"ci"`

	ATE    ATE         `json:"average_treatment_effect"`
	Causal CausalModel `json:"rubin_causal_model"`
}

// ATE is the average treatment effect between the two variants in
// their natural (appearance) order, not winner order.
type ATE struct {
	ControlVariant   string    `json:"control_variant"`
	TreatmentVariant string    `json:"treatment_variant"`
	ControlMean      float64   `json:"control_mean"`
	TreatmentMean    float64   `json:"treatment_mean"`
	Effect           float64   `json:"effect"`
	CI               *Interval `json:"ci"`
}

// VariantEstimate is a potential-outcome summary for one variant.
type VariantEstimate struct {
	Variant     string    `json:"id"`
	N           int       `json:"n"`
	Conversions int       `json:"conversions"`
	Proportion  float64   `json:"proportion"`
	CI          *Interval `json:"ci"`
}

// CausalModel carries the Rubin-style per-variant estimates and the
// pairwise causal effect.
type CausalModel struct {
	Variants []VariantEstimate `json:"variants"`
	Effect   float64           `json:"effect"`
	CI       *Interval         `json:"ci"`
}

// MultiArmTests is the evidence bundle for three or more variants.
type MultiArmTests struct {
	ChiSquare ChiSquareTest        `json:"chi_square"`
	PostHoc   []PostHocComparison  `json:"post_hoc,omitempty"`
	Variants  []VariantEstimate    `json:"variants"`
	ANOVA     *ANOVATest           `json:"anova,omitempty"`
	Tukey     []TukeyComparison    `json:"tukey_hsd,omitempty"`
	Pairwise  []PairwiseComparison `json:"pairwise,omitempty"`
}

type ChiSquareTest struct {
	Statistic   float64 `json:"chi2"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant_difference"`
}

// PostHocComparison is one Bonferroni-corrected pairwise z-test, run
// only after a significant omnibus test. Pair order is fixed by
// variant appearance so the correction is order-independent.
type PostHocComparison struct {
	VariantA string  `json:"variant_a"`
	VariantB string  `json:"variant_b"`
	PValue   float64 `json:"p_value"`
	Adjusted float64 `json:"p_value_corrected"`
	Reject   bool    `json:"reject"`
}

type ANOVATest struct {
	FStatistic float64 `json:"f_statistic"`
	PValue     float64 `json:"p_value"`
}

type TukeyComparison struct {
	VariantA string    `json:"variant_a"`
	VariantB string    `json:"variant_b"`
	Diff     float64   `json:"diff"`
	CI       Interval  `json:"ci"`
	PValue   float64   `json:"p_value"`
	Reject   bool      `json:"reject"`
}

// PairwiseComparison is the raw effect size and Welch t-test for one
// variant pair, computed regardless of the omnibus outcome. Pairs with
// an undefined standard error are skipped.
type PairwiseComparison struct {
	VariantA   string  `json:"variant_a"`
	VariantB   string  `json:"variant_b"`
	Effect     float64 `json:"effect"`
	TStatistic float64 `json:"t_statistic"`
	PValue     float64 `json:"p_value"`
}

// arm is the per-variant view of the labeled data, in first-appearance
// order.
type arm struct {
	variant     string
	values      []float64 // 0/1 purchase indicator per outcome row
	n           int
	conversions int
	rate        float64
}

func groupArms(outcomes []pipeline.Outcome) []arm {
	index := make(map[string]int)
	var arms []arm
	for _, o := range outcomes {
		i, ok := index[o.Variant]
		if !ok {
			i = len(arms)
			index[o.Variant] = i
			arms = append(arms, arm{variant: o.Variant})
		}
		v := 0.0
		if o.WithPurchase {
			v = 1.0
			arms[i].conversions++
		}
		arms[i].values = append(arms[i].values, v)
		arms[i].n++
	}
	for i := range arms {
		if arms[i].n > 0 {
			arms[i].rate = float64(arms[i].conversions) / float64(arms[i].n)
		}
	}
	return arms
}

// argmaxRate returns the variant with the highest conversion rate,
// first appearance winning ties.
func argmaxRate(arms []arm) string {
	best := 0
	for i := 1; i < len(arms); i++ {
		if arms[i].rate > arms[best].rate {
			best = i
		}
	}
	return arms[best].variant
}

// DetermineWinner runs the cardinality-appropriate decision procedure.
// It returns ErrNoData for an empty outcome set.
func DetermineWinner(outcomes []pipeline.Outcome) (*Result, error) {
	arms := groupArms(outcomes)
	switch len(arms) {
	case 0:
		return nil, ErrNoData
	case 1:
		return &Result{Winner: arms[0].variant, Branch: Single}, nil
	case 2:
		return twoArm(arms), nil
	default:
		return multiArm(arms), nil
	}
}

func twoArm(arms []arm) *Result {
	winner, other := arms[0], arms[1]
	if other.rate > winner.rate {
		winner, other = other, winner
	}

	tests := &TwoArmTests{}
	if winner.conversions == 0 && other.conversions == 0 {
		// Nothing converted anywhere: the test is vacuous.
		tests.ZStatistic = 0
		tests.PValue = 1
		tests.CI = &Interval{}
	} else {
		z, p := stats.TwoProportionZ(winner.conversions, winner.n, other.conversions, other.n, stats.Larger)
		tests.ZStatistic = z
		tests.PValue = p
		tests.CI = differenceInterval(winner, other)
	}
	tests.Significant = tests.PValue < alpha

	control, treatment := arms[0], arms[1]
	tests.ATE = ATE{
		ControlVariant:   control.variant,
		TreatmentVariant: treatment.variant,
		ControlMean:      control.rate,
		TreatmentMean:    treatment.rate,
		Effect:           treatment.rate - control.rate,
		CI:               differenceInterval(treatment, control),
	}
	tests.Causal = CausalModel{
		Variants: []VariantEstimate{estimate(control), estimate(treatment)},
		Effect:   treatment.rate - control.rate,
		CI:       differenceInterval(treatment, control),
	}

	return &Result{Winner: winner.variant, Branch: TwoArm, TwoArm: tests}
}

func multiArm(arms []arm) *Result {
	table := make([][]float64, len(arms))
	for i, a := range arms {
		table[i] = []float64{float64(a.n - a.conversions), float64(a.conversions)}
	}
	chi2, p, _ := stats.ChiSquareIndependence(table)

	tests := &MultiArmTests{
		ChiSquare: ChiSquareTest{Statistic: chi2, PValue: p, Significant: p < alpha},
	}

	winner := argmaxRate(arms)
	if tests.ChiSquare.Significant {
		tests.PostHoc = postHoc(arms)
		if implicated := rejectedVariants(tests.PostHoc); len(implicated) > 0 {
			winner = argmaxRateAmong(arms, implicated)
		}
	}

	for _, a := range arms {
		tests.Variants = append(tests.Variants, estimate(a))
	}

	groups := make([][]float64, len(arms))
	for i, a := range arms {
		groups[i] = a.values
	}
	if f, pv, ok := stats.OneWayANOVA(groups); ok {
		tests.ANOVA = &ANOVATest{FStatistic: f, PValue: pv}
	}
	if comparisons, ok := stats.TukeyHSD(groups, alpha); ok {
		for _, c := range comparisons {
			tests.Tukey = append(tests.Tukey, TukeyComparison{
				VariantA: arms[c.I].variant,
				VariantB: arms[c.J].variant,
				Diff:     c.Diff,
				CI:       Interval{Lower: c.Lower, Upper: c.Upper},
				PValue:   c.P,
				Reject:   c.Reject,
			})
		}
	}
	tests.Pairwise = pairwise(arms)

	return &Result{Winner: winner, Branch: MultiArm, MultiArm: tests}
}

// postHoc runs two-sided pairwise z-tests over every variant pair and
// applies the Bonferroni correction across the whole family.
func postHoc(arms []arm) []PostHocComparison {
	type pair struct{ a, b int }
	var pairs []pair
	var pvals []float64
	for i := 0; i < len(arms); i++ {
		for j := i + 1; j < len(arms); j++ {
			if arms[i].n == 0 || arms[j].n == 0 {
				continue
			}
			_, p := stats.TwoProportionZ(arms[i].conversions, arms[i].n, arms[j].conversions, arms[j].n, stats.TwoSided)
			pairs = append(pairs, pair{a: i, b: j})
			pvals = append(pvals, p)
		}
	}

	reject, adjusted := stats.Bonferroni(pvals, alpha)
	out := make([]PostHocComparison, len(pairs))
	for i, pr := range pairs {
		out[i] = PostHocComparison{
			VariantA: arms[pr.a].variant,
			VariantB: arms[pr.b].variant,
			PValue:   pvals[i],
			Adjusted: adjusted[i],
			Reject:   reject[i],
		}
	}
	return out
}

func rejectedVariants(comparisons []PostHocComparison) map[string]struct{} {
	implicated := make(map[string]struct{})
	for _, c := range comparisons {
		if c.Reject {
			implicated[c.VariantA] = struct{}{}
			implicated[c.VariantB] = struct{}{}
		}
	}
	return implicated
}

func argmaxRateAmong(arms []arm, allowed map[string]struct{}) string {
	best := -1
	for i, a := range arms {
		if _, ok := allowed[a.variant]; !ok {
			continue
		}
		if best < 0 || a.rate > arms[best].rate {
			best = i
		}
	}
	return arms[best].variant
}

func pairwise(arms []arm) []PairwiseComparison {
	var out []PairwiseComparison
	for i := 0; i < len(arms); i++ {
		for j := i + 1; j < len(arms); j++ {
			t, p, _, ok := stats.WelchT(arms[i].values, arms[j].values)
			if !ok {
				continue
			}
			out = append(out, PairwiseComparison{
				VariantA:   arms[i].variant,
				VariantB:   arms[j].variant,
				Effect:     arms[i].rate - arms[j].rate,
				TStatistic: t,
				PValue:     p,
			})
		}
	}
	return out
}

func estimate(a arm) VariantEstimate {
	e := VariantEstimate{
		Variant:     a.variant,
		N:           a.n,
		Conversions: a.conversions,
		Proportion:  a.rate,
	}
	if lower, upper, ok := stats.WaldInterval(a.rate, a.n, ciConfidence); ok {
		e.CI = &Interval{Lower: lower, Upper: upper}
	}
	return e
}

func differenceInterval(a, b arm) *Interval {
	lower, upper, ok := stats.DifferenceInterval(a.rate, a.n, b.rate, b.n, ciConfidence)
	if !ok {
		return nil
	}
	return &Interval{Lower: lower, Upper: upper}
}

// AverageTreatmentEffect computes the ATE on its own. Requesting it
// for anything but a two-variant dataset is a programming error, not a
// data condition, and fails with ErrCardinality.
func AverageTreatmentEffect(outcomes []pipeline.Outcome) (*ATE, error) {
	arms := groupArms(outcomes)
	if len(arms) != 2 {
		return nil, fmt.Errorf("average treatment effect needs 2 variants, got %d: %w", len(arms), ErrCardinality)
	}

	control, treatment := arms[0], arms[1]
	return &ATE{
		ControlVariant:   control.variant,
		TreatmentVariant: treatment.variant,
		ControlMean:      control.rate,
		TreatmentMean:    treatment.rate,
		Effect:           treatment.rate - control.rate,
		CI:               differenceInterval(treatment, control),
	}, nil
}

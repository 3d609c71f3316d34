// Package report assembles pipeline outcomes, validity checks and the
// decision result into the wire format served over HTTP and printed by
// the CLI.
package report

import (
	"sort"

	"github.com/expjudge/expjudge/internal/checks"
	"github.com/expjudge/expjudge/internal/decision"
	"github.com/expjudge/expjudge/internal/pipeline"
)

// Response is the top-level document, keyed by experiment id.
type Response struct {
	Results map[string]*Experiment `json:"results"`
}

// Experiment is the per-experiment result body. StatisticalTests is nil
// for a single-variant experiment and serializes as JSON null.
type Experiment struct {
	NumberOfParticipants int            `json:"number_of_participants"`
	Checks               checks.Bundle  `json:"checks"`
	StatisticalTests     *Tests         `json:"statistical_tests"`
	Winner               string         `json:"winner"`
	Variants             []VariantCount `json:"variants"`
}

// Tests contains only the fields relevant to the decision branch that
// was taken; the rest are omitted.
type Tests struct {
	ZTest  *ZTest                `json:"z-test,omitempty"`
	ATE    *decision.ATE         `json:"average_treatment_effect,omitempty"`
	Causal *decision.CausalModel `json:"rubin_causal_model,omitempty"`

	ChiSquare *decision.ChiSquareTest       `json:"chi_square,omitempty"`
	PostHoc   []decision.PostHocComparison  `json:"post_hoc,omitempty"`
	Estimates []decision.VariantEstimate    `json:"variants,omitempty"`
	ANOVA     *decision.ANOVATest           `json:"anova,omitempty"`
	Tukey     []decision.TukeyComparison    `json:"tukey_hsd,omitempty"`
	Pairwise  []decision.PairwiseComparison `json:"pairwise,omitempty"`
}

// ZTest is the two-proportion test summary for a two-arm experiment.
type ZTest struct {
	ZStatistic  float64            `json:"z_statistic"`
	PValue      float64            `json:"p_value"`
	Significant bool               `json:"significant_difference"`
	CI          *decision.Interval `json:"ci"`
}

// VariantCount pairs a variant with its number of attributed purchases.
type VariantCount struct {
	ID                string `json:"id"`
	NumberOfPurchases int    `json:"number_of_purchases"`
}

// Build assembles the response body for one experiment. The outcomes
// must already be filtered to that experiment.
func Build(id string, outcomes []pipeline.Outcome, bundle checks.Bundle, res *decision.Result) Response {
	exp := &Experiment{
		NumberOfParticipants: participants(outcomes),
		Checks:               bundle,
		Winner:               res.Winner,
		Variants:             variantCounts(outcomes),
	}
	switch res.Branch {
	case decision.TwoArm:
		t := res.TwoArm
		exp.StatisticalTests = &Tests{
			ZTest: &ZTest{
				ZStatistic:  t.ZStatistic,
				PValue:      t.PValue,
				Significant: t.Significant,
				CI:          t.CI,
			},
			ATE:    &t.ATE,
			Causal: &t.Causal,
		}
	case decision.MultiArm:
		t := res.MultiArm
		exp.StatisticalTests = &Tests{
			ChiSquare: &t.ChiSquare,
			PostHoc:   t.PostHoc,
			Estimates: t.Variants,
			ANOVA:     t.ANOVA,
			Tukey:     t.Tukey,
			Pairwise:  t.Pairwise,
		}
	}
	return Response{Results: map[string]*Experiment{id: exp}}
}

func participants(outcomes []pipeline.Outcome) int {
	users := make(map[string]struct{})
	for _, o := range outcomes {
		users[o.UserID] = struct{}{}
	}
	return len(users)
}

func variantCounts(outcomes []pipeline.Outcome) []VariantCount {
	index := make(map[string]int)
	var counts []VariantCount
	for _, o := range outcomes {
		i, ok := index[o.Variant]
		if !ok {
			i = len(counts)
			index[o.Variant] = i
			counts = append(counts, VariantCount{ID: o.Variant})
		}
		if o.WithPurchase {
			counts[i].NumberOfPurchases++
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].ID < counts[j].ID })
	return counts
}

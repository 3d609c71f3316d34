// Package checks runs the experiment-validity diagnostics. A failing
// check never blocks the decision engine; the bundle travels alongside
// the statistical result so the caller can judge how far to trust it.
package checks

import (
	"math"

	"github.com/expjudge/expjudge/internal/pipeline"
	"github.com/expjudge/expjudge/internal/stats"
)

// Params are the knobs of the sample-size power models. The decision
// engine keeps a fixed 0.05 threshold; only the checker exposes alpha
// and power.
type Params struct {
	Alpha             float64
	Power             float64
	GofEffectSize     float64 // Cohen's w, goodness-of-fit model (k != 2)
	TwoPropEffectSize float64 // Cohen's h, two-proportion model (k == 2)
}

func DefaultParams() Params {
	return Params{
		Alpha:             0.05,
		Power:             0.8,
		GofEffectSize:     0.1,
		TwoPropEffectSize: 0.2,
	}
}

// Bundle is the diagnostics output, computed from the same labeled
// snapshot as the decision result.
type Bundle struct {
	NumVariants            int                `json:"num_of_variants"`
	UserIndependence       bool               `json:"user_independence"`
	ExperimentIndependence bool               `json:"experiment_independence"`
	Variation              map[string]float64 `json:"variation"`
	SampleSizeAdequacy     map[string]bool    `json:"sample_size_adequacy"`
	NormalApproximation    bool               `json:"normal_approximation"`
}

// Run computes every check over the labeled outcomes.
func Run(outcomes []pipeline.Outcome, params Params) Bundle {
	variants := variantOrder(outcomes)

	bundle := Bundle{
		NumVariants:            len(variants),
		UserIndependence:       userIndependence(outcomes),
		ExperimentIndependence: experimentIndependence(outcomes),
		Variation:              variation(outcomes, variants),
		NormalApproximation:    normalApproximation(outcomes, variants),
	}
	bundle.SampleSizeAdequacy = sampleSizeAdequacy(outcomes, variants, params)
	return bundle
}

// userIndependence verifies SUTVA: no user may appear under more than
// one variant of the same experiment.
func userIndependence(outcomes []pipeline.Outcome) bool {
	type key struct{ user, experiment string }
	seen := make(map[key]string)
	for _, o := range outcomes {
		k := key{user: o.UserID, experiment: o.Experiment}
		if v, ok := seen[k]; ok && v != o.Variant {
			return false
		}
		seen[k] = o.Variant
	}
	return true
}

// experimentIndependence verifies each experiment stays within a
// single event category.
func experimentIndependence(outcomes []pipeline.Outcome) bool {
	seen := make(map[string]string)
	for _, o := range outcomes {
		if name, ok := seen[o.Experiment]; ok && name != o.EventName {
			return false
		}
		seen[o.Experiment] = o.EventName
	}
	return true
}

// variation is the per-variant Bernoulli variance p(1-p) of the
// purchase outcome. Near-zero values flag a degenerate variant.
func variation(outcomes []pipeline.Outcome, variants []string) map[string]float64 {
	out := make(map[string]float64, len(variants))
	for _, v := range variants {
		p := conversionRate(outcomes, v)
		out[v] = p * (1 - p)
	}
	return out
}

// sampleSizeAdequacy compares each variant's observed count against
// the minimum required by the applicable power model.
func sampleSizeAdequacy(outcomes []pipeline.Outcome, variants []string, params Params) map[string]bool {
	var required float64
	if len(variants) == 2 {
		required = stats.TwoProportionSampleSize(params.TwoPropEffectSize, params.Alpha, params.Power)
	} else {
		required = stats.GofChisquareSampleSize(params.GofEffectSize, params.Alpha, params.Power, max(len(variants), 2))
	}

	out := make(map[string]bool, len(variants))
	for _, v := range variants {
		out[v] = float64(sampleCount(outcomes, v)) >= math.Ceil(required)
	}
	return out
}

// normalApproximation holds when every variant satisfies np >= 5 and
// n(1-p) >= 5, the validity condition for the proportion z-tests.
func normalApproximation(outcomes []pipeline.Outcome, variants []string) bool {
	for _, v := range variants {
		n := float64(sampleCount(outcomes, v))
		p := conversionRate(outcomes, v)
		if n*p < 5 || n*(1-p) < 5 {
			return false
		}
	}
	return len(variants) > 0
}

func variantOrder(outcomes []pipeline.Outcome) []string {
	seen := make(map[string]struct{})
	var order []string
	for _, o := range outcomes {
		if _, ok := seen[o.Variant]; !ok {
			seen[o.Variant] = struct{}{}
			order = append(order, o.Variant)
		}
	}
	return order
}

func sampleCount(outcomes []pipeline.Outcome, variant string) int {
	n := 0
	for _, o := range outcomes {
		if o.Variant == variant {
			n++
		}
	}
	return n
}

func conversionRate(outcomes []pipeline.Outcome, variant string) float64 {
	n, converted := 0, 0
	for _, o := range outcomes {
		if o.Variant != variant {
			continue
		}
		n++
		if o.WithPurchase {
			converted++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(converted) / float64(n)
}

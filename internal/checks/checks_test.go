package checks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expjudge/expjudge/internal/pipeline"
)

// cohort builds n outcome rows for a variant, converted of them with a
// purchase.
func cohort(experiment, variant string, n, converted int) []pipeline.Outcome {
	rows := make([]pipeline.Outcome, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, pipeline.Outcome{
			EventName:    "VIEW_ITEM",
			Experiment:   experiment,
			Variant:      variant,
			UserID:       fmt.Sprintf("%s-u%d", variant, i),
			Attempts:     1,
			Purchases:    boolToInt(i < converted),
			WithPurchase: i < converted,
		})
	}
	return rows
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestRun_CleanTwoVariantData(t *testing.T) {
	outcomes := append(cohort("exp", "A", 500, 50), cohort("exp", "B", 500, 80)...)
	bundle := Run(outcomes, DefaultParams())

	assert.Equal(t, 2, bundle.NumVariants)
	assert.True(t, bundle.UserIndependence)
	assert.True(t, bundle.ExperimentIndependence)
	assert.True(t, bundle.NormalApproximation)

	require.Contains(t, bundle.Variation, "A")
	assert.InDelta(t, 0.1*0.9, bundle.Variation["A"], 1e-9)
	assert.InDelta(t, 0.16*0.84, bundle.Variation["B"], 1e-9)

	// 500 per group clears the ~196 the two-proportion model requires.
	assert.True(t, bundle.SampleSizeAdequacy["A"])
	assert.True(t, bundle.SampleSizeAdequacy["B"])
}

func TestRun_UserInTwoVariantsViolatesIndependence(t *testing.T) {
	outcomes := append(cohort("exp", "A", 10, 1), cohort("exp", "B", 10, 1)...)
	outcomes = append(outcomes, pipeline.Outcome{
		EventName: "VIEW_ITEM", Experiment: "exp", Variant: "B", UserID: "A-u0",
	})

	bundle := Run(outcomes, DefaultParams())
	assert.False(t, bundle.UserIndependence)
}

func TestRun_ExperimentAcrossEventTypes(t *testing.T) {
	outcomes := cohort("exp", "A", 10, 1)
	outcomes = append(outcomes, pipeline.Outcome{
		EventName: "SEARCH", Experiment: "exp", Variant: "A", UserID: "s-u0",
	})

	bundle := Run(outcomes, DefaultParams())
	assert.False(t, bundle.ExperimentIndependence)
}

func TestRun_DegenerateVariantHasZeroVariation(t *testing.T) {
	outcomes := append(cohort("exp", "A", 100, 0), cohort("exp", "B", 100, 10)...)
	bundle := Run(outcomes, DefaultParams())

	assert.Equal(t, 0.0, bundle.Variation["A"])
	assert.False(t, bundle.NormalApproximation, "np < 5 for the all-failure variant")
}

func TestRun_SmallSamplesInadequate(t *testing.T) {
	outcomes := append(cohort("exp", "A", 30, 10), cohort("exp", "B", 30, 12)...)
	bundle := Run(outcomes, DefaultParams())

	assert.False(t, bundle.SampleSizeAdequacy["A"])
	assert.False(t, bundle.SampleSizeAdequacy["B"])
}

func TestRun_ThreeVariantsUseGofModel(t *testing.T) {
	outcomes := append(cohort("exp", "A", 1000, 100), cohort("exp", "B", 1000, 100)...)
	outcomes = append(outcomes, cohort("exp", "C", 500, 50)...)

	bundle := Run(outcomes, DefaultParams())
	assert.Equal(t, 3, bundle.NumVariants)
	// The three-bin goodness-of-fit model needs ~964 samples at w=0.1.
	assert.True(t, bundle.SampleSizeAdequacy["A"])
	assert.True(t, bundle.SampleSizeAdequacy["B"])
	assert.False(t, bundle.SampleSizeAdequacy["C"])
}

func TestRun_SingleVariant(t *testing.T) {
	bundle := Run(cohort("exp", "A", 100, 10), DefaultParams())
	assert.Equal(t, 1, bundle.NumVariants)
	assert.True(t, bundle.UserIndependence)
	assert.True(t, bundle.NormalApproximation)
}

func TestRun_Empty(t *testing.T) {
	bundle := Run(nil, DefaultParams())
	assert.Equal(t, 0, bundle.NumVariants)
	assert.False(t, bundle.NormalApproximation)
}

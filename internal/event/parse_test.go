package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments("{checkout_flow=v2, ranking=control}")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Assignment{Experiment: "checkout_flow", Variant: "v2"}, got[0])
	assert.Equal(t, Assignment{Experiment: "ranking", Variant: "control"}, got[1])
}

func TestParseAssignments_Single(t *testing.T) {
	got, err := ParseAssignments("{buy-button-color=1}")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "buy-button-color", got[0].Experiment)
	assert.Equal(t, "1", got[0].Variant)
}

func TestParseAssignments_Empty(t *testing.T) {
	for _, s := range []string{"", "   ", "{}", "{  }"} {
		got, err := ParseAssignments(s)
		require.NoError(t, err, "input %q", s)
		assert.Empty(t, got, "input %q", s)
	}
}

func TestParseAssignments_Malformed(t *testing.T) {
	for _, s := range []string{
		"checkout_flow=v2",       // no braces
		"{checkout_flow=v2",      // unbalanced
		"{checkout_flow v2}",     // missing =
		"{=v2}",                  // empty name
		"{a=1, b}",               // one bad entry spoils the event
	} {
		_, err := ParseAssignments(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestParseAssignments_VariantMayBeEmpty(t *testing.T) {
	got, err := ParseAssignments("{holdout=}")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Variant)
}

package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expjudge/expjudge/internal/pipeline"
)

func TestParseDay(t *testing.T) {
	day, err := parseDay("2023-05-01 09")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC), day)

	day, err = parseDay("2023-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), day)

	day, err = parseDay("")
	require.NoError(t, err)
	assert.True(t, day.IsZero())

	_, err = parseDay("yesterday")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	outcomes := []pipeline.Outcome{
		{Variant: "B", UserID: "u1", WithPurchase: true},
		{Variant: "A", UserID: "u2"},
		{Variant: "B", UserID: "u3"},
	}

	rows := summarize(outcomes)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].variant)
	assert.Equal(t, 0, rows[0].purchases)
	assert.Equal(t, "B", rows[1].variant)
	assert.Equal(t, 2, rows[1].n)
	assert.InDelta(t, 0.5, rows[1].rate, 1e-12)
}

package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expjudge/expjudge/internal/event"
)

const sampleCSV = `event_name,item_id,timestamp,user_id,experiments
VIEW_ITEM,item-1,2021-08-01 10:00:00,u1,"{ranking=v1, buy-button=control}"
SEARCH,,2021-08-01 10:05:00,u1,{ranking=v1}
BUY,item-1,2021-08-01 11:00:00,u1,
`

func TestDecodeCSV(t *testing.T) {
	events, err := DecodeCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "VIEW_ITEM", events[0].Name)
	assert.Equal(t, "item-1", events[0].ItemID)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, "{ranking=v1, buy-button=control}", events[0].Experiments)
	assert.Equal(t, time.Date(2021, 8, 1, 10, 0, 0, 0, time.UTC), events[0].Timestamp)

	assert.Equal(t, event.Search, events[1].Name)
	assert.Empty(t, events[1].ItemID)

	assert.True(t, events[2].IsPurchase())
	assert.Empty(t, events[2].Experiments)
}

func TestDecodeCSV_HeaderOrderIndependent(t *testing.T) {
	csv := "user_id,event_name,timestamp\nu1,BUY,2021-08-01T10:00:00Z\n"
	events, err := DecodeCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, event.Buy, events[0].Name)
}

func TestDecodeCSV_MissingColumn(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("event_name,item_id\nBUY,x\n"))
	assert.Error(t, err)
}

func TestDecodeCSV_BadTimestamp(t *testing.T) {
	csv := "event_name,timestamp,user_id\nBUY,yesterday,u1\n"
	_, err := DecodeCSV(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	src := NewCSVSource(path)
	defer src.Close()

	events, err := src.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSQLiteSource_RoundTrip(t *testing.T) {
	src := setupSQLite(t)
	ctx := context.Background()

	in := []event.Event{
		{Name: "VIEW_ITEM", ItemID: "item-1", Timestamp: time.Date(2021, 8, 1, 10, 0, 0, 0, time.UTC), UserID: "u1", Experiments: "{ranking=v1}"},
		{Name: "BUY", ItemID: "item-1", Timestamp: time.Date(2021, 8, 1, 11, 0, 0, 0, time.UTC), UserID: "u1"},
	}
	require.NoError(t, src.ImportEvents(ctx, in))

	n, err := src.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := src.Events(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[1], out[1])
}

// setupSQLite opens a temp-file SQLite source with automatic cleanup.
func setupSQLite(t *testing.T) *SQLiteSource {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.db")
	src, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("failed to open sqlite source: %v", err)
	}
	t.Cleanup(func() {
		src.Close()
	})
	return src
}

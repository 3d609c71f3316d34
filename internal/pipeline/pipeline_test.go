package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expjudge/expjudge/internal/event"
)

var day = time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func view(user, item string, ts time.Time, experiments string) event.Event {
	return event.Event{Name: "VIEW_ITEM", ItemID: item, Timestamp: ts, UserID: user, Experiments: experiments}
}

func search(user string, ts time.Time, experiments string) event.Event {
	return event.Event{Name: event.Search, Timestamp: ts, UserID: user, Experiments: experiments}
}

func buy(user, item string, ts time.Time) event.Event {
	return event.Event{Name: event.Buy, ItemID: item, Timestamp: ts, UserID: user}
}

func newPipeline() *Pipeline {
	return New(4*time.Hour, 8*time.Hour)
}

func findOutcome(t *testing.T, outcomes []Outcome, variant, user string) Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Variant == variant && o.UserID == user {
			return o
		}
	}
	t.Fatalf("no outcome for variant %q user %q in %+v", variant, user, outcomes)
	return Outcome{}
}

func TestLabel_ProductAttributionInsideWindow(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		buy("u1", "item-1", at(12, 0)), // 2h later, inside 4h window
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].WithPurchase)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Equal(t, 1, outcomes[0].Purchases)
}

func TestLabel_ProductPurchaseOutsideWindow(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		buy("u1", "item-1", at(15, 0)), // 5h later, outside 4h window
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].WithPurchase, "purchase outside window must not attribute")
}

func TestLabel_ProductRequiresMatchingItem(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		buy("u1", "item-2", at(10, 30)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].WithPurchase)
}

func TestLabel_PurchaseBeforeExposureNeverAttributes(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		buy("u1", "item-1", at(9, 0)),
		view("u1", "item-1", at(10, 0), "{exp=A}"),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].WithPurchase)
}

func TestLabel_WindowBoundsAreInclusive(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		buy("u1", "item-1", at(14, 0)), // exactly exposure + 4h
	}

	outcomes := p.Label(events)
	assert.True(t, outcomes[0].WithPurchase)

	// Lower bound: purchase at the exposure instant attributes.
	events = []event.Event{
		view("u2", "item-1", at(10, 0), "{exp=A}"),
		buy("u2", "item-1", at(10, 0)),
	}
	outcomes = p.Label(events)
	assert.True(t, outcomes[0].WithPurchase)
}

// Spec scenario: SEARCH at T, BUY of any item at T+5h attributes under
// an 8h window; the same purchase at T+9h does not.
func TestLabel_SearchAsOfJoin(t *testing.T) {
	p := newPipeline()

	// Two variants so the search experiment is comparable.
	base := []event.Event{
		search("u1", at(8, 0), "{exp=A}"),
		search("u2", at(8, 0), "{exp=B}"),
	}

	events := append(append([]event.Event{}, base...), buy("u1", "whatever", at(13, 0))) // T+5h
	outcomes := p.Label(events)
	assert.True(t, findOutcome(t, outcomes, "A", "u1").WithPurchase)

	events = append(append([]event.Event{}, base...), buy("u1", "whatever", at(17, 0))) // T+9h
	outcomes = p.Label(events)
	assert.False(t, findOutcome(t, outcomes, "A", "u1").WithPurchase)
}

func TestLabel_SearchSingleVariantExperimentExcluded(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		search("u1", at(8, 0), "{solo=A}"),
		search("u2", at(9, 0), "{solo=A}"),
		buy("u1", "item-1", at(9, 30)),
	}

	outcomes := p.Label(events)
	assert.Empty(t, outcomes, "single-variant search experiments carry no comparable signal")
}

func TestLabel_SearchKeepsEarliestPurchase(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		search("u1", at(8, 0), "{exp=A}"),
		search("u2", at(8, 0), "{exp=B}"),
		buy("u1", "late", at(12, 0)),
		buy("u1", "early", at(9, 0)),
	}

	o := findOutcome(t, p.Label(events), "A", "u1")
	assert.True(t, o.WithPurchase)
	assert.Equal(t, 1, o.Purchases, "as-of join picks a single nearest purchase")
}

func TestLabel_MalformedExperimentsContributesNothing(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "ranking=v1"), // missing braces
		view("u2", "item-1", at(10, 0), "{exp=A}"),
		buy("u2", "item-1", at(11, 0)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "u2", outcomes[0].UserID)
}

func TestLabel_ExpandsMultiExperimentEvents(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp1=A, exp2=X}"),
		buy("u1", "item-1", at(11, 0)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.WithPurchase)
	}
}

// Dedup invariant: overlapping exposures to the same item cannot
// double-count a single purchase.
func TestLabel_DedupOverlappingExposures(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		view("u1", "item-1", at(10, 30), "{exp=A}"),
		buy("u1", "item-1", at(11, 0)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Equal(t, 1, outcomes[0].Purchases)
}

// Conservation: total attempts equals the number of distinct-timestamp
// exposure records per (event, experiment).
func TestLabel_Conservation(t *testing.T) {
	p := newPipeline()
	var events []event.Event
	for i := 0; i < 7; i++ {
		events = append(events, view(fmt.Sprintf("u%d", i%3), fmt.Sprintf("item-%d", i), at(9, i), "{exp=A}"))
	}

	outcomes := p.Label(events)
	total := 0
	for _, o := range outcomes {
		total += o.Attempts
	}
	assert.Equal(t, 7, total)
}

// Idempotence: labeling the same immutable input twice yields
// identical outcomes.
func TestLabel_Idempotent(t *testing.T) {
	p := newPipeline()
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A, other=B}"),
		search("u2", at(10, 0), "{exp=B}"),
		search("u3", at(10, 5), "{exp=A}"),
		buy("u1", "item-1", at(11, 0)),
		buy("u2", "item-9", at(12, 0)),
	}

	first := p.Label(events)
	second := p.Label(events)
	assert.Equal(t, first, second)
}

// Window monotonicity: enlarging the window never un-attributes.
func TestLabel_WindowMonotonicity(t *testing.T) {
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		buy("u1", "item-1", at(13, 0)),
	}

	small := New(3*time.Hour, 8*time.Hour).Label(events)
	large := New(24*time.Hour, 8*time.Hour).Label(events)

	require.True(t, small[0].WithPurchase)
	assert.True(t, large[0].WithPurchase, "a larger window must keep the attribution")
}

func TestLabelExperiment_FiltersExperimentAndDay(t *testing.T) {
	p := newPipeline()
	nextDay := day.AddDate(0, 0, 1)
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		view("u2", "item-2", nextDay.Add(10*time.Hour), "{exp=A}"),
		view("u3", "item-3", at(10, 0), "{other=X}"),
		buy("u1", "item-1", at(11, 0)),
	}

	outcomes := p.LabelExperiment(events, "exp", day, false)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "u1", outcomes[0].UserID)
	assert.True(t, outcomes[0].WithPurchase)

	assert.Empty(t, p.LabelExperiment(events, "missing", day, false))
}

func TestLabelExperiment_SameDayDropsCrossDayPurchases(t *testing.T) {
	p := newPipeline()
	nextDay := day.AddDate(0, 0, 1)
	events := []event.Event{
		view("u1", "item-1", at(23, 0), "{exp=A}"),
		buy("u1", "item-1", nextDay.Add(1*time.Hour)), // inside window, next day
	}

	crossDay := p.LabelExperiment(events, "exp", day, false)
	require.Len(t, crossDay, 1)
	assert.True(t, crossDay[0].WithPurchase)

	sameDay := p.LabelExperiment(events, "exp", day, true)
	require.Len(t, sameDay, 1)
	assert.False(t, sameDay[0].WithPurchase)
}

func TestLabel_ExcludeCheckout(t *testing.T) {
	p := newPipeline()
	p.ExcludeCheckout = true
	events := []event.Event{
		{Name: event.Checkout1, ItemID: "item-1", Timestamp: at(10, 0), UserID: "u1", Experiments: "{exp=A}"},
		view("u1", "item-1", at(10, 0), "{exp=A}"),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "VIEW_ITEM", outcomes[0].EventName)
}

func TestLabel_SequentialBoundsWindowAtNextEvent(t *testing.T) {
	p := newPipeline()
	p.Mode = Sequential
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		view("u1", "item-1", at(10, 30), "{exp=A}"), // next session starts
		buy("u1", "item-1", at(11, 0)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	// The purchase lands after the second exposure, so only the second
	// exposure may claim it.
	assert.True(t, outcomes[0].WithPurchase)
	assert.Equal(t, 1, outcomes[0].Purchases)

	// Purchase between the two exposures attributes to the first.
	events[2] = buy("u1", "item-1", at(10, 15))
	outcomes = p.Label(events)
	assert.True(t, outcomes[0].WithPurchase)
}

func TestLabel_SequentialNextEventSkipsOtherGroup(t *testing.T) {
	p := newPipeline()
	p.Mode = Sequential
	events := []event.Event{
		view("u1", "item-1", at(10, 0), "{exp=A}"),
		// Item-less event of the same type belongs to the other
		// session group and must not hide the 10:20 item view.
		{Name: "VIEW_ITEM", Timestamp: at(10, 15), UserID: "u1"},
		view("u1", "item-1", at(10, 20), ""),
		buy("u1", "item-1", at(10, 30)),
	}

	outcomes := p.Label(events)
	require.Len(t, outcomes, 1)
	// The 10:00 exposure's session ends at the 10:20 item view, so the
	// 10:30 purchase falls outside it.
	assert.False(t, outcomes[0].WithPurchase)
}

func TestLabel_EmptyInput(t *testing.T) {
	assert.Empty(t, newPipeline().Label(nil))
}

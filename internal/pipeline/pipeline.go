// Package pipeline reconstructs purchase attribution from the raw
// event stream: it expands each event into its experiment exposures,
// joins exposures to purchases inside per-event-type time windows, and
// aggregates to one labeled outcome per (event, experiment, variant,
// user) group.
package pipeline

import (
	"sort"
	"time"

	"github.com/expjudge/expjudge/internal/event"
)

// Mode selects the attribution strategy.
type Mode string

const (
	// Standard bounds each exposure's purchase window only by the
	// configured maximum.
	Standard Mode = "standard"
	// Sequential additionally bounds the window by the user's next
	// event of the same type, scoping attribution to one browsing
	// session.
	Sequential Mode = "sequential"
)

// Pipeline holds the attribution policy. Windows are externally
// configured; see config.Windows for the observed deployment range.
type Pipeline struct {
	ProductWindow   time.Duration
	SearchWindow    time.Duration
	Mode            Mode
	ExcludeCheckout bool
}

func New(productWindow, searchWindow time.Duration) *Pipeline {
	return &Pipeline{
		ProductWindow: productWindow,
		SearchWindow:  searchWindow,
		Mode:          Standard,
	}
}

// Exposure is one event × experiment membership: a user was shown a
// variant of one experiment at a point in time.
type Exposure struct {
	EventName  string
	ItemID     string
	Timestamp  time.Time
	Experiment string
	Variant    string
	UserID     string

	// next is the timestamp of the user's next same-type event,
	// zero when there is none. Only the sequential mode reads it.
	next time.Time
}

// Purchase is a BUY event.
type Purchase struct {
	UserID    string
	ItemID    string
	Timestamp time.Time
}

// Outcome is one labeled row: did this user, under this variant of
// this experiment, end up purchasing within the attribution window.
type Outcome struct {
	EventName    string
	Experiment   string
	Variant      string
	UserID       string
	Attempts     int
	Purchases    int
	WithPurchase bool
}

// attribution pairs an exposure with its attributed purchase, if any.
type attribution struct {
	exposure     Exposure
	purchaseItem string
	purchaseTime time.Time
	attributed   bool
}

// Split partitions raw events into purchases and exposure candidates.
// Checkout funnel steps are dropped when ExcludeCheckout is set.
func (p *Pipeline) Split(events []event.Event) (exposures []event.Event, purchases []Purchase) {
	for _, e := range events {
		if e.IsPurchase() {
			purchases = append(purchases, Purchase{UserID: e.UserID, ItemID: e.ItemID, Timestamp: e.Timestamp})
			continue
		}
		if p.ExcludeCheckout && e.IsCheckoutStep() {
			continue
		}
		exposures = append(exposures, e)
	}
	return exposures, purchases
}

// Expand turns each exposure event into one Exposure per experiment it
// participates in. Events whose assignment string fails to parse
// contribute nothing.
func (p *Pipeline) Expand(events []event.Event) []Exposure {
	next := nextEventTimes(events)

	var exposures []Exposure
	for i, e := range events {
		assignments, err := event.ParseAssignments(e.Experiments)
		if err != nil {
			continue
		}
		for _, a := range assignments {
			exposures = append(exposures, Exposure{
				EventName:  e.Name,
				ItemID:     e.ItemID,
				Timestamp:  e.Timestamp,
				Experiment: a.Experiment,
				Variant:    a.Variant,
				UserID:     e.UserID,
				next:       next[i],
			})
		}
	}
	return exposures
}

// nextEventTimes returns, per input index, the timestamp of the user's
// next event of the same type (item-bearing and item-less events are
// tracked separately, matching how search sessions differ from product
// sessions).
func nextEventTimes(events []event.Event) map[int]time.Time {
	type key struct {
		user    string
		name    string
		hasItem bool
	}

	order := make([]int, len(events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := events[order[a]], events[order[b]]
		if ea.UserID != eb.UserID {
			return ea.UserID < eb.UserID
		}
		if ea.Name != eb.Name {
			return ea.Name < eb.Name
		}
		if !ea.Timestamp.Equal(eb.Timestamp) {
			return ea.Timestamp.Before(eb.Timestamp)
		}
		return ea.ItemID < eb.ItemID
	})

	// Link successors within each group. Groups interleave in the
	// sorted order (an item-less event can fall between two
	// item-bearing ones), so the predecessor is tracked per key
	// rather than read off the neighboring row.
	next := make(map[int]time.Time, len(events))
	prev := make(map[key]int, len(events))
	for _, idx := range order {
		e := events[idx]
		k := key{user: e.UserID, name: e.Name, hasItem: e.ItemID != ""}
		if p, ok := prev[k]; ok {
			next[p] = e.Timestamp
		}
		prev[k] = idx
	}
	return next
}

// Label runs the full pipeline over the raw events with no request
// filter applied.
func (p *Pipeline) Label(events []event.Event) []Outcome {
	return p.label(events, nil)
}

// LabelExperiment runs the pipeline and restricts the result to one
// experiment and, unless day is the zero time, to exposures on that
// calendar day. In same-day mode the raw events themselves are first
// restricted to the day, so purchases outside it cannot attribute.
func (p *Pipeline) LabelExperiment(events []event.Event, experimentID string, day time.Time, sameDay bool) []Outcome {
	if sameDay && !day.IsZero() {
		var filtered []event.Event
		for _, e := range events {
			if sameDate(e.Timestamp, day) {
				filtered = append(filtered, e)
			}
		}
		return p.label(filtered, func(a attribution) bool {
			return a.exposure.Experiment == experimentID
		})
	}

	return p.label(events, func(a attribution) bool {
		if a.exposure.Experiment != experimentID {
			return false
		}
		return day.IsZero() || sameDate(a.exposure.Timestamp, day)
	})
}

func (p *Pipeline) label(events []event.Event, keep func(attribution) bool) []Outcome {
	exposureEvents, purchases := p.Split(events)
	exposures := p.Expand(exposureEvents)

	rows := p.attributeProduct(exposures, purchases)
	rows = append(rows, p.attributeSearch(exposures, purchases)...)
	rows = dedupAttributions(rows)

	if keep != nil {
		kept := rows[:0]
		for _, row := range rows {
			if keep(row) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	return aggregate(rows)
}

// attributeProduct joins non-search exposures to purchases of the same
// item by the same user. A purchase attributes iff it falls in
// [exposure, exposure+ProductWindow]; the earliest qualifying purchase
// wins.
func (p *Pipeline) attributeProduct(exposures []Exposure, purchases []Purchase) []attribution {
	type key struct{ user, item string }

	byUserItem := make(map[key][]Purchase)
	for _, buy := range purchases {
		k := key{user: buy.UserID, item: buy.ItemID}
		byUserItem[k] = append(byUserItem[k], buy)
	}
	for _, list := range byUserItem {
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	}

	var rows []attribution
	for _, exp := range exposures {
		if exp.EventName == event.Search {
			continue
		}
		row := attribution{exposure: exp}
		for _, buy := range byUserItem[key{user: exp.UserID, item: exp.ItemID}] {
			if p.qualifies(exp, buy.Timestamp, p.ProductWindow) {
				row.purchaseItem = buy.ItemID
				row.purchaseTime = buy.Timestamp
				row.attributed = true
				break
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// attributeSearch joins search exposures to purchases by user only,
// as-of forward: the earliest purchase of any item at or after the
// exposure, inside SearchWindow. Experiments with fewer than two
// distinct variants among search exposures are excluded outright.
func (p *Pipeline) attributeSearch(exposures []Exposure, purchases []Purchase) []attribution {
	variants := make(map[string]map[string]struct{})
	for _, exp := range exposures {
		if exp.EventName != event.Search {
			continue
		}
		set := variants[exp.Experiment]
		if set == nil {
			set = make(map[string]struct{})
			variants[exp.Experiment] = set
		}
		set[exp.Variant] = struct{}{}
	}

	byUser := make(map[string][]Purchase)
	for _, buy := range purchases {
		byUser[buy.UserID] = append(byUser[buy.UserID], buy)
	}
	for _, list := range byUser {
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	}

	var rows []attribution
	for _, exp := range exposures {
		if exp.EventName != event.Search {
			continue
		}
		if len(variants[exp.Experiment]) < 2 {
			continue
		}
		row := attribution{exposure: exp}
		for _, buy := range byUser[exp.UserID] {
			if p.qualifies(exp, buy.Timestamp, p.SearchWindow) {
				row.purchaseItem = buy.ItemID
				row.purchaseTime = buy.Timestamp
				row.attributed = true
				break
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// qualifies reports whether a purchase at ts attributes to the
// exposure under the given maximum window. Both interval bounds are
// inclusive. Sequential mode additionally requires the purchase to
// precede the user's next same-type event.
func (p *Pipeline) qualifies(exp Exposure, ts time.Time, window time.Duration) bool {
	if ts.Before(exp.Timestamp) || ts.After(exp.Timestamp.Add(window)) {
		return false
	}
	if p.Mode == Sequential && !exp.next.IsZero() && !ts.Before(exp.next) {
		return false
	}
	return true
}

// dedupAttributions enforces the first-wins policy: one retained
// attribution per (event, item, experiment, variant, user) group, kept
// for the earliest attributed purchase. Later duplicates stay as rows
// but lose their attribution so purchases are never double-counted.
func dedupAttributions(rows []attribution) []attribution {
	type key struct {
		eventName, item, experiment, variant, user string
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.attributed != b.attributed {
			return a.attributed
		}
		if a.attributed && !a.purchaseTime.Equal(b.purchaseTime) {
			return a.purchaseTime.Before(b.purchaseTime)
		}
		return a.exposure.Timestamp.Before(b.exposure.Timestamp)
	})

	seen := make(map[key]bool)
	for i := range rows {
		if !rows[i].attributed {
			continue
		}
		k := key{
			eventName:  rows[i].exposure.EventName,
			item:       rows[i].exposure.ItemID,
			experiment: rows[i].exposure.Experiment,
			variant:    rows[i].exposure.Variant,
			user:       rows[i].exposure.UserID,
		}
		if seen[k] {
			rows[i].attributed = false
			rows[i].purchaseItem = ""
			rows[i].purchaseTime = time.Time{}
			continue
		}
		seen[k] = true
	}
	return rows
}

// aggregate groups attribution rows into labeled outcomes. Attempts
// counts distinct exposure timestamps; purchases counts distinct
// attributed purchase items.
func aggregate(rows []attribution) []Outcome {
	type key struct {
		eventName, experiment, variant, user string
	}
	type group struct {
		attempts  map[time.Time]struct{}
		purchases map[string]struct{}
	}

	groups := make(map[key]*group)
	order := make([]key, 0)
	for _, row := range rows {
		k := key{
			eventName:  row.exposure.EventName,
			experiment: row.exposure.Experiment,
			variant:    row.exposure.Variant,
			user:       row.exposure.UserID,
		}
		g := groups[k]
		if g == nil {
			g = &group{
				attempts:  make(map[time.Time]struct{}),
				purchases: make(map[string]struct{}),
			}
			groups[k] = g
			order = append(order, k)
		}
		g.attempts[row.exposure.Timestamp] = struct{}{}
		if row.attributed {
			g.purchases[row.purchaseItem] = struct{}{}
		}
	}

	outcomes := make([]Outcome, 0, len(order))
	for _, k := range order {
		g := groups[k]
		outcomes = append(outcomes, Outcome{
			EventName:    k.eventName,
			Experiment:   k.experiment,
			Variant:      k.variant,
			UserID:       k.user,
			Attempts:     len(g.attempts),
			Purchases:    len(g.purchases),
			WithPurchase: len(g.purchases) > 0,
		})
	}

	// Deterministic output so identical inputs label identically.
	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if a.EventName != b.EventName {
			return a.EventName < b.EventName
		}
		if a.Experiment != b.Experiment {
			return a.Experiment < b.Experiment
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return a.UserID < b.UserID
	})
	return outcomes
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

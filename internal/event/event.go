package event

import "time"

// Event names as they appear in the raw dataset.
const (
	Buy       = "BUY"
	Search    = "SEARCH"
	Checkout1 = "CHECKOUT_1"
	Checkout2 = "CHECKOUT_2"
	Checkout3 = "CHECKOUT_3"
)

// Event is one raw interaction row from the event source.
// Experiments holds the encoded assignment map ("{name=variant, ...}")
// exactly as stored; it is only meaningful on non-purchase events.
type Event struct {
	Name        string
	ItemID      string
	Timestamp   time.Time
	UserID      string
	Experiments string
}

// IsPurchase reports whether the event is a purchase.
func (e Event) IsPurchase() bool {
	return e.Name == Buy
}

// IsCheckoutStep reports whether the event is one of the checkout funnel steps.
func (e Event) IsCheckoutStep() bool {
	return e.Name == Checkout1 || e.Name == Checkout2 || e.Name == Checkout3
}

package models

import "time"

// Listing represents a single classified-ad entry discovered on a result page.
//
// Price and Posted are kept as free text in whatever format the site uses;
// nothing downstream depends on them being parseable. The (Title, Price, URL)
// tuple is the uniqueness key within one target.
type Listing struct {
	ID          int64     `json:"id,omitempty"`
	Target      string    `json:"target"`
	Title       string    `json:"title"`
	Price       string    `json:"price"`
	URL         string    `json:"url,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Description string    `json:"description,omitempty"`
	Seller      string    `json:"seller,omitempty"`
	Location    string    `json:"location,omitempty"`
	Posted      string    `json:"date,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	Category    string    `json:"category,omitempty"`
	Attributes  []string  `json:"attributes,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Key identifies a listing for change detection and deduplication.
func (l Listing) Key() ListingKey {
	return ListingKey{Title: l.Title, Price: l.Price, URL: l.URL}
}

// ListingKey is the (title, price, url) uniqueness tuple.
type ListingKey struct {
	Title string
	Price string
	URL   string
}

// Target is one monitored saved search: a result-page URL plus the CSS class
// of the container that holds the listing items.
type Target struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Selector string `json:"selector"`
}

// TargetResult summarises one target's outcome within a check cycle.
type TargetResult struct {
	Target   string    `json:"target"`
	Changed  bool      `json:"changed"`
	Total    int       `json:"total"`
	NewItems []Listing `json:"newItems,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// CheckResult summarises one full check cycle across all targets.
type CheckResult struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Targets    []TargetResult `json:"targets"`
	NextCheck  time.Time      `json:"nextCheck"`
}

// Realtime event names pushed over the websocket channel.
const (
	EventChecking       = "checking"
	EventListingsUpdate = "listingsUpdate"
	EventNextCheck      = "nextCheck"
	EventError          = "error"
)

// Event is the envelope for every realtime message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ListingsUpdatePayload carries the full listing set plus the next deadline
// after every completed check, whether or not anything changed.
type ListingsUpdatePayload struct {
	Listings  []Listing `json:"listings"`
	NextCheck int64     `json:"nextCheck"`
}

// NextCheckPayload carries only the next deadline, in absolute unix
// milliseconds, for reconnect resync and schedule changes.
type NextCheckPayload struct {
	NextCheck int64 `json:"nextCheck"`
}

// ErrorPayload surfaces the most recent check error to connected clients.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

package tracker

import (
	"errors"
	"fmt"
	"strings"
)

// EventType is the closed set of trackable user actions.
type EventType string

const (
	EventClick          EventType = "CLICK"
	EventView           EventType = "VIEW"
	EventAddToCart      EventType = "ADD_TO_CART"
	EventRemoveFromCart EventType = "REMOVE_FROM_CART"
	EventFavorite       EventType = "FAVORITE"
	EventUnfavorite     EventType = "UNFAVORITE"
	EventPurchase       EventType = "PURCHASE"
	EventSearch         EventType = "SEARCH"
)

// eventWeights maps each type to its importance for downstream preference
// scoring. Weights are derived data: attached at serialization time only,
// never persisted with the event.
var eventWeights = map[EventType]int{
	EventClick:          1,
	EventView:           2,
	EventAddToCart:      5,
	EventRemoveFromCart: -2,
	EventFavorite:       3,
	EventUnfavorite:     -1,
	EventPurchase:       10,
	EventSearch:         1,
}

// Weight returns the scoring weight for the type, 0 for unknown types.
func (t EventType) Weight() int {
	return eventWeights[t]
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := eventWeights[t]
	return ok
}

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingProduct   = errors.New("event requires a product id")
	ErrMissingQuery     = errors.New("search event requires a non-empty query")
	ErrBadPurchase      = errors.New("purchase event requires non-negative price, quantity and total")
)

// Event is one user interaction worth recording.
// Timestamp is milliseconds since epoch, assigned at enqueue time.
type Event struct {
	EventID   string    `json:"eventId"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`

	ProductID      string  `json:"productId,omitempty"`
	ShopID         string  `json:"shopId,omitempty"`
	ProductName    string  `json:"productName,omitempty"`
	Category       string  `json:"category,omitempty"`
	Subcategory    string  `json:"subcategory,omitempty"`
	Subsubcategory string  `json:"subsubcategory,omitempty"`
	Brand          string  `json:"brand,omitempty"`
	Price          float64 `json:"price,omitempty"`
	SearchQuery    string  `json:"searchQuery,omitempty"`
	Source         string  `json:"source,omitempty"`
	Quantity       int     `json:"quantity,omitempty"`
	TotalValue     float64 `json:"totalValue,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// SerializedEvent is the wire form of an Event: the event plus its weight,
// recomputed from the type on every flush.
type SerializedEvent struct {
	Event
	Weight int `json:"weight"`
}

// Batch is what a Sink delivers to the ingestion endpoint.
type Batch struct {
	Events          []SerializedEvent `json:"events"`
	ClientTimestamp int64             `json:"clientTimestamp"`
}

// subjectKey identifies what the event is about: the product id, or a hash of
// the search query for SEARCH events. Used for event ids and dedup keys.
func (e *Event) subjectKey() string {
	if e.Type == EventSearch {
		return fmt.Sprintf("q%08x", hash32(strings.ToLower(e.SearchQuery)))
	}
	return e.ProductID
}

// Validate checks the per-type field requirements: every type except SEARCH
// carries a product id, SEARCH a non-empty query, PURCHASE non-negative
// price/quantity/total. The tracker drops invalid events silently; the
// ingestion side rejects them per event.
func (e *Event) Validate() error {
	if !e.Type.Valid() {
		return ErrUnknownEventType
	}
	if e.Type == EventSearch {
		if strings.TrimSpace(e.SearchQuery) == "" {
			return ErrMissingQuery
		}
		return nil
	}
	if strings.TrimSpace(e.ProductID) == "" {
		return ErrMissingProduct
	}
	if e.Type == EventPurchase {
		if e.Price < 0 || e.Quantity < 0 || e.TotalValue < 0 {
			return ErrBadPurchase
		}
	}
	return nil
}

// serialize attaches weights to a snapshot of events.
func serialize(events []Event) []SerializedEvent {
	out := make([]SerializedEvent, 0, len(events))
	for _, e := range events {
		out = append(out, SerializedEvent{Event: e, Weight: e.Type.Weight()})
	}
	return out
}

// hash32 is a djb2-style rolling hash, used to derive a stable id component
// from free-form text such as search queries.
func hash32(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

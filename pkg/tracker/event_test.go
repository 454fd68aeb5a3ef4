package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeWeights(t *testing.T) {
	assert.Equal(t, 1, EventClick.Weight())
	assert.Equal(t, 2, EventView.Weight())
	assert.Equal(t, 5, EventAddToCart.Weight())
	assert.Equal(t, -2, EventRemoveFromCart.Weight())
	assert.Equal(t, 3, EventFavorite.Weight())
	assert.Equal(t, -1, EventUnfavorite.Weight())
	assert.Equal(t, 10, EventPurchase.Weight())
	assert.Equal(t, 1, EventSearch.Weight())

	assert.Equal(t, 0, EventType("SCROLL").Weight())
	assert.False(t, EventType("SCROLL").Valid())
}

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{"click ok", Event{Type: EventClick, ProductID: "p1"}, nil},
		{"click without product", Event{Type: EventClick}, ErrMissingProduct},
		{"unknown type", Event{Type: "SCROLL", ProductID: "p1"}, ErrUnknownEventType},
		{"search ok", Event{Type: EventSearch, SearchQuery: "socks"}, nil},
		{"search blank query", Event{Type: EventSearch, SearchQuery: "  "}, ErrMissingQuery},
		{"search needs no product", Event{Type: EventSearch, SearchQuery: "socks"}, nil},
		{"purchase ok", Event{Type: EventPurchase, ProductID: "p1", Price: 9.5, Quantity: 2, TotalValue: 19}, nil},
		{"purchase zero fields ok", Event{Type: EventPurchase, ProductID: "p1"}, nil},
		{"purchase negative price", Event{Type: EventPurchase, ProductID: "p1", Price: -1, Quantity: 1, TotalValue: 1}, ErrBadPurchase},
		{"purchase negative quantity", Event{Type: EventPurchase, ProductID: "p1", Price: 1, Quantity: -1, TotalValue: 1}, ErrBadPurchase},
		{"purchase negative total", Event{Type: EventPurchase, ProductID: "p1", Price: 1, Quantity: 1, TotalValue: -1}, ErrBadPurchase},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestSubjectKey(t *testing.T) {
	click := Event{Type: EventClick, ProductID: "p1"}
	assert.Equal(t, "p1", click.subjectKey())

	s1 := Event{Type: EventSearch, SearchQuery: "Wool Socks"}
	s2 := Event{Type: EventSearch, SearchQuery: "wool socks"}
	s3 := Event{Type: EventSearch, SearchQuery: "cotton socks"}

	// case-insensitive and stable
	require.Equal(t, s1.subjectKey(), s2.subjectKey())
	assert.NotEqual(t, s1.subjectKey(), s3.subjectKey())
}

func TestHash32Stable(t *testing.T) {
	assert.Equal(t, hash32("abc"), hash32("abc"))
	assert.NotEqual(t, hash32("abc"), hash32("abd"))
	assert.Equal(t, uint32(5381), hash32(""))
}

func TestSerializeAttachesWeights(t *testing.T) {
	events := []Event{
		{EventID: "a", Type: EventClick, ProductID: "p1"},
		{EventID: "b", Type: EventPurchase, ProductID: "p2"},
	}

	out := serialize(events)

	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Weight)
	assert.Equal(t, 10, out[1].Weight)
	assert.Equal(t, "a", out[0].EventID)
}

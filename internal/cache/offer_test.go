package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerwall-engine/internal/engine"
)

type fakeOfferStore struct {
	offers map[string]*engine.Offer
	err    error
	calls  int
}

func (f *fakeOfferStore) GetOffer(_ context.Context, offerID string) (*engine.Offer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.offers[offerID], nil
}

func activeOffer(id string) *engine.Offer {
	return &engine.Offer{ID: id, Active: true, Status: engine.StatusActive}
}

func TestOfferCache_ReadThrough(t *testing.T) {
	store := &fakeOfferStore{offers: map[string]*engine.Offer{"o1": activeOffer("o1")}}
	c := NewOfferCache(store, time.Minute)

	o, err := c.GetActiveOffer(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, o)

	_, err = c.GetActiveOffer(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "second read should be a cache hit")
}

func TestOfferCache_NotResolvable(t *testing.T) {
	tests := []struct {
		name  string
		offer *engine.Offer
	}{
		{"missing", nil},
		{"inactive", &engine.Offer{ID: "o1", Active: false, Status: engine.StatusActive}},
		{"paused", &engine.Offer{ID: "o1", Active: true, Status: engine.StatusPaused}},
		{"inactive status", &engine.Offer{ID: "o1", Active: true, Status: engine.StatusInactive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeOfferStore{offers: map[string]*engine.Offer{}}
			if tt.offer != nil {
				store.offers["o1"] = tt.offer
			}
			c := NewOfferCache(store, time.Minute)

			o, err := c.GetActiveOffer(context.Background(), "o1")
			require.NoError(t, err)
			assert.Nil(t, o)
		})
	}
}

func TestOfferCache_NegativeCaching(t *testing.T) {
	store := &fakeOfferStore{offers: map[string]*engine.Offer{}}
	c := NewOfferCache(store, time.Minute)

	for i := 0; i < 3; i++ {
		o, err := c.GetActiveOffer(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, o)
	}
	assert.Equal(t, 1, store.calls, "missing offers should be negatively cached")
}

func TestOfferCache_NormalizesOnLoad(t *testing.T) {
	offer := activeOffer("o1")
	offer.AllowedCountries = []string{" us ", "ca"}
	store := &fakeOfferStore{offers: map[string]*engine.Offer{"o1": offer}}
	c := NewOfferCache(store, time.Minute)

	o, err := c.GetActiveOffer(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, []string{"US", "CA"}, o.AllowedCountries)
}

func TestOfferCache_StoreErrorPropagates(t *testing.T) {
	store := &fakeOfferStore{err: context.DeadlineExceeded}
	c := NewOfferCache(store, time.Minute)

	_, err := c.GetActiveOffer(context.Background(), "o1")
	assert.Error(t, err)
}

func TestOfferCache_Invalidate(t *testing.T) {
	store := &fakeOfferStore{offers: map[string]*engine.Offer{
		"o1": activeOffer("o1"),
		"o2": activeOffer("o2"),
	}}
	c := NewOfferCache(store, time.Minute)

	_, _ = c.GetActiveOffer(context.Background(), "o1")
	_, _ = c.GetActiveOffer(context.Background(), "o2")
	require.Equal(t, 2, store.calls)

	c.Invalidate("o1")
	_, _ = c.GetActiveOffer(context.Background(), "o1")
	assert.Equal(t, 3, store.calls, "invalidated entry should be re-read")

	_, _ = c.GetActiveOffer(context.Background(), "o2")
	assert.Equal(t, 3, store.calls, "o2 should still be cached")

	c.Invalidate("")
	_, _ = c.GetActiveOffer(context.Background(), "o2")
	assert.Equal(t, 4, store.calls, "empty id flushes everything")
}

package cache

import (
	"context"
	"time"

	"offerwall-engine/internal/engine"
	"offerwall-engine/internal/observability"
)

// OfferStore loads offer snapshots from durable storage. A nil offer with a
// nil error means the offer does not exist.
type OfferStore interface {
	GetOffer(ctx context.Context, offerID string) (*engine.Offer, error)
}

// DefaultOfferTTL bounds how stale a served offer snapshot can be.
const DefaultOfferTTL = 60 * time.Second

// OfferCache is a read-through cache over the offer store. Missing offers
// are negatively cached for the same TTL so hot garbage traffic does not
// hammer storage.
type OfferCache struct {
	store OfferStore
	ttl   *TTL[*engine.Offer]
}

func NewOfferCache(store OfferStore, ttl time.Duration) *OfferCache {
	return &OfferCache{store: store, ttl: NewTTL[*engine.Offer](ttl)}
}

// GetActiveOffer returns the offer iff it exists, is active and its status
// is Active. Nil means "not resolvable", not merely empty.
func (c *OfferCache) GetActiveOffer(ctx context.Context, offerID string) (*engine.Offer, error) {
	if offer, ok := c.ttl.Get(offerID); ok {
		observability.CacheLookups.WithLabelValues("offer", "hit").Inc()
		return onlyResolvable(offer), nil
	}
	observability.CacheLookups.WithLabelValues("offer", "miss").Inc()

	offer, err := c.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer != nil {
		offer.Normalize()
	}
	c.ttl.Set(offerID, offer)
	return onlyResolvable(offer), nil
}

// Invalidate drops one offer from the cache; an empty id drops everything.
// Driven by the storage change listener.
func (c *OfferCache) Invalidate(offerID string) {
	if offerID == "" {
		c.ttl.Flush()
		return
	}
	c.ttl.Delete(offerID)
}

func onlyResolvable(o *engine.Offer) *engine.Offer {
	if o.Resolvable() {
		return o
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/observability"
)

// ClickCountStore answers "how many clicks has this rule served today" from
// the durable click store. Day boundary is UTC midnight.
type ClickCountStore interface {
	CountClicksToday(ctx context.Context, offerID, ruleID string) (int, error)
}

// DefaultClickCountTTL is how long a counted value may be reused for cap
// checks. Caps tolerate eventual consistency, so a few minutes of lag is
// fine.
const DefaultClickCountTTL = 5 * time.Minute

// ClickCounts is a Redis-backed read-through cache over the click store,
// used only for daily-cap enforcement. Redis being down is not an error:
// lookups fall through to the store.
type ClickCounts struct {
	rdb   *redis.Client
	store ClickCountStore
	ttl   time.Duration
	now   func() time.Time
}

func NewClickCounts(rdb *redis.Client, store ClickCountStore, ttl time.Duration) *ClickCounts {
	if ttl <= 0 {
		ttl = DefaultClickCountTTL
	}
	return &ClickCounts{rdb: rdb, store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// CountToday returns today's click count for (offer, rule). The cache key
// carries the UTC date, so entries from yesterday can never satisfy today's
// cap check regardless of TTL.
func (c *ClickCounts) CountToday(ctx context.Context, offerID, ruleID string) (int, error) {
	key := c.key(offerID, ruleID)

	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if n, perr := strconv.Atoi(val); perr == nil {
				observability.CacheLookups.WithLabelValues("click_count", "hit").Inc()
				return n, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Debug().Err(err).Str("key", key).Msg("click-count cache read failed, using store")
		}
	}
	observability.CacheLookups.WithLabelValues("click_count", "miss").Inc()

	n, err := c.store.CountClicksToday(ctx, offerID, ruleID)
	if err != nil {
		return 0, fmt.Errorf("count clicks for offer %s rule %s: %w", offerID, ruleID, err)
	}

	if c.rdb != nil {
		if err := c.rdb.SetEx(ctx, key, strconv.Itoa(n), c.ttl).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("click-count cache write failed")
		}
	}
	return n, nil
}

func (c *ClickCounts) key(offerID, ruleID string) string {
	return fmt.Sprintf("clicks:%s:%s:%s", offerID, ruleID, c.now().Format("2006-01-02"))
}

package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/cache"
	"offerwall-engine/internal/storage"
)

// ListenAndInvalidate watches a postgres NOTIFY channel for offer changes
// and drops the affected entries from the offer snapshot cache. The
// notification payload is the offer id; an empty payload flushes the whole
// cache. Without notifications the cache still self-heals within one TTL,
// so this loop only tightens staleness.
func ListenAndInvalidate(ctx context.Context, st *storage.Store, offers *cache.OfferCache, channel string, baseBackoff time.Duration) {
	conn, err := st.PgxPool().Acquire(ctx)
	if err != nil {
		log.Error().Err(err).Msg("acquire conn for listen")
		return
	}
	defer conn.Release()

	if channel == "" {
		channel = st.ListenChannel()
	}
	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("listen")
		return
	}
	log.Info().Str("channel", channel).Msg("listening for offer changes")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		default:
			ntf, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := jitter(baseBackoff)
				log.Error().Err(err).Dur("retry_in", backoff).Msg("notify wait error")
				time.Sleep(backoff)
				continue
			}
			log.Info().Str("channel", ntf.Channel).Str("offer_id", ntf.Payload).Msg("offer changed; invalidating cache")
			offers.Invalidate(ntf.Payload)
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}

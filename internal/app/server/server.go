package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"offerwall-engine/internal/api"
	"offerwall-engine/internal/cache"
	"offerwall-engine/internal/config"
	"offerwall-engine/internal/engine"
	"offerwall-engine/internal/geo"
	"offerwall-engine/internal/listener"
	"offerwall-engine/internal/storage"
	"offerwall-engine/internal/tracking"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	// Redis for click-count caching; optional, the engine falls through to
	// postgres counts without it.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(rootCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, cap counts will hit postgres")
		}
		defer rdb.Close()
	}

	// Collaborators
	offers := cache.NewOfferCache(store, cfg.OfferTTL())
	counts := cache.NewClickCounts(rdb, store, cfg.ClickCountTTL())
	locator := geo.NewClient(cfg.Geo.Endpoint, cfg.GeoTimeout())
	emitter := tracking.NewEmitter(store, cfg.Emitter.Buffer)
	defer emitter.Close()

	resolver := engine.NewResolver(
		offers,
		engine.NewGate(locator, store),
		engine.NewSelector(counts),
		emitter,
	)

	// HTTP
	h := api.NewClickHandler(resolver)
	r := api.Router(h)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Offer-change listener (LISTEN/NOTIFY)
	go listener.ListenAndInvalidate(rootCtx, store, offers, cfg.Listener.Channel, cfg.Backoff())

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

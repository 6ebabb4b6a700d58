package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"parchment/internal/adapters/backend"
	"parchment/internal/adapters/observability"
	redisad "parchment/internal/adapters/redis"
	"parchment/internal/app"
	"parchment/internal/shared"
)

// The syncer pre-warms the shared Redis cache so API instances start with hot
// browse views. Meant to run on a schedule (cron / k8s CronJob).
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("base", cfg.BackendURL).
		Int("workers", cfg.SyncWorkers).
		Msg("syncer starting")

	client, err := backend.New(cfg.BackendURL, cfg.BackendAnonKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("backend client init failed")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	ttl := int(cfg.CacheTTL.Seconds())
	tasks := []struct {
		key  string
		warm func(context.Context) (any, error)
	}{
		{app.CacheKeyPlaces, func(ctx context.Context) (any, error) { return client.FetchPublishedPlaces(ctx) }},
		{app.CacheKeyRegions, func(ctx context.Context) (any, error) { return client.FetchRegions(ctx) }},
	}

	sem := semaphore.NewWeighted(int64(cfg.SyncWorkers))
	var wg sync.WaitGroup

	for _, t := range tasks {
		t := t

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(int64(1))

			v, err := t.warm(ctx)
			if err != nil {
				log.Warn().Str("key", t.key).Err(err).Msg("warm fetch failed")
				return
			}
			if err := cache.Set(ctx, t.key, v, ttl); err != nil {
				log.Warn().Str("key", t.key).Err(err).Msg("cache write failed")
				return
			}
			log.Info().Str("key", t.key).Msg("warm ok")
		}()
	}

	wg.Wait()
	log.Info().Msg("sync completed")
}

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"parchment/internal/adapters/backend"
	server "parchment/internal/adapters/http_server"
	"parchment/internal/adapters/localstore"
	"parchment/internal/adapters/observability"
	redisad "parchment/internal/adapters/redis"
	"parchment/internal/app"
	"parchment/internal/domain"
	"parchment/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// local store
	local, err := localstore.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("local store open failed")
	}
	defer local.Close()

	instID, err := local.InstallationID()
	if err != nil {
		log.Fatal().Err(err).Msg("installation id failed")
	}
	log.Info().Str("installation_id", instID).Msg("local store ok")

	// deps
	client, err := backend.New(cfg.BackendURL, cfg.BackendAnonKey, cfg.BackendRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("backend client init failed")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	directory := app.NewDirectoryService(client, cache, cfg.CacheTTL)
	bookmarks := app.NewBookmarkStore(client, local, log.Logger)
	auth := app.NewAuthManager(client, local, log.Logger)

	// every session change re-targets the backend client and reloads bookmarks
	auth.OnChange(func(s *domain.Session) {
		if s == nil {
			client.SetAccessToken("")
			bookmarks.Load(ctx, "")
			return
		}
		client.SetAccessToken(s.AccessToken)
		bookmarks.Load(ctx, s.UserID)
	})

	auth.Initialize(ctx)
	auth.StartAutoRefresh(ctx)

	if cfg.RealtimeEnabled {
		rt := backend.NewRealtime(cfg.BackendURL, cfg.BackendAnonKey,
			[]string{"places", "regions"},
			func(ev backend.ChangeEvent) { directory.Invalidate(ctx, ev.Table) },
			log.Logger)
		go rt.Run(ctx)
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Directory: directory, Bookmarks: bookmarks, Auth: auth})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	go func() {
		<-ctx.Done()
		_ = httpSrv.Shutdown(context.Background())
	}()

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

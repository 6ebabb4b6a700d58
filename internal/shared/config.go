package shared

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	BackendURL     string
	BackendAnonKey string
	BackendRPS     int

	RedisAddr string
	RedisPass string
	RedisDB   int

	DataDir  string
	CacheTTL time.Duration

	RealtimeEnabled bool
	SyncWorkers     int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ":9100"),
		BackendURL:      env("BACKEND_URL", "https://parchment.supabase.co"),
		BackendAnonKey:  env("BACKEND_ANON_KEY", ""),
		BackendRPS:      atoi("BACKEND_RPS", 5),
		RedisAddr:       env("REDIS_ADDR", "localhost:6379"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		DataDir:         env("DATA_DIR", defaultDataDir()),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		RealtimeEnabled: env("REALTIME_ENABLED", "true") == "true",
		SyncWorkers:     atoi("SYNC_WORKERS", 4),
	}
	if c.BackendAnonKey == "" {
		log.Warn().Msg("BACKEND_ANON_KEY is empty")
	}
	return c
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parchment"
	}
	return filepath.Join(home, ".parchment")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

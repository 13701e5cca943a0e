package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/adapters/directory"
	"github.com/syncdocs/presence/internal/adapters/httpapi"
	"github.com/syncdocs/presence/internal/adapters/roomstore"
	"github.com/syncdocs/presence/internal/adapters/ws"
	"github.com/syncdocs/presence/internal/app"
	"github.com/syncdocs/presence/internal/auth"
	"github.com/syncdocs/presence/internal/config"
	"github.com/syncdocs/presence/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var store core.RoomStore
	if cfg.RedisURL != "" {
		redisStore, err := roomstore.NewRedisStore(cfg.RedisURL, cfg.RoomTTL, cfg.StoreRetries)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		// Single-instance mode: rooms live in process memory.
		log.Warn().Msg("redis_url not set, using in-memory room store")
		store = roomstore.NewMemoryStore()
	}

	dir, err := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryWait)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build directory client")
	}

	verifier, err := auth.NewVerifier([]byte(cfg.SessionSecret), cfg.SessionIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token verifier")
	}

	registry := app.NewRegistry()
	topics := app.NewTopics(dir)
	coord := app.NewCoordinator(registry, topics, store, dir, cfg.StoreRetries)
	relay := app.NewRelay(registry)

	ctl := ws.NewController(coord, relay, registry, topics, ws.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
		RateLimit:  cfg.SignalRate,
		RateWindow: cfg.SignalWindow,
	})

	r := httpapi.SetupRouter(ctx, cfg, verifier, ctl, store, dir)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("presence server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	// Shutdown ignores hijacked websockets; close them explicitly.
	registry.CloseAll()
	log.Info().Msg("server exited gracefully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/cbradio/internal/adapters/http"
	sig "github.com/dkeye/cbradio/internal/adapters/signal"
	"github.com/dkeye/cbradio/internal/app"
	"github.com/dkeye/cbradio/internal/config"
	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("bad flags")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	action, err := app.ParseBackpressureAction(cfg.SlowConsumer)
	if err != nil {
		log.Fatal().Err(err).Msg("bad slow_consumer")
	}
	channels := app.NewRegistry(app.WithPolicy(app.SimplePolicy{Action: action}))
	sessions := app.NewSessions()
	sweeper := app.NewSweeper(cfg.PingPeriod)
	m := metrics.New(channels, sessions)
	sweeper.OnEvict = func(core.SessionID) { m.Evictions.Inc() }

	ctl := sig.NewSignalWSController(channels, sessions, sweeper, m, sig.Options{
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout,
		SendBuffer:     cfg.SendBuffer,
		MaxChannelLen:  cfg.MaxChannelLen,
		MaxPasswordLen: cfg.MaxPasswordLen,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Signal:   ctl,
		Channels: channels,
		Sessions: sessions,
		Metrics:  m,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go sweeper.Run(ctx)
	go func() {
		log.Info().Str("addr", addr).Str("version", router.Version).Msg("CB radio server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	// Hijacked websockets are not tracked by Shutdown; cancel them directly.
	sessions.CancelAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(level)
}

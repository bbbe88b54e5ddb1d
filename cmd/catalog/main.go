// Package main is the entry point for the catalog service.
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

	"github.com/emmamdp/rickandmorty/api"
	"github.com/emmamdp/rickandmorty/internal/catalog"
	"github.com/emmamdp/rickandmorty/internal/config"
	"github.com/emmamdp/rickandmorty/internal/events"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/internal/metrics"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/internal/remote"
	"github.com/emmamdp/rickandmorty/internal/server"
	"github.com/emmamdp/rickandmorty/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "catalog").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting catalog")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open cache")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("cache ready")

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	src, err := remote.New(remote.Config{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIMaxRetries,
		RateLimit:  float64(cfg.APIRateLimit),
		RateBurst:  cfg.APIRateBurst,
	}, remote.WithLogger(log.Logger), remote.WithMetrics(m))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create remote client")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, natsErr := events.NewNATSPublisher(events.NATSConfig{
			URL:     cfg.NATSURL,
			Subject: cfg.NATSSubject,
			Name:    "catalog-" + version,
		})
		if natsErr != nil {
			logger.Fatal().Err(natsErr).Msg("failed to connect to NATS")
		}
		publisher = natsPublisher
		logger.Info().Str("subject", cfg.NATSSubject).Msg("publishing sync events to NATS")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	factory := reconciler.NewFactory(st, src,
		reconciler.WithLogger(log.Logger),
		reconciler.WithPublisher(publisher),
		reconciler.WithMetrics(m),
	)
	f := feed.New(st, factory, feed.Config{
		MaxWindow:      cfg.MaxWindow,
		RefreshOnStart: true,
	}, log.Logger)

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		f.Run(ctx)
	}()

	svc := catalog.New(f, st, src, catalog.Config{
		DefaultLimit:         cfg.PageSize,
		DetailRemoteFallback: cfg.DetailRemoteFallback,
	}, log.Logger)

	srv := server.New(svc, cfg, version, commit, buildDate,
		server.WithOpenAPISpec(api.OpenAPISpec),
		server.WithMetrics(m),
		server.WithLogger(log.Logger),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	cancel()
	<-feedDone
	logger.Info().Msg("server stopped gracefully")
}

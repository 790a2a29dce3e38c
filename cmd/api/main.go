package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/StarfishJ/SceneSound/internal/adapters/classifier"
	"github.com/StarfishJ/SceneSound/internal/adapters/rest"
	"github.com/StarfishJ/SceneSound/internal/adapters/spotify"
	"github.com/StarfishJ/SceneSound/internal/adapters/sqlite"
	"github.com/StarfishJ/SceneSound/internal/config"
	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/core/services"
	"github.com/StarfishJ/SceneSound/internal/imageprep"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/worker"
)

const (
	logWorkers   = 2
	logQueueSize = 100
	logJobTime   = 5 * time.Second
)

func main() {
	// 1. Configuration
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	// 2. Driven adapters
	var analysisLog ports.AnalysisLog
	switch cfg.Storage.Driver {
	case "sqlite":
		dbAdapter, err := sqlite.NewAdapter(cfg.Storage.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to initialize database")
		}
		defer dbAdapter.Close()
		analysisLog = dbAdapter
	case "none":
		logging.Info().Msg("analysis log disabled")
	default:
		logging.Fatal().Str("driver", cfg.Storage.Driver).Msg("unknown storage driver")
	}

	auth := spotify.NewAuthenticator(spotify.AuthOptions{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Timeout:      cfg.Catalog.Timeout,
		MaxAttempts:  cfg.Catalog.MaxAttempts,
		Backoff:      cfg.Catalog.Backoff,
	})
	catalog := spotify.NewClient(spotify.Options{
		BaseURL:       cfg.Spotify.BaseURL,
		Market:        cfg.Spotify.Market,
		Timeout:       cfg.Catalog.Timeout,
		MaxAttempts:   cfg.Catalog.MaxAttempts,
		Backoff:       cfg.Catalog.Backoff,
		RatePerSecond: cfg.Catalog.RatePerSecond,
		Burst:         cfg.Catalog.Burst,
	})
	scenes := classifier.NewClient(classifier.Options{
		BaseURL:         cfg.Classifier.URL,
		Timeout:         cfg.Classifier.Timeout,
		MaxAttempts:     cfg.Classifier.MaxAttempts,
		Backoff:         cfg.Classifier.Backoff,
		TopK:            cfg.Classifier.TopK,
		BreakerFailures: cfg.Classifier.BreakerFailures,
		BreakerCooldown: cfg.Classifier.BreakerCooldown,
	})

	// 3. Core services
	// Analysis records are written off the request path.
	pool := worker.NewPool(logQueueSize, logJobTime)
	pool.Start(logWorkers)
	defer pool.Stop()

	fetcher := services.NewTrackFetcher(auth, catalog, services.FetcherOptions{
		PerStyleLimit: cfg.Catalog.PerStyleLimit,
		Concurrency:   cfg.Catalog.Concurrency,
		Policy:        domain.CurationPolicy{MaxSize: cfg.Playlist.MaxSize, MinSize: cfg.Playlist.MinSize},
	})
	images := imageprep.New(imageprep.Options{
		MaxUploadBytes: cfg.Image.MaxUploadBytes,
		TargetBytes:    cfg.Image.TargetBytes,
		MaxDimension:   cfg.Image.MaxDimension,
		JPEGQuality:    cfg.Image.JPEGQuality,
		MaxPixels:      cfg.Image.MaxPixels,
	})
	svc := services.NewOrchestrator(
		images,
		services.NewSceneClassifier(scenes, cfg.Classifier.FallbackOnFailure),
		fetcher,
		analysisLog,
		pool,
	)

	// 4. Driving adapter
	handler := rest.NewHandler(svc, auth, analysisLog, services.NewSessionTracker(), rest.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimit:      cfg.Server.RateLimit,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// 5. Start the server
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", cfg.Server.Addr).
			Str("classifier", cfg.Classifier.URL).
			Str("storage", cfg.Storage.Driver).
			Msg("SceneSound API listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil {
			logging.Error().Err(err).Msg("server failed")
			return
		}
	case <-ctx.Done():
		logging.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("shutdown error")
		}
	}
}

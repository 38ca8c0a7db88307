package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/MeshkovD/star-burger/internal/adapter/http"
	kafkaadapter "github.com/MeshkovD/star-burger/internal/adapter/kafka"
	"github.com/MeshkovD/star-burger/internal/bootstrap"
	"github.com/MeshkovD/star-burger/internal/config"
	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/matching"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/MeshkovD/star-burger/internal/warmer"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	geocoder := bootstrap.NewGeocoder(cfg, logger, metrics)
	resolver := domain.NewResolver(store, geocoder, clock, logger, metrics)
	ranker := domain.NewRanker(resolver, logger)

	// Order events are optional (feature-flagged via KAFKA_ENABLED).
	var publisher matching.EventPublisher = matching.NopPublisher{}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
		publisher = writer
		logger.Info("order events enabled", "topic", cfg.KafkaOrderTopic)
	}

	svc := matching.New(store, ranker, publisher, clock, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, cfg.HTTPWriteTimeout, logger)

	// Without a geocoder there is nothing to warm.
	var w runner
	if geocoder != nil {
		w = warmer.New(store, resolver, clock, cfg.WarmerInterval, logger, metrics)
	}

	if err := serve(ctx, srv, w, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
	}

	// Lookups detached from cancelled requests may still write places.
	resolver.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	closeStore()

	logger.Info("shutdown complete")
}

type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

// serve runs the HTTP server and the optional background runner until ctx is
// done or either of them fails, then shuts the server down. It returns only
// after both have stopped.
func serve(ctx context.Context, srv server, background runner, shutdownTimeout time.Duration, logger *slog.Logger) error {
	waitGroup, groupCtx := errgroup.WithContext(ctx)

	waitGroup.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if background != nil {
		waitGroup.Go(func() error {
			return background.Run(groupCtx)
		})
	}

	<-groupCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	return waitGroup.Wait()
}

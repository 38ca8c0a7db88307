// Package bootstrap builds the storage and geocoding collaborators shared by
// the service and the report command.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeshkovD/star-burger/internal/adapter/memory"
	"github.com/MeshkovD/star-burger/internal/adapter/postgres"
	"github.com/MeshkovD/star-burger/internal/adapter/yandex"
	"github.com/MeshkovD/star-burger/internal/config"
	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/matching"
	"github.com/MeshkovD/star-burger/internal/observability"
)

// Store is the persistence the service runs on: orders and menus plus the
// coordinate cache.
type Store interface {
	matching.Store
	domain.PlaceCache
}

// OpenStore connects to PostgreSQL and applies migrations when DATABASE_URL
// is set. Otherwise it returns an in-memory store, seeded from SEED_FILE when
// one is configured. The returned func releases the store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, func(), error) {
	if cfg.DatabaseURL == "" {
		store := memory.NewStore()
		if cfg.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, nil, err
			}
		}
		logger.Warn("DATABASE_URL not set, using in-memory store", "seed_file", cfg.SeedFile)
		return store, func() {}, nil
	}

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	pool, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected", "max_conns", cfg.DatabaseMaxConns)
	return postgres.NewStore(pool), pool.Close, nil
}

// NewGeocoder returns the Yandex client when geocoding is enabled and nil
// otherwise, in which case only cached coordinates are used.
func NewGeocoder(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) domain.Geocoder {
	if !cfg.GeocoderEnabled {
		metrics.GeocodingEnabled.Set(0)
		logger.Info("yandex geocoding disabled")
		return nil
	}
	metrics.GeocodingEnabled.Set(1)
	logger.Info("yandex geocoding enabled", "timeout", cfg.GeocoderTimeout, "rps", cfg.GeocoderRPS)
	return yandex.NewClient(cfg.GeocoderAPIKey, cfg.GeocoderTimeout, cfg.GeocoderRPS, logger)
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mariadb"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/database/sqlite"
	"github.com/kozaktomas/face-registry/internal/extractor"
	"github.com/kozaktomas/face-registry/internal/index"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

// openStore opens the store selected by DATABASE_DRIVER and applies pending migrations.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.EmbeddingStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	switch cfg.Driver {
	case "sqlite":
		repo, err := sqlite.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres", "postgresql":
		repo, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql", "mariadb":
		repo, err := mariadb.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (use sqlite, postgres or mysql)", cfg.Driver)
	}
}

// newExtractor builds the HTTP extractor, wrapped in the Redis cache when REDIS_URL is set.
// The returned cleanup closes the cache connection.
func newExtractor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (extractor.Extractor, func(), error) {
	client := extractor.NewHTTPClient(extractor.ClientOptions{
		BaseURL:           cfg.Extractor.URL,
		Model:             cfg.Extractor.Model,
		Dim:               cfg.Matching.EmbeddingDim,
		MaxImageSize:      cfg.Extractor.MaxImageSize,
		RequestsPerSecond: cfg.Extractor.RequestsPerSecond,
		Timeout:           cfg.Extractor.Timeout,
	})
	if cfg.Cache.RedisURL == "" {
		return client, func() {}, nil
	}

	cache, err := extractor.NewRedisCache(ctx, cfg.Cache.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to extraction cache: %w", err)
	}
	cached := extractor.NewCachedExtractor(client, cache, client.Model(), cfg.Cache.TTL, logger)
	return cached, func() { cache.Close() }, nil
}

// app bundles the engine with the resources it owns.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	engine   *recognition.Engine
	registry *prometheus.Registry
	cleanup  []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.logger.Sync()
}

// newApp wires store, extractor, index and engine from the environment.
// The index is left uninitialized; callers decide when to load it.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	mode, err := index.ParseMode(cfg.Index.Mode)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { store.Close() })

	ext, closeExt, err := newExtractor(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cleanup = append(a.cleanup, closeExt)

	a.engine = recognition.New(store, ext, index.New(mode), cfg.Matching, logger,
		recognition.NewMetrics(a.registry), recognition.WithConcurrency(cfg.Extractor.Concurrency))
	return a, nil
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

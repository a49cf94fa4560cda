package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/interest-enricher/internal/cache"
	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/config"
	"github.com/Veraticus/interest-enricher/internal/engine"
	"github.com/Veraticus/interest-enricher/internal/model"
	"github.com/Veraticus/interest-enricher/internal/progress"
	"github.com/Veraticus/interest-enricher/internal/search"
	"github.com/Veraticus/interest-enricher/internal/service"
	"github.com/Veraticus/interest-enricher/internal/storage"
)

// app bundles the components a command works with.
type app struct {
	store      *storage.SQLiteStorage
	client     service.SearchClient
	persistent *cache.Persistent
	cache      *cache.Tiered
	orch       *engine.Orchestrator
	reporter   *progress.Reporter
	cleanup    func()
	cfg        config.Config
}

type appOptions struct {
	search  bool // Build a real search client
	offline bool // Answer searches from an empty scripted client
	sandbox bool // Work on a throwaway copy of the database
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	cleanup := func() {}
	if opts.sandbox {
		path, remove, err := sandboxDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Dry run: working on a copy of the database", "path", path)
		cfg.Database.Path = path
		cleanup = remove
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	client, err := newSearchClient(cfg.Search, opts)
	if err != nil {
		_ = store.Close()
		cleanup()
		return nil, err
	}

	persistent := cache.NewPersistent(store, nil, cfg.Cache.PersistentTTL)
	tiered := cache.NewTiered(cache.NewMemory(cfg.Cache.MemoryTTL, nil), persistent, slog.Default())

	orch := engine.New(store, client, tiered, engine.Options{
		Logger:              slog.Default(),
		MaxConcurrency:      cfg.Pipeline.MaxConcurrency,
		MaxRetries:          cfg.Pipeline.MaxRetries,
		SearchLimit:         cfg.Search.Limit,
		RetryDelay:          cfg.Pipeline.RetryDelay,
		ControlPollInterval: cfg.Pipeline.ControlPollInterval,
		StaleAfter:          cfg.Pipeline.StaleAfter,
		RecoveryPolicy:      engine.RecoveryPolicy(cfg.Pipeline.RecoveryPolicy),
	})

	return &app{
		cfg:        cfg,
		store:      store,
		client:     client,
		persistent: persistent,
		cache:      tiered,
		orch:       orch,
		reporter:   progress.NewReporter(store),
		cleanup:    cleanup,
	}, nil
}

// sandboxDatabase copies the configured database into a temporary directory.
// The returned func removes the copy.
func sandboxDatabase(ctx context.Context, cfg config.Config) (string, func(), error) {
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = store.Close() }()

	dir, err := os.MkdirTemp("", "enrich-dry-run-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create dry run directory: %w", err)
	}
	remove := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "enrich.db")
	if err := store.Snapshot(ctx, path); err != nil {
		remove()
		return "", nil, err
	}
	return path, remove, nil
}

// Close stops admission, waits for in-flight items and closes the database.
func (a *app) Close(ctx context.Context) {
	if err := a.orch.Shutdown(ctx); err != nil {
		slog.Warn("Shutdown did not complete", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
	a.cleanup()
}

func newSearchClient(cfg config.SearchConfig, opts appOptions) (service.SearchClient, error) {
	switch {
	case opts.offline:
		slog.Info("Offline: searches return no candidates")
		return search.NewLoggingClient(search.NewMockClient(), slog.Default()), nil
	case !opts.search:
		return unavailableClient{}, nil
	}

	graph, err := search.NewGraphClient(search.Config{
		BaseURL:           cfg.BaseURL,
		APIVersion:        cfg.APIVersion,
		AccessToken:       cfg.AccessToken,
		Limit:             cfg.Limit,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	if err != nil {
		return nil, common.NewUserError("Set FACEBOOK_ACCESS_TOKEN or search.access_token, or pass --dry-run or --offline", err)
	}
	return search.NewLoggingClient(graph, slog.Default()), nil
}

// unavailableClient backs commands that never search.
type unavailableClient struct{}

func (unavailableClient) Search(context.Context, model.SearchRequest) (*model.SearchResult, error) {
	return nil, &search.Error{Kind: search.KindTokenInvalid, Message: "search client not configured for this command"}
}

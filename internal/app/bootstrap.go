package app

import (
	"log/slog"
	"path/filepath"
	"time"

	"coinfolio/internal/domain"
	"coinfolio/internal/infra"
	"coinfolio/internal/infra/coincap"
	"coinfolio/internal/infra/coingecko"
	"coinfolio/internal/infra/paprika"
	"coinfolio/internal/infra/storage"
	"coinfolio/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Icons     *infra.IconCache
	Tracker   *service.Tracker
	Snapshots *service.Snapshots
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, services)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Coinfolio...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Database.Path))

	// 4. Icon cache next to the database
	icons, err := infra.NewIconCache(filepath.Join(filepath.Dir(cfg.Database.Path), "icons"))
	if err != nil {
		slog.Warn("Icon cache unavailable, serving remote URLs", slog.Any("error", err))
		icons = nil
	}
	b.Icons = icons

	// 5. Providers in priority order
	orchestrator := service.NewOrchestrator(
		coingecko.NewWithBaseURL(
			cfg.Providers.CoinGecko.APIKey,
			cfg.Providers.CoinGecko.BaseURL,
			time.Duration(cfg.Providers.CoinGecko.MinIntervalMS)*time.Millisecond,
		),
		coincap.NewWithBaseURL(
			cfg.Providers.CoinCap.BaseURL,
			time.Duration(cfg.Providers.CoinCap.MinIntervalMS)*time.Millisecond,
		),
		paprika.NewWithBaseURL(
			cfg.Providers.CoinPaprika.BaseURL,
			time.Duration(cfg.Providers.CoinPaprika.MinIntervalMS)*time.Millisecond,
		),
	)

	// 6. Services
	b.Tracker = service.NewTracker(store, orchestrator, icons, cfg.Refresh.BatchSize)
	b.Snapshots = service.NewSnapshots(store)

	// 7. First-run seeding
	if err := b.seedDefaultPortfolio(); err != nil {
		return err
	}

	slog.Info("✅ Services ready")
	return nil
}

// seedDefaultPortfolio creates a starter portfolio on first run so the
// UI never opens on an empty list.
func (b *Bootstrap) seedDefaultPortfolio() error {
	n, err := b.Storage.CountPortfolios()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	p := &domain.Portfolio{
		Name:        "Main Portfolio",
		Description: "Your primary crypto portfolio",
	}
	if err := b.Storage.CreatePortfolio(p); err != nil {
		return err
	}
	slog.Info("Created default portfolio", slog.Uint64("id", uint64(p.ID)))
	return nil
}

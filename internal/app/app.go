package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"hunter/internal/core"
	"hunter/internal/core/sysproxy"
	"hunter/internal/core/trojan"
	"hunter/internal/core/types"
	"hunter/internal/latency"
	"hunter/internal/observability"
	"hunter/internal/paths"
	"hunter/internal/storage"
	"hunter/internal/storage/sqlite"
)

// App represents the application context
type App struct {
	Storage    storage.Storage
	Runner     *trojan.Runner
	Controller *core.Controller
	Telemetry  *observability.Provider
	Logger     *slog.Logger
	Config     *Config
}

// Config represents application configuration
type Config struct {
	// DBPath overrides the database location.
	DBPath string
	// Binary overrides the trojan-go executable. Empty falls back to the
	// stored setting, then a search of common locations.
	Binary string
	// Prompter answers confirmations when no request-scoped one is set.
	Prompter types.Prompter
	Logger   *slog.Logger
}

// New creates a new application instance
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DBPath == "" {
		dataDir, err := paths.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		cfg.DBPath = filepath.Join(dataDir, paths.DatabaseFile)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	if cfg.Binary == "" {
		if v, err := store.GetSetting(ctx, storage.SettingBinary); err == nil {
			cfg.Binary = v
		}
	}

	runner, err := trojan.NewRunner(trojan.Options{
		Binary: cfg.Binary,
		Logger: logger.With("component", "trojan"),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize trojan-go runner: %w", err)
	}

	telemetry, err := observability.NewProvider(nil)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	inspector := trojan.NewInspector(trojan.SystemLister{}, store, runner.ConfigPath(), logger.With("component", "inspector"))
	proxy := sysproxy.New(sysproxy.ExecRunner{}, logger.With("component", "sysproxy"))
	prober := &recordingProber{
		prober:  latency.NewProber(logger.With("component", "probe")),
		metrics: telemetry.Metrics,
	}

	ctrl := core.NewController(core.Deps{
		Inspector:  inspector,
		Spawner:    runner,
		Terminator: runner,
		Store:      store,
		Daemon:     store,
		Proxy:      proxy,
		Prober:     prober,
		Prompter:   cfg.Prompter,
		Recorder:   telemetry.Metrics,
		Logger:     logger.With("component", "controller"),
	})

	return &App{
		Storage:    store,
		Runner:     runner,
		Controller: ctrl,
		Telemetry:  telemetry,
		Logger:     logger,
		Config:     &cfg,
	}, nil
}

// Close closes the application and releases resources
func (a *App) Close() error {
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Telemetry.Shutdown(ctx)
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}

// recordingProber reports probe outcomes to the metrics provider.
type recordingProber struct {
	prober  core.Prober
	metrics *observability.Metrics
}

func (p *recordingProber) Probe(ctx context.Context, localAddr string, localPort int) (time.Duration, error) {
	elapsed, err := p.prober.Probe(ctx, localAddr, localPort)
	p.metrics.RecordProbe(ctx, elapsed, err)
	return elapsed, err
}

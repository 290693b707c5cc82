package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"evently/internal/components"
	"evently/internal/config"
	"evently/internal/core"
	"evently/internal/metrics"
	"evently/internal/middleware"
	"evently/internal/normalize"
	"evently/internal/state"
)

// Role selects which components a command brings up.
type Role int

const (
	RoleWorker Role = iota
	RoleProducer
	RoleServer
	RoleMaintenance
	RolePublisher
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleProducer:
		return "producer"
	case RoleServer:
		return "server"
	case RoleMaintenance:
		return "maintenance"
	case RolePublisher:
		return "publisher"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

type Loader struct {
	config *config.Config
	logger *slog.Logger
}

func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config: cfg,
		logger: logger,
	}
}

func (l *Loader) Initialize(ctx context.Context, role Role) (*state.State, error) {
	registry := components.NewRegistry()
	m := metrics.New()
	l.logger.Info("Initializing components", "role", role)

	var comps []components.IComponent
	comps = append(comps, components.NewStorageComponent(l.config.Storage))

	var platform *components.PlatformComponent
	if role == RoleWorker || role == RoleServer || role == RolePublisher {
		platform = components.NewPlatformComponent(l.config, l.logger)
		comps = append(comps, platform)
	}
	if role == RoleWorker || role == RoleProducer || role == RoleServer {
		comps = append(comps, components.NewQueueComponent(l.config.Queue))
	}
	var images *components.ImagesComponent
	if role == RoleWorker {
		images = components.NewImagesComponent(l.config.Images, platform, l.logger)
		comps = append(comps, images)
	}
	if role == RoleServer || (role == RoleWorker && l.config.Server.Enabled) {
		comps = append(comps, components.NewServerComponent(l.config.Server, registry, m, l.logger))
	}

	for _, comp := range comps {
		if err := registry.Register(comp); err != nil {
			return nil, fmt.Errorf("failed to register %s component: %w", comp.Name(), err)
		}
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}

	appState := state.NewState(l.config, registry, l.logger, m)

	if registry.Has(components.QueueComponentName) {
		appState.Producer = core.NewProducer(appState.Store().Tasks(), appState.Queue(), l.logger)
	}

	if role == RoleWorker {
		worker, err := l.buildWorker(appState, images)
		if err != nil {
			if closeErr := registry.CloseAll(ctx); closeErr != nil {
				l.logger.Warn("Cleanup after failed worker build", "error", closeErr)
			}
			return nil, err
		}
		appState.Worker = worker
	}

	l.logger.Info("All components initialized successfully")
	return appState, nil
}

func (l *Loader) buildWorker(appState *state.State, images *components.ImagesComponent) (*core.Worker, error) {
	loc, err := time.LoadLocation(l.config.Normalize.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default_timezone: %w", err)
	}
	normalizer, err := normalize.New(normalize.WithLocation(loc))
	if err != nil {
		return nil, err
	}

	store := appState.Store()
	wc := l.config.Worker
	return core.NewWorker(core.WorkerConfig{
		Name:         wc.Name,
		Queue:        appState.Queue(),
		Tasks:        store.Tasks(),
		Events:       store.Events(),
		Extractors:   appState.Platform().Extractors(),
		Chain:        middleware.Default(normalizer, images.Cache(), l.logger),
		Metrics:      appState.Metrics,
		Logger:       l.logger,
		IdleInterval: l.config.Duration(wc.IdleInterval),
		JobTimeout:   l.config.Duration(wc.JobTimeout),
		Concurrency:  wc.Concurrency,
		Backoff: core.BackoffConfig{
			BaseDelay: l.config.Duration(wc.BackoffBase),
			MaxDelay:  l.config.Duration(wc.BackoffMax),
		},
	}), nil
}

func LoadAndBuild(ctx context.Context, configPath string, role Role, logger *slog.Logger) (*state.State, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	loader := NewLoader(cfg, logger)
	return loader.Initialize(ctx, role)
}

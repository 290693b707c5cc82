package state

import (
	"context"
	"log/slog"

	"evently/internal/components"
	"evently/internal/config"
	"evently/internal/core"
	"evently/internal/metrics"
	"evently/internal/queue"
	"evently/internal/storage"
)

// State is what a running command needs after the loader is done.
type State struct {
	Config   *config.Config
	Registry *components.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Worker   *core.Worker
	Producer *core.Producer
}

func NewState(cfg *config.Config, registry *components.Registry, logger *slog.Logger, m *metrics.Metrics) *State {
	return &State{
		Config:   cfg,
		Registry: registry,
		Logger:   logger,
		Metrics:  m,
	}
}

func (s *State) Store() storage.StorageInterface {
	return s.Registry.Get(components.StorageComponentName).(*components.StorageComponent).Store()
}

func (s *State) Queue() queue.Queue {
	return s.Registry.Get(components.QueueComponentName).(*components.QueueComponent).Queue()
}

func (s *State) Platform() *components.PlatformComponent {
	return s.Registry.Get(components.PlatformComponentName).(*components.PlatformComponent)
}

func (s *State) GetLogger() *slog.Logger {
	return s.Logger
}

func (s *State) Close(ctx context.Context) error {
	return s.Registry.CloseAll(ctx)
}

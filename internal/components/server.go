package components

import (
	"context"
	"fmt"
	"log/slog"

	"evently/internal/config"
	"evently/internal/core"
	"evently/internal/metrics"
	"evently/internal/server"
)

type ServerComponent struct {
	config   config.ServerConfig
	registry *Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *server.Server
}

func NewServerComponent(cfg config.ServerConfig, registry *Registry, m *metrics.Metrics, logger *slog.Logger) *ServerComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerComponent{config: cfg, registry: registry, metrics: m, logger: logger}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{StorageComponentName, QueueComponentName, PlatformComponentName}
}

func (c *ServerComponent) Validate() error {
	if c.config.Addr == "" {
		return fmt.Errorf("server: addr is required")
	}
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	store := c.registry.Get(StorageComponentName).(*StorageComponent).Store()
	q := c.registry.Get(QueueComponentName).(*QueueComponent).Queue()
	platform := c.registry.Get(PlatformComponentName).(*PlatformComponent)

	c.server = server.New(server.Config{Addr: c.config.Addr}, server.Deps{
		Producer:  core.NewProducer(store.Tasks(), q, c.logger),
		Store:     store,
		Queue:     q,
		Metrics:   c.metrics,
		Publisher: platform.Publisher(),
		Logger:    c.logger,
	})

	if err := c.server.Start(ctx); err != nil {
		return fmt.Errorf("server: failed to start: %w", err)
	}
	return nil
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/config"
	"evently/internal/extractors"
	"evently/internal/fetch"
	"evently/internal/publish"
)

// PlatformComponent holds the outbound side: the shared HTTP client, the
// extractor registry built on it and the optional publisher.
type PlatformComponent struct {
	config     *config.Config
	logger     *slog.Logger
	client     *retryablehttp.Client
	extractors *extractors.Registry
	publisher  publish.Publisher
}

func NewPlatformComponent(cfg *config.Config, logger *slog.Logger) *PlatformComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformComponent{config: cfg, logger: logger}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	if c.config == nil {
		return fmt.Errorf("platforms: config is required")
	}
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	c.client = fetch.NewClient(fetch.Options{
		Timeout:  30 * time.Second,
		RetryMax: 2,
		Logger:   c.logger.With("component", "http"),
	})
	c.extractors = extractors.Build(c.config, c.client, c.logger)

	if endpoint := c.config.Publish.Endpoint; endpoint != "" {
		publisher, err := publish.NewHTTPPublisher(c.client, endpoint, c.config.Publish.Token)
		if err != nil {
			return fmt.Errorf("platforms: %w", err)
		}
		c.publisher = publisher
	}
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.client != nil {
		c.client.HTTPClient.CloseIdleConnections()
	}
	return nil
}

func (c *PlatformComponent) HTTPClient() *retryablehttp.Client {
	return c.client
}

func (c *PlatformComponent) Extractors() *extractors.Registry {
	return c.extractors
}

// Publisher is nil when no publish endpoint is configured.
func (c *PlatformComponent) Publisher() publish.Publisher {
	return c.publisher
}

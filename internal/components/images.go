package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"evently/internal/config"
	"evently/internal/imagecache"
)

type ImagesComponent struct {
	config   config.ImagesConfig
	platform *PlatformComponent
	logger   *slog.Logger
	cache    *imagecache.Cache
}

func NewImagesComponent(cfg config.ImagesConfig, platform *PlatformComponent, logger *slog.Logger) *ImagesComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImagesComponent{config: cfg, platform: platform, logger: logger}
}

func (c *ImagesComponent) Name() string {
	return ImagesComponentName
}

func (c *ImagesComponent) Dependencies() []string {
	return []string{PlatformComponentName}
}

func (c *ImagesComponent) Validate() error {
	if c.config.Bucket != "" && c.config.Region == "" && c.config.Endpoint == "" {
		return fmt.Errorf("images: region or endpoint is required")
	}
	return nil
}

func (c *ImagesComponent) Initialize(ctx context.Context) error {
	var store imagecache.ObjectStore
	if c.config.Bucket != "" {
		s3, err := imagecache.NewS3Store(c.config)
		if err != nil {
			return fmt.Errorf("images: %w", err)
		}
		store = s3
	} else {
		c.logger.Info("No image bucket configured, images keep their source URLs")
	}

	c.cache = imagecache.New(store, c.platform.HTTPClient(), imagecache.Options{
		Prefix:   c.config.Prefix,
		Timeout:  duration(c.config.Timeout),
		MaxBytes: c.config.MaxBytes,
		MemoTTL:  duration(c.config.MemoTTL),
	}, c.logger.With("component", "images"))
	return nil
}

func (c *ImagesComponent) Close(ctx context.Context) error {
	return nil
}

func (c *ImagesComponent) Cache() *imagecache.Cache {
	return c.cache
}

func duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

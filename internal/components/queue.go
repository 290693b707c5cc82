package components

import (
	"context"
	"fmt"

	"evently/internal/config"
	"evently/internal/queue"
	_ "evently/internal/queue/amqp"
	_ "evently/internal/queue/redis"
)

type QueueComponent struct {
	config config.QueueConfig
	queue  queue.Queue
}

func NewQueueComponent(cfg config.QueueConfig) *QueueComponent {
	return &QueueComponent{config: cfg}
}

func (c *QueueComponent) Name() string {
	return QueueComponentName
}

func (c *QueueComponent) Dependencies() []string {
	return []string{}
}

func (c *QueueComponent) Validate() error {
	if c.config.URL == "" {
		return fmt.Errorf("queue: url is required")
	}
	return nil
}

func (c *QueueComponent) Initialize(ctx context.Context) error {
	q, err := queue.New(c.config)
	if err != nil {
		return fmt.Errorf("queue: failed to connect: %w", err)
	}
	c.queue = q
	return nil
}

func (c *QueueComponent) Close(ctx context.Context) error {
	if c.queue == nil {
		return nil
	}
	return c.queue.Close()
}

func (c *QueueComponent) Queue() queue.Queue {
	return c.queue
}

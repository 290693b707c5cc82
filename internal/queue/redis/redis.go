package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"evently/internal/config"
	"evently/internal/queue"
	"evently/internal/types"
)

func init() {
	queue.RegisterFactory("redis", New)
}

// Queue is a Redis list: producers LPUSH, consumers RPOP. RPOP is atomic so a
// job reaches at most one worker.
type Queue struct {
	client *goredis.Client
	key    string
}

var _ queue.Queue = (*Queue)(nil)

func New(cfg config.QueueConfig) (queue.Queue, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	slog.Info("Redis queue connected", "addr", opts.Addr, "key", cfg.Name)
	return NewWithClient(client, cfg.Name), nil
}

func NewWithClient(client *goredis.Client, key string) *Queue {
	if key == "" {
		key = "extraction_queue"
	}
	return &Queue{client: client, key: key}
}

func (q *Queue) Enqueue(ctx context.Context, job types.Job) error {
	data, err := queue.Encode(job)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis: failed to push job: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (types.Job, bool, error) {
	data, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return types.Job{}, false, nil
	}
	if err != nil {
		return types.Job{}, false, fmt.Errorf("redis: failed to pop job: %w", err)
	}

	job, err := queue.Decode(data)
	if err != nil {
		return types.Job{}, false, err
	}
	return job, true, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to read queue length: %w", err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Package queue carries jobs from producers to ingestion workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"evently/internal/config"
	"evently/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed is returned by Dequeue when a popped entry cannot be decoded.
// The entry is already gone from the queue.
var ErrMalformed = errors.New("malformed queue entry")

// Queue is a durable FIFO of jobs. Dequeue never blocks: an empty queue is
// ok=false with a nil error, and a transport failure is always an error.
type Queue interface {
	Enqueue(ctx context.Context, job types.Job) error
	Dequeue(ctx context.Context) (types.Job, bool, error)
	Depth(ctx context.Context) (int64, error)
	Close() error
}

var factoryFuncs = map[string]func(config.QueueConfig) (Queue, error){}

func RegisterFactory(queueType string, fn func(config.QueueConfig) (Queue, error)) {
	factoryFuncs[queueType] = fn
}

func New(cfg config.QueueConfig) (Queue, error) {
	queueType := cfg.Type
	if queueType == "" {
		queueType = "redis"
	}

	fn, exists := factoryFuncs[queueType]
	if !exists {
		return nil, fmt.Errorf("unsupported queue type: %s", queueType)
	}

	return fn(cfg)
}

func Encode(job types.Job) ([]byte, error) {
	if strings.TrimSpace(job.TargetReference) == "" {
		return nil, fmt.Errorf("job has no target reference")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (types.Job, error) {
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return types.Job{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if job.TargetReference == "" {
		return types.Job{}, fmt.Errorf("%w: missing target_reference", ErrMalformed)
	}
	return job, nil
}

// Package core runs ingestion jobs: the worker loop that drains the queue
// and the producer that fills it.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"evently/internal/metrics"
	"evently/internal/middleware"
	"evently/internal/queue"
	"evently/internal/storage"
	"evently/internal/types"
)

// ExtractorSource resolves the extractor for a source kind.
type ExtractorSource interface {
	Get(kind types.SourceKind) (types.Extractor, error)
}

type WorkerConfig struct {
	Name         string
	Queue        queue.Queue
	Tasks        storage.TaskStore
	Events       storage.EventStore
	Extractors   ExtractorSource
	Chain        *middleware.ProcessorChain
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	IdleInterval time.Duration
	JobTimeout   time.Duration
	Concurrency  int
	Backoff      BackoffConfig
}

type Worker struct {
	id           string
	name         string
	queue        queue.Queue
	tasks        storage.TaskStore
	events       storage.EventStore
	extractors   ExtractorSource
	chain        *middleware.ProcessorChain
	metrics      *metrics.Metrics
	logger       *slog.Logger
	idleInterval time.Duration
	jobTimeout   time.Duration
	concurrency  int
	backoff      BackoffConfig

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewWorker(config WorkerConfig) *Worker {
	if config.IdleInterval <= 0 {
		config.IdleInterval = 2 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Backoff == (BackoffConfig{}) {
		config.Backoff = DefaultBackoff()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Worker{
		id:           id,
		name:         config.Name,
		queue:        config.Queue,
		tasks:        config.Tasks,
		events:       config.Events,
		extractors:   config.Extractors,
		chain:        config.Chain,
		metrics:      config.Metrics,
		logger:       config.Logger.With("worker", config.Name, "worker_id", id),
		idleInterval: config.IdleInterval,
		jobTimeout:   config.JobTimeout,
		concurrency:  config.Concurrency,
		backoff:      config.Backoff,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start polls the queue until ctx is cancelled or Stop is called. It blocks
// until every poller has returned. A Stop lets in-flight jobs finish; a
// cancelled ctx fails them.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.done)
	defer w.markStopped()

	w.logger.Info("Worker started", "concurrency", w.concurrency, "idle_interval", w.idleInterval)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.poll(ctx, slot)
		}(i)
	}
	wg.Wait()

	w.logger.Info("Worker stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) poll(ctx context.Context, slot int) {
	logger := w.logger.With("slot", slot)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(slot)))
	attempt, claimAttempt := 0, 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		job, ok, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrMalformed) {
				logger.Warn("Dropping malformed queue entry", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			attempt++
			w.metrics.QueueError()
			delay := w.backoff.Delay(attempt, rng)
			logger.Warn("Queue unavailable, backing off", "error", err, "attempt", attempt, "delay", delay)
			if !w.sleep(ctx, delay) {
				return
			}
			continue
		}
		attempt = 0

		if !ok {
			if !w.sleep(ctx, w.idleInterval) {
				return
			}
			continue
		}

		_, err = w.Process(ctx, job)
		var claimErr *ClaimError
		switch {
		case err == nil:
			claimAttempt = 0
		case errors.As(err, &claimErr) && claimErr.Retryable():
			claimAttempt++
			if claimErr.TaskID != 0 {
				job.TaskID = claimErr.TaskID
			}
			if !w.requeue(ctx, logger, job, claimAttempt, rng, err) {
				return
			}
		default:
			logger.Warn("Job skipped", "error", err)
		}
	}
}

// requeue puts back a job whose task could not be claimed and backs off
// before the slot polls again.
func (w *Worker) requeue(ctx context.Context, logger *slog.Logger, job types.Job, attempt int, rng *rand.Rand, cause error) bool {
	delay := w.backoff.Delay(attempt, rng)
	logger.Warn("Could not claim task, requeueing", "task_id", job.TaskID, "error", cause, "attempt", attempt, "delay", delay)

	if err := w.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		w.metrics.QueueError()
		logger.Error("Failed to requeue job", "task_id", job.TaskID, "error", err)
	}
	return w.sleep(ctx, delay)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}
}

func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evently/internal/extractors"
	"evently/internal/queue"
	"evently/internal/storage"
	"evently/internal/types"
)

// ErrInvalidRequest marks an enqueue request that was rejected before any
// task was created.
var ErrInvalidRequest = errors.New("invalid enqueue request")

type Producer struct {
	tasks  storage.TaskStore
	queue  queue.Queue
	logger *slog.Logger
}

func NewProducer(tasks storage.TaskStore, q queue.Queue, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{tasks: tasks, queue: q, logger: logger}
}

// Enqueue records a QUEUED task and pushes its job. An empty kind is
// detected from the target. When the push fails the task is closed as
// FAILED and the push error is returned.
func (p *Producer) Enqueue(ctx context.Context, target string, kind types.SourceKind) (types.Task, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.Task{}, fmt.Errorf("%w: target reference is required", ErrInvalidRequest)
	}
	if kind == "" {
		kind = extractors.DetectKind(target)
	}
	if !kind.Known() {
		return types.Task{}, fmt.Errorf("%w: unknown source kind %q", ErrInvalidRequest, kind)
	}

	task, err := p.tasks.Create(ctx, target, kind)
	if err != nil {
		return types.Task{}, err
	}

	job := types.Job{TargetReference: target, SourceKind: kind, TaskID: task.ID}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		msg := fmt.Sprintf("enqueue failed: %v", err)
		if markErr := p.tasks.MarkFailed(context.WithoutCancel(ctx), task.ID, msg, msg); markErr != nil {
			p.logger.Error("Failed to close unqueued task", "task_id", task.ID, "error", markErr)
		}
		now := time.Now().UTC()
		task.Status = types.TaskFailed
		task.ErrorMessage = msg
		task.CompletedAt = &now
		return task, fmt.Errorf("failed to enqueue %s: %w", target, err)
	}

	p.logger.Info("Task enqueued", "task_id", task.ID, "source_kind", kind, "target", target)
	return task, nil
}

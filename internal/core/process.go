package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"evently/internal/middleware"
	"evently/internal/types"
)

const (
	msgHealthyEmpty = "Extracted 0 events: source reported no upcoming events"
)

// tally counts what happened to each payload of one job.
type tally struct {
	total      int
	saved      int
	duplicates int
	invalid    int
	errors     int
}

func (t tally) summary() string {
	msg := fmt.Sprintf("Extracted %d events: %d saved, %d skipped (duplicates), %d skipped (invalid)",
		t.total, t.saved, t.duplicates, t.invalid)
	if t.errors > 0 {
		msg += fmt.Sprintf(", %d skipped (errors)", t.errors)
	}
	return msg
}

// ClaimError is returned by Process when the job's task could not be
// created or moved to RUNNING. Nothing was extracted.
type ClaimError struct {
	TaskID int64
	Err    error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("task %d: %v", e.TaskID, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// Retryable is false when the task is gone or already past QUEUED; no later
// attempt can claim it.
func (e *ClaimError) Retryable() bool {
	return !errors.Is(e.Err, types.ErrInvalidTransition) && !errors.Is(e.Err, types.ErrNotFound)
}

// Process runs one job through the task state machine and returns the
// final status. The task always ends DONE or FAILED once it has been marked
// RUNNING; an error is returned only when the task could not be claimed.
func (w *Worker) Process(ctx context.Context, job types.Job) (status types.TaskStatus, err error) {
	started := time.Now()
	// Task bookkeeping must land even when ctx is cancelled mid-job.
	storeCtx := context.WithoutCancel(ctx)

	if job.TaskID == 0 {
		task, err := w.tasks.Create(storeCtx, job.TargetReference, job.SourceKind)
		if err != nil {
			return "", &ClaimError{Err: fmt.Errorf("failed to create task for %s: %w", job.TargetReference, err)}
		}
		job.TaskID = task.ID
	}

	logger := w.logger.With("task_id", job.TaskID, "source_kind", job.SourceKind, "target", job.TargetReference)

	if err := w.tasks.MarkRunning(storeCtx, job.TaskID, "Started processing "+job.TargetReference); err != nil {
		return "", &ClaimError{TaskID: job.TaskID, Err: err}
	}
	logger.Info("Started processing")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked", "panic", r, "stack", string(debug.Stack()))
			status = w.fail(storeCtx, logger, job.TaskID, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
		w.metrics.TaskFinished(string(status), time.Since(started))
	}()

	return w.run(ctx, storeCtx, logger, job), nil
}

func (w *Worker) run(ctx, storeCtx context.Context, logger *slog.Logger, job types.Job) types.TaskStatus {
	extractor, err := w.extractors.Get(job.SourceKind)
	if err != nil {
		return w.fail(storeCtx, logger, job.TaskID, err.Error())
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := extractor.Extract(jobCtx, job.TargetReference)
	if err != nil {
		return w.fail(storeCtx, logger, job.TaskID, err.Error())
	}

	if len(result.Events) == 0 {
		if !result.Healthy {
			return w.fail(storeCtx, logger, job.TaskID, types.ErrNoEventData.Error())
		}
		return w.finish(storeCtx, logger, job.TaskID, 0, msgHealthyEmpty)
	}

	batch, err := w.events.Begin(jobCtx)
	if err != nil {
		return w.fail(storeCtx, logger, job.TaskID, err.Error())
	}
	defer batch.Rollback()

	counts := tally{total: len(result.Events)}
	for _, raw := range result.Events {
		item := &middleware.Item{Raw: raw, Job: job, Batch: batch}
		err := w.chain.Execute(jobCtx, item)
		switch {
		case err == nil:
			counts.saved++
		case errors.Is(err, types.ErrDuplicate):
			counts.duplicates++
		case types.IsValidation(err):
			counts.invalid++
			logger.Debug("Skipping invalid event", "title", raw.Title, "error", err)
		default:
			counts.errors++
			logger.Warn("Skipping event after error", "title", raw.Title, "error", err)
		}
	}

	w.metrics.Events("stored", counts.saved)
	w.metrics.Events("duplicate", counts.duplicates)
	w.metrics.Events("invalid", counts.invalid)
	w.metrics.Events("error", counts.errors)

	if counts.invalid == counts.total {
		_ = batch.Rollback()
		return w.fail(storeCtx, logger, job.TaskID, fmt.Sprintf("all %d events failed validation", counts.total))
	}

	if err := batch.Commit(); err != nil {
		if rbErr := batch.Rollback(); rbErr != nil {
			logger.Warn("Rollback after failed commit", "error", rbErr)
		}
		return w.fail(storeCtx, logger, job.TaskID, err.Error())
	}

	return w.finish(storeCtx, logger, job.TaskID, counts.saved, counts.summary())
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, taskID int64, saved int, msg string) types.TaskStatus {
	if err := w.tasks.MarkDone(ctx, taskID, saved, msg); err != nil {
		logger.Error("Failed to mark task done", "error", err)
		return w.fail(ctx, logger, taskID, fmt.Sprintf("failed to record result: %v", err))
	}
	logger.Info(msg)
	return types.TaskDone
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, taskID int64, msg string) types.TaskStatus {
	if err := w.tasks.MarkFailed(ctx, taskID, msg, "Failed: "+msg); err != nil {
		logger.Error("Failed to mark task failed", "error", err, "reason", msg)
	}
	logger.Warn("Task failed", "error", msg)
	return types.TaskFailed
}

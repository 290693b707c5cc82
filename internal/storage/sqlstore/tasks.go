package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"evently/internal/types"
)

type taskStore struct {
	db *sql.DB
	d  Dialect
}

const taskColumns = `id, target_reference, source_kind, status, logs, error_message,
	events_extracted, created_at, updated_at, completed_at`

func logLine(now time.Time, msg string) string {
	if msg == "" {
		return ""
	}
	return fmt.Sprintf("[%s] %s\n", now.Format(time.RFC3339), msg)
}

func (s *taskStore) Create(ctx context.Context, target string, kind types.SourceKind) (types.Task, error) {
	now := time.Now().UTC()
	query := s.d.rebind(`
		INSERT INTO tasks (target_reference, source_kind, status, logs, error_message, events_extracted, created_at, updated_at)
		VALUES (?, ?, ?, '', '', 0, ?, ?)
		RETURNING id
	`)

	task := types.Task{
		TargetReference: target,
		SourceKind:      kind,
		Status:          types.TaskQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.QueryRowContext(ctx, query, target, string(kind), string(types.TaskQueued), now, now).Scan(&task.ID); err != nil {
		return types.Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

func (s *taskStore) MarkRunning(ctx context.Context, id int64, msg string) error {
	now := time.Now().UTC()
	query := s.d.rebind(`
		UPDATE tasks
		SET status = 'RUNNING', logs = logs || ?, updated_at = ?
		WHERE id = ? AND status = 'QUEUED'
	`)
	return s.transition(ctx, id, types.TaskRunning, query, logLine(now, msg), now, id)
}

func (s *taskStore) MarkDone(ctx context.Context, id int64, eventsExtracted int, msg string) error {
	now := time.Now().UTC()
	query := s.d.rebind(`
		UPDATE tasks
		SET status = 'DONE', events_extracted = ?, error_message = '', logs = logs || ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = 'RUNNING'
	`)
	return s.transition(ctx, id, types.TaskDone, query, eventsExtracted, logLine(now, msg), now, now, id)
}

func (s *taskStore) MarkFailed(ctx context.Context, id int64, errMsg string, msg string) error {
	now := time.Now().UTC()
	query := s.d.rebind(`
		UPDATE tasks
		SET status = 'FAILED', error_message = ?, logs = logs || ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN ('QUEUED', 'RUNNING')
	`)
	return s.transition(ctx, id, types.TaskFailed, query, errMsg, logLine(now, msg), now, now, id)
}

func (s *taskStore) transition(ctx context.Context, id int64, to types.TaskStatus, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark task %d %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark task %d %s: %w", id, to, err)
	}
	if rows == 1 {
		return nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %d %s -> %s: %w", id, current.Status, to, types.ErrInvalidTransition)
}

func (s *taskStore) Get(ctx context.Context, id int64) (types.Task, error) {
	query := s.d.rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, fmt.Errorf("task %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to load task %d: %w", id, err)
	}
	return task, nil
}

func (s *taskStore) List(ctx context.Context, status types.TaskStatus, limit int) ([]types.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, s.d.rebind(`SELECT `+taskColumns+` FROM tasks ORDER BY id DESC LIMIT ?`), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.d.rebind(`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY id DESC LIMIT ?`), string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// DeleteOlderThan removes closed tasks only.
func (s *taskStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	query := s.d.rebind(`DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ?`)

	slog.Debug("Deleting tasks older than cutoff", "age", age, "cutoff", cutoff.Format(time.RFC3339))
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var (
		task        types.Task
		kind        string
		status      string
		completedAt sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.TargetReference,
		&kind,
		&status,
		&task.Logs,
		&task.ErrorMessage,
		&task.EventsExtracted,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return types.Task{}, err
	}

	task.SourceKind = types.SourceKind(kind)
	task.Status = types.TaskStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return task, nil
}

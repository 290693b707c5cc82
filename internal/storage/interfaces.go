package storage

import (
	"context"
	"database/sql"
	"time"

	"evently/internal/types"
)

type StorageInterface interface {
	GetConnection() *sql.DB
	Tasks() TaskStore
	Events() EventStore
	Close(ctx context.Context) error
}

// TaskStore owns the task lifecycle. Terminal transitions set completed_at in
// the same statement that sets the status.
type TaskStore interface {
	Create(ctx context.Context, target string, kind types.SourceKind) (types.Task, error)
	MarkRunning(ctx context.Context, id int64, logLine string) error
	MarkDone(ctx context.Context, id int64, eventsExtracted int, logLine string) error
	MarkFailed(ctx context.Context, id int64, errMsg string, logLine string) error
	Get(ctx context.Context, id int64) (types.Task, error)
	List(ctx context.Context, status types.TaskStatus, limit int) ([]types.Task, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// EventBatch is one transaction worth of event writes. Insert reports
// inserted=false when the fingerprint already exists.
type EventBatch interface {
	ExistsFingerprint(ctx context.Context, fingerprint string) (bool, error)
	Insert(ctx context.Context, event *types.Event) (bool, error)
	Commit() error
	Rollback() error
}

type EventStore interface {
	Begin(ctx context.Context) (EventBatch, error)
	Get(ctx context.Context, id int64) (types.Event, error)
	ListByStatus(ctx context.Context, status types.EventStatus, limit int) ([]types.Event, error)
	MarkPublished(ctx context.Context, id int64, publishID string) error
	Count(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

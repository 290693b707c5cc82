// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/storage"
	"evently/internal/types"
)

// Run exercises a backend. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) storage.StorageInterface) {
	t.Run("TaskLifecycleDone", func(t *testing.T) { testTaskLifecycleDone(t, newStore(t)) })
	t.Run("TaskLifecycleFailed", func(t *testing.T) { testTaskLifecycleFailed(t, newStore(t)) })
	t.Run("TaskInvalidTransition", func(t *testing.T) { testTaskInvalidTransition(t, newStore(t)) })
	t.Run("TaskList", func(t *testing.T) { testTaskList(t, newStore(t)) })
	t.Run("EventInsertAndDuplicate", func(t *testing.T) { testEventInsertAndDuplicate(t, newStore(t)) })
	t.Run("EventRollback", func(t *testing.T) { testEventRollback(t, newStore(t)) })
	t.Run("EventConcurrentBatches", func(t *testing.T) { testEventConcurrentBatches(t, newStore(t)) })
	t.Run("EventPublish", func(t *testing.T) { testEventPublish(t, newStore(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, newStore(t)) })
}

func NewEvent(title, fingerprint string, start time.Time) *types.Event {
	amount := 12.5
	return &types.Event{
		Title:       title,
		Description: "desc",
		StartAt:     start,
		Venue:       "Hall",
		City:        "Dallas",
		PriceTier:   types.PricePaid,
		PriceAmount: &amount,
		SourceURL:   "https://example.com/e",
		SourceKind:  types.KindStructuredDataPage,
		Category:    "Music",
		Fingerprint: fingerprint,
		Status:      types.EventDraft,
	}
}

func testTaskLifecycleDone(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	tasks := s.Tasks()

	task, err := tasks.Create(ctx, "https://example.com/cal.ics", types.KindCalendarFeed)
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	assert.Equal(t, types.TaskQueued, task.Status)

	got, err := tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskQueued, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, tasks.MarkRunning(ctx, task.ID, "Started processing"))
	got, err = tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Contains(t, got.Logs, "Started processing")

	require.NoError(t, tasks.MarkDone(ctx, task.ID, 3, "Extracted 3 events"))
	got, err = tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskDone, got.Status)
	assert.Equal(t, 3, got.EventsExtracted)
	require.NotNil(t, got.CompletedAt)
	assert.Contains(t, got.Logs, "Started processing")
	assert.Contains(t, got.Logs, "Extracted 3 events")
}

func testTaskLifecycleFailed(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	tasks := s.Tasks()

	task, err := tasks.Create(ctx, "https://example.com/page", types.KindStructuredDataPage)
	require.NoError(t, err)

	// A task that never left the queue can still be closed.
	require.NoError(t, tasks.MarkFailed(ctx, task.ID, "enqueue failed: boom", ""))

	got, err := tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Equal(t, "enqueue failed: boom", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func testTaskInvalidTransition(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	tasks := s.Tasks()

	task, err := tasks.Create(ctx, "bulk:dallas", types.KindBulkLocationSearch)
	require.NoError(t, err)

	err = tasks.MarkDone(ctx, task.ID, 1, "")
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	require.NoError(t, tasks.MarkRunning(ctx, task.ID, ""))
	require.NoError(t, tasks.MarkFailed(ctx, task.ID, "no event data found", ""))

	err = tasks.MarkRunning(ctx, task.ID, "")
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	_, err = tasks.Get(ctx, task.ID+1000)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	err = tasks.MarkRunning(ctx, task.ID+1000, "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func testTaskList(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	tasks := s.Tasks()

	for i := 0; i < 3; i++ {
		_, err := tasks.Create(ctx, "https://example.com/feed.xml", types.KindSyndicationFeed)
		require.NoError(t, err)
	}
	first, err := tasks.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Greater(t, first[0].ID, first[2].ID)

	require.NoError(t, tasks.MarkRunning(ctx, first[0].ID, ""))
	running, err := tasks.List(ctx, types.TaskRunning, 10)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, first[0].ID, running[0].ID)
}

func testEventInsertAndDuplicate(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	batch, err := s.Events().Begin(ctx)
	require.NoError(t, err)

	ev := NewEvent("Spring Fair", "fp-1", start)
	inserted, err := batch.Insert(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, ev.ID)

	exists, err := batch.ExistsFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, exists)

	inserted, err = batch.Insert(ctx, NewEvent("Spring Fair again", "fp-1", start))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = batch.Insert(ctx, NewEvent("Other", "fp-2", start))
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, batch.Commit())

	count, err := s.Events().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := s.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring Fair", stored.Title)
	assert.True(t, start.Equal(stored.StartAt))
	assert.Equal(t, types.EventDraft, stored.Status)
	assert.Equal(t, types.PricePaid, stored.PriceTier)
	require.NotNil(t, stored.PriceAmount)
	assert.InDelta(t, 12.5, *stored.PriceAmount, 0.001)
	assert.Nil(t, stored.EndAt)
}

func testEventRollback(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()

	batch, err := s.Events().Begin(ctx)
	require.NoError(t, err)
	_, err = batch.Insert(ctx, NewEvent("Gone", "fp-rb", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, batch.Rollback())
	require.NoError(t, batch.Rollback())

	count, err := s.Events().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testEventConcurrentBatches(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	const workers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := s.Events().Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			ok, err := batch.Insert(ctx, NewEvent("Race", "fp-race", start))
			if !assert.NoError(t, err) {
				_ = batch.Rollback()
				return
			}
			if !assert.NoError(t, batch.Commit()) {
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	count, err := s.Events().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testEventPublish(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()

	batch, err := s.Events().Begin(ctx)
	require.NoError(t, err)
	ev := NewEvent("Draft", "fp-pub", time.Now().Add(48*time.Hour))
	_, err = batch.Insert(ctx, ev)
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	drafts, err := s.Events().ListByStatus(ctx, types.EventDraft, 10)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	require.NoError(t, s.Events().MarkPublished(ctx, ev.ID, "cms-42"))
	got, err := s.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EventPublished, got.Status)
	assert.Equal(t, "cms-42", got.PublishID)

	err = s.Events().MarkPublished(ctx, ev.ID, "cms-43")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func testPrune(t *testing.T, s storage.StorageInterface) {
	ctx := context.Background()

	batch, err := s.Events().Begin(ctx)
	require.NoError(t, err)
	_, err = batch.Insert(ctx, NewEvent("Old", "fp-old", time.Now().Add(-90*24*time.Hour)))
	require.NoError(t, err)
	_, err = batch.Insert(ctx, NewEvent("New", "fp-new", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	deleted, err := s.Events().DeleteOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	task, err := s.Tasks().Create(ctx, "https://example.com", types.KindStructuredDataPage)
	require.NoError(t, err)
	// Open tasks are never pruned.
	deleted, err = s.Tasks().DeleteOlderThan(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	require.NoError(t, s.Tasks().MarkFailed(ctx, task.ID, "x", ""))
	deleted, err = s.Tasks().DeleteOlderThan(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

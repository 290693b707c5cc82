package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/config"
	"evently/internal/queue"
	"evently/internal/types"
)

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	q := NewWithClient(client, "extraction_queue")
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestFIFOOrder(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	for i, target := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, types.Job{TargetReference: target, SourceKind: types.KindCalendarFeed, TaskID: int64(i + 1)}))
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)

	for _, want := range []string{"a", "b", "c"} {
		job, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, job.TargetReference)
	}

	_, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWireCompatibleWithListProducers(t *testing.T) {
	q, mr := newQueue(t)

	_, err := mr.Lpush("extraction_queue", `{"target_reference":"https://x.test/cal.ics","source_kind":"calendar-feed","enqueued_task_id":9}`)
	require.NoError(t, err)

	job, ok, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Job{TargetReference: "https://x.test/cal.ics", SourceKind: types.KindCalendarFeed, TaskID: 9}, job)
}

func TestMalformedEntryIsConsumed(t *testing.T) {
	q, mr := newQueue(t)

	_, err := mr.Lpush("extraction_queue", "garbage")
	require.NoError(t, err)

	_, ok, err := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, queue.ErrMalformed))

	_, ok, err = q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAtMostOneConsumerPerJob(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	const jobs = 50
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, types.Job{TargetReference: "t", TaskID: int64(i)}))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok, err := q.Dequeue(ctx)
				if err != nil || !ok {
					return
				}
				mu.Lock()
				seen[job.TaskID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %d", id)
	}
}

func TestUnavailableIsAnError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	q := NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}), "")
	defer q.Close()
	mr.Close()

	_, ok, err := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Error(t, q.Enqueue(context.Background(), types.Job{TargetReference: "t"}))
}

func TestNewFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	q, err := New(config.QueueConfig{URL: "redis://" + mr.Addr() + "/0", Name: "jobs"})
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), types.Job{TargetReference: "t"}))
	assert.True(t, mr.Exists("jobs"))

	_, err = New(config.QueueConfig{URL: "::not a url"})
	assert.Error(t, err)
}

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/types"
)

type refusingQueue struct {
	flakyQueue
}

func (*refusingQueue) Enqueue(ctx context.Context, job types.Job) error {
	return errors.New("READONLY replica")
}

func TestProducerEnqueue(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	q := &flakyQueue{}
	p := NewProducer(store.Tasks(), q, discard)

	cases := map[string]types.SourceKind{
		"bulk:Austin, TX":                         types.KindBulkLocationSearch,
		"script:civic-hall":                       types.KindVenueScript,
		"https://www.eventbrite.com/e/gala-12345": types.KindVendorAPI,
		"https://cal.example.com/city.ics":        types.KindCalendarFeed,
		"https://news.example.com/rss":            types.KindSyndicationFeed,
		"https://venue.example.com/whats-on":      types.KindStructuredDataPage,
	}
	for target, want := range cases {
		task, err := p.Enqueue(ctx, "  "+target+" ", "")
		require.NoError(t, err, target)
		assert.Equal(t, want, task.SourceKind, target)
		assert.Equal(t, types.TaskQueued, task.Status)
		assert.Equal(t, target, task.TargetReference)
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(cases)), depth)

	job, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, job.TaskID)
}

func TestProducerRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewProducer(store.Tasks(), &flakyQueue{}, discard)

	_, err := p.Enqueue(ctx, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = p.Enqueue(ctx, "https://x.example.com", "carrier-pigeon")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tasks, err := store.Tasks().List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestProducerClosesTaskWhenPushFails(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewProducer(store.Tasks(), &refusingQueue{}, discard)

	task, err := p.Enqueue(ctx, "https://cal.example.com/city.ics", types.KindCalendarFeed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY replica")
	assert.Equal(t, types.TaskFailed, task.Status)

	got, err := store.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Equal(t, "enqueue failed: READONLY replica", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

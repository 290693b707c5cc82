package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/dedup"
	"evently/internal/extractors"
	"evently/internal/fetch"
	"evently/internal/imagecache"
	"evently/internal/middleware"
	"evently/internal/normalize"
	"evently/internal/storage"
	"evently/internal/storage/sqlite"
	"evently/internal/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeExtractor struct {
	kind   types.SourceKind
	result types.ExtractResult
	err    error
	calls  int
	fn     func(ctx context.Context) (types.ExtractResult, error)
}

func (f *fakeExtractor) Kind() types.SourceKind { return f.kind }

func (f *fakeExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(ctx)
	}
	return f.result, f.err
}

func newStore(t *testing.T) storage.StorageInterface {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "evently.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newChain(t *testing.T, images *imagecache.Cache) *middleware.ProcessorChain {
	t.Helper()
	n, err := normalize.New()
	require.NoError(t, err)
	return middleware.Default(n, images, discard)
}

type harness struct {
	store  storage.StorageInterface
	worker *Worker
}

func newHarness(t *testing.T, events storage.EventStore, exts ...types.Extractor) *harness {
	t.Helper()
	store := newStore(t)
	if events == nil {
		events = store.Events()
	}
	return &harness{
		store: store,
		worker: NewWorker(WorkerConfig{
			Name:       "test",
			Tasks:      store.Tasks(),
			Events:     events,
			Extractors: extractors.NewRegistry(exts...),
			Chain:      newChain(t, nil),
			Logger:     discard,
			JobTimeout: 5 * time.Second,
		}),
	}
}

// run creates a task for target and processes its job.
func (h *harness) run(t *testing.T, target string, kind types.SourceKind) types.Task {
	t.Helper()
	ctx := context.Background()
	task, err := h.store.Tasks().Create(ctx, target, kind)
	require.NoError(t, err)

	status, err := h.worker.Process(ctx, types.Job{TargetReference: target, SourceKind: kind, TaskID: task.ID})
	require.NoError(t, err)

	got, err := h.store.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, status, got.Status)
	assert.NotNil(t, got.CompletedAt, "terminal task must carry completed_at")
	return got
}

func springFair() types.RawEvent {
	return types.RawEvent{
		Title:     "Spring Fair",
		StartText: "2026-04-18T10:00:00Z",
		Venue:     "Town Square",
		PriceText: "Free",
		SourceURL: "/events/spring-fair",
	}
}

const venuePage = "https://venue.example.com/events"

func TestProcessSpringFair(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found([]types.RawEvent{springFair()})}
	h := newHarness(t, nil, ext)

	task := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, 1, task.EventsExtracted)
	assert.Contains(t, task.Logs, "Started processing "+venuePage)
	assert.Contains(t, task.Logs, "Extracted 1 events: 1 saved, 0 skipped (duplicates), 0 skipped (invalid)")
	assert.NotContains(t, task.Logs, "skipped (errors)")

	events, err := h.store.Events().ListByStatus(context.Background(), types.EventDraft, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "Spring Fair", ev.Title)
	assert.Equal(t, types.PriceFree, ev.PriceTier)
	assert.Nil(t, ev.PriceAmount)
	assert.Equal(t, "https://venue.example.com/events/spring-fair", ev.SourceURL)
	assert.True(t, time.Date(2026, 4, 18, 10, 0, 0, 0, time.UTC).Equal(ev.StartAt))

	// Same target again: nothing new is written.
	again := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskDone, again.Status)
	assert.Equal(t, 0, again.EventsExtracted)
	assert.Contains(t, again.Logs, "Extracted 1 events: 0 saved, 1 skipped (duplicates), 0 skipped (invalid)")

	count, err := h.store.Events().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessCalendarFeedSpringFair(t *testing.T) {
	const target = "https://example.org/events"
	start := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	ext := &fakeExtractor{kind: types.KindCalendarFeed, result: types.Found([]types.RawEvent{{
		Title: "Spring Fair",
		Start: &start,
	}})}
	h := newHarness(t, nil, ext)

	task := h.run(t, target, types.KindCalendarFeed)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, 1, task.EventsExtracted)
	assert.Contains(t, task.Logs, "Started processing "+target)

	events, err := h.store.Events().ListByStatus(context.Background(), types.EventDraft, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.EventDraft, ev.Status)
	assert.Equal(t, types.PriceFree, ev.PriceTier)
	assert.Empty(t, ev.ImageURL)
	assert.True(t, start.Equal(ev.StartAt))
	assert.Equal(t, dedup.Fingerprint("Spring Fair", start, target), ev.Fingerprint)

	again := h.run(t, target, types.KindCalendarFeed)
	assert.Equal(t, types.TaskDone, again.Status)
	assert.Equal(t, 0, again.EventsExtracted)
	assert.Contains(t, again.Logs, "1 skipped (duplicates)")

	count, err := h.store.Events().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessSameEventFromAnotherTarget(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found([]types.RawEvent{springFair()})}
	h := newHarness(t, nil, ext)

	h.run(t, venuePage, types.KindStructuredDataPage)
	other := h.run(t, "https://mirror.example.org/events", types.KindStructuredDataPage)
	assert.Equal(t, 1, other.EventsExtracted)
}

func TestProcessPartialFailure(t *testing.T) {
	noStart := types.RawEvent{Title: "Mystery Night"}
	noTitle := types.RawEvent{Title: "<p> </p>", StartText: "2026-05-01 20:00"}
	ext := &fakeExtractor{kind: types.KindCalendarFeed, result: types.Found([]types.RawEvent{
		springFair(), noStart, springFair(), noTitle,
	})}
	h := newHarness(t, nil, ext)

	task := h.run(t, "https://cal.example.com/cal.ics", types.KindCalendarFeed)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, 1, task.EventsExtracted)
	assert.Contains(t, task.Logs, "Extracted 4 events: 1 saved, 1 skipped (duplicates), 2 skipped (invalid)")
}

func TestProcessAllInvalid(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindSyndicationFeed, result: types.Found([]types.RawEvent{
		{Title: "No date"}, {StartText: "tomorrow-ish"},
	})}
	h := newHarness(t, nil, ext)

	task := h.run(t, "https://blog.example.com/feed.xml", types.KindSyndicationFeed)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "all 2 events failed validation", task.ErrorMessage)

	count, err := h.store.Events().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessNoExtractor(t *testing.T) {
	h := newHarness(t, nil)

	task := h.run(t, "script:hall", types.KindVenueScript)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "no matching extractor for source kind venue-script", task.ErrorMessage)
}

func TestProcessExtractionError(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindVendorAPI, err: errors.New("ticketmaster: status 503")}
	h := newHarness(t, nil, ext)

	task := h.run(t, "ticketmaster:Dallas", types.KindVendorAPI)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "ticketmaster: status 503", task.ErrorMessage)
	assert.Equal(t, 1, ext.calls)
}

func TestProcessEmptyResults(t *testing.T) {
	healthy := &fakeExtractor{kind: types.KindCalendarFeed, result: types.Empty()}
	unhealthy := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found(nil)}
	h := newHarness(t, nil, healthy, unhealthy)

	task := h.run(t, "https://cal.example.com/empty.ics", types.KindCalendarFeed)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, 0, task.EventsExtracted)
	assert.Contains(t, task.Logs, "Extracted 0 events: source reported no upcoming events")

	task = h.run(t, "https://venue.example.com/about", types.KindStructuredDataPage)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "no event data found", task.ErrorMessage)
}

func TestProcessPanicClosesTask(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindVenueScript, fn: func(ctx context.Context) (types.ExtractResult, error) {
		panic("nil table")
	}}
	h := newHarness(t, nil, ext)

	task := h.run(t, "script:hall", types.KindVenueScript)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "internal error: nil table", task.ErrorMessage)
}

func TestProcessCancelledContext(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, fn: func(ctx context.Context) (types.ExtractResult, error) {
		<-ctx.Done()
		return types.ExtractResult{}, ctx.Err()
	}}
	h := newHarness(t, nil, ext)
	h.worker.jobTimeout = 20 * time.Millisecond

	task := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), task.ErrorMessage)
}

type failingCommit struct {
	storage.EventStore
}

func (f failingCommit) Begin(ctx context.Context) (storage.EventBatch, error) {
	b, err := f.EventStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return commitErrBatch{b}, nil
}

type commitErrBatch struct {
	storage.EventBatch
}

func (b commitErrBatch) Commit() error {
	return errors.New("database is locked")
}

func TestProcessCommitFailure(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found([]types.RawEvent{springFair()})}
	store := newStore(t)
	h := newHarness(t, failingCommit{store.Events()}, ext)
	// Reads go to the same database the failing batches write to.
	h.store = store
	h.worker.tasks = store.Tasks()

	task := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, "database is locked", task.ErrorMessage)

	count, err := store.Events().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessCreatesMissingTask(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindCalendarFeed, result: types.Empty()}
	h := newHarness(t, nil, ext)
	ctx := context.Background()

	status, err := h.worker.Process(ctx, types.Job{TargetReference: "https://cal.example.com/a.ics", SourceKind: types.KindCalendarFeed})
	require.NoError(t, err)
	assert.Equal(t, types.TaskDone, status)

	tasks, err := h.store.Tasks().List(ctx, types.TaskDone, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "https://cal.example.com/a.ics", tasks[0].TargetReference)
}

func TestProcessRefusesFinishedTask(t *testing.T) {
	ext := &fakeExtractor{kind: types.KindCalendarFeed, result: types.Empty()}
	h := newHarness(t, nil, ext)

	task := h.run(t, "https://cal.example.com/a.ics", types.KindCalendarFeed)
	_, err := h.worker.Process(context.Background(), types.Job{TargetReference: task.TargetReference, SourceKind: task.SourceKind, TaskID: task.ID})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, 1, ext.calls)
}

type brokenStore struct{}

func (brokenStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("bucket unreachable")
}

func (brokenStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	return errors.New("bucket unreachable")
}

func (brokenStore) URL(key string) string { return "https://cdn.example.net/" + key }
func (brokenStore) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, "https://cdn.example.net/")
}

func TestProcessKeepsOriginalImageOnCacheFailure(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer img.Close()

	raw := springFair()
	raw.ImageURL = img.URL + "/poster.png"
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found([]types.RawEvent{raw})}
	h := newHarness(t, nil, ext)

	client := fetch.NewClient(fetch.Options{Timeout: time.Second})
	h.worker.chain = newChain(t, imagecache.New(brokenStore{}, client, imagecache.Options{}, discard))

	task := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskDone, task.Status)

	events, err := h.store.Events().ListByStatus(context.Background(), types.EventDraft, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, raw.ImageURL, events[0].ImageURL)
}

// stalledStore never answers until the caller gives up.
type stalledStore struct{ brokenStore }

func (stalledStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (stalledStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProcessStalledImageStoreKeepsTask(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer img.Close()

	raw := springFair()
	raw.ImageURL = img.URL + "/poster.png"
	ext := &fakeExtractor{kind: types.KindStructuredDataPage, result: types.Found([]types.RawEvent{raw})}
	h := newHarness(t, nil, ext)
	h.worker.jobTimeout = 2 * time.Second

	client := fetch.NewClient(fetch.Options{Timeout: time.Second})
	images := imagecache.New(stalledStore{}, client, imagecache.Options{Timeout: 100 * time.Millisecond}, discard)
	h.worker.chain = newChain(t, images)

	task := h.run(t, venuePage, types.KindStructuredDataPage)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, 1, task.EventsExtracted)

	events, err := h.store.Events().ListByStatus(context.Background(), types.EventDraft, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, raw.ImageURL, events[0].ImageURL)
}

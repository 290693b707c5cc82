package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/core"
	"evently/internal/metrics"
	"evently/internal/storage"
	"evently/internal/storage/sqlite"
	"evently/internal/storage/storagetest"
	"evently/internal/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memQueue struct {
	mu   sync.Mutex
	jobs []types.Job
	err  error
}

func (q *memQueue) Enqueue(ctx context.Context, job types.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (types.Job, bool, error) {
	return types.Job{}, false, nil
}

func (q *memQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), q.err
}

func (q *memQueue) Close() error { return nil }

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, event types.Event) (string, error) {
	return "cms-" + event.Title, nil
}

func newTestServer(t *testing.T, q *memQueue) (*httptest.Server, storage.StorageInterface) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "evently.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	s := New(Config{}, Deps{
		Producer:  core.NewProducer(store.Tasks(), q, discard),
		Store:     store,
		Queue:     q,
		Metrics:   metrics.New(),
		Publisher: stubPublisher{},
		Logger:    discard,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCreateAndGetTasks(t *testing.T) {
	q := &memQueue{}
	srv, _ := newTestServer(t, q)

	status, out := do(t, http.MethodPost, srv.URL+"/tasks",
		`{"urls":["https://cal.example.com/city.ics","bulk:Dallas, TX"," "]}`)
	assert.Equal(t, http.StatusAccepted, status)
	tasks := out["tasks"].([]interface{})
	require.Len(t, tasks, 2)
	assert.Len(t, out["errors"], 1)
	assert.Len(t, q.jobs, 2)

	first := tasks[0].(map[string]interface{})
	assert.Equal(t, "calendar-feed", first["source_kind"])
	assert.Equal(t, "QUEUED", first["status"])
	assert.Equal(t, "bulk-location-search", tasks[1].(map[string]interface{})["source_kind"])

	id := int64(first["id"].(float64))
	status, got := do(t, http.MethodGet, srv.URL+"/tasks/"+itoa(id), "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://cal.example.com/city.ics", got["target_reference"])
	assert.NotContains(t, got, "completed_at")

	status, _ = do(t, http.MethodGet, srv.URL+"/tasks/9999", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, http.MethodGet, srv.URL+"/tasks/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, list := do(t, http.MethodGet, srv.URL+"/tasks?status=queued&limit=1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, list["tasks"], 1)

	status, _ = do(t, http.MethodGet, srv.URL+"/tasks?status=PAUSED", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateTasksValidation(t *testing.T) {
	srv, _ := newTestServer(t, &memQueue{})

	for name, body := range map[string]string{
		"not json":     `{urls`,
		"no urls":      `{"urls":[]}`,
		"unknown kind": `{"urls":["https://x.example.com"],"source_kind":"fax"}`,
		"all blank":    `{"urls":["", "  "]}`,
	} {
		status, out := do(t, http.MethodPost, srv.URL+"/tasks", body)
		assert.Equal(t, http.StatusBadRequest, status, name)
		assert.NotNil(t, out, name)
	}
}

func TestCreateTasksQueueDown(t *testing.T) {
	q := &memQueue{err: errors.New("connection refused")}
	srv, store := newTestServer(t, q)

	status, out := do(t, http.MethodPost, srv.URL+"/tasks", `{"urls":["https://venue.example.com/"],"source_kind":"structured-data-page"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.Len(t, out["tasks"], 1)

	failed, err := store.Tasks().List(context.Background(), types.TaskFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "enqueue failed: connection refused", failed[0].ErrorMessage)

	status, health := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", health["status"])
}

func TestEventsAndPublish(t *testing.T) {
	srv, store := newTestServer(t, &memQueue{})
	ctx := context.Background()

	batch, err := store.Events().Begin(ctx)
	require.NoError(t, err)
	ev := storagetest.NewEvent("Gala", "fp-gala", time.Now().Add(24*time.Hour))
	_, err = batch.Insert(ctx, ev)
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	status, out := do(t, http.MethodGet, srv.URL+"/events", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, out["events"], 1)

	status, out = do(t, http.MethodPost, srv.URL+"/events/"+itoa(ev.ID)+"/publish", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PUBLISHED", out["status"])
	assert.Equal(t, "cms-Gala", out["publish_id"])

	status, _ = do(t, http.MethodPost, srv.URL+"/events/"+itoa(ev.ID)+"/publish", "")
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/events/4242/publish", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &memQueue{})

	status, out := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 0.0, out["queue_depth"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "evently_task_duration_seconds")
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

package imagecache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evently/internal/fetch"
)

const storeBase = "https://cdn.test/storage/v1/object/public/event-images"

type memStore struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
	heads   int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]string)}
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads++
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	if _, err := io.ReadAll(body); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = contentType
	return nil
}

func (m *memStore) URL(key string) string { return storeBase + "/" + key }

func (m *memStore) Owns(rawURL string) bool { return strings.HasPrefix(rawURL, storeBase+"/") }

func imageServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/poster.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG fake"))
		case "/plain":
			_, _ = w.Write([]byte("bytes"))
		case "/huge.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestCache(store ObjectStore) *Cache {
	client := fetch.NewClient(fetch.Options{Timeout: time.Second, RetryMax: 0})
	return New(store, client, Options{Prefix: "bulk-events", MaxBytes: 1024}, nil)
}

func TestKey(t *testing.T) {
	key := Key("bulk-events", "https://img.test/a/poster.PNG?w=200")
	assert.True(t, strings.HasPrefix(key, "bulk-events/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(key, "bulk-events/"), ".png"), 16)

	assert.True(t, strings.HasSuffix(Key("bulk-events/", "https://img.test/photo"), ".jpg"))
	assert.True(t, strings.HasSuffix(Key("p", "https://img.test/doc.pdf"), ".jpg"))
	assert.Equal(t, Key("p", "https://img.test/x.webp"), Key("p", "https://img.test/x.webp"))
	assert.NotEqual(t, Key("p", "https://img.test/x.webp"), Key("p", "https://img.test/y.webp"))
}

func TestRehostUploadsAndMemoizes(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)
	store := newMemStore()
	c := newTestCache(store)

	src := srv.URL + "/poster.png"
	got := c.Rehost(context.Background(), src)

	key := Key("bulk-events", src)
	assert.Equal(t, storeBase+"/"+key, got)
	assert.Equal(t, "image/png", store.objects[key])

	// Second call is served from the memo without touching the network or store.
	again := c.Rehost(context.Background(), src)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, store.heads)
}

func TestRehostReusesStoredObject(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)
	store := newMemStore()
	src := srv.URL + "/poster.png"
	store.objects[Key("bulk-events", src)] = "image/png"

	got := newTestCache(store).Rehost(context.Background(), src)
	assert.Equal(t, storeBase+"/"+Key("bulk-events", src), got)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestRehostDefaultContentType(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)
	store := newMemStore()

	src := srv.URL + "/plain"
	newTestCache(store).Rehost(context.Background(), src)
	ct := store.objects[Key("bulk-events", src)]
	// Go's server sniffs a text type for bare bytes; anything sent is kept.
	assert.NotEmpty(t, ct)
}

func TestRehostFallsBackToOriginal(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)

	tests := []struct {
		name  string
		url   string
		store *memStore
	}{
		{"not found", srv.URL + "/missing.jpg", newMemStore()},
		{"too large", srv.URL + "/huge.jpg", newMemStore()},
		{"upload error", srv.URL + "/poster.png", &memStore{objects: map[string]string{}, putErr: errors.New("denied")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestCache(tt.store).Rehost(context.Background(), tt.url)
			assert.Equal(t, tt.url, got)
			assert.Empty(t, tt.store.objects)
		})
	}
}

func TestRehostPassThrough(t *testing.T) {
	c := newTestCache(newMemStore())
	assert.Equal(t, "", c.Rehost(context.Background(), ""))

	internal := storeBase + "/bulk-events/abc.jpg"
	assert.Equal(t, internal, c.Rehost(context.Background(), internal))

	disabled := New(nil, nil, Options{}, nil)
	assert.False(t, disabled.Enabled())
	assert.Equal(t, "https://img.test/a.jpg", disabled.Rehost(context.Background(), "https://img.test/a.jpg"))
}

// stalledStore blocks every call until its context ends.
type stalledStore struct {
	memStore
	stallExists bool
}

func (s *stalledStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.stallExists {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return false, nil
}

func (s *stalledStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRehostStalledStoreRespectsTimeout(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)
	client := fetch.NewClient(fetch.Options{Timeout: time.Second, RetryMax: 0})

	for _, stallExists := range []bool{false, true} {
		c := New(&stalledStore{stallExists: stallExists}, client, Options{Timeout: 100 * time.Millisecond}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		src := srv.URL + "/poster.png"
		started := time.Now()
		got := c.Rehost(ctx, src)
		cancel()

		assert.Equal(t, src, got)
		assert.Less(t, time.Since(started), 2*time.Second)
	}
}

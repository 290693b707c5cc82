// Package imagecache re-hosts external event images in the object store so
// published events never hotlink a third-party site.
package imagecache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/cache"
	"evently/internal/fetch"
	"evently/internal/utils/hash"
)

const defaultContentType = "image/jpeg"

type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	URL(key string) string
	// Owns reports whether rawURL already points into the store.
	Owns(rawURL string) bool
}

type Options struct {
	Prefix   string
	Timeout  time.Duration
	MaxBytes int64
	MemoTTL  time.Duration
}

type Cache struct {
	store  ObjectStore
	client *retryablehttp.Client
	memo   *cache.Memo[string]
	opts   Options
	logger *slog.Logger
}

// New returns a cache backed by store. A nil store gives a pass-through
// cache that hands every URL back unchanged.
func New(store ObjectStore, client *retryablehttp.Client, opts Options, logger *slog.Logger) *Cache {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.Prefix == "" {
		opts.Prefix = "bulk-events"
	}
	if client == nil {
		client = fetch.NewClient(fetch.Options{Timeout: opts.Timeout})
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		store:  store,
		client: client,
		memo:   cache.New[string](opts.MemoTTL),
		opts:   opts,
		logger: logger.With("component", "imagecache"),
	}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Rehost returns the internal URL for externalURL, uploading it first if
// needed. It never fails: on any error the original URL is returned.
func (c *Cache) Rehost(ctx context.Context, externalURL string) string {
	externalURL = strings.TrimSpace(externalURL)
	if externalURL == "" || !c.Enabled() {
		return externalURL
	}
	if c.store.Owns(externalURL) {
		return externalURL
	}

	internal, err := c.memo.GetOrLoad(externalURL, func() (string, error) {
		return c.rehost(ctx, externalURL)
	})
	if err != nil {
		c.logger.Warn("Image caching failed, keeping original URL", "url", externalURL, "error", err)
		return externalURL
	}
	return internal
}

func (c *Cache) rehost(ctx context.Context, externalURL string) (string, error) {
	key := Key(c.opts.Prefix, externalURL)

	// One budget covers the lookup, the download and the upload.
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		c.logger.Debug("Image already cached", "key", key)
		return c.store.URL(key), nil
	}

	body, header, err := fetch.Get(ctx, c.client, externalURL, map[string]string{"Accept": "image/*"}, c.opts.MaxBytes)
	if err != nil {
		return "", err
	}

	contentType := defaultContentType
	if mt, _, err := mime.ParseMediaType(header.Get("Content-Type")); err == nil && mt != "" {
		contentType = mt
	}

	if err := c.store.Put(ctx, key, bytes.NewReader(body), contentType); err != nil {
		return "", err
	}

	c.logger.Debug("Image cached", "url", externalURL, "key", key, "bytes", len(body))
	return c.store.URL(key), nil
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// Key is the object key for an external URL: the prefix, the first 16 hex
// chars of the URL's sha256 and the URL's image extension (".jpg" if none).
func Key(prefix, externalURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(externalURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); imageExts[e] {
			ext = e
		}
	}
	return strings.TrimRight(prefix, "/") + "/" + hash.NewHash([]byte(externalURL)).Short(16) + ext
}

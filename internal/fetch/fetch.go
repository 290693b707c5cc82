// Package fetch is the outbound HTTP client shared by extractors and the
// image cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const UserAgent = "Mozilla/5.0 (compatible; evently/1.0; +https://github.com/evently)"

type Options struct {
	Timeout  time.Duration
	RetryMax int
	Logger   *slog.Logger
}

// NewClient builds a client that retries connection errors and 5xx
// responses with backoff.
func NewClient(opts Options) *retryablehttp.Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = opts.Timeout
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = slogAdapter{opts.Logger}
	}
	return client
}

// slogAdapter satisfies retryablehttp.LeveledLogger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Error(msg string, kv ...interface{}) { a.logger.Error(msg, kv...) }
func (a slogAdapter) Info(msg string, kv ...interface{})  { a.logger.Debug(msg, kv...) }
func (a slogAdapter) Debug(msg string, kv ...interface{}) { a.logger.Debug(msg, kv...) }
func (a slogAdapter) Warn(msg string, kv ...interface{})  { a.logger.Warn(msg, kv...) }

type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

// Get fetches url and returns at most maxBytes of the body. A non-2xx
// response is a *StatusError.
func Get(ctx context.Context, client *retryablehttp.Client, url string, headers map[string]string, maxBytes int64) ([]byte, http.Header, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.Header, &StatusError{URL: url, Status: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("GET %s: failed to read body: %w", url, err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, resp.Header, fmt.Errorf("GET %s: body exceeds %d bytes", url, maxBytes)
	}

	return body, resp.Header, nil
}

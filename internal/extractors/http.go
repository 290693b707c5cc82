package extractors

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/fetch"
)

const (
	pageTimeout  = 30 * time.Second
	maxPageBytes = 8 << 20
)

// getPage fetches a document with the page timeout applied.
func getPage(ctx context.Context, client *retryablehttp.Client, target string, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	headers := map[string]string{}
	if accept != "" {
		headers["Accept"] = accept
	}
	body, _, err := fetch.Get(ctx, client, target, headers, maxPageBytes)
	return body, err
}

// httpTarget rewrites webcal:// references to https://.
func httpTarget(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(strings.ToLower(target), "webcal://") {
		return "https://" + target[len("webcal://"):]
	}
	return target
}

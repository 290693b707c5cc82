package extractors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"evently/internal/types"
	"evently/internal/utils"
)

// FeedExtractor reads RSS, Atom and JSON feeds. Items carrying the RSS
// event module (ev:startdate) use that date; everything else falls back to
// the publish date.
type FeedExtractor struct {
	client   *retryablehttp.Client
	maxItems int
	logger   *slog.Logger
}

func NewFeedExtractor(client *retryablehttp.Client, maxItems int, logger *slog.Logger) *FeedExtractor {
	if maxItems <= 0 {
		maxItems = 200
	}
	return &FeedExtractor{client: client, maxItems: maxItems, logger: logger}
}

func (f *FeedExtractor) Kind() types.SourceKind { return types.KindSyndicationFeed }

func (f *FeedExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	body, err := getPage(ctx, f.client, target, "application/rss+xml, application/atom+xml, application/xml, */*;q=0.5")
	if err != nil {
		return types.ExtractResult{}, err
	}

	events, err := ParseFeed(body, target, f.maxItems)
	if err != nil {
		return types.ExtractResult{}, err
	}

	f.logger.Debug("Feed parsed", "target", target, "events", len(events))
	if len(events) == 0 {
		return types.Empty(), nil
	}
	return types.Found(events), nil
}

func ParseFeed(data []byte, baseURL string, maxItems int) ([]types.RawEvent, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	if feed.Link != "" {
		baseURL = feed.Link
	}

	limit := len(feed.Items)
	if maxItems > 0 && limit > maxItems {
		limit = maxItems
	}

	events := make([]types.RawEvent, 0, limit)
	for _, item := range feed.Items[:limit] {
		events = append(events, feedItemToRaw(item, baseURL))
	}
	return events, nil
}

func feedItemToRaw(item *gofeed.Item, baseURL string) types.RawEvent {
	raw := types.RawEvent{
		Title:       item.Title,
		Description: utils.FirstNonEmpty(item.Description, item.Content),
		SourceURL:   item.Link,
		BaseURL:     baseURL,
	}

	if start := eventExt(item.Extensions, "startdate"); start != "" {
		raw.StartText = start
		raw.EndText = eventExt(item.Extensions, "enddate")
	} else if item.PublishedParsed != nil {
		raw.Start = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.Start = item.UpdatedParsed
	} else {
		raw.StartText = item.Published
	}

	raw.Venue = eventExt(item.Extensions, "location")

	if item.Image != nil && item.Image.URL != "" {
		raw.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				raw.ImageURL = enc.URL
				break
			}
		}
	}

	if len(item.Categories) > 0 {
		raw.Category = item.Categories[0]
	}

	return raw
}

// eventExt reads a field of the RSS event module (xmlns:ev).
func eventExt(exts ext.Extensions, name string) string {
	fields, ok := exts["ev"]
	if !ok {
		return ""
	}
	values := fields[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

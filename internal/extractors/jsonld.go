package extractors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"

	"evently/internal/types"
	"evently/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PageExtractor reads schema.org Event objects embedded as JSON-LD and
// falls back to Open Graph metadata for pages without them.
type PageExtractor struct {
	client *retryablehttp.Client
	logger *slog.Logger
}

func NewPageExtractor(client *retryablehttp.Client, logger *slog.Logger) *PageExtractor {
	return &PageExtractor{client: client, logger: logger}
}

func (p *PageExtractor) Kind() types.SourceKind { return types.KindStructuredDataPage }

func (p *PageExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	body, err := getPage(ctx, p.client, target, "text/html,application/xhtml+xml")
	if err != nil {
		return types.ExtractResult{}, err
	}

	events, err := ParsePage(body, target, p.logger)
	if err != nil {
		return types.ExtractResult{}, err
	}
	return types.Found(events), nil
}

// ParsePage returns the JSON-LD events of an HTML document, or a single
// Open Graph event when the page has a title and a recognisable date.
func ParsePage(data []byte, pageURL string, logger *slog.Logger) ([]types.RawEvent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var events []types.RawEvent
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		var payload interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			if logger != nil {
				logger.Debug("Skipping malformed JSON-LD block", "url", pageURL, "index", i, "error", err)
			}
			return
		}
		for _, node := range eventNodes(payload) {
			events = append(events, jsonLDToRaw(node, pageURL))
		}
	})

	if len(events) > 0 {
		return events, nil
	}

	if ev, ok := openGraphEvent(doc, pageURL); ok {
		return []types.RawEvent{ev}, nil
	}
	return nil, nil
}

// eventNodes walks arrays and @graph containers collecting objects whose
// @type is Event or a subtype such as MusicEvent.
func eventNodes(v interface{}) []map[string]interface{} {
	switch node := v.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range node {
			out = append(out, eventNodes(item)...)
		}
		return out
	case map[string]interface{}:
		if graph, ok := node["@graph"]; ok {
			return eventNodes(graph)
		}
		if isEventType(node["@type"]) {
			return []map[string]interface{}{node}
		}
	}
	return nil
}

func isEventType(v interface{}) bool {
	return eventType(v) != ""
}

// eventType returns the first Event-like schema.org type in v.
func eventType(v interface{}) string {
	switch t := v.(type) {
	case string:
		if t == "Event" || strings.HasSuffix(t, "Event") || t == "Festival" {
			return t
		}
	case []interface{}:
		for _, item := range t {
			if s := eventType(item); s != "" {
				return s
			}
		}
	}
	return ""
}

var schemaCategories = map[string]string{
	"MusicEvent":      "Music & Concerts",
	"Festival":        "Festivals & Fairs",
	"ComedyEvent":     "Comedy",
	"SportsEvent":     "Sports & Recreation",
	"FoodEvent":       "Food & Dining",
	"ChildrensEvent":  "Family & Kids",
	"EducationEvent":  "Education & Learning",
	"ExhibitionEvent": "Arts & Culture",
	"TheaterEvent":    "Arts & Culture",
	"VisualArtsEvent": "Arts & Culture",
	"DanceEvent":      "Arts & Culture",
	"LiteraryEvent":   "Arts & Culture",
	"ScreeningEvent":  "Arts & Culture",
	"SocialEvent":     "Community",
	"CommunityEvent":  "Community",
}

func jsonLDToRaw(node map[string]interface{}, pageURL string) types.RawEvent {
	raw := types.RawEvent{
		Title:       str(node["name"]),
		Description: str(node["description"]),
		StartText:   str(node["startDate"]),
		EndText:     str(node["endDate"]),
		ImageURL:    imageRef(node["image"]),
		SourceURL:   str(node["url"]),
		Category:    schemaCategories[eventType(node["@type"])],
		BaseURL:     pageURL,
	}

	raw.Venue, raw.Address, raw.City = place(node["location"])

	if free, ok := node["isAccessibleForFree"].(bool); ok && free {
		raw.PriceTier = string(types.PriceFree)
	}
	if offer := first(node["offers"]); offer != nil {
		if m, ok := offer.(map[string]interface{}); ok {
			if amount, ok := number(m["price"]); ok {
				raw.PriceAmount = &amount
			} else {
				raw.PriceText = str(m["price"])
			}
			if raw.PriceText == "" {
				raw.PriceText = str(m["name"])
			}
		}
	}

	return raw
}

func place(v interface{}) (venue, address, city string) {
	switch loc := first(v).(type) {
	case string:
		return loc, "", ""
	case map[string]interface{}:
		venue = str(loc["name"])
		switch addr := loc["address"].(type) {
		case string:
			address = addr
		case map[string]interface{}:
			address = str(addr["streetAddress"])
			city = str(addr["addressLocality"])
		}
	}
	return venue, address, city
}

func imageRef(v interface{}) string {
	switch img := first(v).(type) {
	case string:
		return img
	case map[string]interface{}:
		if u := str(img["url"]); u != "" {
			return u
		}
		return str(img["contentUrl"])
	}
	return ""
}

// first unwraps a JSON-LD value that may be given as a list.
func first(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

func str(v interface{}) string {
	switch s := first(v).(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case map[string]interface{}:
		// {"@value": "..."} literals
		return str(s["@value"])
	}
	return ""
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?)?\b`),
	regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
}

func openGraphEvent(doc *goquery.Document, pageURL string) (types.RawEvent, bool) {
	meta := func(attr, name string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, name)).First().Attr("content")
		return strings.TrimSpace(v)
	}

	title := utils.FirstNonEmpty(meta("property", "og:title"), doc.Find("title").First().Text())
	description := utils.FirstNonEmpty(meta("property", "og:description"), meta("name", "description"))

	start := ""
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		start = strings.TrimSpace(dt)
	}
	if start == "" {
		text := doc.Find("body").Text()
		for _, re := range datePatterns {
			if m := re.FindString(text); m != "" {
				start = m
				break
			}
		}
	}

	if title == "" || start == "" {
		return types.RawEvent{}, false
	}

	return types.RawEvent{
		Title:       title,
		Description: description,
		StartText:   start,
		ImageURL:    meta("property", "og:image"),
		SourceURL:   meta("property", "og:url"),
		BaseURL:     pageURL,
	}, true
}

package extractors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/types"
)

// CalendarExtractor reads VEVENTs from an iCalendar feed.
type CalendarExtractor struct {
	client *retryablehttp.Client
	logger *slog.Logger
}

func NewCalendarExtractor(client *retryablehttp.Client, logger *slog.Logger) *CalendarExtractor {
	return &CalendarExtractor{client: client, logger: logger}
}

func (c *CalendarExtractor) Kind() types.SourceKind { return types.KindCalendarFeed }

func (c *CalendarExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	target = httpTarget(target)

	body, err := getPage(ctx, c.client, target, "text/calendar, */*;q=0.5")
	if err != nil {
		return types.ExtractResult{}, err
	}

	events, err := ParseCalendar(body, target)
	if err != nil {
		return types.ExtractResult{}, err
	}

	c.logger.Debug("Calendar parsed", "target", target, "events", len(events))
	if len(events) == 0 {
		// A valid calendar with no VEVENTs just has nothing scheduled.
		return types.Empty(), nil
	}
	return types.Found(events), nil
}

// ParseCalendar maps each VEVENT of an iCalendar document to a raw event.
func ParseCalendar(data []byte, baseURL string) ([]types.RawEvent, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var events []types.RawEvent
	for _, ve := range cal.Events() {
		raw := types.RawEvent{
			Title:       propValue(ve, ics.ComponentPropertySummary),
			Description: propValue(ve, ics.ComponentPropertyDescription),
			SourceURL:   propValue(ve, ics.ComponentPropertyUrl),
			PriceTier:   string(types.PriceFree),
			BaseURL:     baseURL,
		}

		if start, ok := eventTime(ve.GetStartAt, ve.GetAllDayStartAt); ok {
			raw.Start = &start
		} else {
			raw.StartText = propValue(ve, ics.ComponentPropertyDtStart)
		}
		if end, ok := eventTime(ve.GetEndAt, ve.GetAllDayEndAt); ok {
			raw.End = &end
		}

		raw.Venue, raw.Address = splitLocation(propValue(ve, ics.ComponentPropertyLocation))

		if cats := propValue(ve, ics.ComponentPropertyCategories); cats != "" {
			raw.Category = strings.TrimSpace(strings.Split(cats, ",")[0])
		}

		events = append(events, raw)
	}
	return events, nil
}

func eventTime(timed, allDay func() (time.Time, error)) (time.Time, bool) {
	if t, err := timed(); err == nil && !t.IsZero() {
		return t, true
	}
	if t, err := allDay(); err == nil && !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// splitLocation treats "Venue, street, city" as a venue name followed by
// its address.
func splitLocation(location string) (venue, address string) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", ""
	}
	parts := strings.SplitN(location, ",", 2)
	venue = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		address = strings.TrimSpace(parts[1])
	}
	return venue, address
}

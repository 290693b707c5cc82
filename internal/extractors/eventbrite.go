package extractors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/fetch"
	"evently/internal/types"
	"evently/internal/utils"
)

const DefaultEventbriteURL = "https://www.eventbriteapi.com/v3"

const eventbriteExpand = "venue,ticket_availability,category"

// Eventbrite is a client for the Eventbrite v3 API.
type Eventbrite struct {
	client    *retryablehttp.Client
	baseURL   string
	token     string
	maxEvents int
}

type EventbriteOptions struct {
	BaseURL   string
	Token     string
	MaxEvents int
}

func NewEventbrite(client *retryablehttp.Client, opts EventbriteOptions) *Eventbrite {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultEventbriteURL
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 100
	}
	return &Eventbrite{
		client:    client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		maxEvents: opts.MaxEvents,
	}
}

type ebText struct {
	Text string `json:"text"`
}

type ebEvent struct {
	Name        ebText `json:"name"`
	Description ebText `json:"description"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	Start       struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	IsFree bool `json:"is_free"`
	Venue  *struct {
		Name    string `json:"name"`
		Address struct {
			Address1 string `json:"address_1"`
			City     string `json:"city"`
		} `json:"address"`
	} `json:"venue"`
	TicketAvailability *struct {
		MinimumTicketPrice *struct {
			MajorValue string `json:"major_value"`
		} `json:"minimum_ticket_price"`
	} `json:"ticket_availability"`
	Logo *struct {
		URL      string `json:"url"`
		Original struct {
			URL string `json:"url"`
		} `json:"original"`
	} `json:"logo"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
}

type ebEventList struct {
	Events     []ebEvent `json:"events"`
	Pagination struct {
		HasMoreItems bool   `json:"has_more_items"`
		Continuation string `json:"continuation"`
	} `json:"pagination"`
}

var ebCategories = map[string]string{
	"Music":                       "Music & Concerts",
	"Food & Drink":                "Food & Dining",
	"Performing & Visual Arts":    "Arts & Culture",
	"Film, Media & Entertainment": "Arts & Culture",
	"Sports & Fitness":            "Sports & Recreation",
	"Family & Education":          "Family & Kids",
	"Science & Technology":        "STEM & Technology",
	"Community & Culture":         "Community",
	"Charity & Causes":            "Community",
}

var (
	ebEventPath     = regexp.MustCompile(`/e/(?:[^/]*-)?(\d+)`)
	ebOrganizerPath = regexp.MustCompile(`/o/(?:[^/]*-)?(\d+)`)
)

// EventbriteEventID pulls the numeric id from an /e/ event URL.
func EventbriteEventID(u string) (string, bool) {
	m := ebEventPath.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// EventbriteOrganizerID pulls the numeric id from an /o/ organizer URL.
func EventbriteOrganizerID(u string) (string, bool) {
	m := ebOrganizerPath.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (e *Eventbrite) Name() string { return "eventbrite" }

func (e *Eventbrite) Event(ctx context.Context, id string) (types.RawEvent, error) {
	var ev ebEvent
	if err := e.get(ctx, fmt.Sprintf("/events/%s/", id), url.Values{}, &ev); err != nil {
		return types.RawEvent{}, err
	}
	return toRawEventbrite(ev), nil
}

// OrganizerEvents lists an organizer's live events, following continuation
// tokens up to the configured maximum.
func (e *Eventbrite) OrganizerEvents(ctx context.Context, orgID string) ([]types.RawEvent, error) {
	var events []types.RawEvent
	continuation := ""

	for len(events) < e.maxEvents {
		q := url.Values{}
		q.Set("status", "live")
		q.Set("order_by", "start_asc")
		if continuation != "" {
			q.Set("continuation", continuation)
		}

		var page ebEventList
		if err := e.get(ctx, fmt.Sprintf("/organizers/%s/events/", orgID), q, &page); err != nil {
			return nil, err
		}
		for _, ev := range page.Events {
			if len(events) == e.maxEvents {
				break
			}
			events = append(events, toRawEventbrite(ev))
		}
		if !page.Pagination.HasMoreItems || page.Pagination.Continuation == "" {
			break
		}
		continuation = page.Pagination.Continuation
	}

	return events, nil
}

func (e *Eventbrite) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	if e.token == "" {
		return fmt.Errorf("%w: eventbrite_token", ErrNotConfigured)
	}
	q.Set("expand", eventbriteExpand)

	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	body, _, err := fetch.Get(ctx, e.client, e.baseURL+path+"?"+q.Encode(), map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + e.token,
	}, maxPageBytes)
	if err != nil {
		return fmt.Errorf("eventbrite: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("eventbrite: failed to decode response: %w", err)
	}
	return nil
}

func toRawEventbrite(ev ebEvent) types.RawEvent {
	raw := types.RawEvent{
		Title:       ev.Name.Text,
		Description: utils.FirstNonEmpty(ev.Description.Text, ev.Summary),
		StartText:   ev.Start.UTC,
		EndText:     ev.End.UTC,
		SourceURL:   ev.URL,
	}

	if ev.Venue != nil {
		raw.Venue = ev.Venue.Name
		raw.Address = ev.Venue.Address.Address1
		raw.City = ev.Venue.Address.City
	}

	if ev.IsFree {
		raw.PriceTier = string(types.PriceFree)
	} else if ta := ev.TicketAvailability; ta != nil && ta.MinimumTicketPrice != nil {
		if amount, err := strconv.ParseFloat(ta.MinimumTicketPrice.MajorValue, 64); err == nil {
			raw.PriceAmount = &amount
		}
	}

	if ev.Logo != nil {
		raw.ImageURL = utils.FirstNonEmpty(ev.Logo.Original.URL, ev.Logo.URL)
	}

	if ev.Category != nil {
		raw.Category = ebCategories[ev.Category.Name]
	}

	return raw
}

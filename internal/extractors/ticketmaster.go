package extractors

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	// Venue timezones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/fetch"
	"evently/internal/types"
)

const DefaultTicketmasterURL = "https://app.ticketmaster.com/discovery/v2"

// Ticketmaster is a client for the Discovery API.
type Ticketmaster struct {
	client      *retryablehttp.Client
	baseURL     string
	apiKey      string
	affiliateID string
	radius      int
	size        int
}

type TicketmasterOptions struct {
	BaseURL     string
	APIKey      string
	AffiliateID string
	Radius      int
	Size        int
}

func NewTicketmaster(client *retryablehttp.Client, opts TicketmasterOptions) *Ticketmaster {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTicketmasterURL
	}
	if opts.Radius <= 0 {
		opts.Radius = 50
	}
	if opts.Size <= 0 || opts.Size > 200 {
		opts.Size = 200
	}
	return &Ticketmaster{
		client:      client,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		affiliateID: opts.AffiliateID,
		radius:      opts.Radius,
		size:        opts.Size,
	}
}

func (t *Ticketmaster) Name() string { return "ticketmaster" }

type tmResponse struct {
	Embedded struct {
		Events []tmEvent `json:"events"`
	} `json:"_embedded"`
}

type tmEvent struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Info       string `json:"info"`
	PleaseNote string `json:"pleaseNote"`
	Dates      struct {
		Start struct {
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
			DateTime  string `json:"dateTime"`
		} `json:"start"`
	} `json:"dates"`
	Images []struct {
		URL   string `json:"url"`
		Width int    `json:"width"`
	} `json:"images"`
	PriceRanges []struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"priceRanges"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
	} `json:"classifications"`
	Embedded struct {
		Venues []struct {
			Name    string `json:"name"`
			Address struct {
				Line1 string `json:"line1"`
			} `json:"address"`
			City struct {
				Name string `json:"name"`
			} `json:"city"`
			Timezone string `json:"timezone"`
		} `json:"venues"`
	} `json:"_embedded"`
}

var tmSegments = map[string]string{
	"Music":          "Music & Concerts",
	"Sports":         "Sports & Recreation",
	"Arts & Theatre": "Arts & Culture",
	"Theatre":        "Arts & Culture",
	"Film":           "Arts & Culture",
	"Family":         "Family & Kids",
}

// Search lists upcoming events around a city. state may be empty.
func (t *Ticketmaster) Search(ctx context.Context, city, state string) ([]types.RawEvent, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: ticketmaster_api_key", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("city", city)
	if state != "" {
		q.Set("stateCode", state)
	}
	q.Set("radius", strconv.Itoa(t.radius))
	q.Set("size", strconv.Itoa(t.size))
	q.Set("sort", "date,asc")

	return t.fetch(ctx, t.baseURL+"/events.json?"+q.Encode())
}

// FetchURL reads a Discovery API URL as given, adding the API key.
func (t *Ticketmaster) FetchURL(ctx context.Context, discoveryURL string) ([]types.RawEvent, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: ticketmaster_api_key", ErrNotConfigured)
	}
	return t.fetch(ctx, discoveryURL)
}

func (t *Ticketmaster) fetch(ctx context.Context, rawURL string) ([]types.RawEvent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ticketmaster url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", t.apiKey)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	body, _, err := fetch.Get(ctx, t.client, u.String(), map[string]string{"Accept": "application/json"}, maxPageBytes)
	if err != nil {
		return nil, fmt.Errorf("ticketmaster: %w", redactKey(err, t.apiKey))
	}

	var resp tmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ticketmaster: failed to decode response: %w", err)
	}

	events := make([]types.RawEvent, 0, len(resp.Embedded.Events))
	for _, e := range resp.Embedded.Events {
		events = append(events, t.toRaw(e))
	}
	return events, nil
}

func (t *Ticketmaster) toRaw(e tmEvent) types.RawEvent {
	raw := types.RawEvent{
		Title:       e.Name,
		Description: e.Info,
		SourceURL:   t.affiliateURL(e.URL),
	}
	if raw.Description == "" {
		raw.Description = e.PleaseNote
	}

	var loc *time.Location
	if len(e.Embedded.Venues) > 0 {
		v := e.Embedded.Venues[0]
		raw.Venue = v.Name
		raw.Address = v.Address.Line1
		raw.City = v.City.Name
		if v.Timezone != "" {
			loc, _ = time.LoadLocation(v.Timezone)
		}
	}

	start := e.Dates.Start
	switch {
	case start.DateTime != "":
		if ts, err := time.Parse(time.RFC3339, start.DateTime); err == nil {
			raw.Start = &ts
		} else {
			raw.StartText = start.DateTime
		}
	case start.LocalDate != "":
		text := strings.TrimSpace(start.LocalDate + " " + start.LocalTime)
		if loc != nil {
			if ts, err := time.ParseInLocation("2006-01-02 15:04:05", text, loc); err == nil {
				raw.Start = &ts
				break
			}
		}
		raw.StartText = text
	}

	// Listings without price ranges are ticketed events with hidden prices.
	raw.PriceTier = string(types.PricePaid)
	if len(e.PriceRanges) > 0 {
		if lowest := e.PriceRanges[0].Min; lowest == 0 {
			raw.PriceTier = string(types.PriceFree)
		} else {
			raw.PriceAmount = &lowest
		}
	}

	if len(e.Images) > 0 {
		images := append(e.Images[:0:0], e.Images...)
		sort.SliceStable(images, func(i, j int) bool { return images[i].Width > images[j].Width })
		raw.ImageURL = images[0].URL
	}

	if len(e.Classifications) > 0 {
		raw.Category = tmSegments[e.Classifications[0].Segment.Name]
	}

	return raw
}

func (t *Ticketmaster) affiliateURL(eventURL string) string {
	if eventURL == "" || t.affiliateID == "" {
		return eventURL
	}
	sep := "?"
	if strings.Contains(eventURL, "?") {
		sep = "&"
	}
	return eventURL + sep + "CAMEFROM=CMPAFFILIATE_" + url.QueryEscape(t.affiliateID)
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redactKey keeps API keys out of task logs.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "REDACTED"), err: err}
}

// ParseLocation splits "Dallas, TX" into city and state.
func ParseLocation(location string) (city, state string) {
	parts := strings.SplitN(location, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		state = strings.ToUpper(strings.TrimSpace(parts[1]))
	}
	return city, state
}

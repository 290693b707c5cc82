package extractors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"evently/internal/types"
)

// ErrNotConfigured marks a target whose provider lacks credentials.
var ErrNotConfigured = errors.New("provider not configured")

// VendorExtractor dispatches vendor API targets to the matching client.
type VendorExtractor struct {
	ticketmaster *Ticketmaster
	eventbrite   *Eventbrite
	logger       *slog.Logger
}

func NewVendorExtractor(tm *Ticketmaster, eb *Eventbrite, logger *slog.Logger) *VendorExtractor {
	return &VendorExtractor{ticketmaster: tm, eventbrite: eb, logger: logger}
}

func (v *VendorExtractor) Kind() types.SourceKind { return types.KindVendorAPI }

func (v *VendorExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	target = strings.TrimSpace(target)

	if strings.HasPrefix(strings.ToLower(target), ticketmasterPrefix) {
		city, state := ParseLocation(target[len(ticketmasterPrefix):])
		if city == "" {
			return types.ExtractResult{}, fmt.Errorf("ticketmaster target %q has no city", target)
		}
		if v.ticketmaster == nil {
			return types.ExtractResult{}, fmt.Errorf("%w: ticketmaster", ErrNotConfigured)
		}
		return listResult(v.ticketmaster.Search(ctx, city, state))
	}

	u, err := url.Parse(target)
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("invalid vendor target %q: %w", target, err)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "ticketmaster.com" || strings.HasSuffix(host, ".ticketmaster.com"):
		if !strings.Contains(u.Path, "/discovery/") {
			return types.ExtractResult{}, fmt.Errorf("unsupported ticketmaster url %q: use a discovery API url or ticketmaster:<city>", target)
		}
		if v.ticketmaster == nil {
			return types.ExtractResult{}, fmt.Errorf("%w: ticketmaster", ErrNotConfigured)
		}
		return listResult(v.ticketmaster.FetchURL(ctx, target))

	case host == "eventbrite.com" || strings.HasSuffix(host, ".eventbrite.com"):
		if v.eventbrite == nil {
			return types.ExtractResult{}, fmt.Errorf("%w: eventbrite", ErrNotConfigured)
		}
		if id, ok := EventbriteEventID(u.Path); ok {
			ev, err := v.eventbrite.Event(ctx, id)
			if err != nil {
				return types.ExtractResult{}, err
			}
			return types.Found([]types.RawEvent{ev}), nil
		}
		if id, ok := EventbriteOrganizerID(u.Path); ok {
			return listResult(v.eventbrite.OrganizerEvents(ctx, id))
		}
		return types.ExtractResult{}, fmt.Errorf("unsupported eventbrite url %q", target)
	}

	return types.ExtractResult{}, fmt.Errorf("no vendor api for %q", target)
}

// listResult treats a successful API listing with no entries as a healthy
// empty result.
func listResult(events []types.RawEvent, err error) (types.ExtractResult, error) {
	if err != nil {
		return types.ExtractResult{}, err
	}
	if len(events) == 0 {
		return types.Empty(), nil
	}
	return types.Found(events), nil
}

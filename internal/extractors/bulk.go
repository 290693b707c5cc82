package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"

	"evently/internal/types"
	"evently/internal/utils"
)

// LocationProvider searches one upstream for events around a location.
type LocationProvider interface {
	Name() string
	Search(ctx context.Context, location string) ([]types.RawEvent, error)
}

// BulkExtractor fans a bulk:<location> target out to every provider and
// concatenates what they return.
type BulkExtractor struct {
	providers []LocationProvider
	logger    *slog.Logger
}

func NewBulkExtractor(providers []LocationProvider, logger *slog.Logger) *BulkExtractor {
	return &BulkExtractor{providers: providers, logger: logger}
}

func (b *BulkExtractor) Kind() types.SourceKind { return types.KindBulkLocationSearch }

func (b *BulkExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	location := strings.TrimSpace(target)
	if strings.HasPrefix(strings.ToLower(location), bulkPrefix) {
		location = strings.TrimSpace(location[len(bulkPrefix):])
	}
	if location == "" {
		return types.ExtractResult{}, fmt.Errorf("bulk target %q has no location", target)
	}
	if len(b.providers) == 0 {
		return types.ExtractResult{}, fmt.Errorf("%w: no bulk providers", ErrNotConfigured)
	}

	var (
		events    []types.RawEvent
		errs      *multierror.Error
		succeeded int
	)
	for _, p := range b.providers {
		found, err := p.Search(ctx, location)
		if err != nil {
			b.logger.Warn("Bulk provider failed", "provider", p.Name(), "location", location, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		succeeded++
		b.logger.Info("Bulk provider returned events", "provider", p.Name(), "location", location, "count", len(found))
		events = append(events, found...)
	}

	if succeeded == 0 {
		return types.ExtractResult{}, fmt.Errorf("all bulk providers failed: %w", errs.ErrorOrNil())
	}
	return types.ExtractResult{Events: events, Healthy: true}, nil
}

// TicketmasterProvider searches Ticketmaster by city.
type TicketmasterProvider struct {
	*Ticketmaster
}

func (p TicketmasterProvider) Search(ctx context.Context, location string) ([]types.RawEvent, error) {
	city, state := ParseLocation(location)
	return p.Ticketmaster.Search(ctx, city, state)
}

// EventbriteOrganizers lists events from a fixed set of organizers known
// to run events in the area.
type EventbriteOrganizers struct {
	client     *Eventbrite
	organizers []string
	logger     *slog.Logger
}

func NewEventbriteOrganizers(client *Eventbrite, organizers []string, logger *slog.Logger) *EventbriteOrganizers {
	organizers = utils.FilterArray(organizers, func(id string) bool { return strings.TrimSpace(id) != "" })
	return &EventbriteOrganizers{client: client, organizers: organizers, logger: logger}
}

func (p *EventbriteOrganizers) Name() string { return "eventbrite" }

func (p *EventbriteOrganizers) Search(ctx context.Context, location string) ([]types.RawEvent, error) {
	if len(p.organizers) == 0 {
		return nil, fmt.Errorf("%w: eventbrite_organizers", ErrNotConfigured)
	}

	var (
		events []types.RawEvent
		errs   *multierror.Error
	)
	for _, org := range p.organizers {
		found, err := p.client.OrganizerEvents(ctx, org)
		if err != nil {
			p.logger.Warn("Eventbrite organizer failed", "organizer", org, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		events = append(events, found...)
	}

	if errs != nil && len(errs.Errors) == len(p.organizers) {
		return nil, errs.ErrorOrNil()
	}
	return events, nil
}

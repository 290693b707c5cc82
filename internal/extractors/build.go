package extractors

import (
	"log/slog"

	"github.com/hashicorp/go-retryablehttp"

	"evently/internal/config"
	"evently/internal/types"
)

// Build registers every enabled extractor with its settings from cfg.
func Build(cfg *config.Config, client *retryablehttp.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry()

	vendor := cfg.ExtractorSettings(string(types.KindVendorAPI))
	var tm *Ticketmaster
	if key := config.GetString(vendor, "ticketmaster_api_key", ""); key != "" {
		tm = NewTicketmaster(client, TicketmasterOptions{
			BaseURL:     config.GetString(vendor, "ticketmaster_base_url", DefaultTicketmasterURL),
			APIKey:      key,
			AffiliateID: config.GetString(vendor, "ticketmaster_affiliate_id", ""),
			Radius:      config.GetInt(vendor, "radius", 50),
			Size:        config.GetInt(vendor, "size", 200),
		})
	}
	var eb *Eventbrite
	if token := config.GetString(vendor, "eventbrite_token", ""); token != "" {
		eb = NewEventbrite(client, EventbriteOptions{
			BaseURL:   config.GetString(vendor, "eventbrite_base_url", DefaultEventbriteURL),
			Token:     token,
			MaxEvents: config.GetInt(vendor, "max_events", 100),
		})
	}

	add := func(e types.Extractor) {
		if !cfg.ExtractorEnabled(string(e.Kind())) {
			logger.Info("Extractor disabled", "source_kind", e.Kind())
			return
		}
		registry.Register(e)
	}

	add(NewCalendarExtractor(client, logger.With("extractor", types.KindCalendarFeed)))

	feed := cfg.ExtractorSettings(string(types.KindSyndicationFeed))
	add(NewFeedExtractor(client, config.GetInt(feed, "max_items", 200), logger.With("extractor", types.KindSyndicationFeed)))

	add(NewPageExtractor(client, logger.With("extractor", types.KindStructuredDataPage)))

	add(NewVendorExtractor(tm, eb, logger.With("extractor", types.KindVendorAPI)))

	bulk := cfg.ExtractorSettings(string(types.KindBulkLocationSearch))
	bulkLogger := logger.With("extractor", types.KindBulkLocationSearch)
	var providers []LocationProvider
	for _, name := range providerNames(bulk) {
		switch name {
		case "ticketmaster":
			if tm != nil {
				providers = append(providers, TicketmasterProvider{tm})
			}
		case "eventbrite":
			if eb != nil {
				providers = append(providers, NewEventbriteOrganizers(eb, config.GetStringSlice(bulk, "eventbrite_organizers"), bulkLogger))
			}
		default:
			bulkLogger.Warn("Unknown bulk provider", "provider", name)
		}
	}
	add(NewBulkExtractor(providers, bulkLogger))

	script := cfg.ExtractorSettings(string(types.KindVenueScript))
	configs, _ := script["scripts"].(map[string]interface{})
	add(NewScriptExtractor(
		config.GetString(script, "scripts_dir", "./scripts"),
		client.StandardClient(),
		configs,
		logger.With("extractor", types.KindVenueScript),
	))

	logger.Info("Extractors registered", "kinds", registry.Kinds())
	return registry
}

func providerNames(settings map[string]interface{}) []string {
	names := config.GetStringSlice(settings, "providers")
	if len(names) == 0 {
		return []string{"ticketmaster", "eventbrite"}
	}
	return names
}

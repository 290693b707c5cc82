package extractors

import (
	"net/url"
	"strings"

	"evently/internal/types"
)

const (
	bulkPrefix         = "bulk:"
	scriptPrefix       = "script:"
	ticketmasterPrefix = "ticketmaster:"
)

// DetectKind guesses the source kind of a target reference when a producer
// does not name one.
func DetectKind(target string) types.SourceKind {
	target = strings.TrimSpace(target)
	lower := strings.ToLower(target)

	switch {
	case strings.HasPrefix(lower, bulkPrefix):
		return types.KindBulkLocationSearch
	case strings.HasPrefix(lower, scriptPrefix):
		return types.KindVenueScript
	case strings.HasPrefix(lower, ticketmasterPrefix):
		return types.KindVendorAPI
	}

	u, err := url.Parse(target)
	if err != nil {
		return types.KindStructuredDataPage
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	switch {
	case isVendorHost(host):
		return types.KindVendorAPI
	case strings.HasSuffix(path, ".ics") || strings.Contains(lower, "ical") || u.Scheme == "webcal":
		return types.KindCalendarFeed
	case strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".rss") ||
		strings.Contains(path, "rss") || strings.Contains(path, "feed") || strings.Contains(path, "atom"):
		return types.KindSyndicationFeed
	default:
		return types.KindStructuredDataPage
	}
}

func isVendorHost(host string) bool {
	for _, domain := range []string{"eventbrite.com", "ticketmaster.com"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

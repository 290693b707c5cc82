package extractors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/config"
	"evently/internal/types"
)

func TestBuild(t *testing.T) {
	t.Setenv("TICKETMASTER_API_KEY", "")
	t.Setenv("EVENTBRITE_API_TOKEN", "")

	cfg, err := config.Parse([]byte(`
[extractors.venue-script]
enabled = false

[extractors.vendor-api.settings]
ticketmaster_api_key = "k"

[extractors.bulk-location-search.settings]
providers = ["ticketmaster", "carrier-pigeon"]
`))
	require.NoError(t, err)

	registry := Build(cfg, testClient(), discard)
	assert.Equal(t, []types.SourceKind{
		types.KindBulkLocationSearch,
		types.KindCalendarFeed,
		types.KindStructuredDataPage,
		types.KindSyndicationFeed,
		types.KindVendorAPI,
	}, registry.Kinds())

	_, err = registry.Get(types.KindVenueScript)
	assert.Error(t, err)

	bulk, err := registry.Get(types.KindBulkLocationSearch)
	require.NoError(t, err)
	assert.Len(t, bulk.(*BulkExtractor).providers, 1)

	vendor, err := registry.Get(types.KindVendorAPI)
	require.NoError(t, err)
	assert.NotNil(t, vendor.(*VendorExtractor).ticketmaster)
	assert.Nil(t, vendor.(*VendorExtractor).eventbrite)
}

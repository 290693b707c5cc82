package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evently/internal/types"
)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New()
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

var pageJob = types.Job{
	TargetReference: "https://venue.example.com/events/",
	SourceKind:      types.KindStructuredDataPage,
	TaskID:          1,
}

func TestNormalizeSpringFair(t *testing.T) {
	n := newNormalizer(t)

	ev, err := n.Normalize(types.RawEvent{
		Title:     "  Spring Fair  ",
		StartText: "2026-05-01T18:00:00Z",
		PriceText: "0",
		ImageURL:  "/img/fair.jpg",
	}, pageJob)
	require.NoError(t, err)

	assert.Equal(t, "Spring Fair", ev.Title)
	assert.Equal(t, time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), ev.StartAt)
	assert.Equal(t, types.PriceFree, ev.PriceTier)
	assert.Nil(t, ev.PriceAmount)
	assert.Equal(t, "https://venue.example.com/img/fair.jpg", ev.ImageURL)
	assert.Equal(t, pageJob.TargetReference, ev.SourceURL)
	assert.Equal(t, types.EventDraft, ev.Status)
	assert.Equal(t, types.KindStructuredDataPage, ev.SourceKind)
	assert.Equal(t, "Festivals & Fairs", ev.Category)
}

func TestNormalizeRequiresTitleAndStart(t *testing.T) {
	n := newNormalizer(t)

	_, err := n.Normalize(types.RawEvent{StartText: "2026-05-01"}, pageJob)
	assert.True(t, types.IsValidation(err))

	_, err = n.Normalize(types.RawEvent{Title: "<b> </b>", StartText: "2026-05-01"}, pageJob)
	assert.True(t, types.IsValidation(err))

	_, err = n.Normalize(types.RawEvent{Title: "No date"}, pageJob)
	assert.True(t, types.IsValidation(err))

	_, err = n.Normalize(types.RawEvent{Title: "Bad date", StartText: "whenever you like"}, pageJob)
	assert.True(t, types.IsValidation(err))
}

func TestNormalizeCleansAndCaps(t *testing.T) {
	n := newNormalizer(t)

	ev, err := n.Normalize(types.RawEvent{
		Title:       "<h1>Jazz &amp; Blues\n\n Night</h1>",
		Description: "<p>" + strings.Repeat("a", 3000) + "</p>",
		Start:       ptr(time.Date(2026, 7, 4, 20, 0, 0, 0, time.UTC)),
	}, pageJob)
	require.NoError(t, err)

	assert.Equal(t, "Jazz & Blues Night", ev.Title)
	assert.Equal(t, MaxDescription, len([]rune(ev.Description)))
	assert.True(t, strings.HasSuffix(ev.Description, "..."))
	assert.Equal(t, "Music & Concerts", ev.Category)
}

func TestNormalizeTimezoneAndEnd(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	n, err := New(WithLocation(chicago))
	require.NoError(t, err)

	ev, err := n.Normalize(types.RawEvent{
		Title:     "Evening talk",
		StartText: "2026-03-20 19:00",
		EndText:   "2026-03-20 18:00",
	}, pageJob)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC), ev.StartAt)
	assert.Nil(t, ev.EndAt, "end before start is dropped")

	ev, err = n.Normalize(types.RawEvent{
		Title:     "Evening talk",
		StartText: "2026-03-20 19:00",
		EndText:   "2026-03-20 21:00",
	}, pageJob)
	require.NoError(t, err)
	require.NotNil(t, ev.EndAt)
	assert.Equal(t, 2*time.Hour, ev.EndAt.Sub(ev.StartAt))
}

func TestNormalizeExplicitCategoryAndSource(t *testing.T) {
	n := newNormalizer(t)

	ev, err := n.Normalize(types.RawEvent{
		Title:     "Concert",
		StartText: "2026-05-01",
		Category:  " Music ",
		SourceURL: "details/42",
		BaseURL:   "https://tickets.example.org/list/",
		ImageURL:  "data:image/png;base64,AAAA",
	}, types.Job{TargetReference: "bulk:dallas", SourceKind: types.KindBulkLocationSearch})
	require.NoError(t, err)

	assert.Equal(t, "Music", ev.Category)
	assert.Equal(t, "https://tickets.example.org/list/details/42", ev.SourceURL)
	assert.Empty(t, ev.ImageURL)
}

func TestNormalizeOpaqueTargetKeepsReference(t *testing.T) {
	n := newNormalizer(t)

	ev, err := n.Normalize(types.RawEvent{Title: "Walk", StartText: "2026-05-01"},
		types.Job{TargetReference: "bulk:dallas", SourceKind: types.KindBulkLocationSearch})
	require.NoError(t, err)
	assert.Equal(t, "bulk:dallas", ev.SourceURL)
	assert.Equal(t, "Sports & Recreation", n.classifier.Classify("Charity 5k run", ""))
}

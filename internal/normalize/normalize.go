// Package normalize turns loosely typed extractor payloads into canonical
// events.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"evently/internal/types"
)

type Normalizer struct {
	loc        *time.Location
	classifier *Classifier
}

type Option func(*Normalizer)

func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

func WithClassifier(c *Classifier) Option {
	return func(n *Normalizer) {
		if c != nil {
			n.classifier = c
		}
	}
}

func New(options ...Option) (*Normalizer, error) {
	n := &Normalizer{loc: time.UTC}
	for _, opt := range options {
		opt(n)
	}

	if n.classifier == nil {
		c, err := NewClassifier(DefaultCategories)
		if err != nil {
			return nil, fmt.Errorf("failed to build category classifier: %w", err)
		}
		n.classifier = c
	}
	return n, nil
}

// Normalize validates and cleans raw. Missing title or start time yields a
// *types.ValidationError.
func (n *Normalizer) Normalize(raw types.RawEvent, job types.Job) (*types.Event, error) {
	title := CleanText(raw.Title, MaxTitle)
	if title == "" {
		return nil, types.NewValidationError("title", "is required")
	}

	start, err := n.resolveTime(raw.Start, raw.StartText)
	if err != nil {
		return nil, types.NewValidationError("start", err.Error()).WithDetail("value", raw.StartText)
	}

	event := &types.Event{
		Title:       title,
		Description: CleanText(raw.Description, MaxDescription),
		StartAt:     start.UTC(),
		Venue:       CleanText(raw.Venue, MaxShort),
		Address:     CleanText(raw.Address, MaxShort),
		City:        CleanText(raw.City, MaxShort),
		SourceKind:  job.SourceKind,
		Status:      types.EventDraft,
	}

	if end, err := n.resolveTime(raw.End, raw.EndText); err == nil && end.After(start) {
		utc := end.UTC()
		event.EndAt = &utc
	}

	event.PriceTier, event.PriceAmount = InferPrice(raw.PriceTier, raw.PriceAmount, raw.PriceText)

	base := raw.BaseURL
	if base == "" && IsHTTPURL(job.TargetReference) {
		base = job.TargetReference
	}
	event.ImageURL = ResolveURL(base, raw.ImageURL)
	event.SourceURL = ResolveURL(base, raw.SourceURL)
	if event.SourceURL == "" {
		event.SourceURL = job.TargetReference
	}

	if category := CleanText(raw.Category, MaxShort); category != "" {
		event.Category = category
	} else {
		event.Category = n.classifier.Classify(event.Title, event.Description)
	}

	return event, nil
}

func (n *Normalizer) resolveTime(parsed *time.Time, text string) (time.Time, error) {
	if parsed != nil && !parsed.IsZero() {
		return *parsed, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, errors.New("is required")
	}
	return ParseTime(text, n.loc)
}

// ParseTime reads a free-form date. Values without a zone are taken in loc.
func ParseTime(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(strings.TrimSpace(text), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", text)
	}
	return t, nil
}

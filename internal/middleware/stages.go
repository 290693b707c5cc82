package middleware

import (
	"context"
	"log/slog"

	"evently/internal/dedup"
	"evently/internal/imagecache"
	"evently/internal/normalize"
	"evently/internal/types"
)

const (
	StageNormalize = "normalize"
	StageDedupe    = "dedupe"
	StageImage     = "image"
	StageStore     = "store"
)

type normalizeStage struct {
	normalizer *normalize.Normalizer
}

func NormalizeStage(n *normalize.Normalizer) Stage {
	return &normalizeStage{normalizer: n}
}

func (s *normalizeStage) Name() string        { return StageNormalize }
func (s *normalizeStage) DependsOn() []string { return nil }

func (s *normalizeStage) Process(ctx context.Context, item *Item) error {
	event, err := s.normalizer.Normalize(item.Raw, item.Job)
	if err != nil {
		return err
	}
	item.Event = event
	return nil
}

type dedupeStage struct{}

// DedupeStage stops items whose fingerprint the batch already holds, before
// any image work is spent on them.
func DedupeStage() Stage {
	return dedupeStage{}
}

func (dedupeStage) Name() string        { return StageDedupe }
func (dedupeStage) DependsOn() []string { return []string{StageNormalize} }

func (dedupeStage) Process(ctx context.Context, item *Item) error {
	outcome, err := dedup.Check(ctx, item.Batch, item.Event, item.Job.TargetReference)
	item.Outcome = outcome
	if err != nil {
		return err
	}
	if outcome == dedup.Duplicate {
		return types.ErrDuplicate
	}
	return nil
}

type imageStage struct {
	cache *imagecache.Cache
}

func ImageStage(cache *imagecache.Cache) Stage {
	return &imageStage{cache: cache}
}

func (s *imageStage) Name() string        { return StageImage }
func (s *imageStage) DependsOn() []string { return []string{StageDedupe} }

// Process never fails: the cache hands back the original URL on error.
func (s *imageStage) Process(ctx context.Context, item *Item) error {
	if s.cache != nil && item.Event.ImageURL != "" {
		item.Event.ImageURL = s.cache.Rehost(ctx, item.Event.ImageURL)
	}
	return nil
}

type storeStage struct{}

func StoreStage() Stage {
	return storeStage{}
}

func (storeStage) Name() string        { return StageStore }
func (storeStage) DependsOn() []string { return []string{StageDedupe, StageImage} }

func (storeStage) Process(ctx context.Context, item *Item) error {
	outcome, err := dedup.Store(ctx, item.Batch, item.Event)
	item.Outcome = outcome
	if err != nil {
		return err
	}
	if outcome == dedup.Duplicate {
		return types.ErrDuplicate
	}
	return nil
}

// Default builds the ingestion chain: normalize, dedupe, image, store.
func Default(n *normalize.Normalizer, images *imagecache.Cache, logger *slog.Logger) *ProcessorChain {
	return New(logger).WithMultiple(
		NormalizeStage(n),
		DedupeStage(),
		ImageStage(images),
		StoreStage(),
	)
}

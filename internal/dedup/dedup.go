// Package dedup decides whether a normalized event is new.
package dedup

import (
	"context"
	"fmt"
	"time"

	"evently/internal/storage"
	"evently/internal/types"
	"evently/internal/utils/hash"
)

type Outcome int

const (
	Stored Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Stored {
		return "stored"
	}
	return "duplicate"
}

// Fingerprint identifies an event by title, start instant and the target it
// was extracted from. No other field contributes.
func Fingerprint(title string, start time.Time, origin string) string {
	return hash.FromParts("|", title, start.UTC().Format(time.RFC3339Nano), origin).ComputeHash()
}

// Check stamps the fingerprint on event and reports whether the batch
// already holds it.
func Check(ctx context.Context, batch storage.EventBatch, event *types.Event, origin string) (Outcome, error) {
	event.Fingerprint = Fingerprint(event.Title, event.StartAt, origin)

	exists, err := batch.ExistsFingerprint(ctx, event.Fingerprint)
	if err != nil {
		return Duplicate, fmt.Errorf("dedup lookup: %w", err)
	}
	if exists {
		return Duplicate, nil
	}
	return Stored, nil
}

// Store inserts a fingerprinted event. The store's unique constraint
// settles races with other workers, so losing one is reported as Duplicate.
func Store(ctx context.Context, batch storage.EventBatch, event *types.Event) (Outcome, error) {
	inserted, err := batch.Insert(ctx, event)
	if err != nil {
		return Duplicate, fmt.Errorf("dedup insert: %w", err)
	}
	if !inserted {
		return Duplicate, nil
	}
	return Stored, nil
}

// Accept runs Check and then Store.
func Accept(ctx context.Context, batch storage.EventBatch, event *types.Event, origin string) (Outcome, error) {
	outcome, err := Check(ctx, batch, event, origin)
	if err != nil || outcome == Duplicate {
		return outcome, err
	}
	return Store(ctx, batch, event)
}

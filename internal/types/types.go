package types

import (
	"context"
	"time"
)

type TaskStatus string

const (
	TaskQueued  TaskStatus = "QUEUED"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskFailed  TaskStatus = "FAILED"
)

// Terminal reports whether the status closes the task.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskQueued, TaskRunning, TaskDone, TaskFailed:
		return true
	}
	return false
}

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
)

type PriceTier string

const (
	PriceFree     PriceTier = "FREE"
	PricePaid     PriceTier = "PAID"
	PriceDonation PriceTier = "DONATION"
)

type SourceKind string

const (
	KindCalendarFeed       SourceKind = "calendar-feed"
	KindSyndicationFeed    SourceKind = "syndication-feed"
	KindStructuredDataPage SourceKind = "structured-data-page"
	KindVendorAPI          SourceKind = "vendor-api"
	KindBulkLocationSearch SourceKind = "bulk-location-search"
	KindVenueScript        SourceKind = "venue-script"
)

var SourceKinds = []SourceKind{
	KindCalendarFeed,
	KindSyndicationFeed,
	KindStructuredDataPage,
	KindVendorAPI,
	KindBulkLocationSearch,
	KindVenueScript,
}

func (k SourceKind) Known() bool {
	for _, known := range SourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Task is one ingestion job as recorded in the task store.
type Task struct {
	ID              int64      `json:"id"`
	TargetReference string     `json:"target_reference"`
	SourceKind      SourceKind `json:"source_kind"`
	Status          TaskStatus `json:"status"`
	Logs            string     `json:"logs"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	EventsExtracted int        `json:"events_extracted"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Event is the canonical, normalized record.
type Event struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	StartAt     time.Time   `json:"start_at"`
	EndAt       *time.Time  `json:"end_at,omitempty"`
	Venue       string      `json:"venue,omitempty"`
	Address     string      `json:"address,omitempty"`
	City        string      `json:"city,omitempty"`
	PriceTier   PriceTier   `json:"price_tier"`
	PriceAmount *float64    `json:"price_amount,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	SourceURL   string      `json:"source_url"`
	SourceKind  SourceKind  `json:"source_kind"`
	Category    string      `json:"category"`
	Fingerprint string      `json:"fingerprint"`
	Status      EventStatus `json:"status"`
	PublishID   string      `json:"publish_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RawEvent is what an extractor hands back before normalization. Text
// fields are taken as-is from the source; Start and End win over their
// textual counterparts when set.
type RawEvent struct {
	Title       string
	Description string
	Start       *time.Time
	StartText   string
	End         *time.Time
	EndText     string
	Venue       string
	Address     string
	City        string
	PriceText   string
	PriceTier   string
	PriceAmount *float64
	ImageURL    string
	SourceURL   string
	Category    string
	BaseURL     string
}

// Job is the unit carried by the work queue.
type Job struct {
	TargetReference string     `json:"target_reference"`
	SourceKind      SourceKind `json:"source_kind"`
	TaskID          int64      `json:"enqueued_task_id"`
}

// ExtractResult is the outcome of one extraction. Healthy marks an empty
// result as legitimate (the source simply lists nothing right now).
type ExtractResult struct {
	Events  []RawEvent
	Healthy bool
}

func Found(events []RawEvent) ExtractResult {
	return ExtractResult{Events: events, Healthy: len(events) > 0}
}

func Empty() ExtractResult {
	return ExtractResult{Healthy: true}
}

type Extractor interface {
	Kind() SourceKind
	Extract(ctx context.Context, target string) (ExtractResult, error)
}

// Package publish promotes DRAFT events to an external system.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"

	"evently/internal/storage"
	"evently/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher pushes one event out and returns the id it was given there.
type Publisher interface {
	Publish(ctx context.Context, event types.Event) (string, error)
}

// Promote publishes a DRAFT event and records it as PUBLISHED.
func Promote(ctx context.Context, events storage.EventStore, publisher Publisher, eventID int64) (types.Event, error) {
	event, err := events.Get(ctx, eventID)
	if err != nil {
		return types.Event{}, err
	}
	if event.Status != types.EventDraft {
		return event, fmt.Errorf("event %d is %s, only DRAFT events can be published", eventID, event.Status)
	}

	externalID, err := publisher.Publish(ctx, event)
	if err != nil {
		return event, fmt.Errorf("failed to publish event %d: %w", eventID, err)
	}
	if externalID == "" {
		return event, fmt.Errorf("publisher returned no id for event %d", eventID)
	}

	if err := events.MarkPublished(ctx, eventID, externalID); err != nil {
		return event, err
	}

	event.Status = types.EventPublished
	event.PublishID = externalID
	return event, nil
}

// HTTPPublisher posts the event as JSON to a CMS endpoint and reads the
// created id from the response.
type HTTPPublisher struct {
	client   *retryablehttp.Client
	endpoint string
	token    string
}

func NewHTTPPublisher(client *retryablehttp.Client, endpoint, token string) (*HTTPPublisher, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("publish: endpoint is required")
	}
	return &HTTPPublisher{client: client, endpoint: endpoint, token: token}, nil
}

type publishResponse struct {
	ID interface{} `json:"id"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, event types.Event) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("publish endpoint returned status %d", resp.StatusCode)
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode publish response: %w", err)
	}

	switch id := out.ID.(type) {
	case string:
		return id, nil
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	}
	return "", nil
}

// Package events publishes catalog synchronization events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// JSONDataContentType is the content type of every event payload.
	JSONDataContentType = "application/json"
	// SyncedEventType identifies a finished reconcile cycle.
	SyncedEventType = "catalog.characters.synced"

	eventSource = "rickandmorty-catalog"
)

// Event is a CloudEvents-shaped envelope.
type Event struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// SyncedData is the payload of a catalog.characters.synced event.
type SyncedData struct {
	LoadType        string `json:"loadType"`
	FilterKey       string `json:"filterKey"`
	Page            int    `json:"page"`
	Count           int    `json:"count"`
	EndOfPagination bool   `json:"endOfPagination"`
}

var marshalEventData = json.Marshal

// NewSyncedEvent builds the event emitted after a successful cycle. The
// subject is the canonical filter key, or "all" for the empty filter.
func NewSyncedEvent(data SyncedData, now time.Time) (Event, error) {
	loadType := strings.TrimSpace(data.LoadType)
	if loadType == "" {
		return Event{}, fmt.Errorf("load type is required")
	}

	payload, err := marshalEventData(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling synced payload: %w", err)
	}

	subject := data.FilterKey
	if subject == "" {
		subject = "all"
	}

	return Event{
		ID:              "evt-" + uuid.NewString(),
		Source:          eventSource,
		Type:            SyncedEventType,
		Subject:         subject,
		Time:            now.UTC(),
		DataContentType: JSONDataContentType,
		Data:            payload,
	}, nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// Publish discards event.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }

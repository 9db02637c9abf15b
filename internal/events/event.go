// Package events is the C6 event bus: typed events fanned out, per event
// type, to registered listener functions either synchronously on the
// caller's goroutine or asynchronously on a daemon worker pool, ported
// from internal/realtime/bus.go's subscriber-broadcast design but
// generalized from push-to-SSE-subscriber to call-a-listener-function.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a typed occurrence published on the bus, per spec.md §4.5:
// {type, source, data, timestamp}.
type Event struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
}

// Well-known event types CORDAL itself emits.
const (
	TypeConfigurationChanged = "configuration.changed"
)

const SourceManagement = "management"

func New(eventType string, data map[string]any, source string) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}
}

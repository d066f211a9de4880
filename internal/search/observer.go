package search

import (
	"context"
	"time"
)

// EventType names a search lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event describes one step of a search's lifecycle.
type Event struct {
	Type       EventType   `json:"type"`
	SearchID   string      `json:"search_id"`
	Pattern    PatternSpec `json:"pattern"`
	Repos      int         `json:"repos"`
	Matches    int         `json:"matches,omitempty"`
	ErrorKind  Kind        `json:"error_kind,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Observer receives search lifecycle events. Observe is called synchronously
// on the searching goroutine and must not block.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

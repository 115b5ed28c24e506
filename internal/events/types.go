// Package events publishes run lifecycle events to in-process subscribers.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RunStarted   EventType = "RUN_STARTED"
	RunProgress  EventType = "RUN_PROGRESS"
	RunCompleted EventType = "RUN_COMPLETED"
	RunFailed    EventType = "RUN_FAILED"
)

// Terminal reports whether no further events follow this one for a run.
func (t EventType) Terminal() bool {
	return t == RunCompleted || t == RunFailed
}

// Event is one published event.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
}

// Package streaming provides pub/sub fan-out of run events to live
// subscribers, independent of the durable event log.
package streaming

import "context"

// StreamEvent is a real-time event emitted during a workflow run.
type StreamEvent struct {
	RunID     string         `json:"run_id"`
	StepID    string         `json:"step_id,omitempty"`
	EventType string         `json:"event_type"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

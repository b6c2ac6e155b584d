package streaming

import (
	"context"

	"github.com/renderflow/engine/internal/engine"
)

// Recorder publishes every recorded event to a hub and then forwards it to
// an optional durable recorder. It lets live subscribers see run events
// without waiting for the event log.
type Recorder struct {
	hub  EventHub
	next engine.RunRecorder
}

// NewRecorder creates a Recorder that fans out to hub, then to next.
// next may be nil for stream-only setups.
func NewRecorder(hub EventHub, next engine.RunRecorder) *Recorder {
	return &Recorder{hub: hub, next: next}
}

// RecordEvent implements engine.RunRecorder. Publish failures never block
// the run; the durable recorder's error is the one that propagates.
func (r *Recorder) RecordEvent(ctx context.Context, runID, eventType, stepID string, detail map[string]any) error {
	_ = r.hub.Publish(ctx, StreamEvent{
		RunID:     runID,
		StepID:    stepID,
		EventType: eventType,
		Detail:    detail,
	})
	if r.next == nil {
		return nil
	}
	return r.next.RecordEvent(ctx, runID, eventType, stepID, detail)
}

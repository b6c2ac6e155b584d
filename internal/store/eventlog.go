package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/renderflow/engine/pkg/schema"
)

// RecordEvent appends a run history event with a monotonically increasing
// per-run sequence. A single transaction covers the sequence read and the
// insert so concurrent writers cannot interleave.
func (s *LibSQL) RecordEvent(ctx context.Context, runID, eventType, stepID string, detail map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, runID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	var detailJSON sql.NullString
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		detailJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, step_id, event_type, detail, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, nullStr(stepID), eventType, detailJSON, time.Now().UTC(), seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// Events returns a run's events with sequence > since, ordered by sequence.
func (s *LibSQL) Events(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step_id, event_type, detail, timestamp, sequence
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var stepID, detailJSON sql.NullString
		if err := rows.Scan(&e.RunID, &stepID, &e.Type, &detailJSON, &e.Timestamp, &e.Sequence); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.StepID = stepID.String
		if detailJSON.Valid {
			_ = json.Unmarshal([]byte(detailJSON.String), &e.Detail)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs lists the most recent runs, newest first, derived from the event log.
func (s *LibSQL) Runs(ctx context.Context, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id,
		        MIN(timestamp),
		        MAX(CASE WHEN event_type IN (?, ?) THEN timestamp END),
		        MAX(CASE WHEN event_type = ? THEN 1 ELSE 0 END),
		        SUM(CASE WHEN step_id IS NOT NULL THEN 1 ELSE 0 END)
		 FROM run_events GROUP BY run_id ORDER BY MIN(timestamp) DESC LIMIT ?`,
		schema.EventWorkflowCompleted, schema.EventWorkflowFailed,
		schema.EventWorkflowFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*RunSummary
	for rows.Next() {
		r := &RunSummary{}
		var completed sql.NullTime
		var failed int
		if err := rows.Scan(&r.RunID, &r.StartedAt, &completed, &failed, &r.StepEvents); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		switch {
		case !completed.Valid:
			r.Status = "running"
		case failed == 1:
			r.Status = "failed"
		default:
			r.Status = "completed"
		}
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplayRun reconstructs per-step states from a run's event stream. A
// sequence gap means lost events and is an error.
func (s *LibSQL) ReplayRun(ctx context.Context, runID string) (map[string]*StepState, error) {
	events, err := s.Events(ctx, runID, 0)
	if err != nil {
		return nil, err
	}

	states := make(map[string]*StepState)
	for i, e := range events {
		if e.Sequence != int64(i+1) {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"sequence gap in run %s: expected %d, got %d", runID, i+1, e.Sequence)
		}
		if e.StepID == "" {
			continue
		}

		ss, ok := states[e.StepID]
		if !ok {
			ss = &StepState{StepID: e.StepID}
			states[e.StepID] = ss
		}

		switch e.Type {
		case schema.EventStepStarted:
			ss.Status = StepStatusRunning
			ts := e.Timestamp
			ss.StartedAt = &ts
		case schema.EventStepCompleted:
			ss.Status = StepStatusCompleted
			ts := e.Timestamp
			ss.CompletedAt = &ts
			if ss.StartedAt != nil {
				ss.DurationMs = ts.Sub(*ss.StartedAt).Milliseconds()
			}
		case schema.EventStepFailed:
			ss.Status = StepStatusFailed
			if msg, ok := e.Detail["error"].(string); ok {
				ss.Error = msg
			}
		case schema.EventStepSkipped:
			ss.Status = StepStatusSkipped
		}
	}
	return states, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

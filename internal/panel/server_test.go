package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/store"
	"github.com/renderflow/engine/internal/streaming"
	"github.com/renderflow/engine/pkg/schema"
)

type fakeHistory struct {
	runs   []*store.RunSummary
	events map[string][]*store.RunEvent
	states map[string]map[string]*store.StepState
	err    error
}

func (f *fakeHistory) Runs(_ context.Context, limit int) ([]*store.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeHistory) Events(_ context.Context, runID string, since int64) ([]*store.RunEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*store.RunEvent
	for _, e := range f.events[runID] {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) ReplayRun(_ context.Context, runID string) (map[string]*store.StepState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.states[runID], nil
}

func seededHistory() *fakeHistory {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeHistory{
		runs: []*store.RunSummary{
			{RunID: "run-1", Status: "completed", StartedAt: started, StepEvents: 4},
			{RunID: "run-2", Status: "running", StartedAt: started.Add(time.Minute)},
		},
		events: map[string][]*store.RunEvent{
			"run-1": {
				{RunID: "run-1", Type: schema.EventWorkflowStarted, Sequence: 1},
				{RunID: "run-1", StepID: "viewport", Type: schema.EventStepStarted, Sequence: 2},
				{RunID: "run-1", StepID: "viewport", Type: schema.EventStepCompleted, Sequence: 3},
				{RunID: "run-1", Type: schema.EventWorkflowCompleted, Sequence: 4},
			},
		},
		states: map[string]map[string]*store.StepState{
			"run-1": {
				"viewport": {StepID: "viewport", Status: store.StepStatusCompleted},
			},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRunsEndpoint(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/api/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestRunsEndpointHonorsLimit(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/api/runs?limit=1")

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestRunEventsEndpoint(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/api/runs/run-1/events?since=2")

	require.Equal(t, http.StatusOK, rec.Code)
	var events []*store.RunEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, schema.EventStepCompleted, events[0].Type)
}

func TestRunEventsUnknownRunIs404(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/api/runs/nope/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStepsEndpoint(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/api/runs/run-1/steps")

	require.Equal(t, http.StatusOK, rec.Code)
	var states map[string]*store.StepState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Contains(t, states, "viewport")
	assert.Equal(t, store.StepStatusCompleted, states["viewport"].Status)
}

func TestHistoryErrorIs500(t *testing.T) {
	srv := NewServer(Deps{History: &fakeHistory{err: fmt.Errorf("db locked")}})
	rec := get(t, srv.Handler(), "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSSEStreamsPublishedEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	srv := NewServer(Deps{History: seededHistory(), Hub: hub})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse/runs/run-9", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), streaming.StreamEvent{
		RunID:     "run-9",
		StepID:    "frame",
		EventType: schema.EventFrameSubmitted,
	}))

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	assert.Equal(t, "event: "+schema.EventFrameSubmitted, eventLine)
	var got streaming.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &got))
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, "frame", got.StepID)
}

func TestSSERoutesDisabledWithoutHub(t *testing.T) {
	srv := NewServer(Deps{History: seededHistory()})
	rec := get(t, srv.Handler(), "/sse/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

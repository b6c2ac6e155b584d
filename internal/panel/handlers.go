package panel

import (
	"fmt"
	"net/http"

	"github.com/renderflow/engine/internal/store"
)

const defaultRunLimit = 50

// handleRuns lists recent runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRunLimit)

	runs, err := s.deps.History.Runs(r.Context(), limit)
	if err != nil {
		s.deps.Logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunEvents returns a run's event log, ordered by sequence.
// ?since=N skips events up to and including sequence N.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	since := queryInt64(r, "since", 0)

	events, err := s.deps.History.Events(r.Context(), runID, since)
	if err != nil {
		s.deps.Logger.Error("list run events", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list events: %v", err))
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no events for run %q", runID))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleRunSteps replays a run's event log into per-step states.
func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	states, err := s.deps.History.ReplayRun(r.Context(), runID)
	if err != nil {
		s.deps.Logger.Error("replay run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("replay run: %v", err))
		return
	}
	if len(states) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no step events for run %q", runID))
		return
	}
	writeJSON(w, http.StatusOK, states)
}

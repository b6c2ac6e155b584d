// Package panel serves the run-history HTTP API and live event streams.
package panel

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/renderflow/engine/internal/store"
	"github.com/renderflow/engine/internal/streaming"
)

// RunHistory is the slice of the event store the panel reads from.
// Satisfied by *store.LibSQL.
type RunHistory interface {
	Runs(ctx context.Context, limit int) ([]*store.RunSummary, error)
	Events(ctx context.Context, runID string, since int64) ([]*store.RunEvent, error)
	ReplayRun(ctx context.Context, runID string) (map[string]*store.StepState, error)
}

// Deps holds the dependencies for the panel server.
type Deps struct {
	History RunHistory
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// Server exposes run history and live run events over HTTP.
type Server struct {
	deps Deps
}

// NewServer creates a panel Server. A nil Hub disables the SSE routes
// and a nil History disables the /api routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.deps.History != nil {
		mux.HandleFunc("GET /api/runs", s.handleRuns)
		mux.HandleFunc("GET /api/runs/{id}/events", s.handleRunEvents)
		mux.HandleFunc("GET /api/runs/{id}/steps", s.handleRunSteps)
	}

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
		mux.HandleFunc("GET /sse/runs/{id}", s.handleSSERun)
	}

	return mux
}

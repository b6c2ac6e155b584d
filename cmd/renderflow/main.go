// renderflow runs workflow documents against the rendering step engine.
//
// Usage:
//
//	renderflow run workflow.json            one-shot execution
//	renderflow run --every 16ms workflow.hcl  repeated execution (frame loop)
//	renderflow validate workflow.json       validation only
//	renderflow graph workflow.json          print a Mermaid diagram
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderflow/engine/internal/diagram"
	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/logging"
	"github.com/renderflow/engine/internal/metrics"
	"github.com/renderflow/engine/internal/panel"
	"github.com/renderflow/engine/internal/registrar"
	"github.com/renderflow/engine/internal/scheduler"
	"github.com/renderflow/engine/internal/store"
	"github.com/renderflow/engine/internal/streaming"
	"github.com/renderflow/engine/internal/validation"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/internal/workflow"
	"github.com/renderflow/engine/pkg/schema"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	command := args[0]

	cfg := loadConfig()
	fs := flag.NewFlagSet("renderflow", flag.ContinueOnError)
	every := fs.String("every", "", "re-run the workflow on an interval (16ms) or cron schedule (@hourly)")
	dbPath := fs.String("db", cfg.DBPath, "run history database path (empty disables)")
	metricsAddr := fs.String("metrics", cfg.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	serveAddr := fs.String("serve", cfg.ServeAddr, "run history API listen address (empty disables)")
	runID := fs.String("run", "", "graph only: overlay step states from a recorded run")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		usage()
		return 2
	}
	path := fs.Arg(0)

	logger := newLogger(*logLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := registrar.Options{Logger: logger}

	needsDB := command == "run" || (command == "graph" && *runID != "")

	var history *store.LibSQL
	if *dbPath != "" && needsDB {
		var err error
		history, err = store.Open(ctx, "file:"+*dbPath)
		if err != nil {
			logger.Error("open run history store", "path", *dbPath, "error", err)
			return 1
		}
		defer history.Close()
		opts.Recorder = history
	}

	var hub *streaming.MemoryHub
	if command == "run" && *serveAddr != "" {
		hub = streaming.NewMemoryHub()
		opts.Recorder = streaming.NewRecorder(hub, opts.Recorder)
	}

	if command == "run" && *metricsAddr != "" {
		opts.Observer = metrics.New(prometheus.DefaultRegisterer)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serveHTTP(logger, "metrics", *metricsAddr, mux)
	}

	reg, exec, err := registrar.New(opts)
	if err != nil {
		logger.Error("assemble engine", "error", err)
		return 1
	}

	validator, err := validation.NewWorkflowValidator(reg)
	if err != nil {
		logger.Error("build validator", "error", err)
		return 1
	}
	def, err := workflow.NewLoader(validator).Load(path)
	if err != nil {
		logger.Error("load workflow", "path", path, "error", err)
		return 1
	}

	switch command {
	case "validate":
		fmt.Printf("%s: ok (%d steps)\n", path, len(def.Steps))
		return 0
	case "graph":
		return printGraph(ctx, logger, def, history, *runID)
	case "run":
		if *serveAddr != "" {
			deps := panel.Deps{Hub: hub, Logger: logger}
			if history != nil {
				deps.History = history
			}
			srv := panel.NewServer(deps)
			go serveHTTP(logger, "run history API", *serveAddr, srv.Handler())
		}
		if *every != "" {
			return runRepeated(ctx, logger, exec, def, *every)
		}
		return runOnce(ctx, exec, def)
	default:
		usage()
		return 2
	}
}

func runOnce(ctx context.Context, exec *engine.Executor, def *schema.WorkflowDefinition) int {
	wc := wfctx.New()
	if _, err := exec.Run(ctx, def, wc); err != nil {
		return 1
	}
	return 0
}

// runRepeated drives the workflow on a schedule until interrupted.
func runRepeated(ctx context.Context, logger *slog.Logger, exec *engine.Executor, def *schema.WorkflowDefinition, every string) int {
	s := scheduler.New(exec, logger)
	if err := s.Start(ctx, def, wfctx.New(), every); err != nil {
		logger.Error("start scheduler", "error", err)
		return 2
	}

	<-ctx.Done()
	s.Stop()
	return 0
}

// printGraph writes a Mermaid flowchart of the workflow to stdout. With
// --run, replayed step states from the run history color the nodes.
func printGraph(ctx context.Context, logger *slog.Logger, def *schema.WorkflowDefinition, history *store.LibSQL, runID string) int {
	var states map[string]*store.StepState
	if runID != "" {
		if history == nil {
			logger.Error("--run requires a run history database")
			return 2
		}
		var err error
		states, err = history.ReplayRun(ctx, runID)
		if err != nil {
			logger.Error("replay run", "run_id", runID, "error", err)
			return 1
		}
	}

	fmt.Print(diagram.RenderMermaid(diagram.Build(def, states)))
	return 0
}

func serveHTTP(logger *slog.Logger, name, addr string, handler http.Handler) {
	logger.Info(name+" listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error(name+" server error", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  renderflow run [flags] <workflow.json|workflow.hcl>
  renderflow validate <workflow.json|workflow.hcl>
  renderflow graph [--run <id>] <workflow.json|workflow.hcl>

flags:
  --every <schedule>   re-run the workflow on an interval (16ms) or cron schedule (@hourly)
  --db <path>          run history database path (empty disables)
  --metrics <addr>     Prometheus /metrics listen address
  --serve <addr>       run history API listen address
  --run <id>           graph only: overlay step states from a recorded run
  --log-level <level>  debug, info, warn or error`)
}

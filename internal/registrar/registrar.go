// Package registrar is the composition root. It assembles the registry and
// executor, builds the shared expression engines and registers every built-in
// step against a single GPU device factory.
package registrar

import (
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/gpu/native"
	"github.com/renderflow/engine/internal/steps/control"
	"github.com/renderflow/engine/internal/steps/geometry"
	"github.com/renderflow/engine/internal/steps/graphics"
	"github.com/renderflow/engine/internal/steps/physics"
	"github.com/renderflow/engine/internal/steps/primitives"
	"github.com/renderflow/engine/internal/steps/render"
)

// Options configures the assembled engine. The zero value gives a native GPU
// device, no run history and no telemetry.
type Options struct {
	Logger *slog.Logger

	// DeviceFactory overrides how graphics.gpu.init opens a device.
	// Defaults to the native wgpu backend.
	DeviceFactory graphics.DeviceFactory

	// Recorder persists run history events when set.
	Recorder engine.RunRecorder

	// Observer receives step and workflow telemetry when set.
	Observer engine.Observer
}

// New builds a registry with all built-in steps and an executor over it.
func New(opts Options) (*engine.Registry, *engine.Executor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := opts.DeviceFactory
	if factory == nil {
		factory = func(backend gpu.Backend, width, height int) (gpu.Device, error) {
			return native.Open(backend, width, height)
		}
	}

	reg := engine.NewRegistry(logger)

	var execOpts []engine.ExecutorOption
	if opts.Recorder != nil {
		execOpts = append(execOpts, engine.WithRecorder(opts.Recorder))
	}
	if opts.Observer != nil {
		execOpts = append(execOpts, engine.WithObserver(opts.Observer))
	}
	exec := engine.NewExecutor(reg, logger, execOpts...)

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, nil, err
	}
	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()

	var steps []engine.Step
	steps = append(steps, control.Steps(exec, cel)...)
	steps = append(steps, graphics.Steps(logger, factory)...)
	steps = append(steps, geometry.Steps(logger)...)
	steps = append(steps, physics.Steps(logger)...)
	steps = append(steps, render.Steps(logger)...)
	steps = append(steps, primitives.Steps(logger, exprEngine, jqEngine)...)

	for _, s := range steps {
		if err := reg.Register(s); err != nil {
			return nil, nil, err
		}
	}

	logger.Info("steps registered", slog.Int("count", reg.Count()))
	return reg, exec, nil
}

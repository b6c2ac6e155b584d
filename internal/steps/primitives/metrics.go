package primitives

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

type metricSeries struct {
	count int
	sum   float64
	min   float64
	max   float64
}

// DebugMetrics records ad hoc numeric series from the workflow and answers
// aggregate queries over them. The default "log" operation dumps the frame
// state instead; it is the cheap way to watch a frame loop from the log.
//
// Series live in the step instance, so they span runs within one process
// but never leak across processes.
type DebugMetrics struct {
	logger *slog.Logger

	mu     sync.Mutex
	series map[string]*metricSeries
}

// NewDebugMetrics returns a DebugMetrics step with empty series.
func NewDebugMetrics(logger *slog.Logger) *DebugMetrics {
	return &DebugMetrics{logger: logger, series: make(map[string]*metricSeries)}
}

func (s *DebugMetrics) PluginID() string { return "debug.metrics" }

func (s *DebugMetrics) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	op := strings.ToLower(engine.ParamString(def, "operation", "log"))
	switch op {
	case "log":
		s.logger.InfoContext(ctx, "frame state",
			"frame", wc.GetInt(keys.FrameNumber, 0),
			"draw_calls", wc.GetInt(keys.FrameDraws, 0),
			"elapsed", wc.GetFloat(keys.FrameElapsed, 0),
			"context_keys", wc.Len())
		return nil
	case "record":
		return s.record(ctx, def, wc)
	case "aggregate":
		return s.aggregate(def, wc)
	case "reset":
		name, err := s.metricName(def, wc)
		if err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.series, name)
		s.mu.Unlock()
		return nil
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown metrics operation %q", op)
	}
}

func (s *DebugMetrics) metricName(def *schema.StepDefinition, wc *wfctx.Context) (string, error) {
	key, err := engine.InputKey(def, "metric_name")
	if err != nil {
		return "", err
	}
	name := wc.GetString(key, "")
	if name == "" {
		return "", schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", key)
	}
	return name, nil
}

func (s *DebugMetrics) record(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	name, err := s.metricName(def, wc)
	if err != nil {
		return err
	}
	valueKey, err := engine.InputKey(def, "metric_value")
	if err != nil {
		return err
	}
	raw, ok := wc.Get(valueKey)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", valueKey)
	}
	value, ok := asNumber(raw)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "metric value %q must be numeric", valueKey)
	}

	s.mu.Lock()
	series, ok := s.series[name]
	if !ok {
		series = &metricSeries{min: value, max: value}
		s.series[name] = series
	}
	series.count++
	series.sum += value
	if value < series.min {
		series.min = value
	}
	if value > series.max {
		series.max = value
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "metric recorded", "metric", name, "value", value)
	return nil
}

func (s *DebugMetrics) aggregate(def *schema.StepDefinition, wc *wfctx.Context) error {
	name, err := s.metricName(def, wc)
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "result")
	if err != nil {
		return err
	}
	aggType := strings.ToLower(engine.ParamString(def, "agg_type", "avg"))

	s.mu.Lock()
	series, ok := s.series[name]
	s.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "no data recorded for metric %q", name)
	}

	var result float64
	switch aggType {
	case "min":
		result = series.min
	case "max":
		result = series.max
	case "sum":
		result = series.sum
	case "count":
		result = float64(series.count)
	default: // avg
		if series.count > 0 {
			result = series.sum / float64(series.count)
		}
	}

	wc.Set(outKey, result)
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

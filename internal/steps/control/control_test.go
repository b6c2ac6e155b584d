package control

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/expressions"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// appendStep records each invocation, tagging it with the current item and
// index so loop ordering is observable.
type appendStep struct {
	calls *[]string
	fail  bool
}

func (s *appendStep) PluginID() string { return "test.append" }

func (s *appendStep) Execute(_ context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	if s.fail {
		return schema.NewError(schema.ErrCodeExecution, "append exploded")
	}
	tag := engine.ParamString(def, "tag", "step")
	if item, ok := wc.Get("item"); ok {
		if idx, ok := wc.Get("item.index"); ok {
			tag = tag + ":" + itemLabel(item, idx)
		}
	}
	*s.calls = append(*s.calls, tag)
	return nil
}

func itemLabel(item, idx any) string {
	s, _ := item.(string)
	i, _ := idx.(int)
	return s + "@" + string(rune('0'+i))
}

func newHarness(t *testing.T, extra ...engine.Step) (*engine.Executor, *[]string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := engine.NewRegistry(logger)
	exec := engine.NewExecutor(reg, logger)

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	for _, s := range Steps(exec, cel) {
		reg.Register(s)
	}
	calls := &[]string{}
	reg.Register(&appendStep{calls: calls})
	for _, s := range extra {
		reg.Register(s)
	}
	return exec, calls
}

func step(plugin string, params map[string]any) schema.StepDefinition {
	return schema.StepDefinition{Plugin: plugin, Params: params}
}

func TestIfElseTakesBodyWhenConditionHolds(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("ready", true)

	def := schema.StepDefinition{
		Plugin: "control.if_else",
		Params: map[string]any{"condition": "ctx.ready == true"},
		Body:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "then"})},
		Else:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "else"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"then"}, *calls)
}

func TestIfElseTakesElseBranch(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("ready", false)

	def := schema.StepDefinition{
		Plugin: "control.if_else",
		Params: map[string]any{"condition": "ctx.ready == true"},
		Body:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "then"})},
		Else:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "else"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"else"}, *calls)
}

func TestIfElseConditionFromContextKey(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("flags.enabled", true)

	def := schema.StepDefinition{
		Plugin: "control.if_else",
		Inputs: map[string]string{"condition": "flags.enabled"},
		Body:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "then"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"then"}, *calls)
}

func TestIfElseRequiresCondition(t *testing.T) {
	exec, _ := newHarness(t)
	def := schema.StepDefinition{
		Plugin: "control.if_else",
		Body:   []schema.StepDefinition{step("test.append", nil)},
	}
	err := exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wfctx.New())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestSwitchSelectsMatchingCase(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("render.mode", "wireframe")

	def := schema.StepDefinition{
		Plugin: "control.switch",
		Inputs: map[string]string{"value": "render.mode"},
		Cases: map[string][]schema.StepDefinition{
			"solid":     {step("test.append", map[string]any{"tag": "solid"})},
			"wireframe": {step("test.append", map[string]any{"tag": "wire"})},
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"wire"}, *calls)
}

func TestSwitchFallsThroughToDefault(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("render.mode", "points")

	def := schema.StepDefinition{
		Plugin: "control.switch",
		Inputs: map[string]string{"value": "render.mode"},
		Cases: map[string][]schema.StepDefinition{
			"solid":   {step("test.append", map[string]any{"tag": "solid"})},
			"default": {step("test.append", map[string]any{"tag": "fallback"})},
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"fallback"}, *calls)
}

func TestSwitchCoercesNumbersAndBools(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("sample.count", float64(4))

	def := schema.StepDefinition{
		Plugin: "control.switch",
		Inputs: map[string]string{"value": "sample.count"},
		Cases: map[string][]schema.StepDefinition{
			"4": {step("test.append", map[string]any{"tag": "msaa4"})},
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"msaa4"}, *calls)

	wc.Set("vsync", true)
	def = schema.StepDefinition{
		Plugin: "control.switch",
		Inputs: map[string]string{"value": "vsync"},
		Cases: map[string][]schema.StepDefinition{
			"true": {step("test.append", map[string]any{"tag": "vsync-on"})},
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"msaa4", "vsync-on"}, *calls)
}

func TestSwitchNoMatchNoDefaultIsNoop(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("render.mode", "points")

	def := schema.StepDefinition{
		Plugin: "control.switch",
		Inputs: map[string]string{"value": "render.mode"},
		Cases: map[string][]schema.StepDefinition{
			"solid": {step("test.append", map[string]any{"tag": "solid"})},
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Empty(t, *calls)
}

func TestWhileRunsUntilConditionFails(t *testing.T) {
	exec, calls := newHarness(t, &incrementStep{})
	wc := wfctx.New()
	wc.Set("counter", 0)

	def := schema.StepDefinition{
		Plugin: "control.while",
		Params: map[string]any{"condition": "ctx.counter < 3"},
		Body: []schema.StepDefinition{
			step("test.append", map[string]any{"tag": "tick"}),
			step("test.increment", map[string]any{"key": "counter"}),
		},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{"tick", "tick", "tick"}, *calls)

	iter, ok := wc.Get(keys.LoopIteration)
	require.True(t, ok)
	assert.Equal(t, 2, iter)
}

func TestWhileEnforcesIterationBound(t *testing.T) {
	exec, _ := newHarness(t)
	wc := wfctx.New()
	wc.Set("forever", true)

	def := schema.StepDefinition{
		Plugin: "control.while",
		Params: map[string]any{"condition": "ctx.forever", "max_iterations": 5},
		Body:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "spin"})},
	}
	err := exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestForEachVisitsEveryElementInOrder(t *testing.T) {
	exec, calls := newHarness(t)
	wc := wfctx.New()
	wc.Set("stages", []any{"shadow", "opaque", "ssao", "bloom", "composite"})

	def := schema.StepDefinition{
		Plugin: "control.for_each",
		Inputs: map[string]string{"items": "stages"},
		Body:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "run"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []string{
		"run:shadow@0", "run:opaque@1", "run:ssao@2", "run:bloom@3", "run:composite@4",
	}, *calls)
}

func TestForEachCustomItemVar(t *testing.T) {
	cap := &captureStep{}
	exec, _ := newHarness(t, cap)
	wc := wfctx.New()
	wc.Set("passes", []string{"a", "b"})

	def := schema.StepDefinition{
		Plugin: "control.for_each",
		Inputs: map[string]string{"items": "passes"},
		Params: map[string]any{"item_var": "pass"},
		Body:   []schema.StepDefinition{step("test.capture", map[string]any{"key": "pass"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))
	assert.Equal(t, []any{"a", "b"}, cap.seen)

	idx, ok := wc.Get("pass.index")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestForEachRejectsNonList(t *testing.T) {
	exec, _ := newHarness(t)
	wc := wfctx.New()
	wc.Set("stages", "not-a-list")

	def := schema.StepDefinition{
		Plugin: "control.for_each",
		Inputs: map[string]string{"items": "stages"},
		Body:   []schema.StepDefinition{step("test.append", nil)},
	}
	err := exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestTryCatchCapturesFailure(t *testing.T) {
	exec, calls := newHarness(t, &failingStep{})

	wc := wfctx.New()
	def := schema.StepDefinition{
		Plugin: "control.try_catch",
		Body:   []schema.StepDefinition{{Plugin: "test.fail"}},
		Else:   []schema.StepDefinition{step("test.append", map[string]any{"tag": "recovered"})},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))

	msg, ok := wc.Get("error.message")
	require.True(t, ok)
	assert.Contains(t, msg.(string), "boom")
	assert.Equal(t, []string{"recovered"}, *calls)
}

func TestTryCatchWithoutHandlerSwallowsError(t *testing.T) {
	exec, _ := newHarness(t, &failingStep{})

	wc := wfctx.New()
	def := schema.StepDefinition{
		Plugin: "control.try_catch",
		Params: map[string]any{"error_output": "last.error"},
		Body:   []schema.StepDefinition{{Plugin: "test.fail"}},
	}
	require.NoError(t, exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc))

	msg, ok := wc.Get("last.error")
	require.True(t, ok)
	assert.Contains(t, msg.(string), "boom")
}

func TestTryCatchPropagatesHandlerFailure(t *testing.T) {
	exec, _ := newHarness(t, &failingStep{})
	wc := wfctx.New()
	def := schema.StepDefinition{
		Plugin: "control.try_catch",
		Body:   []schema.StepDefinition{{Plugin: "test.fail"}},
		Else:   []schema.StepDefinition{{Plugin: "test.fail"}},
	}
	err := exec.RunSteps(context.Background(), []schema.StepDefinition{def}, wc)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

type incrementStep struct{}

func (s *incrementStep) PluginID() string { return "test.increment" }

func (s *incrementStep) Execute(_ context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	key := engine.ParamString(def, "key", "counter")
	wc.Set(key, wc.GetInt(key, 0)+1)
	return nil
}

type failingStep struct{}

func (s *failingStep) PluginID() string { return "test.fail" }

func (s *failingStep) Execute(context.Context, *schema.StepDefinition, *wfctx.Context) error {
	return schema.NewError(schema.ErrCodeExecution, "boom")
}

type captureStep struct {
	seen []any
}

func (s *captureStep) PluginID() string { return "test.capture" }

func (s *captureStep) Execute(_ context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	key := engine.ParamString(def, "key", "item")
	v, _ := wc.Get(key)
	s.seen = append(s.seen, v)
	return nil
}

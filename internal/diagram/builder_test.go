package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/store"
	"github.com/renderflow/engine/pkg/schema"
)

func renderLoopDef() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name: "frame-loop",
		Steps: []schema.StepDefinition{
			{
				ID:     "viewport",
				Plugin: "graphics.viewport.init",
				Params: map[string]any{"width": 800.0, "height": 600.0},
			},
			{
				ID:     "loop",
				Plugin: "control.while",
				Params: map[string]any{"condition": "ctx.frame_number < 3"},
				Body: []schema.StepDefinition{
					{ID: "begin", Plugin: "graphics.frame.begin"},
					{ID: "end", Plugin: "graphics.frame.end"},
				},
			},
		},
	}
}

func TestBuildChainsTopLevelSteps(t *testing.T) {
	model := Build(renderLoopDef(), nil)

	assert.Equal(t, "frame-loop", model.Title)
	require.Len(t, model.Nodes, 4) // start, viewport, loop, end
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, "viewport", model.Nodes[1].ID)
	assert.Equal(t, NodeKindEnd, model.Nodes[3].Kind)

	require.Len(t, model.Edges, 3)
	assert.Equal(t, Edge{From: "__start__", To: "viewport"}, model.Edges[0])
	assert.Equal(t, Edge{From: "viewport", To: "loop"}, model.Edges[1])
	assert.Equal(t, Edge{From: "loop", To: "__end__"}, model.Edges[2])
}

func TestBuildNestsControlBodies(t *testing.T) {
	model := Build(renderLoopDef(), nil)

	loop := model.Nodes[2]
	assert.Equal(t, NodeKindLoop, loop.Kind)
	require.Len(t, loop.Children, 1)

	body := loop.Children[0]
	assert.Equal(t, "body", body.Label)
	require.Len(t, body.Nodes, 2)
	assert.Equal(t, "loop.body.begin", body.Nodes[0].ID)
	require.Len(t, body.Edges, 1)
	assert.Equal(t, "loop.body.begin", body.Edges[0].From)
	assert.Equal(t, "loop.body.end", body.Edges[0].To)
}

func TestBuildSwitchCasesAreSorted(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Steps: []schema.StepDefinition{
			{
				ID:     "mode",
				Plugin: "control.switch",
				Cases: map[string][]schema.StepDefinition{
					"ldr": {{ID: "tonemap", Plugin: "value.set"}},
					"hdr": {{ID: "expose", Plugin: "value.set"}},
				},
			},
		},
	}

	model := Build(def, nil)
	mode := model.Nodes[1]
	assert.Equal(t, NodeKindCondition, mode.Kind)
	require.Len(t, mode.Children, 2)
	assert.Equal(t, "hdr", mode.Children[0].Label)
	assert.Equal(t, "ldr", mode.Children[1].Label)
}

func TestBuildNamesAnonymousSteps(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Steps: []schema.StepDefinition{
			{Plugin: "graphics.frame.begin"},
			{Plugin: "graphics.frame.end"},
		},
	}

	model := Build(def, nil)
	assert.Equal(t, "graphics.frame.begin_0", model.Nodes[1].ID)
	assert.Equal(t, "graphics.frame.end_1", model.Nodes[2].ID)
	assert.Equal(t, "Workflow", model.Title)
}

func TestBuildOverlaysReplayedStates(t *testing.T) {
	states := map[string]*store.StepState{
		"viewport": {StepID: "viewport", Status: store.StepStatusCompleted, DurationMs: 3},
		"begin":    {StepID: "begin", Status: store.StepStatusFailed, Error: "device lost"},
	}

	model := Build(renderLoopDef(), states)

	require.NotNil(t, model.Nodes[1].Status)
	assert.Equal(t, store.StepStatusCompleted, model.Nodes[1].Status.Status)
	assert.EqualValues(t, 3, model.Nodes[1].Status.DurationMs)

	begin := model.Nodes[2].Children[0].Nodes[0]
	require.NotNil(t, begin.Status)
	assert.Equal(t, "device lost", begin.Status.Error)

	assert.Nil(t, model.Nodes[2].Status)
}

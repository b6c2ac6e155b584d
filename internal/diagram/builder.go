package diagram

import (
	"fmt"
	"sort"

	"github.com/renderflow/engine/internal/store"
	"github.com/renderflow/engine/pkg/schema"
)

// Build constructs a Model from a workflow definition. states is optional
// replayed run state keyed by step ID; pass nil for a plain structural
// diagram.
func Build(def *schema.WorkflowDefinition, states map[string]*store.StepState) *Model {
	nodes := make([]*Node, 0, len(def.Steps)+2)
	nodes = append(nodes, &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart})

	stepNodes := buildChain(def.Steps, "", states)
	nodes = append(nodes, stepNodes...)

	nodes = append(nodes, &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd})

	// Steps run in order, so the edges are a single chain through the
	// top level.
	edges := make([]Edge, 0, len(nodes)-1)
	prev := "__start__"
	for _, n := range stepNodes {
		edges = append(edges, Edge{From: prev, To: n.ID})
		prev = n.ID
	}
	edges = append(edges, Edge{From: prev, To: "__end__"})

	return &Model{
		Title: titleFromDef(def),
		Nodes: nodes,
		Edges: edges,
	}
}

// buildChain converts a step list into nodes, recursing into control bodies.
func buildChain(steps []schema.StepDefinition, prefix string, states map[string]*store.StepState) []*Node {
	nodes := make([]*Node, 0, len(steps))
	for i := range steps {
		step := &steps[i]
		node := &Node{
			ID:    nodeID(step, prefix, i),
			Label: nodeLabel(step),
			Kind:  kindOf(step.Plugin),
		}
		overlayStatus(node, step, states)
		buildChildren(node, step, states)
		nodes = append(nodes, node)
	}
	return nodes
}

// buildChildren creates one subgraph per nested block of a control step.
func buildChildren(node *Node, step *schema.StepDefinition, states map[string]*store.StepState) {
	if len(step.Body) > 0 {
		node.Children = append(node.Children, buildSubGraph("body", node.ID, step.Body, states))
	}
	if len(step.Else) > 0 {
		node.Children = append(node.Children, buildSubGraph("else", node.ID, step.Else, states))
	}
	if len(step.Cases) > 0 {
		labels := make([]string, 0, len(step.Cases))
		for label := range step.Cases {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			node.Children = append(node.Children, buildSubGraph(label, node.ID, step.Cases[label], states))
		}
	}
}

// buildSubGraph chains a nested step list under parentID.label.
func buildSubGraph(label, parentID string, steps []schema.StepDefinition, states map[string]*store.StepState) *SubGraph {
	sg := &SubGraph{Label: label}
	sg.Nodes = buildChain(steps, parentID+"."+label, states)
	for i := 1; i < len(sg.Nodes); i++ {
		sg.Edges = append(sg.Edges, Edge{From: sg.Nodes[i-1].ID, To: sg.Nodes[i].ID})
	}
	return sg
}

func nodeID(step *schema.StepDefinition, prefix string, index int) string {
	id := step.ID
	if id == "" {
		id = fmt.Sprintf("%s_%d", step.Plugin, index)
	}
	if prefix == "" {
		return id
	}
	return prefix + "." + id
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(step *schema.StepDefinition) string {
	if step.ID != "" {
		return fmt.Sprintf("%s\n(%s)", step.ID, step.Plugin)
	}
	return step.Plugin
}

// kindOf maps a plugin ID to its diagram shape.
func kindOf(plugin string) NodeKind {
	switch plugin {
	case "control.if_else", "control.switch":
		return NodeKindCondition
	case "control.while", "control.for_each":
		return NodeKindLoop
	case "control.try_catch":
		return NodeKindGuard
	default:
		return NodeKindAction
	}
}

// overlayStatus applies replayed step state to a node. States are keyed by
// the step's label, so nested nodes match on the unqualified ID.
func overlayStatus(node *Node, step *schema.StepDefinition, states map[string]*store.StepState) {
	ss, ok := states[step.Label()]
	if !ok {
		return
	}
	node.Status = &StatusOverlay{
		Status:     ss.Status,
		DurationMs: ss.DurationMs,
		Error:      ss.Error,
	}
}

func titleFromDef(def *schema.WorkflowDefinition) string {
	if def.Name != "" {
		return def.Name
	}
	return "Workflow"
}

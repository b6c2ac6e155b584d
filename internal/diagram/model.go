// Package diagram renders workflow definitions as Mermaid flowcharts,
// optionally overlaid with replayed step states from a recorded run.
package diagram

// NodeKind classifies a diagram node by its step's control role.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindLoop      NodeKind = "loop"
	NodeKindGuard     NodeKind = "guard"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// Model is the intermediate representation consumed by the renderer.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node represents a single step in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   *StatusOverlay
	Children []*SubGraph // nested bodies of control steps
}

// SubGraph holds the nested steps of a control node (body, else, a case).
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries replayed run state for a node.
type StatusOverlay struct {
	Status     string
	DurationMs int64
	Error      string
}

// Edge links two nodes in execution order.
type Edge struct {
	From  string
	To    string
	Label string
}

package schema

import "encoding/json"

// WorkflowDefinition is a complete, externally authored workflow: an ordered,
// possibly nested, list of step definitions plus optional metadata.
type WorkflowDefinition struct {
	Name     string           `json:"name,omitempty"`
	Steps    []StepDefinition `json:"steps"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// StepDefinition is the declarative descriptor for one step invocation.
//
// Params hold literal values (string, number, bool). Inputs and Outputs map
// logical slot names to context keys. Body, Else and Cases carry nested step
// lists and are populated only for control-flow steps: Body is the primary
// branch (loop body, "then" branch, try block), Else the secondary one
// ("else" branch, catch block), Cases the labeled switch branches.
type StepDefinition struct {
	ID      string            `json:"id,omitempty"`
	Plugin  string            `json:"plugin"`
	Params  map[string]any    `json:"params,omitempty"`
	Inputs  map[string]string `json:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`

	Body  []StepDefinition            `json:"body,omitempty"`
	Else  []StepDefinition            `json:"else,omitempty"`
	Cases map[string][]StepDefinition `json:"cases,omitempty"`
}

// Label returns the step's ID if set, otherwise its plugin id.
func (s *StepDefinition) Label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Plugin
}

// ParseWorkflow decodes a JSON workflow document.
func ParseWorkflow(data []byte) (*WorkflowDefinition, error) {
	var wf WorkflowDefinition
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "parse workflow: %s", err.Error()).WithCause(err)
	}
	if len(wf.Steps) == 0 {
		return nil, NewError(ErrCodeValidation, "workflow has no steps")
	}
	return &wf, nil
}

// MeshMetadata describes an uploaded vertex/index buffer pair so downstream
// steps can introspect counts without touching GPU objects.
type MeshMetadata struct {
	VertexCount int  `json:"vertex_count"`
	IndexCount  int  `json:"index_count"`
	Stride      int  `json:"stride"`
	Valid       bool `json:"valid"`
}

// FrameRecord is written once per frame.begin and closed at end/composite.
type FrameRecord struct {
	FrameID    uint64     `json:"frame_id"`
	ClearColor [4]float32 `json:"clear_color"`
	Skipped    bool       `json:"skipped"`
	Timestamp  int64      `json:"timestamp"`
}

// LightingState is the per-frame directional lighting record written by
// render.lighting.setup and read by every draw/shadow step that frame.
type LightingState struct {
	Direction [3]float32 `json:"direction"`
	Color     [3]float32 `json:"color"`
	Ambient   [3]float32 `json:"ambient"`
	Exposure  float32    `json:"exposure"`
}

// ShadowState carries the light-space view-projection used by the shadow
// pass and the composite lighting shader.
type ShadowState struct {
	LightVP [16]float32 `json:"light_vp"`
	MapSize int         `json:"map_size"`
}

// CameraState is the camera record written by the camera steps and read by
// render.prepare. Matrices are column-major.
type CameraState struct {
	View       [16]float32 `json:"view"`
	Projection [16]float32 `json:"projection"`
}

// BodyTransform is the physics adapter record consumed by the body and
// shadow passes. Rotation is a unit quaternion (x, y, z, w); Size is the
// body's full extent per axis, used by the shadow pass to build its faces.
type BodyTransform struct {
	Position [3]float32 `json:"position"`
	Rotation [4]float32 `json:"rotation"`
	Size     [3]float32 `json:"size"`
}

// BodyVisual controls how a physics body is drawn.
type BodyVisual struct {
	Visible    bool       `json:"visible"`
	Spinning   bool       `json:"spinning"`
	SpinSpeedX float32    `json:"spin_speed_x"`
	SpinSpeedY float32    `json:"spin_speed_y"`
	Scale      [3]float32 `json:"scale"`
	Extent     float32    `json:"extent"`
}

// ViewportConfig is emitted by graphics.viewport.init.
type ViewportConfig struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
}

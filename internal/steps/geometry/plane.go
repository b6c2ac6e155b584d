package geometry

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// CreatePlane generates a subdivided ground plane and uploads it. The
// resulting buffers are stored under plane_<name>_vb / plane_<name>_ib with
// the metadata record under plane_<name>, so multiple planes can coexist.
type CreatePlane struct {
	logger *slog.Logger
}

func (s *CreatePlane) PluginID() string { return "geometry.create_plane" }

func (s *CreatePlane) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	width := float32(engine.ParamFloat(def, "width", 10))
	depth := float32(engine.ParamFloat(def, "depth", 10))
	uvScaleX := float32(engine.ParamFloat(def, "uv_scale_x", 1))
	uvScaleY := float32(engine.ParamFloat(def, "uv_scale_y", 1))
	subdivX := engine.ParamInt(def, "subdivisions_x", 1)
	subdivY := engine.ParamInt(def, "subdivisions_y", 1)
	name := engine.ParamString(def, "name", "plane")

	if width <= 0 || depth <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"plane dimensions must be positive, got %gx%g", width, depth)
	}

	vertices, indices, vertexCount, indexCount := PlaneMesh(width, depth, subdivX, subdivY, uvScaleX, uvScaleY)
	buffers, err := gpu.UploadMesh(dev, "plane "+name, vertices, indices)
	if err != nil {
		return err
	}

	wc.Set("plane_"+name+"_vb", buffers.Vertex)
	wc.Set("plane_"+name+"_ib", buffers.Index)
	wc.Set("plane_"+name, schema.MeshMetadata{
		VertexCount: vertexCount,
		IndexCount:  indexCount,
		Stride:      PlaneStride,
		Valid:       true,
	})

	s.logger.InfoContext(ctx, "plane created", "name", name,
		"vertices", vertexCount, "indices", indexCount,
		"subdivisions", [2]int{subdivX, subdivY})
	return nil
}

// Steps returns the geometry generator steps.
func Steps(logger *slog.Logger) []engine.Step {
	return []engine.Step{
		&CreateCube{logger: logger},
		&CreatePlane{logger: logger},
		&CubeGenerate{logger: logger},
	}
}

package geometry

import (
	"context"
	"log/slog"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// CreateCube generates the unit cube, uploads it and stores the buffer
// handles plus mesh metadata in the context.
type CreateCube struct {
	logger *slog.Logger
}

func (s *CreateCube) PluginID() string { return "geometry.create_cube" }

func (s *CreateCube) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	return createCube(ctx, s.logger, wc)
}

// CubeGenerate is the legacy id for the same cube generator. The old step
// swallowed upload failures; both ids now propagate them.
type CubeGenerate struct {
	logger *slog.Logger
}

func (s *CubeGenerate) PluginID() string { return "geometry.cube.generate" }

func (s *CubeGenerate) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	return createCube(ctx, s.logger, wc)
}

func createCube(ctx context.Context, logger *slog.Logger, wc *wfctx.Context) error {
	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	vertices, indices := CubeMesh()
	buffers, err := gpu.UploadMesh(dev, "cube", vertices, indices)
	if err != nil {
		wc.Set(keys.GeometryCreated, false)
		return err
	}

	wc.Set(keys.VertexBuffer, buffers.Vertex)
	wc.Set(keys.IndexBuffer, buffers.Index)
	wc.Set(keys.CubeMesh, schema.MeshMetadata{
		VertexCount: CubeVertexCount,
		IndexCount:  CubeIndexCount,
		Stride:      CubeStride,
		Valid:       true,
	})
	wc.Set(keys.GeometryCreated, true)

	logger.InfoContext(ctx, "cube created",
		"vertices", CubeVertexCount, "indices", CubeIndexCount, "stride", CubeStride)
	return nil
}

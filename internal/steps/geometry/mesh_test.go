package geometry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeMeshShape(t *testing.T) {
	vertices, indices := CubeMesh()
	assert.Len(t, vertices, CubeVertexCount*CubeStride)
	assert.Len(t, indices, CubeIndexCount*2)
}

func TestCubeMeshIsDeterministic(t *testing.T) {
	v1, i1 := CubeMesh()
	v2, i2 := CubeMesh()
	assert.Equal(t, v1, v2)
	assert.Equal(t, i1, i2)
}

func TestCubeIndicesStayInRange(t *testing.T) {
	_, indices := CubeMesh()
	for off := 0; off < len(indices); off += 2 {
		idx := binary.LittleEndian.Uint16(indices[off:])
		assert.Less(t, int(idx), CubeVertexCount)
	}
}

func TestCubeCornerColors(t *testing.T) {
	vertices, _ := CubeMesh()
	// First corner is black, last is white.
	assert.Equal(t, []byte{0, 0, 0, 255}, vertices[12:16])
	last := (CubeVertexCount - 1) * CubeStride
	assert.Equal(t, []byte{255, 255, 255, 255}, vertices[last+12:last+16])
}

func TestPlaneMeshCounts(t *testing.T) {
	cases := []struct {
		sx, sy int
	}{
		{1, 1},
		{1, 4},
		{4, 1},
		{3, 3},
		{8, 5},
	}
	for _, tc := range cases {
		vertices, indices, vertexCount, indexCount := PlaneMesh(10, 10, tc.sx, tc.sy, 1, 1)
		assert.Equal(t, (tc.sx+1)*(tc.sy+1), vertexCount)
		assert.Equal(t, tc.sx*tc.sy*6, indexCount)
		assert.Len(t, vertices, vertexCount*PlaneStride)
		assert.Len(t, indices, indexCount*2)

		for off := 0; off < len(indices); off += 2 {
			idx := binary.LittleEndian.Uint16(indices[off:])
			require.Less(t, int(idx), vertexCount,
				"index out of range at %dx%d", tc.sx, tc.sy)
		}
	}
}

func TestPlaneMeshIsDeterministic(t *testing.T) {
	v1, i1, _, _ := PlaneMesh(12, 8, 3, 2, 2, 0.5)
	v2, i2, _, _ := PlaneMesh(12, 8, 3, 2, 2, 0.5)
	assert.Equal(t, v1, v2)
	assert.Equal(t, i1, i2)
}

func TestPlaneMeshClampsSubdivisions(t *testing.T) {
	_, _, vertexCount, indexCount := PlaneMesh(10, 10, 0, -3, 1, 1)
	assert.Equal(t, 4, vertexCount)
	assert.Equal(t, 6, indexCount)
}

func TestPlaneUVScale(t *testing.T) {
	vertices, _, _, _ := PlaneMesh(10, 10, 1, 1, 4, 2)
	// Last vertex carries the full-scale UV corner.
	off := 3 * PlaneStride
	u := float32FromBytes(vertices[off+12:])
	v := float32FromBytes(vertices[off+16:])
	assert.InDelta(t, 4.0, u, 1e-6)
	assert.InDelta(t, 2.0, v, 1e-6)
}

func float32FromBytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

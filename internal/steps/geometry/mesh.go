// Package geometry implements the mesh generator steps. The generators
// themselves are pure functions over their parameters so identical inputs
// always produce byte-identical vertex and index streams.
package geometry

import (
	"encoding/binary"
	"math"
)

const (
	// CubeVertexCount and friends describe the fixed unit cube.
	CubeVertexCount = 8
	CubeIndexCount  = 36
	CubeStride      = 16

	// PlaneStride is float3 position + float2 uv.
	PlaneStride = 20
)

// cubeCorners are the unit cube's 8 corners with the canonical color palette:
// black, red, green, yellow, blue, magenta, cyan, white.
var cubeCorners = [CubeVertexCount]struct {
	x, y, z    float32
	r, g, b, a uint8
}{
	{-1, 1, 1, 0, 0, 0, 255},
	{1, 1, 1, 255, 0, 0, 255},
	{-1, -1, 1, 0, 255, 0, 255},
	{1, -1, 1, 255, 255, 0, 255},
	{-1, 1, -1, 0, 0, 255, 255},
	{1, 1, -1, 255, 0, 255, 255},
	{-1, -1, -1, 0, 255, 255, 255},
	{1, -1, -1, 255, 255, 255, 255},
}

var cubeIndices = [CubeIndexCount]uint16{
	0, 1, 2, 2, 1, 3, // front
	4, 6, 5, 5, 6, 7, // back
	0, 2, 4, 4, 2, 6, // left
	1, 5, 3, 5, 7, 3, // right
	0, 4, 1, 4, 5, 1, // top
	2, 3, 6, 6, 3, 7, // bottom
}

// CubeMesh returns the unit cube's interleaved position+RGBA8 vertex stream
// (stride 16) and its 16-bit index stream.
func CubeMesh() (vertices, indices []byte) {
	vertices = make([]byte, 0, CubeVertexCount*CubeStride)
	for _, c := range cubeCorners {
		vertices = putFloat32(vertices, c.x)
		vertices = putFloat32(vertices, c.y)
		vertices = putFloat32(vertices, c.z)
		vertices = append(vertices, c.r, c.g, c.b, c.a)
	}
	indices = make([]byte, 0, CubeIndexCount*2)
	for _, i := range cubeIndices {
		indices = binary.LittleEndian.AppendUint16(indices, i)
	}
	return vertices, indices
}

// PlaneMesh generates a width by depth plane on the XZ ground plane,
// subdivided into subdivX by subdivY quads, with UVs scaled per axis.
// Vertices are interleaved position+UV (stride 20), indices 16-bit.
func PlaneMesh(width, depth float32, subdivX, subdivY int, uvScaleX, uvScaleY float32) (vertices, indices []byte, vertexCount, indexCount int) {
	if subdivX < 1 {
		subdivX = 1
	}
	if subdivY < 1 {
		subdivY = 1
	}

	vertsX := subdivX + 1
	vertsY := subdivY + 1
	vertexCount = vertsX * vertsY
	indexCount = subdivX * subdivY * 6

	hw := width * 0.5
	hd := depth * 0.5

	vertices = make([]byte, 0, vertexCount*PlaneStride)
	for iy := 0; iy < vertsY; iy++ {
		fy := float32(iy) / float32(subdivY)
		for ix := 0; ix < vertsX; ix++ {
			fx := float32(ix) / float32(subdivX)
			vertices = putFloat32(vertices, -hw+fx*width)
			vertices = putFloat32(vertices, 0)
			vertices = putFloat32(vertices, -hd+fy*depth)
			vertices = putFloat32(vertices, fx*uvScaleX)
			vertices = putFloat32(vertices, fy*uvScaleY)
		}
	}

	indices = make([]byte, 0, indexCount*2)
	for iy := 0; iy < subdivY; iy++ {
		for ix := 0; ix < subdivX; ix++ {
			tl := uint16(iy*vertsX + ix)
			tr := tl + 1
			bl := uint16((iy+1)*vertsX + ix)
			br := bl + 1
			for _, i := range [6]uint16{tl, bl, tr, tr, bl, br} {
				indices = binary.LittleEndian.AppendUint16(indices, i)
			}
		}
	}
	return vertices, indices, vertexCount, indexCount
}

func putFloat32(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
}

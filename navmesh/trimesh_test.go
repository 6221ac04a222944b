package navmesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAABBEmptyMesh(t *testing.T) {
	var m TriMesh
	_, ok := m.ComputeAABB()
	assert.False(t, ok)
}

func TestComputeAABB(t *testing.T) {
	m := quadMesh(-2, 1, 5, 7, 3, NullArea)
	bounds, ok := m.ComputeAABB()
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{-2, 3, 1}, bounds.Min)
	assert.Equal(t, mgl32.Vec3{5, 3, 7}, bounds.Max)
}

func TestExtendOffsetsIndices(t *testing.T) {
	a := quadMesh(0, 0, 1, 1, 0, WalkableArea)
	b := quadMesh(2, 2, 3, 3, 0, NullArea)
	aVerts := len(a.Vertices)
	aTris := len(a.Triangles)

	a.Extend(b)

	assert.Len(t, a.Vertices, aVerts+len(b.Vertices))
	assert.Len(t, a.Areas, aTris+len(b.Triangles))
	for i, tri := range b.Triangles {
		got := a.Triangles[aTris+i]
		for j := 0; j < 3; j++ {
			assert.Equal(t, tri[j]+int32(aVerts), got[j])
		}
	}
}

func TestMarkWalkableTriangles(t *testing.T) {
	m := &TriMesh{
		Vertices: []mgl32.Vec3{
			// Flat triangle.
			{0, 0, 0}, {0, 0, 1}, {1, 0, 1},
			// Vertical wall.
			{0, 0, 0}, {0, 1, 0}, {0, 1, 1},
			// Degenerate.
			{0, 0, 0}, {0, 0, 0}, {1, 0, 0},
		},
		Triangles: [][3]int32{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}},
		Areas:     []uint8{NullArea, NullArea, NullArea},
	}

	m.MarkWalkableTriangles(45)

	assert.Equal(t, WalkableArea, m.Areas[0])
	assert.Equal(t, NullArea, m.Areas[1], "wall must stay unwalkable")
	assert.Equal(t, NullArea, m.Areas[2], "degenerate triangle must stay unwalkable")
}

func TestClearUnwalkableTriangles(t *testing.T) {
	m := &TriMesh{
		Vertices: []mgl32.Vec3{
			{0, 0, 0}, {0, 0, 1}, {1, 0, 1},
			{0, 0, 0}, {0, 1, 0}, {0, 1, 1},
		},
		Triangles: [][3]int32{{0, 1, 2}, {3, 4, 5}},
		Areas:     []uint8{WalkableArea, WalkableArea},
	}

	m.ClearUnwalkableTriangles(45)

	assert.Equal(t, WalkableArea, m.Areas[0])
	assert.Equal(t, NullArea, m.Areas[1])
}

func TestTriNormal(t *testing.T) {
	m := quadMesh(0, 0, 4, 4, 1, NullArea)
	n := m.TriNormal(0)
	assert.InDelta(t, 1.0, n.Y(), 1e-6)
}

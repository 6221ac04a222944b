package navmesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangulateSquare(t *testing.T) {
	verts := []ContourVertex{
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 4},
		{X: 4, Y: 0, Z: 4},
		{X: 4, Y: 0, Z: 0},
	}
	indices := []int{0, 1, 2, 3}
	tris := make([]int, 4*3)

	n := triangulate(4, verts, indices, tris)
	assert.Equal(t, 2, n)
}

func TestTriangulateConcave(t *testing.T) {
	// An L-shape: 6 vertices, 4 triangles, no failure.
	verts := []ContourVertex{
		{X: 0, Z: 0}, {X: 0, Z: 4}, {X: 2, Z: 4},
		{X: 2, Z: 2}, {X: 4, Z: 2}, {X: 4, Z: 0},
	}
	indices := []int{0, 1, 2, 3, 4, 5}
	tris := make([]int, 6*3)

	n := triangulate(6, verts, indices, tris)
	assert.Equal(t, 4, n)
}

func TestBuildPolyMeshSlab(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := regionMesh(t, mesh, slabBounds(), 8, 20)
	cset := chf.BuildContours(nil, 1.3, 0, 0)

	pmesh, err := BuildPolyMesh(nil, cset, 6)
	require.NoError(t, err)

	// A square region becomes one four-vertex polygon.
	require.Equal(t, 1, pmesh.NumPolys())
	require.Len(t, pmesh.Verts, 4)
	verts, neis := pmesh.Poly(0)
	nverts := 0
	for _, v := range verts {
		if v != MeshNullIndex {
			nverts++
		}
	}
	assert.Equal(t, 4, nverts)
	for j := 0; j < nverts; j++ {
		assert.Equal(t, MeshNullIndex, neis[j], "slab edges are walls")
	}
	assert.Equal(t, WalkableArea, pmesh.Areas[0])
	assert.False(t, pmesh.Regs[0].IsNone())
	assert.Equal(t, 6, pmesh.MaxVertsPerPoly)
}

func TestBuildPolyMeshEmptyContourSet(t *testing.T) {
	chf := compactMesh(t, &TriMesh{}, slabBounds(), 2, 1)
	chf.BuildDistanceField()
	require.NoError(t, chf.BuildRegions(nil, 0, 8, 20))
	cset := chf.BuildContours(nil, 1.3, 0, 0)

	pmesh, err := BuildPolyMesh(nil, cset, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, pmesh.NumPolys())
	assert.Empty(t, pmesh.Verts)
}

func TestBuildPolyMeshAdjacency(t *testing.T) {
	// Two regions sharing an edge produce mutually linked polygons.
	mesh := quadMesh(0, 0, 5, 10, 0.2, 5)
	right := quadMesh(5, 0, 10, 10, 0.2, WalkableArea)
	mesh.Extend(right)
	chf := regionMesh(t, mesh, slabBounds(), 2, 1000)
	cset := chf.BuildContours(nil, 1.3, 0, 0)

	pmesh, err := BuildPolyMesh(nil, cset, 6)
	require.NoError(t, err)
	require.Equal(t, 2, pmesh.NumPolys())

	linked := 0
	for i := 0; i < pmesh.NumPolys(); i++ {
		verts, neis := pmesh.Poly(i)
		for j := range verts {
			if verts[j] == MeshNullIndex {
				break
			}
			if neis[j] == MeshNullIndex || neis[j]&PortalFlag != 0 {
				continue
			}
			other := int(neis[j])
			require.Less(t, other, pmesh.NumPolys())
			// The neighbor must point back.
			overts, oneis := pmesh.Poly(other)
			back := false
			for k := range overts {
				if overts[k] == MeshNullIndex {
					break
				}
				if oneis[k] == uint16(i) {
					back = true
				}
			}
			assert.True(t, back, "poly %d -> %d has no back link", i, other)
			linked++
		}
	}
	assert.Equal(t, 2, linked, "exactly one shared edge, linked from both sides")
}

func TestBuildPolyMeshSharedVerticesWelded(t *testing.T) {
	mesh := quadMesh(0, 0, 5, 10, 0.2, 5)
	right := quadMesh(5, 0, 10, 10, 0.2, WalkableArea)
	mesh.Extend(right)
	chf := regionMesh(t, mesh, slabBounds(), 2, 1000)
	cset := chf.BuildContours(nil, 1.3, 0, 0)

	pmesh, err := BuildPolyMesh(nil, cset, 6)
	require.NoError(t, err)

	// Two rectangles sharing one edge: 6 distinct vertices, not 8.
	assert.Len(t, pmesh.Verts, 6)
	seen := map[[3]uint16]bool{}
	for _, v := range pmesh.Verts {
		assert.False(t, seen[v], "duplicate vertex %v", v)
		seen[v] = true
	}
}

func TestPolyMeshInvalidContour(t *testing.T) {
	cset := &ContourSet{
		Contours: []*Contour{{
			Verts: []ContourVertex{{X: 0, Z: 0}, {X: 1, Z: 1}},
			Reg:   1,
			Area:  WalkableArea,
		}},
	}
	_, err := BuildPolyMesh(nil, cset, 6)
	var contourErr *InvalidContourError
	require.ErrorAs(t, err, &contourErr)
	assert.Equal(t, RegionID(1), contourErr.RegionID)
}

func TestUleft(t *testing.T) {
	assert.True(t, uleft([3]uint16{0, 0, 0}, [3]uint16{1, 0, 0}, [3]uint16{1, 0, 1}))
	assert.False(t, uleft([3]uint16{0, 0, 0}, [3]uint16{1, 0, 1}, [3]uint16{1, 0, 0}))
}

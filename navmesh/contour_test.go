package navmesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSlabContours(t *testing.T, maxError float32, maxEdgeLen int, flags ContourBuildFlags) *ContourSet {
	t.Helper()
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := regionMesh(t, mesh, slabBounds(), 8, 20)
	return chf.BuildContours(nil, maxError, maxEdgeLen, flags)
}

func TestBuildContoursSlab(t *testing.T) {
	cset := buildSlabContours(t, 1.3, 0, 0)

	require.Len(t, cset.Contours, 1)
	cont := cset.Contours[0]
	assert.Equal(t, WalkableArea, cont.Area)
	assert.False(t, cont.Reg.IsNone())

	// A square region simplifies to its four corners.
	require.Len(t, cont.Verts, 4)
	for _, v := range cont.Verts {
		assert.Contains(t, []int{0, 10}, v.X)
		assert.Contains(t, []int{0, 10}, v.Z)
	}
	// The raw trace keeps every boundary vertex.
	assert.Greater(t, len(cont.RawVerts), len(cont.Verts))
}

func TestBuildContoursMaxEdgeLenZeroAddsNoVerts(t *testing.T) {
	// With tessellation off, only deviation-driven vertices appear, so the
	// square stays four corners however long its edges are.
	cset := buildSlabContours(t, 1.3, 0, TessellateWallEdges)
	require.Len(t, cset.Contours, 1)
	assert.Len(t, cset.Contours[0].Verts, 4)
}

func TestBuildContoursTessellatesWallEdges(t *testing.T) {
	cset := buildSlabContours(t, 1.3, 4, TessellateWallEdges)
	require.Len(t, cset.Contours, 1)
	// 10-cell edges split into stretches no longer than 4 cells.
	cont := cset.Contours[0]
	assert.Greater(t, len(cont.Verts), 4)
	n := len(cont.Verts)
	for i := 0; i < n; i++ {
		a := cont.Verts[i]
		b := cont.Verts[(i+1)%n]
		dx := b.X - a.X
		dz := b.Z - a.Z
		assert.LessOrEqual(t, dx*dx+dz*dz, 4*4, "edge %d too long", i)
	}
}

func TestBuildContoursKeepsRegionBoundaryVertices(t *testing.T) {
	// Two areas side by side: the shared boundary must survive
	// simplification in both contours so the meshes stay sealed.
	mesh := quadMesh(0, 0, 5, 10, 0.2, 5)
	right := quadMesh(5, 0, 10, 10, 0.2, WalkableArea)
	mesh.Extend(right)
	chf := regionMesh(t, mesh, slabBounds(), 2, 1000)

	cset := chf.BuildContours(nil, 1.3, 0, 0)

	require.Len(t, cset.Contours, 2)
	for _, cont := range cset.Contours {
		require.GreaterOrEqual(t, len(cont.Verts), 4)
		onBoundary := 0
		for _, v := range cont.Verts {
			if v.X == 5 {
				onBoundary++
			}
		}
		assert.GreaterOrEqual(t, onBoundary, 2, "region %d lost the shared edge", cont.Reg)
	}
}

func TestBuildContoursVertexHeights(t *testing.T) {
	cset := buildSlabContours(t, 1.3, 0, 0)
	require.Len(t, cset.Contours, 1)
	for _, v := range cset.Contours[0].Verts {
		assert.Equal(t, 1, v.Y, "contour vertices sit on the span floor")
	}
}

func TestBuildContoursEmptyField(t *testing.T) {
	chf := compactMesh(t, &TriMesh{}, slabBounds(), 2, 1)
	chf.BuildDistanceField()
	require.NoError(t, chf.BuildRegions(nil, 0, 8, 20))

	cset := chf.BuildContours(nil, 1.3, 0, 0)
	assert.Empty(t, cset.Contours)
	assert.Equal(t, 10, cset.Width)
	assert.Equal(t, 10, cset.Height)
}

func TestDistancePtSegSq2D(t *testing.T) {
	// Point off the middle of a horizontal segment.
	d := distancePtSegSq2D(5, 3, 0, 0, 10, 0)
	assert.InDelta(t, 9.0, d, 1e-4)
	// Point beyond the segment end clamps to the endpoint.
	d = distancePtSegSq2D(13, 0, 0, 0, 10, 0)
	assert.InDelta(t, 9.0, d, 1e-4)
}

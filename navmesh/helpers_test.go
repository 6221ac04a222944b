package navmesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// quadMesh returns a horizontal quad at height y split into two upward-facing
// triangles, every triangle carrying the given area id.
func quadMesh(minX, minZ, maxX, maxZ, y float32, area uint8) *TriMesh {
	return &TriMesh{
		Vertices: []mgl32.Vec3{
			{minX, y, minZ},
			{minX, y, maxZ},
			{maxX, y, maxZ},
			{maxX, y, minZ},
		},
		Triangles: [][3]int32{{0, 1, 2}, {0, 2, 3}},
		Areas:     []uint8{area, area},
	}
}

// slabBounds is the grid used by most tests: 10x10 cells of size 1.
func slabBounds() AABB {
	return AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{10, 2, 10}}
}

// rasterizeMesh rasterizes mesh into a fresh heightfield over bounds without
// running any filter pass.
func rasterizeMesh(t *testing.T, mesh *TriMesh, bounds AABB, cellSize, cellHeight float32, walkableClimb int) *Heightfield {
	t.Helper()
	hf, err := NewHeightfield(bounds, cellSize, cellHeight)
	require.NoError(t, err)
	require.NoError(t, hf.RasterizeTriangles(mesh, walkableClimb))
	return hf
}

// compactMesh runs rasterization and compaction, skipping the filter passes.
func compactMesh(t *testing.T, mesh *TriMesh, bounds AABB, walkableHeight, walkableClimb int) *CompactHeightfield {
	t.Helper()
	hf := rasterizeMesh(t, mesh, bounds, 1, 1, walkableClimb)
	chf, err := BuildCompactHeightfield(walkableHeight, walkableClimb, hf)
	require.NoError(t, err)
	return chf
}

// regionMesh additionally runs the distance field and watershed passes.
func regionMesh(t *testing.T, mesh *TriMesh, bounds AABB, minRegionArea, mergeRegionArea int) *CompactHeightfield {
	t.Helper()
	chf := compactMesh(t, mesh, bounds, 2, 1)
	chf.BuildDistanceField()
	require.NoError(t, chf.BuildRegions(nil, 0, minRegionArea, mergeRegionArea))
	return chf
}

// distinctRegions returns the set of non-border region ids assigned to spans.
func distinctRegions(chf *CompactHeightfield) map[RegionID]int {
	regions := map[RegionID]int{}
	for i := range chf.Spans {
		if r := chf.Spans[i].Reg; !r.IsNone() && !r.IsBorder() {
			regions[r]++
		}
	}
	return regions
}

// columnSpans collects the span chain of column (x, z) bottom to top.
func columnSpans(hf *Heightfield, x, z int) []Span {
	var spans []Span
	for s := hf.SpanAt(x, z); s != nil; s = hf.NextSpan(s) {
		spans = append(spans, *s)
	}
	return spans
}

package navmesh

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDistanceField(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := compactMesh(t, mesh, slabBounds(), 2, 1)

	chf.BuildDistanceField()

	require.Len(t, chf.Dist, chf.SpanCount)
	assert.Greater(t, chf.MaxDistance, uint16(0))

	center := chf.Dist[chf.cellAt(5, 5).Index]
	corner := chf.Dist[chf.cellAt(0, 0).Index]
	assert.Greater(t, center, corner, "center must be farther from the boundary than a corner")
	for _, d := range chf.Dist {
		assert.LessOrEqual(t, d, chf.MaxDistance)
	}
}

func TestBuildRegionsSingleSlab(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := regionMesh(t, mesh, slabBounds(), 8, 20)

	regions := distinctRegions(chf)
	require.Len(t, regions, 1, "one connected slab yields one region")
	for id, count := range regions {
		assert.False(t, id.IsNone())
		assert.Equal(t, 100, count)
	}
}

func TestBuildRegionsSeparatedPlatforms(t *testing.T) {
	// Two platforms with a two-cell gap: disjoint walkable components stay
	// disjoint regions no matter the merge threshold.
	mesh := quadMesh(0, 0, 4, 10, 0.2, WalkableArea)
	right := quadMesh(6, 0, 10, 10, 0.2, WalkableArea)
	mesh.Extend(right)

	chf := regionMesh(t, mesh, slabBounds(), 2, 1000)

	regions := distinctRegions(chf)
	assert.Len(t, regions, 2)
}

func TestBuildRegionsRemovesSmallIslands(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	// A lone island far too small to keep.
	island := quadMesh(0, 0, 1, 1, 5.2, WalkableArea)
	mesh.Extend(island)

	bounds := slabBounds()
	bounds.Max[1] = 8
	hf := rasterizeMesh(t, mesh, bounds, 1, 1, 1)
	chf, err := BuildCompactHeightfield(2, 1, hf)
	require.NoError(t, err)
	chf.BuildDistanceField()
	require.NoError(t, chf.BuildRegions(nil, 0, 8, 20))

	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Spans[i].Y > 1 {
					assert.True(t, chf.Spans[i].Reg.IsNone(), "island span at (%d,%d) must lose its region", x, z)
				} else {
					assert.False(t, chf.Spans[i].Reg.IsNone(), "slab span at (%d,%d) must keep its region", x, z)
				}
			}
		}
	}
}

func TestBuildRegionsDoesNotCrossAreas(t *testing.T) {
	// Adjacent halves with different area ids end up in different regions.
	mesh := quadMesh(0, 0, 5, 10, 0.2, 5)
	right := quadMesh(5, 0, 10, 10, 0.2, WalkableArea)
	mesh.Extend(right)

	chf := regionMesh(t, mesh, slabBounds(), 2, 1000)

	byArea := map[uint8]map[RegionID]bool{}
	for i := range chf.Spans {
		r := chf.Spans[i].Reg
		if r.IsNone() {
			continue
		}
		area := chf.Areas[i]
		if byArea[area] == nil {
			byArea[area] = map[RegionID]bool{}
		}
		byArea[area][r] = true
	}
	require.Len(t, byArea, 2)
	for area, regions := range byArea {
		assert.Len(t, regions, 1, "area %d", area)
	}
	// No region id is shared between the two areas.
	for r := range byArea[5] {
		assert.False(t, byArea[WalkableArea][r])
	}
}

func TestBuildRegionsBorder(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := compactMesh(t, mesh, slabBounds(), 2, 1)
	chf.BuildDistanceField()
	require.NoError(t, chf.BuildRegions(nil, 2, 2, 20))

	assert.Equal(t, 2, chf.BorderSize)
	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				inBorder := x < 2 || z < 2 || x >= chf.Width-2 || z >= chf.Height-2
				if inBorder {
					assert.True(t, chf.Spans[i].Reg.IsBorder(), "cell (%d,%d)", x, z)
				} else {
					assert.False(t, chf.Spans[i].Reg.IsBorder(), "cell (%d,%d)", x, z)
				}
			}
		}
	}
}

func TestRegionIDFlags(t *testing.T) {
	r := RegionID(7) | BorderRegion
	assert.True(t, r.IsBorder())
	assert.Equal(t, RegionID(7), r.ID())
	assert.False(t, r.IsNone())
	assert.True(t, RegionID(0).IsNone())
}

func TestRegionOverflowError(t *testing.T) {
	wrapped := fmt.Errorf("building regions: %w", &RegionOverflowError{Regions: 0xffff})

	var overflow *RegionOverflowError
	require.ErrorAs(t, wrapped, &overflow)
	assert.Equal(t, 0xffff, overflow.Regions)
	assert.Contains(t, overflow.Error(), "too many regions")

	var gridErr *GridSizeError
	assert.False(t, errors.As(wrapped, &gridErr), "region exhaustion is not a grid sizing failure")
}

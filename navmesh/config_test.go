package navmesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCalcGridSize(t *testing.T) {
	bounds := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{30, 5, 15}}
	w, h := CalcGridSize(bounds, 0.3)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}

func TestAgentConfigBuild(t *testing.T) {
	a := DefaultAgentConfig()
	bounds := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{30, 5, 30}}

	cfg := a.Build(bounds)

	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
	assert.Equal(t, bounds, cfg.Bounds)
	// Ceil(2.0 / 0.2) voxels of head room.
	assert.Equal(t, 10, cfg.WalkableHeight)
	// Floor(0.9 / 0.2) voxels of step height.
	assert.Equal(t, 4, cfg.WalkableClimb)
	// Ceil(0.6 / 0.3) voxels of radius.
	assert.Equal(t, 2, cfg.WalkableRadius)
	assert.Equal(t, 40, cfg.MaxEdgeLen)
	assert.InDelta(t, 1.3, cfg.MaxSimplificationError, 1e-6)
	assert.Equal(t, 64, cfg.MinRegionArea)
	assert.Equal(t, 400, cfg.MergeRegionArea)
	assert.Equal(t, 6, cfg.MaxVertsPerPoly)
	assert.InDelta(t, 1.8, cfg.DetailSampleDist, 1e-6)
	assert.InDelta(t, 0.2, cfg.DetailSampleMaxError, 1e-6)
	// Wall-edge tessellation is on by default so MaxEdgeLen applies.
	assert.Equal(t, TessellateWallEdges, cfg.ContourFlags)
}

func TestAgentConfigContourFlags(t *testing.T) {
	a := DefaultAgentConfig()
	bounds := AABB{Max: mgl32.Vec3{10, 1, 10}}

	a.TessellateWallEdges = false
	assert.Zero(t, a.Build(bounds).ContourFlags)

	a.TessellateWallEdges = true
	a.TessellateAreaEdges = true
	assert.Equal(t, TessellateWallEdges|TessellateAreaEdges, a.Build(bounds).ContourFlags)
}

func TestAgentConfigBuildDisablesSmallSampleDist(t *testing.T) {
	a := DefaultAgentConfig()
	a.DetailSampleDist = 0.5

	cfg := a.Build(AABB{Max: mgl32.Vec3{10, 1, 10}})

	assert.Zero(t, cfg.DetailSampleDist, "sample distances under 0.9 disable sampling")
}

package navmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slabConfig() Config {
	bounds := slabBounds()
	return Config{
		Width:                  10,
		Height:                 10,
		CellSize:               1,
		CellHeight:             1,
		Bounds:                 bounds,
		WalkableSlopeAngle:     45,
		WalkableHeight:         2,
		WalkableClimb:          1,
		WalkableRadius:         0,
		MaxEdgeLen:             0,
		MaxSimplificationError: 1.3,
		MinRegionArea:          8,
		MergeRegionArea:        20,
		MaxVertsPerPoly:        6,
		DetailSampleDist:       0,
		DetailSampleMaxError:   1,
	}
}

func TestBakeSlab(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, NullArea)

	res, err := Bake(nil, mesh, slabConfig())
	require.NoError(t, err)
	require.NotNil(t, res.PolyMesh)
	require.NotNil(t, res.DetailMesh)

	// The ledge filter trims the outermost ring, the rest becomes the mesh.
	require.GreaterOrEqual(t, res.PolyMesh.NumPolys(), 1)
	assert.Len(t, res.DetailMesh.Meshes, res.PolyMesh.NumPolys())
	for _, a := range res.PolyMesh.Areas {
		assert.Equal(t, WalkableArea, a)
	}
}

func TestBakeMarksWalkableBySlope(t *testing.T) {
	// All triangles start unwalkable; Bake itself runs the slope test.
	mesh := quadMesh(0, 0, 10, 10, 0.2, NullArea)

	res, err := Bake(nil, mesh, slabConfig())
	require.NoError(t, err)
	assert.Greater(t, res.PolyMesh.NumPolys(), 0)
	for _, a := range mesh.Areas {
		assert.Equal(t, WalkableArea, a)
	}
}

func TestBakeEmptyMesh(t *testing.T) {
	res, err := Bake(nil, &TriMesh{}, slabConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, res.PolyMesh.NumPolys())
	assert.Empty(t, res.DetailMesh.Meshes)
}

func TestBakeAll(t *testing.T) {
	inputs := []BakeInput{
		{Name: "a", Mesh: quadMesh(0, 0, 10, 10, 0.2, NullArea), Config: slabConfig()},
		{Name: "b", Mesh: &TriMesh{}, Config: slabConfig()},
		{Name: "c", Mesh: quadMesh(0, 0, 10, 10, 0.2, NullArea), Config: slabConfig()},
	}

	results, err := BakeAll(context.Background(), nil, inputs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Greater(t, results[0].PolyMesh.NumPolys(), 0)
	assert.Equal(t, 0, results[1].PolyMesh.NumPolys())
	assert.Equal(t, results[0].PolyMesh.NumPolys(), results[2].PolyMesh.NumPolys())
}

func TestBakeAllFillsEverySlot(t *testing.T) {
	// Enough jobs that the goroutines outlive the spawning loop; every
	// result slot must be written exactly once, in input order.
	inputs := make([]BakeInput, 16)
	for i := range inputs {
		name := "job"
		mesh := quadMesh(0, 0, 10, 10, 0.2, NullArea)
		if i%2 == 1 {
			mesh = &TriMesh{}
		}
		inputs[i] = BakeInput{Name: name, Mesh: mesh, Config: slabConfig()}
	}

	for round := 0; round < 4; round++ {
		results, err := BakeAll(context.Background(), nil, inputs)
		require.NoError(t, err)
		require.Len(t, results, len(inputs))
		for i, res := range results {
			require.NotNil(t, res, "round %d: results[%d]", round, i)
			if i%2 == 1 {
				assert.Equal(t, 0, res.PolyMesh.NumPolys(), "results[%d] should be the empty bake", i)
			} else {
				assert.Greater(t, res.PolyMesh.NumPolys(), 0, "results[%d] should be the slab bake", i)
			}
		}
	}
}

func TestBakeAllPropagatesFailure(t *testing.T) {
	bad := slabConfig()
	bad.CellSize = 1e-6 // grid too large to address

	inputs := []BakeInput{
		{Name: "good", Mesh: quadMesh(0, 0, 10, 10, 0.2, NullArea), Config: slabConfig()},
		{Name: "bad", Mesh: quadMesh(0, 0, 10, 10, 0.2, NullArea), Config: bad},
	}

	_, err := BakeAll(context.Background(), nil, inputs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad")
	var gridErr *GridSizeError
	assert.ErrorAs(t, err, &gridErr)
}

func TestBakeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := []BakeInput{
		{Name: "a", Mesh: quadMesh(0, 0, 10, 10, 0.2, NullArea), Config: slabConfig()},
	}
	_, err := BakeAll(ctx, nil, inputs)
	assert.ErrorIs(t, err, context.Canceled)
}

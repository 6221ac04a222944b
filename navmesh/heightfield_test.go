package navmesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeightfieldGridOverflow(t *testing.T) {
	bounds := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1000, 1, 1000}}
	_, err := NewHeightfield(bounds, 1e-5, 1)
	var gridErr *GridSizeError
	require.ErrorAs(t, err, &gridErr)
}

func TestAddSpanOutOfBounds(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)
	var insErr *SpanInsertionError
	require.ErrorAs(t, hf.AddSpan(-1, 0, 0, 1, WalkableArea, 1), &insErr)
	require.ErrorAs(t, hf.AddSpan(0, 10, 0, 1, WalkableArea, 1), &insErr)
}

func TestAddSpanIdempotent(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, hf.AddSpan(3, 4, 2, 5, WalkableArea, 1))
	require.NoError(t, hf.AddSpan(3, 4, 2, 5, WalkableArea, 1))

	spans := columnSpans(hf, 3, 4)
	require.Len(t, spans, 1)
	assert.Equal(t, uint16(2), spans[0].SMin)
	assert.Equal(t, uint16(5), spans[0].SMax)
	assert.Equal(t, WalkableArea, spans[0].Area)
}

func TestAddSpanMergesOverlap(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, hf.AddSpan(0, 0, 2, 4, NullArea, 1))
	require.NoError(t, hf.AddSpan(0, 0, 3, 6, WalkableArea, 1))

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 1)
	assert.Equal(t, uint16(2), spans[0].SMin)
	assert.Equal(t, uint16(6), spans[0].SMax)
	// Merged ceilings differ by 2 > threshold, so the incoming area wins.
	assert.Equal(t, WalkableArea, spans[0].Area)
}

func TestAddSpanMergeAreaPriority(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)

	// Same ceiling: the higher area id survives regardless of order.
	require.NoError(t, hf.AddSpan(0, 0, 0, 4, WalkableArea, 1))
	require.NoError(t, hf.AddSpan(0, 0, 0, 4, NullArea, 1))

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 1)
	assert.Equal(t, WalkableArea, spans[0].Area)
}

func TestAddSpanKeepsColumnSorted(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, hf.AddSpan(5, 5, 8, 9, WalkableArea, 1))
	require.NoError(t, hf.AddSpan(5, 5, 1, 2, WalkableArea, 1))
	require.NoError(t, hf.AddSpan(5, 5, 4, 6, WalkableArea, 1))

	spans := columnSpans(hf, 5, 5)
	require.Len(t, spans, 3)
	for i := 1; i < len(spans); i++ {
		assert.Less(t, spans[i-1].SMax, spans[i].SMin)
	}
}

func TestAddSpanMergesAcrossGapFill(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, hf.AddSpan(5, 5, 1, 2, WalkableArea, 1))
	require.NoError(t, hf.AddSpan(5, 5, 6, 8, WalkableArea, 1))
	// Bridges both existing spans.
	require.NoError(t, hf.AddSpan(5, 5, 2, 7, NullArea, 1))

	spans := columnSpans(hf, 5, 5)
	require.Len(t, spans, 1)
	assert.Equal(t, uint16(1), spans[0].SMin)
	assert.Equal(t, uint16(8), spans[0].SMax)
}

func TestRasterizeSingleTriangleFootprint(t *testing.T) {
	mesh := &TriMesh{
		Vertices:  []mgl32.Vec3{{2.2, 0.5, 3.1}, {2.2, 0.5, 7.4}, {6.8, 0.5, 7.4}},
		Triangles: [][3]int32{{0, 1, 2}},
		Areas:     []uint8{WalkableArea},
	}
	hf := rasterizeMesh(t, mesh, slabBounds(), 1, 1, 1)

	// The voxel footprint of the spans matches the triangle AABB within one
	// cell of rounding.
	minX, maxX := hf.Width, -1
	minZ, maxZ := hf.Height, -1
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			if hf.SpanAt(x, z) == nil {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minZ, maxZ = min(minZ, z), max(maxZ, z)
		}
	}
	assert.InDelta(t, 2.2, float64(minX), 1)
	assert.InDelta(t, 6.8, float64(maxX), 1)
	assert.InDelta(t, 3.1, float64(minZ), 1)
	assert.InDelta(t, 7.4, float64(maxZ), 1)
}

func TestRasterizeSlabOneSpanPerColumn(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	hf := rasterizeMesh(t, mesh, slabBounds(), 1, 1, 1)

	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			spans := columnSpans(hf, x, z)
			require.Len(t, spans, 1, "column (%d,%d)", x, z)
			assert.Equal(t, WalkableArea, spans[0].Area)
		}
	}
	assert.Equal(t, 100, hf.SpanCount())
}

func TestRasterizeEmptyMesh(t *testing.T) {
	hf := rasterizeMesh(t, &TriMesh{}, slabBounds(), 1, 1, 1)
	assert.Equal(t, 0, hf.SpanCount())
}

func TestRasterizeClipsToBounds(t *testing.T) {
	// Geometry hanging out of the grid on every side.
	mesh := quadMesh(-5, -5, 15, 15, 0.2, WalkableArea)
	hf := rasterizeMesh(t, mesh, slabBounds(), 1, 1, 1)
	assert.Equal(t, 100, hf.SpanCount())
}

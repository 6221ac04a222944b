package navmesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navbake/common"
)

func TestCompactSpanConPacking(t *testing.T) {
	var s CompactSpan
	for dir := 0; dir < 4; dir++ {
		s.SetCon(dir, NotConnected)
	}
	s.SetH(200)
	s.SetCon(2, 17)

	assert.Equal(t, NotConnected, s.Con(0))
	assert.Equal(t, NotConnected, s.Con(1))
	assert.Equal(t, 17, s.Con(2))
	assert.Equal(t, NotConnected, s.Con(3))
	assert.Equal(t, 200, s.H())
}

func TestCompactionConservation(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	pillar := quadMesh(4, 4, 5, 5, 1.4, NullArea)
	mesh.Extend(pillar)
	hf := rasterizeMesh(t, mesh, slabBounds(), 1, 1, 1)
	hf.FilterWalkableLowHeightSpans(3)

	chf, err := BuildCompactHeightfield(3, 1, hf)
	require.NoError(t, err)

	assert.Equal(t, hf.SpanCount(), chf.SpanCount)
	assert.Equal(t, chf.SpanCount, len(chf.Spans))
	total := 0
	for _, c := range chf.Cells {
		total += int(c.Count)
	}
	assert.Equal(t, chf.SpanCount, total)
}

func TestCompactConnectivity(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := compactMesh(t, mesh, slabBounds(), 2, 1)

	countCons := func(x, z int) int {
		cell := chf.cellAt(x, z)
		require.Equal(t, int32(1), cell.Count)
		span := &chf.Spans[cell.Index]
		n := 0
		for dir := 0; dir < 4; dir++ {
			if span.Con(dir) != NotConnected {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 4, countCons(5, 5))
	assert.Equal(t, 2, countCons(0, 0))
	assert.Equal(t, 3, countCons(5, 0))
}

func TestCompactConnectivitySymmetric(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := compactMesh(t, mesh, slabBounds(), 2, 1)

	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				span := &chf.Spans[i]
				for dir := 0; dir < 4; dir++ {
					if span.Con(dir) == NotConnected {
						continue
					}
					nx := x + common.DirOffsetX(dir)
					nz := z + common.DirOffsetZ(dir)
					neighbor := &chf.Spans[int(chf.cellAt(nx, nz).Index)+span.Con(dir)]
					back := (dir + 2) & 3
					assert.NotEqual(t, NotConnected, neighbor.Con(back),
						"neighbor of (%d,%d) dir %d has no back link", x, z, dir)
				}
			}
		}
	}
}

func TestCompactStackedPlatforms(t *testing.T) {
	// Two walkable layers far enough apart for the agent (Scenario C, the
	// roomy variant): both survive with no connectivity between the layers.
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	upper := quadMesh(0, 0, 10, 10, 5.2, WalkableArea)
	mesh.Extend(upper)

	bounds := slabBounds()
	bounds.Max[1] = 8
	hf := rasterizeMesh(t, mesh, bounds, 1, 1, 1)
	hf.FilterWalkableLowHeightSpans(3)

	chf, err := BuildCompactHeightfield(3, 1, hf)
	require.NoError(t, err)

	assert.Equal(t, 200, chf.SpanCount)
	cell := chf.cellAt(5, 5)
	require.Equal(t, int32(2), cell.Count)
	lower := chf.Spans[cell.Index]
	upperSpan := chf.Spans[cell.Index+1]
	assert.Less(t, lower.Y, upperSpan.Y)
	// Same-layer links only: every connection of the lower span points at
	// layer 0, every connection of the upper span at layer 1.
	for dir := 0; dir < 4; dir++ {
		if c := lower.Con(dir); c != NotConnected {
			assert.Equal(t, 0, c)
		}
		if c := upperSpan.Con(dir); c != NotConnected {
			assert.Equal(t, 1, c)
		}
	}
}

func TestCompactLowCeilingFiltersLowerPlatform(t *testing.T) {
	// Scenario C, the cramped variant: a ceiling within walkableHeight kills
	// the lower platform's spans.
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	ceiling := quadMesh(0, 0, 10, 10, 2.2, WalkableArea)
	mesh.Extend(ceiling)

	hf := rasterizeMesh(t, mesh, slabBounds(), 1, 1, 1)
	hf.FilterWalkableLowHeightSpans(3)

	chf, err := BuildCompactHeightfield(3, 1, hf)
	require.NoError(t, err)

	// Only the upper layer survives.
	assert.Equal(t, 100, chf.SpanCount)
	for i := range chf.Spans {
		assert.Equal(t, uint16(3), chf.Spans[i].Y)
	}
}

func TestCompactClearanceClamped(t *testing.T) {
	mesh := quadMesh(0, 0, 10, 10, 0.2, WalkableArea)
	chf := compactMesh(t, mesh, slabBounds(), 2, 1)
	// Open sky above the slab: the stored clearance is the 8-bit ceiling.
	assert.Equal(t, 0xff, chf.Spans[0].H())
}

func TestCompactTooManyLayers(t *testing.T) {
	hf, err := NewHeightfield(slabBounds(), 1, 1)
	require.NoError(t, err)
	// Two adjacent columns, each stacked with more walkable layers than the
	// 6-bit neighbor index can address.
	for k := 0; k < 64; k++ {
		base := uint16(k * 100)
		require.NoError(t, hf.AddSpan(0, 0, base, base+1, WalkableArea, 1))
		require.NoError(t, hf.AddSpan(1, 0, base, base+1, WalkableArea, 1))
	}

	_, err = BuildCompactHeightfield(3, 1, hf)
	var layersErr *TooManyLayersError
	require.ErrorAs(t, err, &layersErr)
}

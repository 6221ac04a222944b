package navmesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"navbake/common"
)

type clipAxis int

const (
	axisX clipAxis = 0
	axisZ clipAxis = 2
)

// dividePoly splits a convex polygon (at most 12 vertices) along the plane
// axis = axisOffset. Vertices on the negative side go to out1, the rest to
// out2; points exactly on the plane are emitted to both.
func dividePoly(in []mgl32.Vec3, out1, out2 []mgl32.Vec3, axisOffset float32, axis clipAxis) (n1, n2 int) {
	var delta [12]float32
	for i := range in {
		delta[i] = axisOffset - in[i][axis]
	}

	b := len(in) - 1
	for a := 0; a < len(in); a++ {
		sameSide := (delta[a] >= 0) == (delta[b] >= 0)
		if !sameSide {
			s := delta[b] / (delta[b] - delta[a])
			out1[n1] = in[b].Add(in[a].Sub(in[b]).Mul(s))
			out2[n2] = out1[n1]
			n1++
			n2++
			// Do not emit points lying exactly on the dividing line; the
			// intersection point above already covers them.
			if delta[a] > 0 {
				out1[n1] = in[a]
				n1++
			} else if delta[a] < 0 {
				out2[n2] = in[a]
				n2++
			}
		} else {
			// Points on the dividing line are emitted to both sides.
			if delta[a] >= 0 {
				out1[n1] = in[a]
				n1++
				if delta[a] != 0 {
					b = a
					continue
				}
			}
			out2[n2] = in[a]
			n2++
		}
		b = a
	}
	return n1, n2
}

// rasterizeTri clips one triangle against every grid cell it touches and
// inserts the clipped height extent as a span. This is the hottest loop of
// the whole bake.
func (hf *Heightfield) rasterizeTri(v0, v1, v2 mgl32.Vec3, area uint8, flagMergeThreshold int) error {
	triBounds := AABB{Min: v0, Max: v0}
	triBounds.Extend(v1)
	triBounds.Extend(v2)
	if !triBounds.Overlaps(hf.Bounds) {
		return nil
	}

	w := hf.Width
	h := hf.Height
	by := hf.Bounds.Max.Y() - hf.Bounds.Min.Y()
	inverseCellSize := 1.0 / hf.CellSize
	inverseCellHeight := 1.0 / hf.CellHeight

	// Footprint of the triangle on the grid's z-axis.
	z0 := int((triBounds.Min.Z() - hf.Bounds.Min.Z()) * inverseCellSize)
	z1 := int((triBounds.Max.Z() - hf.Bounds.Min.Z()) * inverseCellSize)
	// Use -1 rather than 0 so the polygon is still clipped at the grid edge.
	z0 = common.Clamp(z0, -1, h-1)
	z1 = common.Clamp(z1, 0, h-1)

	// Clip buffers; a triangle clipped against a cell has at most 7 verts.
	var buf [4][7]mgl32.Vec3
	in := buf[0][:]
	inRow := buf[1][:]
	p1 := buf[2][:]
	p2 := buf[3][:]

	in[0], in[1], in[2] = v0, v1, v2
	nvIn := 3

	for z := z0; z <= z1; z++ {
		// Clip the polygon to the row, keeping the remainder for the next one.
		cellZ := hf.Bounds.Min.Z() + float32(z)*hf.CellSize
		nvRow, nvRem := dividePoly(in[:nvIn], inRow, p1, cellZ+hf.CellSize, axisZ)
		in, p1 = p1, in
		nvIn = nvRem
		if nvRow < 3 || z < 0 {
			continue
		}

		minX := inRow[0].X()
		maxX := inRow[0].X()
		for vert := 1; vert < nvRow; vert++ {
			minX = min(minX, inRow[vert].X())
			maxX = max(maxX, inRow[vert].X())
		}
		x0 := int((minX - hf.Bounds.Min.X()) * inverseCellSize)
		x1 := int((maxX - hf.Bounds.Min.X()) * inverseCellSize)
		if x1 < 0 || x0 >= w {
			continue
		}
		x0 = common.Clamp(x0, -1, w-1)
		x1 = common.Clamp(x1, 0, w-1)

		nvRow2 := nvRow
		for x := x0; x <= x1; x++ {
			// Clip the row polygon to the column.
			cellX := hf.Bounds.Min.X() + float32(x)*hf.CellSize
			nv, nvRem := dividePoly(inRow[:nvRow2], p1, p2, cellX+hf.CellSize, axisX)
			inRow, p2 = p2, inRow
			nvRow2 = nvRem
			if nv < 3 || x < 0 {
				continue
			}

			spanMin := p1[0].Y()
			spanMax := p1[0].Y()
			for vert := 1; vert < nv; vert++ {
				spanMin = min(spanMin, p1[vert].Y())
				spanMax = max(spanMax, p1[vert].Y())
			}
			spanMin -= hf.Bounds.Min.Y()
			spanMax -= hf.Bounds.Min.Y()
			if spanMax < 0 || spanMin > by {
				continue
			}
			if spanMin < 0 {
				spanMin = 0
			}
			if spanMax > by {
				spanMax = by
			}

			// Snap the span to the height grid.
			sminCell := common.Clamp(int(math.Floor(float64(spanMin*inverseCellHeight))), 0, maxSpanHeight)
			smaxCell := common.Clamp(int(math.Ceil(float64(spanMax*inverseCellHeight))), sminCell+1, maxSpanHeight)

			if err := hf.AddSpan(x, z, uint16(sminCell), uint16(smaxCell), area, flagMergeThreshold); err != nil {
				return err
			}
		}
	}
	return nil
}

// RasterizeTriangles rasterizes every triangle of the mesh into the
// heightfield, carrying the per-triangle area ids onto the created spans.
func (hf *Heightfield) RasterizeTriangles(mesh *TriMesh, flagMergeThreshold int) error {
	for i, t := range mesh.Triangles {
		v0 := mesh.Vertices[t[0]]
		v1 := mesh.Vertices[t[1]]
		v2 := mesh.Vertices[t[2]]
		if err := hf.rasterizeTri(v0, v1, v2, mesh.Areas[i], flagMergeThreshold); err != nil {
			return err
		}
	}
	return nil
}

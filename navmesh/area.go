package navmesh

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"navbake/common"
)

// ConvexVolume overrides the area id of every compact span whose footprint
// center lies inside the polygon (even-odd rule on the xz-plane) and whose
// floor falls between MinY and MaxY.
type ConvexVolume struct {
	Vertices []mgl32.Vec3
	MinY     float32
	MaxY     float32
	Area     uint8
}

// pointInPoly runs the even-odd crossing test on the xz-plane.
func pointInPoly(verts []mgl32.Vec3, point mgl32.Vec3) bool {
	inside := false
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		vi := verts[i]
		vj := verts[j]
		if (vi.Z() > point.Z()) != (vj.Z() > point.Z()) &&
			point.X() < (vj.X()-vi.X())*(point.Z()-vi.Z())/(vj.Z()-vi.Z())+vi.X() {
			inside = !inside
		}
		j = i
	}
	return inside
}

// MarkConvexPolyArea rewrites the area id of every walkable span inside the
// volume.
func (chf *CompactHeightfield) MarkConvexPolyArea(volume ConvexVolume) {
	if len(volume.Vertices) == 0 {
		return
	}
	bounds := AABB{Min: volume.Vertices[0], Max: volume.Vertices[0]}
	for _, v := range volume.Vertices[1:] {
		bounds.Extend(v)
	}
	bounds.Min[1] = volume.MinY
	bounds.Max[1] = volume.MaxY

	// Grid footprint of the polygon.
	minX := int((bounds.Min.X() - chf.Bounds.Min.X()) / chf.CellSize)
	minY := int((bounds.Min.Y() - chf.Bounds.Min.Y()) / chf.CellHeight)
	minZ := int((bounds.Min.Z() - chf.Bounds.Min.Z()) / chf.CellSize)
	maxX := int((bounds.Max.X() - chf.Bounds.Min.X()) / chf.CellSize)
	maxY := int((bounds.Max.Y() - chf.Bounds.Min.Y()) / chf.CellHeight)
	maxZ := int((bounds.Max.Z() - chf.Bounds.Min.Z()) / chf.CellSize)

	if maxX < 0 || minX >= chf.Width || maxZ < 0 || minZ >= chf.Height {
		return
	}
	minX = max(minX, 0)
	maxX = min(maxX, chf.Width-1)
	minZ = max(minZ, 0)
	maxZ = min(maxZ, chf.Height-1)

	for z := minZ; z <= maxZ; z++ {
		for x := minX; x <= maxX; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Areas[i] == NullArea {
					continue
				}
				span := &chf.Spans[i]
				if int(span.Y) < minY || int(span.Y) > maxY {
					continue
				}
				point := mgl32.Vec3{
					chf.Bounds.Min.X() + (float32(x)+0.5)*chf.CellSize,
					0,
					chf.Bounds.Min.Z() + (float32(z)+0.5)*chf.CellSize,
				}
				if pointInPoly(volume.Vertices, point) {
					chf.Areas[i] = volume.Area
				}
			}
		}
	}
}

// ErodeWalkableArea reclassifies as non-walkable every span closer than
// radius voxels to a boundary (missing neighbor, non-walkable neighbor, or
// grid edge). Together with the agent-radius derivation in AgentConfig this
// keeps the final mesh clear of obstacles without runtime cylinder checks.
//
// The boundary distance is a chamfer approximation: two diagonal sweeps
// propagating +2 per cardinal step and +3 per diagonal step, capped at 255.
func (chf *CompactHeightfield) ErodeWalkableArea(radius int) {
	dist := make([]uint8, chf.SpanCount)
	for i := range dist {
		dist[i] = 0xff
	}

	// Mark boundary spans.
	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Areas[i] == NullArea {
					dist[i] = 0
					continue
				}
				span := &chf.Spans[i]
				neighborCount := 0
				for dir := 0; dir < 4; dir++ {
					con := span.Con(dir)
					if con == NotConnected {
						break
					}
					nx := x + common.DirOffsetX(dir)
					nz := z + common.DirOffsetZ(dir)
					ni := int(chf.cellAt(nx, nz).Index) + con
					if chf.Areas[ni] == NullArea {
						break
					}
					neighborCount++
				}
				if neighborCount != 4 {
					dist[i] = 0
				}
			}
		}
	}

	propagate := func(i int, neighborDist uint8, step uint8) {
		nd := min(int(neighborDist)+int(step), 255)
		if uint8(nd) < dist[i] {
			dist[i] = uint8(nd)
		}
	}

	// Pass 1: top-left to bottom-right, pulling from (-1,0), (-1,-1),
	// (0,-1) and (1,-1).
	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				span := &chf.Spans[i]
				for _, dirs := range [2][2]int{{0, 3}, {3, 2}} {
					if span.Con(dirs[0]) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dirs[0])
					az := z + common.DirOffsetZ(dirs[0])
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dirs[0])
					propagate(int(i), dist[ai], 2)
					aSpan := &chf.Spans[ai]
					if aSpan.Con(dirs[1]) != NotConnected {
						bx := ax + common.DirOffsetX(dirs[1])
						bz := az + common.DirOffsetZ(dirs[1])
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dirs[1])
						propagate(int(i), dist[bi], 3)
					}
				}
			}
		}
	}

	// Pass 2: bottom-right to top-left, pulling from (1,0), (1,1), (0,1)
	// and (-1,1).
	for z := chf.Height - 1; z >= 0; z-- {
		for x := chf.Width - 1; x >= 0; x-- {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				span := &chf.Spans[i]
				for _, dirs := range [2][2]int{{2, 1}, {1, 0}} {
					if span.Con(dirs[0]) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dirs[0])
					az := z + common.DirOffsetZ(dirs[0])
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dirs[0])
					propagate(int(i), dist[ai], 2)
					aSpan := &chf.Spans[ai]
					if aSpan.Con(dirs[1]) != NotConnected {
						bx := ax + common.DirOffsetX(dirs[1])
						bz := az + common.DirOffsetZ(dirs[1])
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dirs[1])
						propagate(int(i), dist[bi], 3)
					}
				}
			}
		}
	}

	minBoundaryDist := uint8(min(radius*2, 255))
	for i := 0; i < chf.SpanCount; i++ {
		if dist[i] < minBoundaryDist {
			chf.Areas[i] = NullArea
		}
	}
}

// MedianFilterWalkableArea smooths area-id noise by replacing each walkable
// span's area with the median over its 8-neighborhood.
func (chf *CompactHeightfield) MedianFilterWalkableArea() {
	areas := make([]uint8, chf.SpanCount)
	for i := range areas {
		areas[i] = 0xff
	}

	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Areas[i] == NullArea {
					areas[i] = chf.Areas[i]
					continue
				}
				span := &chf.Spans[i]

				var neighborAreas [9]uint8
				for n := range neighborAreas {
					neighborAreas[n] = chf.Areas[i]
				}
				for dir := 0; dir < 4; dir++ {
					if span.Con(dir) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dir)
					az := z + common.DirOffsetZ(dir)
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dir)
					if chf.Areas[ai] != NullArea {
						neighborAreas[dir*2+0] = chf.Areas[ai]
					}
					aSpan := &chf.Spans[ai]
					dir2 := (dir + 1) & 0x3
					if aSpan.Con(dir2) != NotConnected {
						bx := ax + common.DirOffsetX(dir2)
						bz := az + common.DirOffsetZ(dir2)
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dir2)
						if chf.Areas[bi] != NullArea {
							neighborAreas[dir*2+1] = chf.Areas[bi]
						}
					}
				}
				sort.Slice(neighborAreas[:], func(a, b int) bool {
					return neighborAreas[a] < neighborAreas[b]
				})
				areas[i] = neighborAreas[4]
			}
		}
	}
	chf.Areas = areas
}

package navmesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Area ids carried by spans and triangles. NullArea marks non-walkable
// geometry; WalkableArea is the default (and highest) walkable id. Ids in
// between are free for callers to map to movement costs. When two spans
// merge, the numerically larger id wins.
const (
	NullArea     uint8 = 0
	WalkableArea uint8 = 63
)

// AABB is an axis-aligned box in world units.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Extend grows the box to contain p.
func (b *AABB) Extend(p mgl32.Vec3) {
	b.Min = minVec3(b.Min, p)
	b.Max = maxVec3(b.Max, p)
}

// Overlaps reports whether the two boxes intersect.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y() &&
		b.Min.Z() <= o.Max.Z() && b.Max.Z() >= o.Min.Z()
}

// TriMesh is the raw triangle-soup input of the pipeline: a triangle list
// plus one area id per triangle. Triangles default to NullArea until marked
// walkable by slope.
type TriMesh struct {
	Vertices  []mgl32.Vec3
	Triangles [][3]int32
	Areas     []uint8
}

// Extend appends other's geometry, offsetting its indices by the current
// vertex count.
func (m *TriMesh) Extend(other *TriMesh) {
	offset := int32(len(m.Vertices))
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, t := range other.Triangles {
		m.Triangles = append(m.Triangles, [3]int32{t[0] + offset, t[1] + offset, t[2] + offset})
	}
	m.Areas = append(m.Areas, other.Areas...)
}

// ComputeAABB returns the bounding box of the vertices, or ok=false for an
// empty mesh.
func (m *TriMesh) ComputeAABB() (bounds AABB, ok bool) {
	if len(m.Vertices) == 0 {
		return AABB{}, false
	}
	bounds.Min = m.Vertices[0]
	bounds.Max = m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		bounds.Extend(v)
	}
	return bounds, true
}

// TriNormal returns the unit face normal of triangle i, or the zero vector
// for a degenerate triangle.
func (m *TriMesh) TriNormal(i int) mgl32.Vec3 {
	t := m.Triangles[i]
	a := m.Vertices[t[0]]
	e0 := m.Vertices[t[1]].Sub(a)
	e1 := m.Vertices[t[2]].Sub(a)
	n := e0.Cross(e1)
	if n.Len() == 0 {
		return mgl32.Vec3{}
	}
	return n.Normalize()
}

// MarkWalkableTriangles sets the area id of every triangle whose face normal
// is within walkableSlopeAngle (degrees) of vertical to WalkableArea.
// Degenerate triangles have a zero normal and stay unwalkable.
func (m *TriMesh) MarkWalkableTriangles(walkableSlopeAngle float32) {
	walkableThr := float32(math.Cos(float64(mgl32.DegToRad(walkableSlopeAngle))))
	for i := range m.Triangles {
		if m.TriNormal(i).Y() > walkableThr {
			m.Areas[i] = WalkableArea
		}
	}
}

// ClearUnwalkableTriangles resets the area id of every triangle steeper than
// walkableSlopeAngle (degrees) back to NullArea.
func (m *TriMesh) ClearUnwalkableTriangles(walkableSlopeAngle float32) {
	walkableThr := float32(math.Cos(float64(mgl32.DegToRad(walkableSlopeAngle))))
	for i := range m.Triangles {
		if m.TriNormal(i).Y() <= walkableThr {
			m.Areas[i] = NullArea
		}
	}
}

func minVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a.X(), b.X()), min(a.Y(), b.Y()), min(a.Z(), b.Z())}
}

func maxVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a.X(), b.X()), max(a.Y(), b.Y()), max(a.Z(), b.Z())}
}

package navmesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"navbake/common"
)

const (
	// Per-polygon limits of the detail triangulation. Vertices are indexed
	// with 7 bits downstream, so a submesh holds at most 127 of them.
	maxDetailVerts        = 127
	maxDetailTris         = 255
	maxDetailVertsPerEdge = 32

	unsetHeight = uint16(0xffff)

	undefIndex = -1
	hullIndex  = -2
)

// DetailSubMesh addresses one polygon's slice of the shared detail vertex
// and triangle arrays.
type DetailSubMesh struct {
	VertBase  int
	VertCount int
	TriBase   int
	TriCount  int
}

// PolyMeshDetail adds accurate height detail to each PolyMesh polygon: a
// triangle mesh in world space whose surface follows the heightfield within
// the configured sample error. Triangle entries are (a, b, c, flags) with
// indices local to the owning submesh; flags bit 2*k marks edge k as lying
// on the polygon boundary.
type PolyMeshDetail struct {
	Meshes []DetailSubMesh
	Verts  []mgl32.Vec3
	Tris   [][4]int
}

type heightPatch struct {
	data   []uint16
	xmin   int
	zmin   int
	width  int
	height int
}

func getJitterX(i int) float32 {
	return float32((i*0x8da6b343)&0xffff)/65535.0*2.0 - 1.0
}

func getJitterZ(i int) float32 {
	return float32((i*0xd8163841)&0xffff)/65535.0*2.0 - 1.0
}

func dist2D(p, q mgl32.Vec3) float32 {
	dx := q.X() - p.X()
	dz := q.Z() - p.Z()
	return float32(math.Sqrt(float64(dx*dx + dz*dz)))
}

func distSq2D(p, q mgl32.Vec3) float32 {
	dx := q.X() - p.X()
	dz := q.Z() - p.Z()
	return dx*dx + dz*dz
}

func dot2D(a, b mgl32.Vec3) float32 {
	return a.X()*b.X() + a.Z()*b.Z()
}

func cross2D(p1, p2, p3 mgl32.Vec3) float32 {
	u1 := p2.X() - p1.X()
	v1 := p2.Z() - p1.Z()
	u2 := p3.X() - p1.X()
	v2 := p3.Z() - p1.Z()
	return u1*v2 - v1*u2
}

// distancePtSeg returns the squared 3D distance from pt to segment p-q.
func distancePtSeg(pt, p, q mgl32.Vec3) float32 {
	pq := q.Sub(p)
	dv := pt.Sub(p)
	d := pq.Dot(pq)
	t := pq.Dot(dv)
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)
	diff := p.Add(pq.Mul(t)).Sub(pt)
	return diff.Dot(diff)
}

// distancePtSeg2D returns the squared xz-distance from pt to segment p-q.
func distancePtSeg2D(pt, p, q mgl32.Vec3) float32 {
	pqx := q.X() - p.X()
	pqz := q.Z() - p.Z()
	dx := pt.X() - p.X()
	dz := pt.Z() - p.Z()
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)
	dx = p.X() + t*pqx - pt.X()
	dz = p.Z() + t*pqz - pt.Z()
	return dx*dx + dz*dz
}

// distPtTri returns the vertical distance from p to the triangle a-b-c when
// p projects inside it, or +inf.
func distPtTri(p, a, b, c mgl32.Vec3) float32 {
	v0 := c.Sub(a)
	v1 := b.Sub(a)
	v2 := p.Sub(a)

	dot00 := dot2D(v0, v0)
	dot01 := dot2D(v0, v1)
	dot02 := dot2D(v0, v2)
	dot11 := dot2D(v1, v1)
	dot12 := dot2D(v1, v2)

	invDenom := 1.0 / (dot00*dot11 - dot01*dot01)
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	const eps = 1e-4
	if u >= -eps && v >= -eps && u+v <= 1+eps {
		y := a.Y() + v0.Y()*u + v1.Y()*v
		return float32(math.Abs(float64(y - p.Y())))
	}
	return math.MaxFloat32
}

func distToTriMesh(p mgl32.Vec3, verts []mgl32.Vec3, tris [][4]int) float32 {
	dmin := float32(math.MaxFloat32)
	for _, t := range tris {
		d := distPtTri(p, verts[t[0]], verts[t[1]], verts[t[2]])
		if d < dmin {
			dmin = d
		}
	}
	if dmin == math.MaxFloat32 {
		return -1
	}
	return dmin
}

// distToPoly returns the xz-distance from p to the polygon boundary,
// negative when p is inside.
func distToPoly(verts []mgl32.Vec3, p mgl32.Vec3) float32 {
	dmin := float32(math.MaxFloat32)
	inside := false
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		vi := verts[i]
		vj := verts[j]
		if (vi.Z() > p.Z()) != (vj.Z() > p.Z()) &&
			p.X() < (vj.X()-vi.X())*(p.Z()-vi.Z())/(vj.Z()-vi.Z())+vi.X() {
			inside = !inside
		}
		dmin = min(dmin, distancePtSeg2D(p, vj, vi))
		j = i
	}
	if inside {
		return -dmin
	}
	return dmin
}

// circumCircle computes the xz circumcircle of the triangle; falls back to
// a zero-radius circle at p1 for degenerate triangles.
func circumCircle(p1, p2, p3 mgl32.Vec3) (c mgl32.Vec3, r float32) {
	// p1 as the origin keeps the calculation stable for distant meshes.
	var v1 mgl32.Vec3
	v2 := p2.Sub(p1)
	v3 := p3.Sub(p1)

	const eps = 1e-6
	cp := cross2D(v1, v2, v3)
	if float32(math.Abs(float64(cp))) > eps {
		v1Sq := dot2D(v1, v1)
		v2Sq := dot2D(v2, v2)
		v3Sq := dot2D(v3, v3)
		c[0] = (v1Sq*(v2.Z()-v3.Z()) + v2Sq*(v3.Z()-v1.Z()) + v3Sq*(v1.Z()-v2.Z())) / (2 * cp)
		c[2] = (v1Sq*(v3.X()-v2.X()) + v2Sq*(v1.X()-v3.X()) + v3Sq*(v2.X()-v1.X())) / (2 * cp)
		r = dist2D(c, v1)
		return c.Add(p1), r
	}
	return p1, 0
}

type detailEdge struct {
	s, t        int
	left, right int
}

func findEdge(edges []detailEdge, s, t int) int {
	for i := range edges {
		e := edges[i]
		if (e.s == s && e.t == t) || (e.s == t && e.t == s) {
			return i
		}
	}
	return undefIndex
}

func addEdge(logger *zap.Logger, edges *[]detailEdge, maxEdges, s, t, l, r int) {
	if len(*edges) >= maxEdges {
		if logger != nil {
			logger.Error("too many edges in detail triangulation", zap.Int("max", maxEdges))
		}
		return
	}
	if findEdge(*edges, s, t) == undefIndex {
		*edges = append(*edges, detailEdge{s: s, t: t, left: l, right: r})
	}
}

func updateLeftFace(e *detailEdge, s, t, f int) {
	if e.s == s && e.t == t && e.left == undefIndex {
		e.left = f
	} else if e.t == s && e.s == t && e.right == undefIndex {
		e.right = f
	}
}

func overlapSegSeg2D(a, b, c, d mgl32.Vec3) bool {
	a1 := cross2D(a, b, d)
	a2 := cross2D(a, b, c)
	if a1*a2 < 0 {
		a3 := cross2D(c, d, a)
		a4 := a3 + a2 - a1
		if a3*a4 < 0 {
			return true
		}
	}
	return false
}

func overlapEdges(pts []mgl32.Vec3, edges []detailEdge, s1, t1 int) bool {
	for _, e := range edges {
		// Shared endpoints do not count as overlap.
		if e.s == s1 || e.s == t1 || e.t == s1 || e.t == t1 {
			continue
		}
		if overlapSegSeg2D(pts[e.s], pts[e.t], pts[s1], pts[t1]) {
			return true
		}
	}
	return false
}

// completeFacet grows a Delaunay face on the open side of edge e by picking
// the point whose circumcircle contains no other point.
func completeFacet(logger *zap.Logger, pts []mgl32.Vec3, edges *[]detailEdge, maxEdges, nfaces, e int) int {
	const eps = 1e-5

	var s, t int
	switch {
	case (*edges)[e].left == undefIndex:
		s = (*edges)[e].s
		t = (*edges)[e].t
	case (*edges)[e].right == undefIndex:
		s = (*edges)[e].t
		t = (*edges)[e].s
	default:
		return nfaces
	}

	// Best point left of the edge.
	npts := len(pts)
	pt := npts
	var c mgl32.Vec3
	r := float32(-1)
	for u := 0; u < npts; u++ {
		if u == s || u == t {
			continue
		}
		if cross2D(pts[s], pts[t], pts[u]) <= eps {
			continue
		}
		if r < 0 {
			pt = u
			c, r = circumCircle(pts[s], pts[t], pts[u])
			continue
		}
		d := dist2D(c, pts[u])
		const tol = 0.001
		if d > r*(1+tol) {
			// Outside the current circumcircle.
			continue
		}
		if d < r*(1-tol) {
			// Safely inside, adopt.
			pt = u
			c, r = circumCircle(pts[s], pts[t], pts[u])
			continue
		}
		// On the epsilon ring: accept only if the new edges stay valid.
		if overlapEdges(pts, *edges, s, u) || overlapEdges(pts, *edges, t, u) {
			continue
		}
		pt = u
		c, r = circumCircle(pts[s], pts[t], pts[u])
	}

	if pt < npts {
		updateLeftFace(&(*edges)[e], s, t, nfaces)

		ne := findEdge(*edges, pt, s)
		if ne == undefIndex {
			addEdge(logger, edges, maxEdges, pt, s, nfaces, undefIndex)
		} else {
			updateLeftFace(&(*edges)[ne], pt, s, nfaces)
		}
		ne = findEdge(*edges, t, pt)
		if ne == undefIndex {
			addEdge(logger, edges, maxEdges, t, pt, nfaces, undefIndex)
		} else {
			updateLeftFace(&(*edges)[ne], t, pt, nfaces)
		}
		nfaces++
	} else {
		updateLeftFace(&(*edges)[e], s, t, hullIndex)
	}
	return nfaces
}

// delaunayHull triangulates the point set constrained to the given hull by
// repeatedly completing open edges.
func delaunayHull(logger *zap.Logger, pts []mgl32.Vec3, hull []int) [][4]int {
	nfaces := 0
	maxEdges := len(pts) * 10
	edges := make([]detailEdge, 0, 64)

	for i, j := 0, len(hull)-1; i < len(hull); j, i = i, i+1 {
		addEdge(logger, &edges, maxEdges, hull[j], hull[i], hullIndex, undefIndex)
	}

	for currentEdge := 0; currentEdge < len(edges); currentEdge++ {
		if edges[currentEdge].left == undefIndex {
			nfaces = completeFacet(logger, pts, &edges, maxEdges, nfaces, currentEdge)
		}
		if edges[currentEdge].right == undefIndex {
			nfaces = completeFacet(logger, pts, &edges, maxEdges, nfaces, currentEdge)
		}
	}

	// Assemble faces from the edge records.
	tris := make([][4]int, nfaces)
	for i := range tris {
		tris[i] = [4]int{-1, -1, -1, 0}
	}
	for _, e := range edges {
		if e.right >= 0 {
			t := &tris[e.right]
			if t[0] == -1 {
				t[0] = e.s
				t[1] = e.t
			} else if t[0] == e.t {
				t[2] = e.s
			} else if t[1] == e.s {
				t[2] = e.t
			}
		}
		if e.left >= 0 {
			t := &tris[e.left]
			if t[0] == -1 {
				t[0] = e.t
				t[1] = e.s
			} else if t[0] == e.s {
				t[2] = e.t
			} else if t[1] == e.t {
				t[2] = e.s
			}
		}
	}

	for i := 0; i < len(tris); i++ {
		t := tris[i]
		if t[0] == -1 || t[1] == -1 || t[2] == -1 {
			if logger != nil {
				logger.Warn("removing dangling face from detail triangulation",
					zap.Ints("face", []int{t[0], t[1], t[2]}))
			}
			tris[i] = tris[len(tris)-1]
			tris = tris[:len(tris)-1]
			i--
		}
	}
	return tris
}

// triangulateHull fans out triangles between the left and right walks of
// the hull, advancing whichever side yields the shorter perimeter. Handles
// tessellated straight edges better than a Delaunay pass when there are no
// interior points.
func triangulateHull(verts []mgl32.Vec3, hull []int) [][4]int {
	start, left, right := 0, 1, len(hull)-1
	nhull := len(hull)

	// Start from the ear with the shortest perimeter.
	dmin := float32(math.MaxFloat32)
	for i := 0; i < nhull; i++ {
		pi := common.PrevIndex(i, nhull)
		ni := common.NextIndex(i, nhull)
		pv := verts[hull[pi]]
		cv := verts[hull[i]]
		nv := verts[hull[ni]]
		d := dist2D(pv, cv) + dist2D(cv, nv) + dist2D(nv, pv)
		if d < dmin {
			start = i
			left = ni
			right = pi
			dmin = d
		}
	}

	tris := make([][4]int, 0, nhull-2)
	tris = append(tris, [4]int{hull[start], hull[left], hull[right], 0})

	for common.NextIndex(left, nhull) != right {
		nleft := common.NextIndex(left, nhull)
		nright := common.PrevIndex(right, nhull)

		cvleft := verts[hull[left]]
		nvleft := verts[hull[nleft]]
		cvright := verts[hull[right]]
		nvright := verts[hull[nright]]
		dleft := dist2D(cvleft, nvleft) + dist2D(nvleft, cvright)
		dright := dist2D(cvright, nvright) + dist2D(cvleft, nvright)

		if dleft < dright {
			tris = append(tris, [4]int{hull[left], hull[nleft], hull[right], 0})
			left = nleft
		} else {
			tris = append(tris, [4]int{hull[left], hull[nright], hull[right], 0})
			right = nright
		}
	}
	return tris
}

// polyMinExtent returns the polygon's smallest cross-section width.
func polyMinExtent(verts []mgl32.Vec3) float32 {
	minDist := float32(math.MaxFloat32)
	n := len(verts)
	for i := 0; i < n; i++ {
		ni := (i + 1) % n
		maxEdgeDist := float32(0)
		for j := 0; j < n; j++ {
			if j == i || j == ni {
				continue
			}
			d := distancePtSeg2D(verts[j], verts[i], verts[ni])
			maxEdgeDist = max(maxEdgeDist, d)
		}
		minDist = min(minDist, maxEdgeDist)
	}
	return float32(math.Sqrt(float64(minDist)))
}

// getHeight samples the height patch at a world position, spiraling out up
// to radius cells when the center cell has no height, ring by ring so the
// nearest valid sample wins.
func (hp *heightPatch) getHeight(fx, fy, fz, cs, ics, ch float32, radius int) uint16 {
	ix := int(math.Floor(float64(fx*ics + 0.01)))
	iz := int(math.Floor(float64(fz*ics + 0.01)))
	ix = common.Clamp(ix-hp.xmin, 0, hp.width-1)
	iz = common.Clamp(iz-hp.zmin, 0, hp.height-1)
	h := hp.data[ix+iz*hp.width]
	if h != unsetHeight {
		return h
	}

	x, z, dx, dz := 1, 0, 1, 0
	maxSize := radius*2 + 1
	maxIter := maxSize*maxSize - 1
	nextRingIterStart := 8
	nextRingIters := 16
	dmin := float32(math.MaxFloat32)
	for i := 0; i < maxIter; i++ {
		nx := ix + x
		nz := iz + z
		if nx >= 0 && nz >= 0 && nx < hp.width && nz < hp.height {
			nh := hp.data[nx+nz*hp.width]
			if nh != unsetHeight {
				d := float32(math.Abs(float64(float32(nh)*ch - fy)))
				if d < dmin {
					h = nh
					dmin = d
				}
			}
		}
		// Stop at ring boundaries once a height was found; a farther ring
		// cannot beat the closest sample of this one.
		if i+1 == nextRingIterStart {
			if h != unsetHeight {
				break
			}
			nextRingIterStart += nextRingIters
			nextRingIters += 8
		}
		if x == z || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x += dx
		z += dz
	}
	return h
}

type heightSeed struct {
	x, z int
	i    int32
}

// seedArrayWithPolyCenter walks span by span from the vertex nearest to a
// polygon corner toward the polygon center and leaves a single seed there.
// Needed when the polygon has no spans of its own region to sample.
func seedArrayWithPolyCenter(chf *CompactHeightfield, pverts []uint16, npoly int,
	verts [][3]uint16, bs int, hp *heightPatch, queue *[]heightSeed) {
	offsets := [9][2]int{
		{0, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0},
	}

	// Closest cell to any polygon vertex.
	startCellX, startCellZ := 0, 0
	startSpanIndex := int32(-1)
	dmin := int(unsetHeight)
	for j := 0; j < npoly && dmin > 0; j++ {
		v := verts[pverts[j]]
		for k := 0; k < 9 && dmin > 0; k++ {
			ax := int(v[0]) + offsets[k][0]
			ay := int(v[1])
			az := int(v[2]) + offsets[k][1]
			if ax < hp.xmin || ax >= hp.xmin+hp.width || az < hp.zmin || az >= hp.zmin+hp.height {
				continue
			}
			cell := chf.cellAt(ax+bs, az+bs)
			for i := cell.Index; i < cell.Index+cell.Count && dmin > 0; i++ {
				d := common.Abs(ay - int(chf.Spans[i].Y))
				if d < dmin {
					startCellX = ax
					startCellZ = az
					startSpanIndex = i
					dmin = d
				}
			}
		}
	}

	if startSpanIndex < 0 {
		return
	}

	pcx, pcz := 0, 0
	for j := 0; j < npoly; j++ {
		pcx += int(verts[pverts[j]][0])
		pcz += int(verts[pverts[j]][2])
	}
	pcx /= npoly
	pcz /= npoly

	// DFS toward the center, reusing hp.data as the visited set. Contour
	// simplification can force detours, so intermediate nodes are recorded.
	*queue = (*queue)[:0]
	*queue = append(*queue, heightSeed{startCellX, startCellZ, startSpanIndex})
	dirs := [4]int{0, 1, 2, 3}
	for i := range hp.data {
		hp.data[i] = 0
	}

	cx, cz, ci := -1, -1, int32(-1)
	for {
		if len(*queue) < 1 {
			// Walk towards the polygon center failed.
			break
		}
		back := (*queue)[len(*queue)-1]
		*queue = (*queue)[:len(*queue)-1]
		cx, cz, ci = back.x, back.z, back.i

		if cx == pcx && cz == pcz {
			break
		}

		// Prefer the direction pointing at the center, trying it last so
		// the stack pops it first.
		var directDir int
		if cx == pcx {
			directDir = common.DirForOffset(0, sign(pcz-cz))
		} else {
			directDir = common.DirForOffset(sign(pcx-cx), 0)
		}
		dirs[3], dirs[directDir] = dirs[directDir], dirs[3]

		cs := &chf.Spans[ci]
		for i := 0; i < 4; i++ {
			dir := dirs[i]
			if cs.Con(dir) == NotConnected {
				continue
			}
			newX := cx + common.DirOffsetX(dir)
			newZ := cz + common.DirOffsetZ(dir)
			hpx := newX - hp.xmin
			hpz := newZ - hp.zmin
			if hpx < 0 || hpx >= hp.width || hpz < 0 || hpz >= hp.height {
				continue
			}
			if hp.data[hpx+hpz*hp.width] != 0 {
				continue
			}
			hp.data[hpx+hpz*hp.width] = 1
			*queue = append(*queue, heightSeed{
				newX, newZ,
				int32(chf.cellAt(newX+bs, newZ+bs).Index) + int32(cs.Con(dir)),
			})
		}
		dirs[3], dirs[directDir] = dirs[directDir], dirs[3]
	}

	// The flood fill works in border-offset coordinates.
	*queue = (*queue)[:0]
	*queue = append(*queue, heightSeed{cx + bs, cz + bs, ci})
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}
	hp.data[cx-hp.xmin+(cz-hp.zmin)*hp.width] = chf.Spans[ci].Y
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	return -1
}

// getHeightData fills the height patch with floor heights of the polygon's
// region, then flood-fills outward from the region borders so the whole
// patch rectangle has data.
func getHeightData(chf *CompactHeightfield, pverts []uint16, npoly int,
	verts [][3]uint16, bs int, hp *heightPatch, region RegionID) {
	// The patch is in polymesh coordinates; compact heightfield reads are
	// offset back by the border size.
	queue := make([]heightSeed, 0, 512)
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}

	empty := true

	// Polygons stitched from multiple regions may overlap spans of another
	// region, so their heights cannot be sampled directly.
	if region != MultipleRegions {
		for hz := 0; hz < hp.height; hz++ {
			z := hp.zmin + hz + bs
			for hx := 0; hx < hp.width; hx++ {
				x := hp.xmin + hx + bs
				cell := chf.cellAt(x, z)
				for i := cell.Index; i < cell.Index+cell.Count; i++ {
					span := &chf.Spans[i]
					if span.Reg != region {
						continue
					}
					hp.data[hx+hz*hp.width] = span.Y
					empty = false

					// Region borders seed the flood fill.
					border := false
					for dir := 0; dir < 4; dir++ {
						if span.Con(dir) == NotConnected {
							continue
						}
						ax := x + common.DirOffsetX(dir)
						az := z + common.DirOffsetZ(dir)
						ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
						if chf.Spans[ai].Reg != region {
							border = true
							break
						}
					}
					if border {
						queue = append(queue, heightSeed{x, z, i})
					}
					break
				}
			}
		}
	}

	if empty {
		seedArrayWithPolyCenter(chf, pverts, npoly, verts, bs, hp, &queue)
	}

	// BFS from the seeds; starting at the polygon center keeps the fill
	// from drifting onto overlapping polygons with wrong heights.
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		cs := &chf.Spans[cur.i]
		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == NotConnected {
				continue
			}
			ax := cur.x + common.DirOffsetX(dir)
			az := cur.z + common.DirOffsetZ(dir)
			hx := ax - hp.xmin - bs
			hz := az - hp.zmin - bs
			if hx < 0 || hx >= hp.width || hz < 0 || hz >= hp.height {
				continue
			}
			if hp.data[hx+hz*hp.width] != unsetHeight {
				continue
			}
			ai := int32(chf.cellAt(ax, az).Index) + int32(cs.Con(dir))
			hp.data[hx+hz*hp.width] = chf.Spans[ai].Y
			queue = append(queue, heightSeed{ax, az, ai})
		}
	}
}

func getEdgeFlags(va, vb mgl32.Vec3, vpoly []mgl32.Vec3) int {
	// The edge is a boundary edge when both endpoints lie on a polygon
	// edge.
	const thrSq = 0.001 * 0.001
	j := len(vpoly) - 1
	for i := 0; i < len(vpoly); i++ {
		if distancePtSeg2D(va, vpoly[j], vpoly[i]) < thrSq &&
			distancePtSeg2D(vb, vpoly[j], vpoly[i]) < thrSq {
			return 1
		}
		j = i
	}
	return 0
}

func getTriFlags(va, vb, vc mgl32.Vec3, vpoly []mgl32.Vec3) int {
	flags := 0
	flags |= getEdgeFlags(va, vb, vpoly) << 0
	flags |= getEdgeFlags(vb, vc, vpoly) << 2
	flags |= getEdgeFlags(vc, va, vpoly) << 4
	return flags
}

// buildPolyDetail tessellates one polygon: edge samples keep boundary
// heights seamless across polygons, then interior grid samples are inserted
// worst-error-first until the surface is within sampleMaxError.
func buildPolyDetail(logger *zap.Logger, in []mgl32.Vec3, sampleDist, sampleMaxError float32,
	heightSearchRadius int, chf *CompactHeightfield, hp *heightPatch) (verts []mgl32.Vec3, tris [][4]int) {
	nin := len(in)
	verts = make([]mgl32.Vec3, nin, 256)
	copy(verts, in)

	var edge [maxDetailVertsPerEdge + 1]mgl32.Vec3
	var hull []int

	cs := chf.CellSize
	ics := 1.0 / cs
	ch := chf.CellHeight

	minExtent := polyMinExtent(verts)

	// Tessellate the outlines first so boundary heights match between
	// adjacent polygons.
	if sampleDist > 0 {
		for i, j := 0, nin-1; i < nin; j, i = i, i+1 {
			vj := in[j]
			vi := in[i]
			swapped := false
			// Lexicographic order, or the two polygons sharing this edge
			// would sample it differently and seam.
			if float32(math.Abs(float64(vj.X()-vi.X()))) < 1e-6 {
				if vj.Z() > vi.Z() {
					vj, vi = vi, vj
					swapped = true
				}
			} else if vj.X() > vi.X() {
				vj, vi = vi, vj
				swapped = true
			}

			d := vi.Sub(vj)
			dlen := float32(math.Sqrt(float64(d.X()*d.X() + d.Z()*d.Z())))
			nn := 1 + int(math.Floor(float64(dlen/sampleDist)))
			if nn >= maxDetailVertsPerEdge {
				nn = maxDetailVertsPerEdge - 1
			}
			if len(verts)+nn >= maxDetailVerts {
				nn = maxDetailVerts - 1 - len(verts)
			}
			for k := 0; k <= nn; k++ {
				u := float32(k) / float32(nn)
				pos := vj.Add(d.Mul(u))
				pos[1] = float32(hp.getHeight(pos.X(), pos.Y(), pos.Z(), cs, ics, ch, heightSearchRadius)) * ch
				edge[k] = pos
			}

			// Simplify the edge samples down to the ones that matter.
			var idx [maxDetailVertsPerEdge]int
			idx[0] = 0
			idx[1] = nn
			nidx := 2
			for k := 0; k < nidx-1; {
				a := idx[k]
				b := idx[k+1]
				maxd := float32(0)
				maxi := -1
				for m := a + 1; m < b; m++ {
					dev := distancePtSeg(edge[m], edge[a], edge[b])
					if dev > maxd {
						maxd = dev
						maxi = m
					}
				}
				if maxi != -1 && maxd > sampleMaxError*sampleMaxError {
					for m := nidx; m > k; m-- {
						idx[m] = idx[m-1]
					}
					idx[k+1] = maxi
					nidx++
				} else {
					k++
				}
			}

			hull = append(hull, j)
			// Beyond the endpoints, kept samples become new vertices.
			if swapped {
				for k := nidx - 2; k > 0; k-- {
					hull = append(hull, len(verts))
					verts = append(verts, edge[idx[k]])
				}
			} else {
				for k := 1; k < nidx-1; k++ {
					hull = append(hull, len(verts))
					verts = append(verts, edge[idx[k]])
				}
			}
		}
	} else {
		for i := range in {
			hull = append(hull, i)
		}
	}

	// Slivers get no interior samples.
	if minExtent < sampleDist*2 {
		return verts, triangulateHull(verts, hull)
	}

	// triangulateHull gives a better base for long thin polygons than a
	// Delaunay pass would.
	tris = triangulateHull(verts, hull)
	if len(tris) == 0 {
		if logger != nil {
			logger.Warn("could not triangulate polygon", zap.Int("verts", len(verts)))
		}
		return verts, tris
	}

	if sampleDist > 0 {
		// Interior samples on a grid.
		bmin := in[0]
		bmax := in[0]
		for _, v := range in[1:] {
			bmin = minVec3(bmin, v)
			bmax = maxVec3(bmax, v)
		}
		x0 := int(math.Floor(float64(bmin.X() / sampleDist)))
		x1 := int(math.Ceil(float64(bmax.X() / sampleDist)))
		z0 := int(math.Floor(float64(bmin.Z() / sampleDist)))
		z1 := int(math.Ceil(float64(bmax.Z() / sampleDist)))

		type sample struct {
			x, z  int
			h     uint16
			added bool
		}
		var samples []sample
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				pt := mgl32.Vec3{
					float32(x) * sampleDist,
					(bmax.Y() + bmin.Y()) * 0.5,
					float32(z) * sampleDist,
				}
				// Skip samples too close to the boundary.
				if distToPoly(in, pt) > -sampleDist/2 {
					continue
				}
				samples = append(samples, sample{
					x: x,
					z: z,
					h: hp.getHeight(pt.X(), pt.Y(), pt.Z(), cs, ics, ch, heightSearchRadius),
				})
			}
		}

		// Insert the worst sample each round until the error is acceptable.
		for iter := 0; iter < len(samples); iter++ {
			if len(verts) >= maxDetailVerts {
				break
			}
			var bestpt mgl32.Vec3
			bestd := float32(0)
			besti := -1
			for i := range samples {
				s := &samples[i]
				if s.added {
					continue
				}
				// Jitter breaks the symmetric grid patterns that produce
				// degenerate triangulations.
				pt := mgl32.Vec3{
					float32(s.x)*sampleDist + getJitterX(i)*cs*0.1,
					float32(s.h) * ch,
					float32(s.z)*sampleDist + getJitterZ(i)*cs*0.1,
				}
				d := distToTriMesh(pt, verts, tris)
				if d < 0 {
					continue // did not hit the mesh
				}
				if d > bestd {
					bestd = d
					besti = i
					bestpt = pt
				}
			}
			if bestd <= sampleMaxError || besti == -1 {
				break
			}
			samples[besti].added = true
			verts = append(verts, bestpt)

			// Full rebuild; incremental insertion is not worth the
			// complexity at these sizes.
			tris = delaunayHull(logger, verts, hull)
		}
	}

	if len(tris) > maxDetailTris {
		tris = tris[:maxDetailTris]
		if logger != nil {
			logger.Error("shrinking detail triangle count", zap.Int("max", maxDetailTris))
		}
	}
	return verts, tris
}

// BuildPolyMeshDetail builds the detail triangle mesh for every polygon of
// the mesh. sampleDist controls the tessellation density and sampleMaxError
// the allowed vertical deviation from the heightfield, both in world units.
func BuildPolyMeshDetail(logger *zap.Logger, mesh *PolyMesh, chf *CompactHeightfield,
	sampleDist, sampleMaxError float32) (*PolyMeshDetail, error) {
	dmesh := &PolyMeshDetail{}
	if len(mesh.Verts) == 0 || mesh.NumPolys() == 0 {
		return dmesh, nil
	}

	nvp := mesh.MaxVertsPerPoly
	cs := mesh.CellSize
	ch := mesh.CellHeight
	orig := mesh.Bounds.Min
	borderSize := mesh.BorderSize
	heightSearchRadius := max(1, int(math.Ceil(float64(mesh.MaxEdgeError))))

	npolys := mesh.NumPolys()
	bounds := make([][4]int, npolys)
	poly := make([]mgl32.Vec3, 0, nvp)

	// Patch footprint per polygon.
	maxhw, maxhh := 0, 0
	for i := 0; i < npolys; i++ {
		pverts, _ := mesh.Poly(i)
		xmin, xmax := chf.Width, 0
		zmin, zmax := chf.Height, 0
		for j := 0; j < nvp; j++ {
			if pverts[j] == MeshNullIndex {
				break
			}
			v := mesh.Verts[pverts[j]]
			xmin = min(xmin, int(v[0]))
			xmax = max(xmax, int(v[0]))
			zmin = min(zmin, int(v[2]))
			zmax = max(zmax, int(v[2]))
		}
		xmin = max(0, xmin-1)
		xmax = min(chf.Width, xmax+1)
		zmin = max(0, zmin-1)
		zmax = min(chf.Height, zmax+1)
		bounds[i] = [4]int{xmin, xmax, zmin, zmax}
		if xmin >= xmax || zmin >= zmax {
			continue
		}
		maxhw = max(maxhw, xmax-xmin)
		maxhh = max(maxhh, zmax-zmin)
	}

	hp := &heightPatch{data: make([]uint16, maxhw*maxhh)}
	dmesh.Meshes = make([]DetailSubMesh, npolys)

	for i := 0; i < npolys; i++ {
		pverts, _ := mesh.Poly(i)

		// Polygon vertices in patch-local world units.
		poly = poly[:0]
		npoly := 0
		for j := 0; j < nvp; j++ {
			if pverts[j] == MeshNullIndex {
				break
			}
			v := mesh.Verts[pverts[j]]
			poly = append(poly, mgl32.Vec3{
				float32(v[0]) * cs,
				float32(v[1]) * ch,
				float32(v[2]) * cs,
			})
			npoly++
		}

		hp.xmin = bounds[i][0]
		hp.zmin = bounds[i][2]
		hp.width = bounds[i][1] - bounds[i][0]
		hp.height = bounds[i][3] - bounds[i][2]
		getHeightData(chf, pverts, npoly, mesh.Verts, borderSize, hp, mesh.Regs[i])

		verts, tris := buildPolyDetail(logger, poly, sampleDist, sampleMaxError,
			heightSearchRadius, chf, hp)

		// To world space. The cell-height offset lifts the surface to the
		// walkable floor.
		for j := range verts {
			verts[j][0] += orig.X()
			verts[j][1] += orig.Y() + chf.CellHeight
			verts[j][2] += orig.Z()
		}
		for j := range poly {
			poly[j][0] += orig.X()
			poly[j][1] += orig.Y()
			poly[j][2] += orig.Z()
		}

		dmesh.Meshes[i] = DetailSubMesh{
			VertBase:  len(dmesh.Verts),
			VertCount: len(verts),
			TriBase:   len(dmesh.Tris),
			TriCount:  len(tris),
		}

		dmesh.Verts = append(dmesh.Verts, verts...)
		for _, t := range tris {
			dmesh.Tris = append(dmesh.Tris, [4]int{
				t[0], t[1], t[2],
				getTriFlags(verts[t[0]], verts[t[1]], verts[t[2]], poly),
			})
		}
	}
	return dmesh, nil
}

package navmesh

import (
	"go.uber.org/zap"

	"navbake/common"
)

const (
	// MeshNullIndex marks unused vertex slots and open (unconnected) edges
	// in PolyMesh.Polys.
	MeshNullIndex = uint16(0xffff)

	// MultipleRegions is stored as a polygon's region when it was stitched
	// together from triangles of different regions.
	MultipleRegions = RegionID(0)

	// PortalFlag is set on a polygon edge entry together with the side
	// index (0..3) when the edge lies on the tile border.
	PortalFlag = uint16(0x8000)

	vertexBucketCount = 1 << 12
)

// PolyMesh is the final convex polygon mesh. Verts are voxel coordinates
// relative to Bounds.Min. Polys has 2*MaxVertsPerPoly entries per polygon:
// the first half holds vertex indices (MeshNullIndex padded), the second
// half neighbor polygon indices per edge, MeshNullIndex for walls and
// PortalFlag|side for tile borders.
type PolyMesh struct {
	Verts           [][3]uint16
	Polys           []uint16
	Regs            []RegionID
	Flags           []uint16
	Areas           []uint8
	MaxVertsPerPoly int
	Bounds          AABB
	CellSize        float32
	CellHeight      float32
	BorderSize      int
	MaxEdgeError    float32
}

// NumPolys returns the number of polygons in the mesh.
func (m *PolyMesh) NumPolys() int { return len(m.Regs) }

// Poly returns the vertex and neighbor halves of polygon i.
func (m *PolyMesh) Poly(i int) (verts, neighbors []uint16) {
	p := m.Polys[i*m.MaxVertsPerPoly*2 : (i+1)*m.MaxVertsPerPoly*2]
	return p[:m.MaxVertsPerPoly], p[m.MaxVertsPerPoly:]
}

// 2D integer geometry on the xz-plane, exact by construction.

func area2(a, b, c ContourVertex) int {
	return (b.X-a.X)*(c.Z-a.Z) - (c.X-a.X)*(b.Z-a.Z)
}

// left reports c strictly left of the directed line a-b.
func left(a, b, c ContourVertex) bool   { return area2(a, b, c) < 0 }
func leftOn(a, b, c ContourVertex) bool { return area2(a, b, c) <= 0 }
func collinear(a, b, c ContourVertex) bool {
	return area2(a, b, c) == 0
}

// intersectProp reports a proper crossing of ab and cd: they share a point
// interior to both segments.
func intersectProp(a, b, c, d ContourVertex) bool {
	if collinear(a, b, c) || collinear(a, b, d) ||
		collinear(c, d, a) || collinear(c, d, b) {
		return false
	}
	return left(a, b, c) != left(a, b, d) && left(c, d, a) != left(c, d, b)
}

// between reports c collinear with and on the closed segment ab.
func between(a, b, c ContourVertex) bool {
	if !collinear(a, b, c) {
		return false
	}
	if a.X != b.X {
		return (a.X <= c.X && c.X <= b.X) || (a.X >= c.X && c.X >= b.X)
	}
	return (a.Z <= c.Z && c.Z <= b.Z) || (a.Z >= c.Z && c.Z >= b.Z)
}

// intersect reports ab and cd intersecting, properly or improperly.
func intersect(a, b, c, d ContourVertex) bool {
	return intersectProp(a, b, c, d) ||
		between(a, b, c) || between(a, b, d) ||
		between(c, d, a) || between(c, d, b)
}

func vequal2D(a, b ContourVertex) bool { return a.X == b.X && a.Z == b.Z }

// Ear-clipping triangulation. The high bit of an index marks the following
// vertex as a valid ear tip.
const (
	earFlag   = 0x80000000
	indexMask = 0x0fffffff
)

// diagonalie reports whether i-j is a proper internal or external diagonal,
// ignoring edges incident to i and j.
func diagonalie(i, j, n int, verts []ContourVertex, indices []int) bool {
	d0 := verts[indices[i]&indexMask]
	d1 := verts[indices[j]&indexMask]

	for k := 0; k < n; k++ {
		k1 := common.NextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[indices[k]&indexMask]
		p1 := verts[indices[k1]&indexMask]
		if vequal2D(d0, p0) || vequal2D(d1, p0) || vequal2D(d0, p1) || vequal2D(d1, p1) {
			continue
		}
		if intersect(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

// inCone reports whether the diagonal i-j is strictly internal to the
// polygon in the neighborhood of endpoint i.
func inCone(i, j, n int, verts []ContourVertex, indices []int) bool {
	pi := verts[indices[i]&indexMask]
	pj := verts[indices[j]&indexMask]
	pi1 := verts[indices[common.NextIndex(i, n)]&indexMask]
	pin1 := verts[indices[common.PrevIndex(i, n)]&indexMask]

	if leftOn(pin1, pi, pi1) {
		// Convex corner.
		return left(pi, pj, pin1) && left(pj, pi, pi1)
	}
	// Reflex corner, assuming (i-1, i, i+1) not collinear.
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonal(i, j, n int, verts []ContourVertex, indices []int) bool {
	return inCone(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

// Loose variants admit improper diagonals so triangulation can recover from
// contours with overlapping segments.

func diagonalieLoose(i, j, n int, verts []ContourVertex, indices []int) bool {
	d0 := verts[indices[i]&indexMask]
	d1 := verts[indices[j]&indexMask]

	for k := 0; k < n; k++ {
		k1 := common.NextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[indices[k]&indexMask]
		p1 := verts[indices[k1]&indexMask]
		if vequal2D(d0, p0) || vequal2D(d1, p0) || vequal2D(d0, p1) || vequal2D(d1, p1) {
			continue
		}
		if intersectProp(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inConeLoose(i, j, n int, verts []ContourVertex, indices []int) bool {
	pi := verts[indices[i]&indexMask]
	pj := verts[indices[j]&indexMask]
	pi1 := verts[indices[common.NextIndex(i, n)]&indexMask]
	pin1 := verts[indices[common.PrevIndex(i, n)]&indexMask]

	if leftOn(pin1, pi, pi1) {
		return leftOn(pi, pj, pin1) && leftOn(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonalLoose(i, j, n int, verts []ContourVertex, indices []int) bool {
	return inConeLoose(i, j, n, verts, indices) && diagonalieLoose(i, j, n, verts, indices)
}

// triangulate ear-clips the polygon given by indices into tris (triples of
// raw indices). Returns the negated triangle count when the polygon could
// not be fully clipped.
func triangulate(n int, verts []ContourVertex, indices []int, tris []int) int {
	ntris := 0

	for i := 0; i < n; i++ {
		i1 := common.NextIndex(i, n)
		i2 := common.NextIndex(i1, n)
		if diagonal(i, i2, n, verts, indices) {
			indices[i1] |= earFlag
		}
	}

	for n > 3 {
		// Clip the ear with the shortest resulting diagonal first; this
		// favors well-shaped triangles.
		minLen := -1
		mini := -1
		for i := 0; i < n; i++ {
			i1 := common.NextIndex(i, n)
			if indices[i1]&earFlag != 0 {
				p0 := verts[indices[i]&indexMask]
				p2 := verts[indices[common.NextIndex(i1, n)]&indexMask]
				dx := p2.X - p0.X
				dz := p2.Z - p0.Z
				length := dx*dx + dz*dz
				if minLen < 0 || length < minLen {
					minLen = length
					mini = i
				}
			}
		}

		if mini == -1 {
			// Overlapping contour segments can leave no strict ear. Retry
			// with the loose diagonal test to find one to continue with.
			for i := 0; i < n; i++ {
				i1 := common.NextIndex(i, n)
				i2 := common.NextIndex(i1, n)
				if diagonalLoose(i, i2, n, verts, indices) {
					p0 := verts[indices[i]&indexMask]
					p2 := verts[indices[common.NextIndex(i2, n)]&indexMask]
					dx := p2.X - p0.X
					dz := p2.Z - p0.Z
					length := dx*dx + dz*dz
					if minLen < 0 || length < minLen {
						minLen = length
						mini = i
					}
				}
			}
			if mini == -1 {
				// The contour is messed up, likely from over-aggressive
				// simplification.
				return -ntris
			}
		}

		i := mini
		i1 := common.NextIndex(i, n)
		i2 := common.NextIndex(i1, n)

		tris[ntris*3+0] = indices[i] & indexMask
		tris[ntris*3+1] = indices[i1] & indexMask
		tris[ntris*3+2] = indices[i2] & indexMask
		ntris++

		// Remove P[i1].
		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = common.PrevIndex(i1, n)

		if diagonal(common.PrevIndex(i, n), i1, n, verts, indices) {
			indices[i] |= earFlag
		} else {
			indices[i] &= indexMask
		}
		if diagonal(i, common.NextIndex(i1, n), n, verts, indices) {
			indices[i1] |= earFlag
		} else {
			indices[i1] &= indexMask
		}
	}

	tris[ntris*3+0] = indices[0] & indexMask
	tris[ntris*3+1] = indices[1] & indexMask
	tris[ntris*3+2] = indices[2] & indexMask
	ntris++
	return ntris
}

// Vertex welding via a spatial hash on (x, z); vertices within two height
// units of an existing one are merged.

func computeVertexHash(x, z int) int {
	h1 := 0x8da6b343
	h3 := 0xcb1ab31f
	n := h1*x + h3*z
	return n & (vertexBucketCount - 1)
}

func addVertex(x, y, z int, verts [][3]uint16, nverts int, firstVert, nextVert []int) (idx, newNVerts int) {
	bucket := computeVertexHash(x, z)
	for i := firstVert[bucket]; i != -1; i = nextVert[i] {
		v := verts[i]
		if int(v[0]) == x && common.Abs(int(v[1])-y) <= 2 && int(v[2]) == z {
			return i, nverts
		}
	}

	i := nverts
	verts[i] = [3]uint16{uint16(x), uint16(y), uint16(z)}
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return i, nverts + 1
}

func countPolyVerts(p []uint16, nvp int) int {
	for i := 0; i < nvp; i++ {
		if p[i] == MeshNullIndex {
			return i
		}
	}
	return nvp
}

func uleft(a, b, c [3]uint16) bool {
	return (int(b[0])-int(a[0]))*(int(c[2])-int(a[2]))-
		(int(c[0])-int(a[0]))*(int(b[2])-int(a[2])) < 0
}

// getPolyMergeValue returns the squared length of the shared edge when pa
// and pb can merge into one convex polygon of at most nvp vertices, or -1.
func getPolyMergeValue(pa, pb []uint16, verts [][3]uint16, nvp int) (val, ea, eb int) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	if na+nb-2 > nvp {
		return -1, -1, -1
	}

	// Find the shared edge.
	ea, eb = -1, -1
	for i := 0; i < na; i++ {
		va0 := pa[i]
		va1 := pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := 0; j < nb; j++ {
			vb0 := pb[j]
			vb1 := pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea = i
				eb = j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, -1, -1
	}

	// The merged polygon must stay convex at both seam corners.
	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !uleft(verts[va], verts[vb], verts[vc]) {
		return -1, -1, -1
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !uleft(verts[va], verts[vb], verts[vc]) {
		return -1, -1, -1
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int(verts[va][0]) - int(verts[vb][0])
	dz := int(verts[va][2]) - int(verts[vb][2])
	return dx*dx + dz*dz, ea, eb
}

// mergePolyVerts rewrites pa as the union of pa and pb around their shared
// edge (ea, eb).
func mergePolyVerts(pa, pb []uint16, ea, eb int, tmp []uint16, nvp int) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	for i := 0; i < nvp; i++ {
		tmp[i] = MeshNullIndex
	}
	n := 0
	for i := 0; i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := 0; i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa, tmp[:nvp])
}

type meshEdge struct {
	vert     [2]int
	polyEdge [2]int
	poly     [2]int
}

// buildMeshAdjacency fills the neighbor half of every polygon by matching
// shared edges.
//
// Based on code by Eric Lengyel:
// https://web.archive.org/web/20080704083314/http://www.terathon.com/code/edges.php
func buildMeshAdjacency(polys []uint16, npolys, nverts, vertsPerPoly int) {
	maxEdgeCount := npolys * vertsPerPoly
	firstEdge := make([]int, nverts)
	nextEdge := make([]int, maxEdgeCount)
	edges := make([]meshEdge, 0, maxEdgeCount)

	for i := range firstEdge {
		firstEdge[i] = -1
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := 0; j < vertsPerPoly; j++ {
			if t[j] == MeshNullIndex {
				break
			}
			v0 := int(t[j])
			v1 := int(t[0])
			if j+1 < vertsPerPoly && t[j+1] != MeshNullIndex {
				v1 = int(t[j+1])
			}
			if v0 < v1 {
				edges = append(edges, meshEdge{
					vert:     [2]int{v0, v1},
					poly:     [2]int{i, i},
					polyEdge: [2]int{j, 0},
				})
				nextEdge[len(edges)-1] = firstEdge[v0]
				firstEdge[v0] = len(edges) - 1
			}
		}
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := 0; j < vertsPerPoly; j++ {
			if t[j] == MeshNullIndex {
				break
			}
			v0 := int(t[j])
			v1 := int(t[0])
			if j+1 < vertsPerPoly && t[j+1] != MeshNullIndex {
				v1 = int(t[j+1])
			}
			if v0 > v1 {
				for e := firstEdge[v1]; e != -1; e = nextEdge[e] {
					edge := &edges[e]
					if edge.vert[1] == v0 && edge.poly[0] == edge.poly[1] {
						edge.poly[1] = i
						edge.polyEdge[1] = j
						break
					}
				}
			}
		}
	}

	for i := range edges {
		e := &edges[i]
		if e.poly[0] != e.poly[1] {
			p0 := polys[e.poly[0]*vertsPerPoly*2:]
			p1 := polys[e.poly[1]*vertsPerPoly*2:]
			p0[vertsPerPoly+e.polyEdge[0]] = uint16(e.poly[1])
			p1[vertsPerPoly+e.polyEdge[1]] = uint16(e.poly[0])
		}
	}
}

// polyMeshBuilder carries the mutable state while polygons are assembled,
// degenerate border vertices removed and adjacency computed.
type polyMeshBuilder struct {
	verts  [][3]uint16
	nverts int
	polys  []uint16
	regs   []RegionID
	areas  []uint8
	npolys int
	nvp    int
}

func (b *polyMeshBuilder) poly(i int) []uint16 {
	return b.polys[i*b.nvp*2 : (i+1)*b.nvp*2]
}

// canRemoveVertex checks that removing rem leaves a triangulatable hole:
// enough remaining edges and no more than two open ones.
func (b *polyMeshBuilder) canRemoveVertex(rem uint16) bool {
	numTouchedVerts := 0
	numRemainingEdges := 0
	for i := 0; i < b.npolys; i++ {
		p := b.poly(i)
		nv := countPolyVerts(p, b.nvp)
		numRemoved := 0
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				numTouchedVerts++
				numRemoved++
			}
		}
		if numRemoved > 0 {
			numRemainingEdges += nv - (numRemoved + 1)
		}
	}
	// A lone triangle tip has nothing left to re-polygonize.
	if numRemainingEdges <= 2 {
		return false
	}

	type edgeUse struct {
		a, b  uint16
		count int
	}
	edges := make([]edgeUse, 0, numTouchedVerts*2)
	for i := 0; i < b.npolys; i++ {
		p := b.poly(i)
		nv := countPolyVerts(p, b.nvp)
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				continue
			}
			a, bb := p[j], p[k]
			if bb == rem {
				a, bb = bb, a
			}
			exists := false
			for m := range edges {
				if edges[m].b == bb {
					edges[m].count++
					exists = true
				}
			}
			if !exists {
				edges = append(edges, edgeUse{a: a, b: bb, count: 1})
			}
		}
	}

	// More than two open edges means two non-adjacent polygons share the
	// vertex; removing it would tear the mesh.
	numOpenEdges := 0
	for i := range edges {
		if edges[i].count < 2 {
			numOpenEdges++
		}
	}
	return numOpenEdges <= 2
}

// removeVertex deletes rem, collects the boundary of the resulting hole,
// retriangulates it and merges the triangles back into polygons.
func (b *polyMeshBuilder) removeVertex(logger *zap.Logger, rem uint16, maxPolys int) {
	nvp := b.nvp

	numRemovedVerts := 0
	for i := 0; i < b.npolys; i++ {
		p := b.poly(i)
		nv := countPolyVerts(p, nvp)
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				numRemovedVerts++
			}
		}
	}

	type holeEdge struct {
		a, b uint16
		reg  RegionID
		area uint8
	}
	edges := make([]holeEdge, 0, numRemovedVerts*nvp)

	for i := 0; i < b.npolys; i++ {
		p := b.poly(i)
		nv := countPolyVerts(p, nvp)
		hasRem := false
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				hasRem = true
			}
		}
		if !hasRem {
			continue
		}
		// Keep the edges not touching the removed vertex.
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				edges = append(edges, holeEdge{a: p[k], b: p[j], reg: b.regs[i], area: b.areas[i]})
			}
		}
		// Drop the polygon.
		last := b.poly(b.npolys - 1)
		if &p[0] != &last[0] {
			copy(p[:nvp], last[:nvp])
		}
		for j := nvp; j < nvp*2; j++ {
			p[j] = MeshNullIndex
		}
		b.regs[i] = b.regs[b.npolys-1]
		b.areas[i] = b.areas[b.npolys-1]
		b.npolys--
		i--
	}

	// Delete the vertex and shift all indices above it down.
	copy(b.verts[rem:], b.verts[rem+1:b.nverts])
	b.nverts--
	for i := 0; i < b.npolys; i++ {
		p := b.poly(i)
		nv := countPolyVerts(p, nvp)
		for j := 0; j < nv; j++ {
			if p[j] > rem {
				p[j]--
			}
		}
	}
	for i := range edges {
		if edges[i].a > rem {
			edges[i].a--
		}
		if edges[i].b > rem {
			edges[i].b--
		}
	}
	if len(edges) == 0 {
		return
	}

	// Chain the loose edges into the hole boundary loop.
	hole := []uint16{edges[0].a}
	hreg := []RegionID{edges[0].reg}
	harea := []uint8{edges[0].area}
	for len(edges) > 0 {
		match := false
		for i := 0; i < len(edges); i++ {
			ea, eb := edges[i].a, edges[i].b
			r, a := edges[i].reg, edges[i].area
			add := false
			if hole[0] == eb {
				hole = append([]uint16{ea}, hole...)
				hreg = append([]RegionID{r}, hreg...)
				harea = append([]uint8{a}, harea...)
				add = true
			} else if hole[len(hole)-1] == ea {
				hole = append(hole, eb)
				hreg = append(hreg, r)
				harea = append(harea, a)
				add = true
			}
			if add {
				edges[i] = edges[len(edges)-1]
				edges = edges[:len(edges)-1]
				match = true
				i--
			}
		}
		if !match {
			break
		}
	}

	nhole := len(hole)
	tris := make([]int, nhole*3)
	tverts := make([]ContourVertex, nhole)
	thole := make([]int, nhole)
	for i, pi := range hole {
		v := b.verts[pi]
		tverts[i] = ContourVertex{X: int(v[0]), Y: int(v[1]), Z: int(v[2])}
		thole[i] = i
	}

	ntris := triangulate(nhole, tverts, thole, tris)
	if ntris < 0 {
		ntris = -ntris
		if logger != nil {
			logger.Warn("hole triangulation produced bad results")
		}
	}

	// Rebuild polygons over the hole.
	polys := make([]uint16, (ntris+1)*nvp)
	for i := range polys {
		polys[i] = MeshNullIndex
	}
	pregs := make([]RegionID, ntris)
	pareas := make([]uint8, ntris)
	tmpPoly := polys[ntris*nvp:]

	npolys := 0
	for j := 0; j < ntris; j++ {
		t := tris[j*3 : j*3+3]
		if t[0] == t[1] || t[0] == t[2] || t[1] == t[2] {
			continue
		}
		polys[npolys*nvp+0] = hole[t[0]]
		polys[npolys*nvp+1] = hole[t[1]]
		polys[npolys*nvp+2] = hole[t[2]]
		// A polygon spanning several regions is marked as such.
		if hreg[t[0]] != hreg[t[1]] || hreg[t[1]] != hreg[t[2]] {
			pregs[npolys] = MultipleRegions
		} else {
			pregs[npolys] = hreg[t[0]]
		}
		pareas[npolys] = harea[t[0]]
		npolys++
	}
	if npolys == 0 {
		return
	}

	if nvp > 3 {
		for {
			bestMergeVal := 0
			bestPa, bestPb, bestEa, bestEb := 0, 0, 0, 0
			for j := 0; j < npolys-1; j++ {
				pj := polys[j*nvp:]
				for k := j + 1; k < npolys; k++ {
					pk := polys[k*nvp:]
					v, ea, eb := getPolyMergeValue(pj, pk, b.verts, nvp)
					if v > bestMergeVal {
						bestMergeVal = v
						bestPa, bestPb = j, k
						bestEa, bestEb = ea, eb
					}
				}
			}
			if bestMergeVal <= 0 {
				break
			}
			pa := polys[bestPa*nvp:]
			pb := polys[bestPb*nvp:]
			mergePolyVerts(pa, pb, bestEa, bestEb, tmpPoly, nvp)
			if pregs[bestPa] != pregs[bestPb] {
				pregs[bestPa] = MultipleRegions
			}
			last := polys[(npolys-1)*nvp:]
			if bestPb != npolys-1 {
				copy(pb[:nvp], last[:nvp])
			}
			pregs[bestPb] = pregs[npolys-1]
			pareas[bestPb] = pareas[npolys-1]
			npolys--
		}
	}

	for i := 0; i < npolys; i++ {
		if b.npolys >= maxPolys {
			if logger != nil {
				logger.Warn("too many polygons after vertex removal", zap.Int("max", maxPolys))
			}
			break
		}
		p := b.poly(b.npolys)
		for j := range p {
			p[j] = MeshNullIndex
		}
		copy(p[:nvp], polys[i*nvp:(i+1)*nvp])
		b.regs[b.npolys] = pregs[i]
		b.areas[b.npolys] = pareas[i]
		b.npolys++
	}
}

// BuildPolyMesh converts the contour set into a mesh of convex polygons
// with at most nvp vertices each. Adjacent vertices are welded, contour
// triangles are greedily merged along their longest shared edge, and
// tile-border vertices are removed so edges line up across tiles.
func BuildPolyMesh(logger *zap.Logger, cset *ContourSet, nvp int) (*PolyMesh, error) {
	maxVertices := 0
	maxTris := 0
	maxVertsPerCont := 0
	for _, cont := range cset.Contours {
		if len(cont.Verts) < 3 {
			return nil, &InvalidContourError{RegionID: cont.Reg, NumVerts: len(cont.Verts)}
		}
		maxVertices += len(cont.Verts)
		maxTris += len(cont.Verts) - 2
		maxVertsPerCont = max(maxVertsPerCont, len(cont.Verts))
	}
	if maxVertices >= 0xfffe {
		return nil, &MeshOverflowError{Vertices: maxVertices}
	}

	b := &polyMeshBuilder{
		verts: make([][3]uint16, maxVertices),
		polys: make([]uint16, maxTris*nvp*2),
		regs:  make([]RegionID, maxTris),
		areas: make([]uint8, maxTris),
		nvp:   nvp,
	}
	for i := range b.polys {
		b.polys[i] = MeshNullIndex
	}

	vflags := make([]bool, maxVertices)
	firstVert := make([]int, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = -1
	}
	nextVert := make([]int, maxVertices)

	indices := make([]int, maxVertsPerCont)
	tris := make([]int, maxVertsPerCont*3)
	polys := make([]uint16, (maxVertsPerCont+1)*nvp)
	tmpPoly := polys[maxVertsPerCont*nvp:]

	for ci, cont := range cset.Contours {
		// Triangulate the contour.
		for j := range cont.Verts {
			indices[j] = j
		}
		ntris := triangulate(len(cont.Verts), cont.Verts, indices[:len(cont.Verts)], tris)
		if ntris <= 0 {
			// Keep what was clipped before the failure.
			if logger != nil {
				logger.Warn("bad contour triangulation", zap.Int("contour", ci),
					zap.Uint16("region", uint16(cont.Reg)))
			}
			ntris = -ntris
		}

		// Weld the contour vertices into the mesh.
		for j, v := range cont.Verts {
			indices[j], b.nverts = addVertex(v.X, v.Y, v.Z, b.verts, b.nverts, firstVert, nextVert)
			if v.Flags&BorderVertexFlag != 0 {
				// Remove later to match segments across tiles.
				vflags[indices[j]] = true
			}
		}

		npolys := 0
		for i := range polys {
			polys[i] = MeshNullIndex
		}
		for j := 0; j < ntris; j++ {
			t := tris[j*3 : j*3+3]
			if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
				polys[npolys*nvp+0] = uint16(indices[t[0]])
				polys[npolys*nvp+1] = uint16(indices[t[1]])
				polys[npolys*nvp+2] = uint16(indices[t[2]])
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		// Greedily merge triangles into larger convex polygons, longest
		// shared edge first.
		if nvp > 3 {
			for {
				bestMergeVal := 0
				bestPa, bestPb, bestEa, bestEb := 0, 0, 0, 0
				for j := 0; j < npolys-1; j++ {
					pj := polys[j*nvp:]
					for k := j + 1; k < npolys; k++ {
						pk := polys[k*nvp:]
						v, ea, eb := getPolyMergeValue(pj, pk, b.verts, nvp)
						if v > bestMergeVal {
							bestMergeVal = v
							bestPa, bestPb = j, k
							bestEa, bestEb = ea, eb
						}
					}
				}
				if bestMergeVal <= 0 {
					break
				}
				pa := polys[bestPa*nvp:]
				pb := polys[bestPb*nvp:]
				mergePolyVerts(pa, pb, bestEa, bestEb, tmpPoly, nvp)
				if bestPb != npolys-1 {
					last := polys[(npolys-1)*nvp:]
					copy(pb[:nvp], last[:nvp])
				}
				npolys--
			}
		}

		// Store.
		for j := 0; j < npolys; j++ {
			p := b.poly(b.npolys)
			copy(p[:nvp], polys[j*nvp:(j+1)*nvp])
			b.regs[b.npolys] = cont.Reg
			b.areas[b.npolys] = cont.Area
			b.npolys++
			if b.npolys > maxTris {
				return nil, &MeshOverflowError{Polygons: b.npolys}
			}
		}
	}

	// Remove tile-border vertices.
	for i := 0; i < b.nverts; i++ {
		if !vflags[i] {
			continue
		}
		if !b.canRemoveVertex(uint16(i)) {
			continue
		}
		b.removeVertex(logger, uint16(i), maxTris)
		// Vertex removal shifts everything above i down by one.
		copy(vflags[i:], vflags[i+1:b.nverts+1])
		i--
	}

	buildMeshAdjacency(b.polys, b.npolys, b.nverts, nvp)

	mesh := &PolyMesh{
		Verts:           b.verts[:b.nverts],
		Polys:           b.polys[:b.npolys*nvp*2],
		Regs:            b.regs[:b.npolys],
		Flags:           make([]uint16, b.npolys),
		Areas:           b.areas[:b.npolys],
		MaxVertsPerPoly: nvp,
		Bounds:          cset.Bounds,
		CellSize:        cset.CellSize,
		CellHeight:      cset.CellHeight,
		BorderSize:      cset.BorderSize,
		MaxEdgeError:    cset.MaxError,
	}

	// Mark portal edges on the tile border.
	if mesh.BorderSize > 0 {
		w := cset.Width
		h := cset.Height
		for i := 0; i < b.npolys; i++ {
			pverts, pneis := mesh.Poly(i)
			for j := 0; j < nvp; j++ {
				if pverts[j] == MeshNullIndex {
					break
				}
				// Open edges only.
				if pneis[j] != MeshNullIndex {
					continue
				}
				nj := j + 1
				if nj >= nvp || pverts[nj] == MeshNullIndex {
					nj = 0
				}
				va := mesh.Verts[pverts[j]]
				vb := mesh.Verts[pverts[nj]]

				switch {
				case va[0] == 0 && vb[0] == 0:
					pneis[j] = PortalFlag | 0
				case int(va[2]) == h && int(vb[2]) == h:
					pneis[j] = PortalFlag | 1
				case int(va[0]) == w && int(vb[0]) == w:
					pneis[j] = PortalFlag | 2
				case va[2] == 0 && vb[2] == 0:
					pneis[j] = PortalFlag | 3
				}
			}
		}
	}

	if b.nverts > 0xffff {
		return nil, &MeshOverflowError{Vertices: b.nverts}
	}
	if b.npolys > 0xffff {
		return nil, &MeshOverflowError{Polygons: b.npolys}
	}
	return mesh, nil
}

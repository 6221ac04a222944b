package navmesh

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"navbake/common"
)

// ContourBuildFlags selects which contour edges get tessellated down to
// maxEdgeLen during simplification.
type ContourBuildFlags uint8

const (
	// TessellateWallEdges splits outer (impassable) edges.
	TessellateWallEdges ContourBuildFlags = 1 << 0
	// TessellateAreaEdges splits edges between different areas.
	TessellateAreaEdges ContourBuildFlags = 1 << 1
)

// Flag bits carried in ContourVertex.Flags alongside the low 16-bit
// neighbor region id.
const (
	contourRegionMask = 0xffff
	// BorderVertexFlag marks vertices on a tile border; they are removed
	// later so segments match up across tiles.
	BorderVertexFlag = 0x10000
	// AreaBorderFlag marks vertices on the border between two areas.
	AreaBorderFlag = 0x20000
)

// maxContourIterations caps boundary walks so malformed connectivity cannot
// loop forever.
const maxContourIterations = 40000

// ContourVertex is one corner of a traced region boundary in voxel
// coordinates. Flags holds the neighbor region id in the low 16 bits plus
// BorderVertexFlag and AreaBorderFlag.
type ContourVertex struct {
	X, Y, Z int
	Flags   int
}

// Contour is one region boundary loop, wound clockwise for outlines and
// counter-clockwise for holes.
type Contour struct {
	Verts    []ContourVertex
	RawVerts []ContourVertex
	Reg      RegionID
	Area     uint8
}

// ContourSet holds the simplified boundaries of every region, in the
// coordinate frame with the border padding already removed.
type ContourSet struct {
	Contours   []*Contour
	Bounds     AABB
	CellSize   float32
	CellHeight float32
	Width      int
	Height     int
	BorderSize int
	MaxError   float32
}

// getCornerHeight returns the height of the contour corner between dir and
// dir+1 (the max floor of the up to four spans meeting there) and whether
// the corner is a removable tile-border vertex.
func (chf *CompactHeightfield) getCornerHeight(x, z int, i int32, dir int) (height int, isBorderVertex bool) {
	span := &chf.Spans[i]
	height = int(span.Y)
	dirp := (dir + 1) & 0x3

	// Region and area combined, so border vertices between two areas are
	// kept.
	var regs [4]uint32
	regs[0] = uint32(chf.Spans[i].Reg) | uint32(chf.Areas[i])<<16

	if span.Con(dir) != NotConnected {
		ax := x + common.DirOffsetX(dir)
		az := z + common.DirOffsetZ(dir)
		ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
		aSpan := &chf.Spans[ai]
		height = max(height, int(aSpan.Y))
		regs[1] = uint32(chf.Spans[ai].Reg) | uint32(chf.Areas[ai])<<16
		if aSpan.Con(dirp) != NotConnected {
			bx := ax + common.DirOffsetX(dirp)
			bz := az + common.DirOffsetZ(dirp)
			bi := int32(chf.cellAt(bx, bz).Index) + int32(aSpan.Con(dirp))
			height = max(height, int(chf.Spans[bi].Y))
			regs[2] = uint32(chf.Spans[bi].Reg) | uint32(chf.Areas[bi])<<16
		}
	}
	if span.Con(dirp) != NotConnected {
		ax := x + common.DirOffsetX(dirp)
		az := z + common.DirOffsetZ(dirp)
		ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dirp))
		aSpan := &chf.Spans[ai]
		height = max(height, int(aSpan.Y))
		regs[3] = uint32(chf.Spans[ai].Reg) | uint32(chf.Areas[ai])<<16
		if aSpan.Con(dir) != NotConnected {
			bx := ax + common.DirOffsetX(dir)
			bz := az + common.DirOffsetZ(dir)
			bi := int32(chf.cellAt(bx, bz).Index) + int32(aSpan.Con(dir))
			height = max(height, int(chf.Spans[bi].Y))
			regs[2] = uint32(chf.Spans[bi].Reg) | uint32(chf.Areas[bi])<<16
		}
	}

	// The corner is a border vertex when two same exterior regions in a row
	// are followed by two interior regions of the same area and none of the
	// four is unassigned.
	for j := 0; j < 4; j++ {
		a := j
		b := (j + 1) & 0x3
		c := (j + 2) & 0x3
		d := (j + 3) & 0x3

		twoSameExteriors := regs[a]&regs[b]&uint32(BorderRegion) != 0 && regs[a] == regs[b]
		twoInteriors := (regs[c]|regs[d])&uint32(BorderRegion) == 0
		interiorsSameArea := regs[c]>>16 == regs[d]>>16
		noZeros := regs[a] != 0 && regs[b] != 0 && regs[c] != 0 && regs[d] != 0
		if twoSameExteriors && twoInteriors && interiorsSameArea && noZeros {
			isBorderVertex = true
			break
		}
	}
	return height, isBorderVertex
}

// walkContour traces one region boundary starting at span i, collecting a
// corner vertex each time the wall turns. flags holds per-span bitmasks of
// unvisited boundary edges and is consumed as the walk proceeds.
func (chf *CompactHeightfield) walkContour(x, z int, i int32, flags []uint8, points *[]ContourVertex) {
	// Start at the first boundary edge.
	dir := 0
	for flags[i]&(1<<dir) == 0 {
		dir++
	}
	startDir := dir
	startI := i
	area := chf.Areas[i]

	for iter := 0; iter < maxContourIterations; iter++ {
		if flags[i]&(1<<dir) != 0 {
			// Emit the corner on the left of the edge.
			isAreaBorder := false
			px := x
			py, isBorderVertex := chf.getCornerHeight(x, z, i, dir)
			pz := z
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}
			r := 0
			span := &chf.Spans[i]
			if span.Con(dir) != NotConnected {
				ax := x + common.DirOffsetX(dir)
				az := z + common.DirOffsetZ(dir)
				ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
				r = int(chf.Spans[ai].Reg)
				if area != chf.Areas[ai] {
					isAreaBorder = true
				}
			}
			if isBorderVertex {
				r |= BorderVertexFlag
			}
			if isAreaBorder {
				r |= AreaBorderFlag
			}
			*points = append(*points, ContourVertex{X: px, Y: py, Z: pz, Flags: r})

			flags[i] &^= 1 << dir
			dir = (dir + 1) & 0x3 // rotate CW
		} else {
			ni := int32(-1)
			nx := x + common.DirOffsetX(dir)
			nz := z + common.DirOffsetZ(dir)
			span := &chf.Spans[i]
			if span.Con(dir) != NotConnected {
				ni = int32(chf.cellAt(nx, nz).Index) + int32(span.Con(dir))
			}
			if ni == -1 {
				// Should not happen.
				return
			}
			x, z, i = nx, nz, ni
			dir = (dir + 3) & 0x3 // rotate CCW
		}

		if startI == i && startDir == dir {
			return
		}
	}
}

// distancePtSegSq2D returns the squared xz-distance from point (x, z) to
// segment (px, pz)-(qx, qz).
func distancePtSegSq2D(x, z, px, pz, qx, qz int) float64 {
	pqx := float64(qx - px)
	pqz := float64(qz - pz)
	dx := float64(x - px)
	dz := float64(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)

	dx = float64(px) + t*pqx - float64(x)
	dz = float64(pz) + t*pqz - float64(z)
	return dx*dx + dz*dz
}

// simplifiedVertex pairs a corner with the raw point index it came from;
// the index is resolved to neighbor flags once simplification settles.
type simplifiedVertex struct {
	x, y, z int
	index   int
}

// simplifyContour reduces a raw boundary to the corners that matter:
// mandatory points where the neighbor region changes, plus enough extra
// points to keep the deviation from the raw outline below maxError. Long
// tessellatable edges are then split down to maxEdgeLen.
func simplifyContour(points []ContourVertex, maxError float32, maxEdgeLen int, buildFlags ContourBuildFlags) []simplifiedVertex {
	var simplified []simplifiedVertex

	// Portal vertices are mandatory.
	hasConnections := false
	for _, p := range points {
		if p.Flags&contourRegionMask != 0 {
			hasConnections = true
			break
		}
	}
	if hasConnections {
		for i, n := 0, len(points); i < n; i++ {
			ii := (i + 1) % n
			differentRegs := points[i].Flags&contourRegionMask != points[ii].Flags&contourRegionMask
			areaBorders := points[i].Flags&AreaBorderFlag != points[ii].Flags&AreaBorderFlag
			if differentRegs || areaBorders {
				simplified = append(simplified, simplifiedVertex{points[i].X, points[i].Y, points[i].Z, i})
			}
		}
	}
	if len(simplified) == 0 {
		// No portals at all. Seed with the lower-left and upper-right
		// vertices so there is a shape to refine against.
		ll, ur := 0, 0
		for i := 1; i < len(points); i++ {
			p := points[i]
			l := points[ll]
			u := points[ur]
			if p.X < l.X || (p.X == l.X && p.Z < l.Z) {
				ll = i
			}
			if p.X > u.X || (p.X == u.X && p.Z > u.Z) {
				ur = i
			}
		}
		simplified = append(simplified,
			simplifiedVertex{points[ll].X, points[ll].Y, points[ll].Z, ll},
			simplifiedVertex{points[ur].X, points[ur].Y, points[ur].Z, ur})
	}

	// Insert points until every raw point is within maxError of the
	// simplified shape.
	pn := len(points)
	maxErrSq := float64(maxError) * float64(maxError)
	for i := 0; i < len(simplified); {
		ii := (i + 1) % len(simplified)

		ax, az, ai := simplified[i].x, simplified[i].z, simplified[i].index
		bx, bz, bi := simplified[ii].x, simplified[ii].z, simplified[ii].index

		// Traverse in lexicographic order so opposite traversals of the
		// same segment find the same max deviation.
		var ci, cinc, endi int
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % pn
			endi = bi
		} else {
			cinc = pn - 1
			ci = (bi + cinc) % pn
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}

		maxd := float64(0)
		maxi := -1
		// Only outer edges and area borders get refined.
		if points[ci].Flags&contourRegionMask == 0 || points[ci].Flags&AreaBorderFlag != 0 {
			for ci != endi {
				d := distancePtSegSq2D(points[ci].X, points[ci].Z, ax, az, bx, bz)
				if d > maxd {
					maxd = d
					maxi = ci
				}
				ci = (ci + cinc) % pn
			}
		}

		if maxi != -1 && maxd > maxErrSq {
			simplified = slices.Insert(simplified, i+1,
				simplifiedVertex{points[maxi].X, points[maxi].Y, points[maxi].Z, maxi})
		} else {
			i++
		}
	}

	// Split long edges.
	if maxEdgeLen > 0 && buildFlags&(TessellateWallEdges|TessellateAreaEdges) != 0 {
		for i := 0; i < len(simplified); {
			ii := (i + 1) % len(simplified)

			ax, az, ai := simplified[i].x, simplified[i].z, simplified[i].index
			bx, bz, bi := simplified[ii].x, simplified[ii].z, simplified[ii].index

			maxi := -1
			ci := (ai + 1) % pn

			tess := false
			if buildFlags&TessellateWallEdges != 0 && points[ci].Flags&contourRegionMask == 0 {
				tess = true
			}
			if buildFlags&TessellateAreaEdges != 0 && points[ci].Flags&AreaBorderFlag != 0 {
				tess = true
			}

			if tess {
				dx := bx - ax
				dz := bz - az
				if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
					n := bi - ai
					if bi < ai {
						n = bi + pn - ai
					}
					if n > 1 {
						// Split rounding follows lexicographic order so the
						// result is direction independent.
						if bx > ax || (bx == ax && bz > az) {
							maxi = (ai + n/2) % pn
						} else {
							maxi = (ai + (n+1)/2) % pn
						}
					}
				}
			}

			if maxi != -1 {
				simplified = slices.Insert(simplified, i+1,
					simplifiedVertex{points[maxi].X, points[maxi].Y, points[maxi].Z, maxi})
			} else {
				i++
			}
		}
	}
	return simplified
}

// resolveSimplifiedFlags converts raw-point indices into final vertex flags:
// the neighbor region comes from the next raw point, the border-vertex flag
// from the current one.
func resolveSimplifiedFlags(points []ContourVertex, simplified []simplifiedVertex) []ContourVertex {
	pn := len(points)
	out := make([]ContourVertex, len(simplified))
	for i, sv := range simplified {
		ai := (sv.index + 1) % pn
		bi := sv.index
		flags := points[ai].Flags&(contourRegionMask|AreaBorderFlag) |
			points[bi].Flags&BorderVertexFlag
		out[i] = ContourVertex{X: sv.x, Y: sv.y, Z: sv.z, Flags: flags}
	}
	return out
}

// removeDegenerateSegments drops adjacent vertices that coincide on the
// xz-plane; they confuse the triangulator.
func removeDegenerateSegments(verts []ContourVertex) []ContourVertex {
	for i := 0; i < len(verts); {
		ni := common.NextIndex(i, len(verts))
		if verts[i].X == verts[ni].X && verts[i].Z == verts[ni].Z {
			verts = append(verts[:i], verts[i+1:]...)
		} else {
			i++
		}
	}
	return verts
}

// calcAreaOfPolygon2D returns the signed xz-area of the polygon; negative
// means the loop is wound backwards (a hole).
func calcAreaOfPolygon2D(verts []ContourVertex) int {
	area := 0
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		area += verts[i].X*verts[j].Z - verts[j].X*verts[i].Z
		j = i
	}
	return (area + 1) / 2
}

// contourInCone reports whether the diagonal from vertex i of the loop to
// point p lies inside the cone formed at i.
func contourInCone(i int, verts []ContourVertex, p ContourVertex) bool {
	n := len(verts)
	pi := verts[i]
	pi1 := verts[common.NextIndex(i, n)]
	pin1 := verts[common.PrevIndex(i, n)]

	if leftOn(pin1, pi, pi1) {
		// Convex corner.
		return left(pi, p, pin1) && left(p, pi, pi1)
	}
	// Reflex corner.
	return !(leftOn(pi, p, pi1) && leftOn(p, pi, pin1))
}

// intersectSegContour reports whether segment d0-d1 crosses any edge of the
// loop other than the ones incident to vertex i.
func intersectSegContour(d0, d1 ContourVertex, i int, verts []ContourVertex) bool {
	n := len(verts)
	for k := 0; k < n; k++ {
		k1 := common.NextIndex(k, n)
		if i == k || i == k1 {
			continue
		}
		p0 := verts[k]
		p1 := verts[k1]
		if vequal2D(d0, p0) || vequal2D(d1, p0) || vequal2D(d0, p1) || vequal2D(d1, p1) {
			continue
		}
		if intersect(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

// findLeftMostVertex returns the index of the lowest, leftmost vertex.
func findLeftMostVertex(verts []ContourVertex) (minX, minZ, leftmost int) {
	minX = verts[0].X
	minZ = verts[0].Z
	for i := 1; i < len(verts); i++ {
		if verts[i].X < minX || (verts[i].X == minX && verts[i].Z < minZ) {
			minX = verts[i].X
			minZ = verts[i].Z
			leftmost = i
		}
	}
	return minX, minZ, leftmost
}

// mergeContours splices hole cb into outline ca along the diagonal between
// vertex ia of the outline and vertex ib of the hole, duplicating the
// diagonal endpoints.
func mergeContours(ca, cb *Contour, ia, ib int) {
	na := len(ca.Verts)
	nb := len(cb.Verts)
	merged := make([]ContourVertex, 0, na+nb+2)

	for i := 0; i <= na; i++ {
		merged = append(merged, ca.Verts[(ia+i)%na])
	}
	for i := 0; i <= nb; i++ {
		merged = append(merged, cb.Verts[(ib+i)%nb])
	}

	ca.Verts = merged
	cb.Verts = nil
}

type contourHole struct {
	contour  *Contour
	minX     int
	minZ     int
	leftmost int
}

type potentialDiagonal struct {
	vert int
	dist int
}

// mergeRegionHoles splices each hole of the region into its outline using
// the shortest non-intersecting diagonal from the hole's leftmost vertex.
func mergeRegionHoles(logger *zap.Logger, outline *Contour, holes []*contourHole) {
	for _, h := range holes {
		h.minX, h.minZ, h.leftmost = findLeftMostVertex(h.contour.Verts)
	}
	// Left to right, so earlier merges cannot strand later holes.
	sort.Slice(holes, func(i, j int) bool {
		if holes[i].minX != holes[j].minX {
			return holes[i].minX < holes[j].minX
		}
		return holes[i].minZ < holes[j].minZ
	})

	maxVerts := len(outline.Verts)
	for _, h := range holes {
		maxVerts += len(h.contour.Verts)
	}
	diags := make([]potentialDiagonal, 0, maxVerts)

	for hi, h := range holes {
		hole := h.contour

		index := -1
		bestVertex := h.leftmost
		for iter := 0; iter < len(hole.Verts); iter++ {
			// Candidate outline vertices whose cone contains the hole
			// vertex, nearest first.
			diags = diags[:0]
			corner := hole.Verts[bestVertex]
			for j := range outline.Verts {
				if contourInCone(j, outline.Verts, corner) {
					dx := outline.Verts[j].X - corner.X
					dz := outline.Verts[j].Z - corner.Z
					diags = append(diags, potentialDiagonal{vert: j, dist: dx*dx + dz*dz})
				}
			}
			sort.Slice(diags, func(a, b int) bool { return diags[a].dist < diags[b].dist })

			// Take the first diagonal that crosses neither the outline nor
			// any remaining hole.
			index = -1
			for j := range diags {
				pt := outline.Verts[diags[j].vert]
				crosses := intersectSegContour(pt, corner, diags[j].vert, outline.Verts)
				for k := hi; k < len(holes) && !crosses; k++ {
					crosses = intersectSegContour(pt, corner, -1, holes[k].contour.Verts)
				}
				if !crosses {
					index = diags[j].vert
					break
				}
			}
			if index != -1 {
				break
			}
			// Every diagonal from this vertex intersects, try the next one.
			bestVertex = (bestVertex + 1) % len(hole.Verts)
		}

		if index == -1 {
			if logger != nil {
				logger.Warn("failed to find merge point for hole", zap.Uint16("region", uint16(outline.Reg)))
			}
			continue
		}
		mergeContours(outline, hole, index, bestVertex)
	}
}

// BuildContours traces the boundary of every region in the compact
// heightfield and simplifies it. maxError (in voxels) bounds how far the
// simplified outline may deviate from the raw one; maxEdgeLen (in voxels,
// 0 to disable) splits long edges selected by buildFlags. Portal
// vertices between regions are always kept so neighboring contours match.
func (chf *CompactHeightfield) BuildContours(logger *zap.Logger, maxError float32, maxEdgeLen int, buildFlags ContourBuildFlags) *ContourSet {
	w, h := chf.Width, chf.Height
	borderSize := chf.BorderSize

	cset := &ContourSet{
		Bounds:     chf.Bounds,
		CellSize:   chf.CellSize,
		CellHeight: chf.CellHeight,
		Width:      w - borderSize*2,
		Height:     h - borderSize*2,
		BorderSize: borderSize,
		MaxError:   maxError,
	}
	if borderSize > 0 {
		// The bounds were grown by the padding; shrink them back.
		pad := float32(borderSize) * chf.CellSize
		cset.Bounds.Min[0] += pad
		cset.Bounds.Min[2] += pad
		cset.Bounds.Max[0] -= pad
		cset.Bounds.Max[2] -= pad
	}

	// Per-span bitmask of directions whose neighbor is in another region.
	flags := make([]uint8, chf.SpanCount)
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				r := chf.Spans[i].Reg
				if r == 0 || r.IsBorder() {
					continue
				}
				span := &chf.Spans[i]
				res := uint8(0)
				for dir := 0; dir < 4; dir++ {
					var nr RegionID
					if span.Con(dir) != NotConnected {
						ax := x + common.DirOffsetX(dir)
						az := z + common.DirOffsetZ(dir)
						ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
						nr = chf.Spans[ai].Reg
					}
					if nr == r {
						res |= 1 << dir
					}
				}
				flags[i] = res ^ 0xf // mark non-connected edges
			}
		}
	}

	rawPoints := make([]ContourVertex, 0, 256)
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if flags[i] == 0 || flags[i] == 0xf {
					flags[i] = 0
					continue
				}
				reg := chf.Spans[i].Reg
				if reg == 0 || reg.IsBorder() {
					continue
				}
				area := chf.Areas[i]

				rawPoints = rawPoints[:0]
				chf.walkContour(x, z, i, flags, &rawPoints)
				if len(rawPoints) == 0 {
					continue
				}

				simplified := simplifyContour(rawPoints, maxError, maxEdgeLen, buildFlags)
				verts := removeDegenerateSegments(resolveSimplifiedFlags(rawPoints, simplified))
				if len(verts) < 3 {
					continue
				}

				cont := &Contour{
					Verts:    verts,
					RawVerts: append([]ContourVertex(nil), rawPoints...),
					Reg:      reg,
					Area:     area,
				}
				if borderSize > 0 {
					for j := range cont.Verts {
						cont.Verts[j].X -= borderSize
						cont.Verts[j].Z -= borderSize
					}
					for j := range cont.RawVerts {
						cont.RawVerts[j].X -= borderSize
						cont.RawVerts[j].Z -= borderSize
					}
				}
				cset.Contours = append(cset.Contours, cont)
			}
		}
	}

	// Merge holes.
	if len(cset.Contours) > 0 {
		winding := make([]int8, len(cset.Contours))
		nholes := 0
		for i, cont := range cset.Contours {
			winding[i] = 1
			// Backwards wound contours are holes.
			if calcAreaOfPolygon2D(cont.Verts) < 0 {
				winding[i] = -1
				nholes++
			}
		}
		if nholes > 0 {
			// One outline plus any number of holes per region.
			outlines := make(map[RegionID]*Contour)
			holesByRegion := make(map[RegionID][]*contourHole)
			for i, cont := range cset.Contours {
				if winding[i] > 0 {
					if outlines[cont.Reg] != nil && logger != nil {
						logger.Warn("multiple outlines for region", zap.Uint16("region", uint16(cont.Reg)))
					}
					outlines[cont.Reg] = cont
				} else {
					holesByRegion[cont.Reg] = append(holesByRegion[cont.Reg], &contourHole{contour: cont})
				}
			}
			for reg, holes := range holesByRegion {
				outline := outlines[reg]
				if outline == nil {
					// Over-aggressive simplification can leave a region with
					// holes but a self-overlapping outline.
					if logger != nil {
						logger.Warn("bad outline for region, contour simplification is likely too aggressive",
							zap.Uint16("region", uint16(reg)))
					}
					continue
				}
				mergeRegionHoles(logger, outline, holes)
			}
			// Drop the merged-away hole contours.
			kept := cset.Contours[:0]
			for _, cont := range cset.Contours {
				if len(cont.Verts) > 0 {
					kept = append(kept, cont)
				}
			}
			cset.Contours = kept
		}
	}

	return cset
}

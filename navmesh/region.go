package navmesh

import (
	"go.uber.org/zap"

	"navbake/common"
)

// calculateDistanceField seeds every span with its chamfer distance to the
// nearest area boundary: boundary spans get 0 and two diagonal sweeps
// propagate +2 per cardinal step, +3 per diagonal step.
func (chf *CompactHeightfield) calculateDistanceField(src []uint16) (maxDist uint16) {
	w, h := chf.Width, chf.Height

	for i := range src {
		src[i] = 0xffff
	}

	// Mark boundary spans: any span with fewer than 4 same-area neighbors.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				span := &chf.Spans[i]
				area := chf.Areas[i]
				nc := 0
				for dir := 0; dir < 4; dir++ {
					if span.Con(dir) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dir)
					az := z + common.DirOffsetZ(dir)
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dir)
					if area == chf.Areas[ai] {
						nc++
					}
				}
				if nc != 4 {
					src[i] = 0
				}
			}
		}
	}

	relax := func(i int, d uint16) {
		if d < src[i] {
			src[i] = d
		}
	}

	// Pass 1: pull from (-1,0), (-1,-1), (0,-1), (1,-1).
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := int(cell.Index); i < int(cell.Index+cell.Count); i++ {
				span := &chf.Spans[i]
				for _, dirs := range [2][2]int{{0, 3}, {3, 2}} {
					if span.Con(dirs[0]) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dirs[0])
					az := z + common.DirOffsetZ(dirs[0])
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dirs[0])
					relax(i, src[ai]+2)
					aSpan := &chf.Spans[ai]
					if aSpan.Con(dirs[1]) != NotConnected {
						bx := ax + common.DirOffsetX(dirs[1])
						bz := az + common.DirOffsetZ(dirs[1])
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dirs[1])
						relax(i, src[bi]+3)
					}
				}
			}
		}
	}

	// Pass 2: pull from (1,0), (1,1), (0,1), (-1,1).
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			cell := chf.cellAt(x, z)
			for i := int(cell.Index); i < int(cell.Index+cell.Count); i++ {
				span := &chf.Spans[i]
				for _, dirs := range [2][2]int{{2, 1}, {1, 0}} {
					if span.Con(dirs[0]) == NotConnected {
						continue
					}
					ax := x + common.DirOffsetX(dirs[0])
					az := z + common.DirOffsetZ(dirs[0])
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dirs[0])
					relax(i, src[ai]+2)
					aSpan := &chf.Spans[ai]
					if aSpan.Con(dirs[1]) != NotConnected {
						bx := ax + common.DirOffsetX(dirs[1])
						bz := az + common.DirOffsetZ(dirs[1])
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dirs[1])
						relax(i, src[bi]+3)
					}
				}
			}
		}
	}

	for i := range src {
		maxDist = max(maxDist, src[i])
	}
	return maxDist
}

// boxBlur smooths the distance field with a 9-tap box kernel; values at or
// below thr*2 pass through untouched.
func (chf *CompactHeightfield) boxBlur(thr int, src, dst []uint16) {
	w, h := chf.Width, chf.Height
	thr *= 2

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := int(cell.Index); i < int(cell.Index+cell.Count); i++ {
				span := &chf.Spans[i]
				cd := int(src[i])
				if cd <= thr {
					dst[i] = uint16(cd)
					continue
				}
				d := cd
				for dir := 0; dir < 4; dir++ {
					if span.Con(dir) == NotConnected {
						d += cd * 2
						continue
					}
					ax := x + common.DirOffsetX(dir)
					az := z + common.DirOffsetZ(dir)
					ai := int(chf.cellAt(ax, az).Index) + span.Con(dir)
					d += int(src[ai])

					aSpan := &chf.Spans[ai]
					dir2 := (dir + 1) & 0x3
					if aSpan.Con(dir2) != NotConnected {
						bx := ax + common.DirOffsetX(dir2)
						bz := az + common.DirOffsetZ(dir2)
						bi := int(chf.cellAt(bx, bz).Index) + aSpan.Con(dir2)
						d += int(src[bi])
					} else {
						d += cd
					}
				}
				dst[i] = uint16((d + 5) / 9)
			}
		}
	}
}

// BuildDistanceField computes each span's blurred distance to the nearest
// non-walkable boundary. Must run before BuildRegions.
func (chf *CompactHeightfield) BuildDistanceField() {
	src := make([]uint16, chf.SpanCount)
	dst := make([]uint16, chf.SpanCount)

	chf.MaxDistance = chf.calculateDistanceField(src)
	chf.boxBlur(1, src, dst)
	chf.Dist = dst
}

type levelStackEntry struct {
	x, z  int
	index int32
}

// paintRectRegion assigns regID to every walkable span in the given cell
// rectangle.
func (chf *CompactHeightfield) paintRectRegion(minX, maxX, minZ, maxZ int, regID RegionID, srcReg []RegionID) {
	for z := minZ; z < maxZ; z++ {
		for x := minX; x < maxX; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Areas[i] != NullArea {
					srcReg[i] = regID
				}
			}
		}
	}
}

// floodRegion grows a brand-new region r from seed span (x, z, i) across
// same-area spans at or above the current level. It bails out (clearing the
// seed) when the flood touches an already-assigned region, so adjacent
// maxima do not split one basin.
func (chf *CompactHeightfield) floodRegion(x, z int, i int32, level uint16, r RegionID,
	srcReg []RegionID, srcDist []uint16, stack *[]levelStackEntry) bool {
	area := chf.Areas[i]

	*stack = (*stack)[:0]
	*stack = append(*stack, levelStackEntry{x, z, i})
	srcReg[i] = r
	srcDist[i] = 0

	lev := uint16(0)
	if level >= 2 {
		lev = level - 2
	}
	count := 0

	for len(*stack) > 0 {
		back := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		cx, cz, ci := back.x, back.z, back.index

		cs := &chf.Spans[ci]

		// Check if any of the 8-neighbors already carries another region.
		ar := RegionID(0)
		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == NotConnected {
				continue
			}
			ax := cx + common.DirOffsetX(dir)
			az := cz + common.DirOffsetZ(dir)
			ai := int32(chf.cellAt(ax, az).Index) + int32(cs.Con(dir))
			if chf.Areas[ai] != area {
				continue
			}
			nr := srcReg[ai]
			if nr.IsBorder() {
				// Borders never absorb growth.
				continue
			}
			if nr != 0 && nr != r {
				ar = nr
				break
			}

			aSpan := &chf.Spans[ai]
			dir2 := (dir + 1) & 0x3
			if aSpan.Con(dir2) != NotConnected {
				bx := ax + common.DirOffsetX(dir2)
				bz := az + common.DirOffsetZ(dir2)
				bi := int32(chf.cellAt(bx, bz).Index) + int32(aSpan.Con(dir2))
				if chf.Areas[bi] != area {
					continue
				}
				nr2 := srcReg[bi]
				if nr2 != 0 && nr2 != r {
					ar = nr2
					break
				}
			}
		}
		if ar != 0 {
			srcReg[ci] = 0
			continue
		}

		count++

		// Expand into unassigned neighbors at this level.
		for dir := 0; dir < 4; dir++ {
			if cs.Con(dir) == NotConnected {
				continue
			}
			ax := cx + common.DirOffsetX(dir)
			az := cz + common.DirOffsetZ(dir)
			ai := int32(chf.cellAt(ax, az).Index) + int32(cs.Con(dir))
			if chf.Areas[ai] != area {
				continue
			}
			if chf.Dist[ai] >= lev && srcReg[ai] == 0 {
				srcReg[ai] = r
				srcDist[ai] = 0
				*stack = append(*stack, levelStackEntry{ax, az, ai})
			}
		}
	}

	return count > 0
}

type dirtyEntry struct {
	index    int32
	region   RegionID
	distance uint16
}

// expandRegions grows existing regions into unassigned spans revealed at the
// current level, preferring the neighbor with the smallest propagated
// distance. maxIter caps how far growth overflows one level.
func (chf *CompactHeightfield) expandRegions(maxIter int, level uint16,
	srcReg []RegionID, srcDist []uint16, stack *[]levelStackEntry, fillStack bool) {
	w, h := chf.Width, chf.Height

	if fillStack {
		// Find spans revealed by the lowered level.
		*stack = (*stack)[:0]
		for z := 0; z < h; z++ {
			for x := 0; x < w; x++ {
				cell := chf.cellAt(x, z)
				for i := cell.Index; i < cell.Index+cell.Count; i++ {
					if chf.Dist[i] >= level && srcReg[i] == 0 && chf.Areas[i] != NullArea {
						*stack = append(*stack, levelStackEntry{x, z, i})
					}
				}
			}
		}
	} else {
		// Skip the entries that picked up a region since they were stacked.
		for j := range *stack {
			if (*stack)[j].index >= 0 && srcReg[(*stack)[j].index] != 0 {
				(*stack)[j].index = -1
			}
		}
	}

	var dirty []dirtyEntry
	iter := 0
	for len(*stack) > 0 {
		failed := 0
		dirty = dirty[:0]

		for j := range *stack {
			x := (*stack)[j].x
			z := (*stack)[j].z
			i := (*stack)[j].index
			if i < 0 {
				failed++
				continue
			}

			r := srcReg[i]
			d2 := 0xffff
			area := chf.Areas[i]
			span := &chf.Spans[i]
			for dir := 0; dir < 4; dir++ {
				if span.Con(dir) == NotConnected {
					continue
				}
				ax := x + common.DirOffsetX(dir)
				az := z + common.DirOffsetZ(dir)
				ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
				if chf.Areas[ai] != area {
					continue
				}
				if srcReg[ai] > 0 && !srcReg[ai].IsBorder() {
					if int(srcDist[ai])+2 < d2 {
						r = srcReg[ai]
						d2 = int(srcDist[ai]) + 2
					}
				}
			}
			if r > 0 {
				(*stack)[j].index = -1 // mark as used
				dirty = append(dirty, dirtyEntry{i, r, uint16(d2)})
			} else {
				failed++
			}
		}

		// Commit after the sweep so growth within one pass stays order
		// independent.
		for _, e := range dirty {
			srcReg[e.index] = e.region
			srcDist[e.index] = e.distance
		}

		if failed == len(*stack) {
			break
		}
		if level > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
}

const (
	logLevelsPerStack = 1
	logNumStacks      = 3
	numStacks         = 1 << logNumStacks
)

// sortCellsByLevel buckets unassigned walkable spans into numStacks stacks
// keyed by distance level, highest level first.
func (chf *CompactHeightfield) sortCellsByLevel(startLevel uint16, srcReg []RegionID, stacks [][]levelStackEntry) {
	w, h := chf.Width, chf.Height
	start := int(startLevel) >> logLevelsPerStack

	for j := range stacks {
		stacks[j] = stacks[j][:0]
	}

	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				if chf.Areas[i] == NullArea || srcReg[i] != 0 {
					continue
				}
				level := int(chf.Dist[i]) >> logLevelsPerStack
				sID := start - level
				if sID >= numStacks {
					continue
				}
				if sID < 0 {
					sID = 0
				}
				stacks[sID] = append(stacks[sID], levelStackEntry{x, z, i})
			}
		}
	}
}

func appendStacks(src []levelStackEntry, dst *[]levelStackEntry, srcReg []RegionID) {
	for _, e := range src {
		if e.index < 0 || srcReg[e.index] != 0 {
			continue
		}
		*dst = append(*dst, e)
	}
}

// region is the bookkeeping record used while merging and filtering the
// grown regions.
type region struct {
	spanCount   int
	id          RegionID
	areaType    uint8
	remap       bool
	visited     bool
	overlap     bool
	connections []RegionID
	floors      []RegionID
}

func newRegion(id RegionID) *region {
	return &region{id: id}
}

func (r *region) removeAdjacentDuplicateConnections() {
	for i := 0; i < len(r.connections) && len(r.connections) > 1; {
		ni := (i + 1) % len(r.connections)
		if r.connections[i] == r.connections[ni] {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
		} else {
			i++
		}
	}
}

func (r *region) replaceNeighbor(oldID, newID RegionID) {
	changed := false
	for i := range r.connections {
		if r.connections[i] == oldID {
			r.connections[i] = newID
			changed = true
		}
	}
	for i := range r.floors {
		if r.floors[i] == oldID {
			r.floors[i] = newID
		}
	}
	if changed {
		r.removeAdjacentDuplicateConnections()
	}
}

func (r *region) addUniqueFloor(n RegionID) {
	for _, f := range r.floors {
		if f == n {
			return
		}
	}
	r.floors = append(r.floors, n)
}

func (r *region) addUniqueConnection(n RegionID) {
	for _, c := range r.connections {
		if c == n {
			return
		}
	}
	r.connections = append(r.connections, n)
}

func (r *region) isConnectedToBorder() bool {
	// The zero id in the connection loop means the region touches
	// unassigned space.
	for _, c := range r.connections {
		if c == 0 {
			return true
		}
	}
	return false
}

func canMergeWithRegion(a, b *region) bool {
	if a.areaType != b.areaType {
		return false
	}
	n := 0
	for _, c := range a.connections {
		if c == b.id {
			n++
		}
	}
	if n > 1 {
		return false
	}
	for _, f := range a.floors {
		if f == b.id {
			return false
		}
	}
	return true
}

// mergeRegionInto splices b's connection loop into a's at their shared edge.
func mergeRegionInto(a, b *region) bool {
	aid, bid := a.id, b.id

	acon := make([]RegionID, len(a.connections))
	copy(acon, a.connections)
	bcon := b.connections

	insA := -1
	for i, c := range acon {
		if c == bid {
			insA = i
			break
		}
	}
	if insA == -1 {
		return false
	}
	insB := -1
	for i, c := range bcon {
		if c == aid {
			insB = i
			break
		}
	}
	if insB == -1 {
		return false
	}

	a.connections = a.connections[:0]
	for i, n := 0, len(acon); i < n-1; i++ {
		a.connections = append(a.connections, acon[(insA+1+i)%n])
	}
	for i, n := 0, len(bcon); i < n-1; i++ {
		a.connections = append(a.connections, bcon[(insB+1+i)%n])
	}
	a.removeAdjacentDuplicateConnections()

	for _, f := range b.floors {
		a.addUniqueFloor(f)
	}
	a.spanCount += b.spanCount
	b.spanCount = 0
	b.connections = nil
	return true
}

// isSolidEdge reports whether span i's edge in direction dir borders a
// different region (or solid space).
func (chf *CompactHeightfield) isSolidEdge(srcReg []RegionID, x, z int, i int32, dir int) bool {
	span := &chf.Spans[i]
	r := RegionID(0)
	if span.Con(dir) != NotConnected {
		ax := x + common.DirOffsetX(dir)
		az := z + common.DirOffsetZ(dir)
		ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
		r = srcReg[ai]
	}
	return r != srcReg[i]
}

// walkContourRegions walks around a region boundary collecting the sequence
// of neighboring region ids. Capped to guarantee termination on malformed
// connectivity.
func (chf *CompactHeightfield) walkContourRegions(x, z int, i int32, dir int, srcReg []RegionID, cont *[]RegionID) {
	startDir := dir
	startI := i

	ss := &chf.Spans[i]
	curReg := RegionID(0)
	if ss.Con(dir) != NotConnected {
		ax := x + common.DirOffsetX(dir)
		az := z + common.DirOffsetZ(dir)
		ai := int32(chf.cellAt(ax, az).Index) + int32(ss.Con(dir))
		curReg = srcReg[ai]
	}
	*cont = append(*cont, curReg)

	for iter := 0; iter < maxContourIterations; iter++ {
		span := &chf.Spans[i]

		if chf.isSolidEdge(srcReg, x, z, i, dir) {
			r := RegionID(0)
			if span.Con(dir) != NotConnected {
				ax := x + common.DirOffsetX(dir)
				az := z + common.DirOffsetZ(dir)
				ai := int32(chf.cellAt(ax, az).Index) + int32(span.Con(dir))
				r = srcReg[ai]
			}
			if r != curReg {
				curReg = r
				*cont = append(*cont, curReg)
			}
			dir = (dir + 1) & 0x3 // rotate CW
		} else {
			ni := int32(-1)
			nx := x + common.DirOffsetX(dir)
			nz := z + common.DirOffsetZ(dir)
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
			break
		}
	}

	// Remove adjacent duplicates.
	if len(*cont) > 1 {
		for j := 0; j < len(*cont); {
			nj := (j + 1) % len(*cont)
			if (*cont)[j] == (*cont)[nj] {
				*cont = append((*cont)[:j], (*cont)[j+1:]...)
			} else {
				j++
			}
		}
	}
}

// mergeAndFilterRegions discards regions below minRegionArea (unless they
// touch a border, whose true size is unknowable), merges regions below
// mergeRegionSize into their smallest eligible neighbor, and compacts the
// surviving ids.
func (chf *CompactHeightfield) mergeAndFilterRegions(logger *zap.Logger, minRegionArea, mergeRegionSize int,
	maxRegionID *RegionID, srcReg []RegionID) []RegionID {
	w, h := chf.Width, chf.Height

	nreg := int(*maxRegionID) + 1
	regions := make([]*region, 0, nreg)
	for i := 0; i < nreg; i++ {
		regions = append(regions, newRegion(RegionID(i)))
	}

	// Find region edges and connections around each contour.
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				r := srcReg[i]
				if r == 0 || int(r) >= nreg {
					continue
				}
				reg := regions[r]
				reg.spanCount++

				// Record regions stacked in the same column.
				for j := cell.Index; j < cell.Index+cell.Count; j++ {
					if i == j {
						continue
					}
					floorID := srcReg[j]
					if floorID == 0 || int(floorID) >= nreg {
						continue
					}
					if floorID == r {
						reg.overlap = true
					}
					reg.addUniqueFloor(floorID)
				}

				// Contour already collected.
				if len(reg.connections) > 0 {
					continue
				}
				reg.areaType = chf.Areas[i]

				ndir := -1
				for dir := 0; dir < 4; dir++ {
					if chf.isSolidEdge(srcReg, x, z, i, dir) {
						ndir = dir
						break
					}
				}
				if ndir != -1 {
					chf.walkContourRegions(x, z, i, ndir, srcReg, &reg.connections)
				}
			}
		}
	}

	// Remove small isolated clusters of regions.
	var stack []RegionID
	var trace []RegionID
	for i := 0; i < nreg; i++ {
		reg := regions[i]
		if reg.id == 0 || reg.id.IsBorder() || reg.spanCount == 0 || reg.visited {
			continue
		}

		connectsToBorder := false
		spanCount := 0
		stack = stack[:0]
		trace = trace[:0]

		reg.visited = true
		stack = append(stack, RegionID(i))

		for len(stack) > 0 {
			ri := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			creg := regions[ri]

			spanCount += creg.spanCount
			trace = append(trace, ri)

			for _, c := range creg.connections {
				if c.IsBorder() {
					connectsToBorder = true
					continue
				}
				neireg := regions[c]
				if neireg.visited || neireg.id == 0 || neireg.id.IsBorder() {
					continue
				}
				stack = append(stack, neireg.id)
				neireg.visited = true
			}
		}

		if spanCount < minRegionArea && !connectsToBorder {
			for _, t := range trace {
				regions[t].spanCount = 0
				regions[t].id = 0
			}
		}
	}

	// Merge small regions into their smallest eligible neighbor until
	// nothing changes.
	for {
		mergeCount := 0
		for i := 0; i < nreg; i++ {
			reg := regions[i]
			if reg.id == 0 || reg.id.IsBorder() || reg.overlap || reg.spanCount == 0 {
				continue
			}
			if reg.spanCount > mergeRegionSize && reg.isConnectedToBorder() {
				continue
			}

			smallest := int(^uint(0) >> 1)
			mergeID := reg.id
			for _, c := range reg.connections {
				if c.IsBorder() {
					continue
				}
				mreg := regions[c]
				if mreg.id == 0 || mreg.id.IsBorder() || mreg.overlap {
					continue
				}
				if mreg.spanCount < smallest &&
					canMergeWithRegion(reg, mreg) && canMergeWithRegion(mreg, reg) {
					smallest = mreg.spanCount
					mergeID = mreg.id
				}
			}
			if mergeID != reg.id {
				oldID := reg.id
				target := regions[mergeID]
				if mergeRegionInto(target, reg) {
					for j := 0; j < nreg; j++ {
						if regions[j].id == 0 || regions[j].id.IsBorder() {
							continue
						}
						// Regions previously merged into reg follow it.
						if regions[j].id == oldID {
							regions[j].id = mergeID
						}
						regions[j].replaceNeighbor(oldID, mergeID)
					}
					mergeCount++
				}
			}
		}
		if mergeCount == 0 {
			break
		}
	}

	// Compress region ids.
	for i := 0; i < nreg; i++ {
		regions[i].remap = false
		if regions[i].id == 0 || regions[i].id.IsBorder() {
			continue
		}
		regions[i].remap = true
	}
	regIDGen := RegionID(0)
	for i := 0; i < nreg; i++ {
		if !regions[i].remap {
			continue
		}
		oldID := regions[i].id
		regIDGen++
		for j := i; j < nreg; j++ {
			if regions[j].id == oldID {
				regions[j].id = regIDGen
				regions[j].remap = false
			}
		}
	}
	*maxRegionID = regIDGen

	for i := range srcReg {
		if !srcReg[i].IsBorder() {
			srcReg[i] = regions[srcReg[i]].id
		}
	}

	var overlaps []RegionID
	for i := 0; i < nreg; i++ {
		if regions[i].overlap {
			overlaps = append(overlaps, regions[i].id)
		}
	}
	if len(overlaps) > 0 && logger != nil {
		logger.Warn("region merge left overlapping regions", zap.Int("count", len(overlaps)))
	}
	return overlaps
}

// BuildRegions partitions the walkable area into regions by watershed
// growth over the distance field: levels are processed from MaxDistance down
// in steps of two, existing regions expand into each newly revealed level,
// and remaining local maxima seed new regions. Border strips of borderSize
// cells are pre-painted as dedicated border regions. Requires
// BuildDistanceField to have run.
func (chf *CompactHeightfield) BuildRegions(logger *zap.Logger, borderSize, minRegionArea, mergeRegionArea int) error {
	w, h := chf.Width, chf.Height

	srcReg := make([]RegionID, chf.SpanCount)
	srcDist := make([]uint16, chf.SpanCount)

	lvlStacks := make([][]levelStackEntry, numStacks)
	for i := range lvlStacks {
		lvlStacks[i] = make([]levelStackEntry, 0, 256)
	}
	stack := make([]levelStackEntry, 0, 256)

	regionID := RegionID(1)
	level := (chf.MaxDistance + 1) &^ 1

	// expandIters defines how much the watershed "overflows" and
	// simplifies the regions.
	const expandIters = 8

	if borderSize > 0 {
		bw := min(w, borderSize)
		bh := min(h, borderSize)
		chf.paintRectRegion(0, bw, 0, h, regionID|BorderRegion, srcReg)
		regionID++
		chf.paintRectRegion(w-bw, w, 0, h, regionID|BorderRegion, srcReg)
		regionID++
		chf.paintRectRegion(0, w, 0, bh, regionID|BorderRegion, srcReg)
		regionID++
		chf.paintRectRegion(0, w, h-bh, h, regionID|BorderRegion, srcReg)
		regionID++
	}
	chf.BorderSize = borderSize

	sID := -1
	for level > 0 {
		if level >= 2 {
			level -= 2
		} else {
			level = 0
		}
		sID = (sID + 1) & (numStacks - 1)

		if sID == 0 {
			chf.sortCellsByLevel(level, srcReg, lvlStacks)
		} else {
			// Carry over the spans the previous level did not consume.
			appendStacks(lvlStacks[sID-1], &lvlStacks[sID], srcReg)
		}

		// Expand current regions until no empty connected cells are found.
		chf.expandRegions(expandIters, level, srcReg, srcDist, &lvlStacks[sID], false)

		// Seed new regions at the remaining local maxima.
		for j := range lvlStacks[sID] {
			e := lvlStacks[sID][j]
			if e.index >= 0 && srcReg[e.index] == 0 {
				if chf.floodRegion(e.x, e.z, e.index, level, regionID, srcReg, srcDist, &stack) {
					if regionID == 0xffff {
						return &RegionOverflowError{Regions: int(regionID)}
					}
					regionID++
				}
			}
		}
	}

	// Final sweep over everything still unassigned.
	chf.expandRegions(expandIters*8, 0, srcReg, srcDist, &stack, true)

	chf.MaxRegions = regionID
	chf.mergeAndFilterRegions(logger, minRegionArea, mergeRegionArea, &chf.MaxRegions, srcReg)

	for i := 0; i < chf.SpanCount; i++ {
		chf.Spans[i].Reg = srcReg[i]
	}
	return nil
}

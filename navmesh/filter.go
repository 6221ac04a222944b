package navmesh

import "navbake/common"

// FilterLowHangingWalkableObstacles promotes non-walkable spans sitting
// directly on top of a walkable span to walkable when the step up to them is
// within walkableClimb. This lets the agent walk over curbs and low debris.
func (hf *Heightfield) FilterLowHangingWalkableObstacles(walkableClimb int) {
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			var previous *Span
			previousWasWalkable := false
			previousArea := NullArea

			for s := hf.SpanAt(x, z); s != nil; s = hf.NextSpan(s) {
				walkable := s.Area != NullArea
				// A non-walkable span right above a walkable one within climb
				// reach inherits the walkable area.
				if !walkable && previousWasWalkable {
					if common.Abs(int(s.SMax)-int(previous.SMax)) <= walkableClimb {
						s.Area = previousArea
					}
				}
				// Track the original walkability so it cannot propagate
				// upward through a stack of non-walkable spans.
				previousWasWalkable = walkable
				previousArea = s.Area
				previous = s
			}
		}
	}
}

// FilterLedgeSpans demotes walkable spans sitting at the edge of a ledge:
// spans whose floor-height drop to any 4-neighbor exceeds walkableClimb.
func (hf *Heightfield) FilterLedgeSpans(walkableHeight, walkableClimb int) {
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			for s := hf.SpanAt(x, z); s != nil; s = hf.NextSpan(s) {
				if s.Area == NullArea {
					continue
				}

				bot := int(s.SMax)
				top := maxSpanHeight
				if next := hf.NextSpan(s); next != nil {
					top = int(next.SMin)
				}

				minNeighborHeight := maxSpanHeight
				// Height range of neighbors reachable within walkableClimb.
				accessibleMin := int(s.SMax)
				accessibleMax := int(s.SMax)

				for dir := 0; dir < 4; dir++ {
					dx := x + common.DirOffsetX(dir)
					dz := z + common.DirOffsetZ(dir)
					if dx < 0 || dz < 0 || dx >= hf.Width || dz >= hf.Height {
						// The grid edge counts as a bottomless drop.
						minNeighborHeight = min(minNeighborHeight, -walkableClimb-bot)
						continue
					}

					// The gap from minus infinity up to the neighbor column's
					// first span.
					neighborBot := -walkableClimb
					neighborTop := maxSpanHeight
					if first := hf.SpanAt(dx, dz); first != nil {
						neighborTop = int(first.SMin)
					}
					if min(top, neighborTop)-max(bot, neighborBot) > walkableHeight {
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
					}

					// The gaps above each of the neighbor column's spans.
					for ns := hf.SpanAt(dx, dz); ns != nil; ns = hf.NextSpan(ns) {
						neighborBot = int(ns.SMax)
						neighborTop = maxSpanHeight
						if nnext := hf.NextSpan(ns); nnext != nil {
							neighborTop = int(nnext.SMin)
						}
						if min(top, neighborTop)-max(bot, neighborBot) > walkableHeight {
							minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
							if common.Abs(neighborBot-bot) <= walkableClimb {
								accessibleMin = min(accessibleMin, neighborBot)
								accessibleMax = max(accessibleMax, neighborBot)
							}
						}
					}
				}

				if minNeighborHeight < -walkableClimb {
					// The drop to some neighbor is too far down.
					s.Area = NullArea
				} else if accessibleMax-accessibleMin > walkableClimb {
					// All neighbors are reachable but spread too far apart,
					// meaning the span sits on a steep slope.
					s.Area = NullArea
				}
			}
		}
	}
}

// FilterWalkableLowHeightSpans demotes walkable spans whose clearance to the
// span above is below walkableHeight; the agent cannot fit there.
func (hf *Heightfield) FilterWalkableLowHeightSpans(walkableHeight int) {
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			for s := hf.SpanAt(x, z); s != nil; s = hf.NextSpan(s) {
				bot := int(s.SMax)
				top := maxSpanHeight
				if next := hf.NextSpan(s); next != nil {
					top = int(next.SMin)
				}
				if top-bot < walkableHeight {
					s.Area = NullArea
				}
			}
		}
	}
}

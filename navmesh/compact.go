package navmesh

import (
	"navbake/common"
)

// NotConnected is the 6-bit sentinel stored in a CompactSpan's connectivity
// field for directions without a reachable neighbor.
const NotConnected = 0x3f

// maxLayers bounds the per-column layer index representable in 6 bits.
const maxLayers = NotConnected - 1

// RegionID identifies a watershed region. The high bit marks border regions
// whose spans are excluded from the final geometry; the remaining bits carry
// the numeric id. Id 0 means "no region".
type RegionID uint16

// BorderRegion is the flag bit marking tile-border regions.
const BorderRegion RegionID = 0x8000

// IsBorder reports whether the region carries the border flag.
func (r RegionID) IsBorder() bool { return r&BorderRegion != 0 }

// ID returns the numeric id without the border flag.
func (r RegionID) ID() RegionID { return r &^ BorderRegion }

// IsNone reports whether the span belongs to no region at all.
func (r RegionID) IsNone() bool { return r == 0 }

// CompactCell indexes one column's sub-range of the compact span array.
type CompactCell struct {
	Index int32
	Count int32
}

// CompactSpan is one walkable span after compaction. Y is the floor height
// and conData packs the four 6-bit neighbor layer indices (bits 0..23, six
// bits per direction) plus the 8-bit clearance (bits 24..31). The packed
// layout is load-bearing: downstream stages and the reference algorithm
// agree on the 6-bit NotConnected sentinel and the clamped 8-bit height.
type CompactSpan struct {
	Y       uint16
	Reg     RegionID
	conData uint32
}

// SetCon stores the neighbor layer index for direction dir (NotConnected to
// clear).
func (s *CompactSpan) SetCon(dir, layer int) {
	shift := uint(dir) * 6
	s.conData = (s.conData &^ (0x3f << shift)) | (uint32(layer&0x3f) << shift)
}

// Con returns the neighbor layer index for direction dir, or NotConnected.
func (s *CompactSpan) Con(dir int) int {
	shift := uint(dir) * 6
	return int((s.conData >> shift) & 0x3f)
}

// H returns the clearance above the floor, clamped to 8 bits.
func (s *CompactSpan) H() int {
	return int(s.conData >> 24)
}

// SetH stores the clearance; values above 255 must be clamped by the caller.
func (s *CompactSpan) SetH(h int) {
	s.conData = (s.conData & 0x00ffffff) | (uint32(h) << 24)
}

// CompactHeightfield is the connectivity graph over the walkable spans of a
// heightfield: a per-column contiguous slice of spans with explicit
// 4-directional links, parallel-indexed border distances and area ids.
type CompactHeightfield struct {
	Width          int
	Height         int
	SpanCount      int
	WalkableHeight int
	WalkableClimb  int
	BorderSize     int
	MaxDistance    uint16
	MaxRegions     RegionID
	Bounds         AABB
	CellSize       float32
	CellHeight     float32
	Cells          []CompactCell
	Spans          []CompactSpan
	Dist           []uint16
	Areas          []uint8
}

func (chf *CompactHeightfield) cellAt(x, z int) *CompactCell {
	return &chf.Cells[x+z*chf.Width]
}

// BuildCompactHeightfield packs the walkable spans of hf into a compact
// heightfield and resolves 4-directional neighbor connectivity. Returns a
// TooManyLayersError when a column's walkable stack exceeds the 6-bit layer
// index.
//
// Span clearance is clamped to 8 bits; very tall open columns record a
// clearance of 255 voxels. The clamp is deliberate and silent, matching the
// reference algorithm.
func BuildCompactHeightfield(walkableHeight, walkableClimb int, hf *Heightfield) (*CompactHeightfield, error) {
	spanCount := hf.SpanCount()

	chf := &CompactHeightfield{
		Width:          hf.Width,
		Height:         hf.Height,
		SpanCount:      spanCount,
		WalkableHeight: walkableHeight,
		WalkableClimb:  walkableClimb,
		Bounds:         hf.Bounds,
		CellSize:       hf.CellSize,
		CellHeight:     hf.CellHeight,
		Cells:          make([]CompactCell, hf.Width*hf.Height),
		Spans:          make([]CompactSpan, spanCount),
		Areas:          make([]uint8, spanCount),
	}
	chf.Bounds.Max[1] += float32(walkableHeight) * hf.CellHeight

	// Pass 1: convert walkable spans, recording floor height and clearance.
	currentIndex := int32(0)
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			first := hf.SpanAt(x, z)
			if first == nil {
				// Leave the cell at index=0, count=0.
				continue
			}
			cell := chf.cellAt(x, z)
			cell.Index = currentIndex
			cell.Count = 0
			for s := first; s != nil; s = hf.NextSpan(s) {
				if s.Area == NullArea {
					continue
				}
				bot := int(s.SMax)
				top := maxSpanHeight
				if next := hf.NextSpan(s); next != nil {
					top = int(next.SMin)
				}
				chf.Spans[currentIndex].Y = uint16(common.Clamp(bot, 0, maxSpanHeight))
				chf.Spans[currentIndex].SetH(common.Clamp(top-bot, 0, 0xff))
				chf.Areas[currentIndex] = s.Area
				currentIndex++
				cell.Count++
			}
		}
	}

	// Pass 2: resolve neighbor connections. A neighbor is connected when the
	// vertical overlap of the two spans fits the agent and the floor delta is
	// climbable; the stored value is the neighbor's layer index within its
	// own column.
	maxLayerIndex := 0
	for z := 0; z < chf.Height; z++ {
		for x := 0; x < chf.Width; x++ {
			cell := chf.cellAt(x, z)
			for i := cell.Index; i < cell.Index+cell.Count; i++ {
				span := &chf.Spans[i]
				for dir := 0; dir < 4; dir++ {
					span.SetCon(dir, NotConnected)
					nx := x + common.DirOffsetX(dir)
					nz := z + common.DirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= chf.Width || nz >= chf.Height {
						continue
					}
					neighborCell := chf.cellAt(nx, nz)
					for k := neighborCell.Index; k < neighborCell.Index+neighborCell.Count; k++ {
						neighbor := &chf.Spans[k]
						bot := max(int(span.Y), int(neighbor.Y))
						top := min(int(span.Y)+span.H(), int(neighbor.Y)+neighbor.H())
						if top-bot >= walkableHeight && common.Abs(int(neighbor.Y)-int(span.Y)) <= walkableClimb {
							layerIndex := int(k - neighborCell.Index)
							if layerIndex < 0 || layerIndex > maxLayers {
								maxLayerIndex = max(maxLayerIndex, layerIndex)
								continue
							}
							span.SetCon(dir, layerIndex)
							break
						}
					}
				}
			}
		}
	}

	if maxLayerIndex > maxLayers {
		return nil, &TooManyLayersError{LayerIndex: maxLayerIndex, MaxLayers: maxLayers}
	}
	return chf, nil
}

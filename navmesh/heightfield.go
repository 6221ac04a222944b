package navmesh

import (
	"math"

	"navbake/common"
)

// Span height values are snapped to the voxel height grid and clamped to
// this ceiling.
const maxSpanHeight = math.MaxUint16

// nilSpan marks the end of a column's span chain.
const nilSpan = int32(-1)

// Span is one solid voxel run in a heightfield column. SMin/SMax are voxel
// heights measured from the heightfield base; next links to the next-higher
// span in the same column inside the owning heightfield's arena.
type Span struct {
	SMin uint16
	SMax uint16
	Area uint8
	next int32
}

// Heightfield is a 2D grid of columns, each holding a chain of solid spans
// sorted bottom-to-top. Spans live in a stable-index arena; removed spans go
// onto a free list and are reused by later insertions.
type Heightfield struct {
	Width      int
	Height     int
	Bounds     AABB
	CellSize   float32
	CellHeight float32

	// Head span index per column, nilSpan for empty columns.
	columns []int32
	// Span arena; entries on the free list are dead.
	spans    []Span
	freelist int32
}

// NewHeightfield allocates an empty heightfield covering bounds at the given
// cell sizes. Returns a GridSizeError when the column count cannot be
// addressed.
func NewHeightfield(bounds AABB, cellSize, cellHeight float32) (*Heightfield, error) {
	width := int64((bounds.Max.X()-bounds.Min.X())/cellSize + 0.5)
	height := int64((bounds.Max.Z()-bounds.Min.Z())/cellSize + 0.5)
	if width < 0 || height < 0 || (height != 0 && width > math.MaxInt64/height) || width*height > math.MaxInt32 {
		return nil, &GridSizeError{Width: width, Height: height}
	}
	hf := &Heightfield{
		Width:      int(width),
		Height:     int(height),
		Bounds:     bounds,
		CellSize:   cellSize,
		CellHeight: cellHeight,
		columns:    make([]int32, width*height),
		freelist:   nilSpan,
	}
	for i := range hf.columns {
		hf.columns[i] = nilSpan
	}
	return hf, nil
}

func (hf *Heightfield) columnIndex(x, z int) int {
	return x + z*hf.Width
}

// SpanAt returns the lowest span of column (x, z), or nil if the column is
// empty or out of bounds.
func (hf *Heightfield) SpanAt(x, z int) *Span {
	if x < 0 || z < 0 || x >= hf.Width || z >= hf.Height {
		return nil
	}
	head := hf.columns[hf.columnIndex(x, z)]
	if head == nilSpan {
		return nil
	}
	return &hf.spans[head]
}

// NextSpan returns the next-higher span in s's column, or nil.
func (hf *Heightfield) NextSpan(s *Span) *Span {
	if s.next == nilSpan {
		return nil
	}
	return &hf.spans[s.next]
}

// SpanCount returns the number of live spans with a walkable area id.
func (hf *Heightfield) SpanCount() int {
	count := 0
	for col := 0; col < hf.Width*hf.Height; col++ {
		for i := hf.columns[col]; i != nilSpan; i = hf.spans[i].next {
			if hf.spans[i].Area != NullArea {
				count++
			}
		}
	}
	return count
}

func (hf *Heightfield) allocSpan() int32 {
	if hf.freelist != nilSpan {
		idx := hf.freelist
		hf.freelist = hf.spans[idx].next
		return idx
	}
	hf.spans = append(hf.spans, Span{})
	return int32(len(hf.spans) - 1)
}

func (hf *Heightfield) freeSpan(idx int32) {
	hf.spans[idx].next = hf.freelist
	hf.freelist = idx
}

// AddSpan inserts the span [smin, smax] with the given area id into column
// (x, z), merging it with any overlapping spans. When the merged ceilings
// are within flagMergeThreshold of each other, the numerically larger area
// id wins; otherwise the incoming span's area id survives the merge.
func (hf *Heightfield) AddSpan(x, z int, smin, smax uint16, area uint8, flagMergeThreshold int) error {
	if x < 0 || z < 0 || x >= hf.Width || z >= hf.Height {
		return &SpanInsertionError{X: x, Z: z}
	}
	newSpan := Span{SMin: smin, SMax: smax, Area: area, next: nilSpan}

	columnIndex := hf.columnIndex(x, z)
	previous := nilSpan
	current := hf.columns[columnIndex]

	// Insert the new span, possibly merging it with existing spans.
	for current != nilSpan {
		cur := &hf.spans[current]
		if cur.SMin > newSpan.SMax {
			// Current span is completely above the new span; done.
			break
		}
		if cur.SMax < newSpan.SMin {
			// Current span is completely below the new span; keep going.
			previous = current
			current = cur.next
			continue
		}
		// Overlap: merge into the new span.
		if cur.SMin < newSpan.SMin {
			newSpan.SMin = cur.SMin
		}
		if cur.SMax > newSpan.SMax {
			newSpan.SMax = cur.SMax
		}
		if common.Abs(int(newSpan.SMax)-int(cur.SMax)) <= flagMergeThreshold {
			// Higher area ids take priority.
			newSpan.Area = max(newSpan.Area, cur.Area)
		}
		// Unlink and free the merged span; more overlaps may follow.
		next := cur.next
		hf.freeSpan(current)
		if previous != nilSpan {
			hf.spans[previous].next = next
		} else {
			hf.columns[columnIndex] = next
		}
		current = next
	}

	idx := hf.allocSpan()
	if previous != nilSpan {
		newSpan.next = hf.spans[previous].next
		hf.spans[idx] = newSpan
		hf.spans[previous].next = idx
	} else {
		newSpan.next = hf.columns[columnIndex]
		hf.spans[idx] = newSpan
		hf.columns[columnIndex] = idx
	}
	return nil
}

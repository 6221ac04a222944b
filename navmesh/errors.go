package navmesh

import "fmt"

// GridSizeError reports a heightfield whose column count cannot be addressed.
type GridSizeError struct {
	Width, Height int64
}

func (e *GridSizeError) Error() string {
	return fmt.Sprintf("heightfield grid %dx%d overflows addressable column count", e.Width, e.Height)
}

// SpanInsertionError reports a span addressed outside the heightfield grid.
// This is defensive; it is unreachable when the grid was derived from the
// same AABB the rasterizer clips against.
type SpanInsertionError struct {
	X, Z int
}

func (e *SpanInsertionError) Error() string {
	return fmt.Sprintf("span column (%d,%d) is outside the heightfield grid", e.X, e.Z)
}

// TooManyLayersError reports a column whose walkable span stack is too deep
// for the 6-bit neighbor layer index.
type TooManyLayersError struct {
	LayerIndex int
	MaxLayers  int
}

func (e *TooManyLayersError) Error() string {
	return fmt.Sprintf("heightfield has too many layers: %d (max %d)", e.LayerIndex, e.MaxLayers)
}

// RegionOverflowError reports a watershed that produced more regions than
// the 16-bit region id space can hold.
type RegionOverflowError struct {
	Regions int
}

func (e *RegionOverflowError) Error() string {
	return fmt.Sprintf("too many regions: %d (max %d)", e.Regions, 0xffff)
}

// InvalidContourError reports a contour that could not be triangulated even
// with the relaxed diagonal test.
type InvalidContourError struct {
	RegionID RegionID
	NumVerts int
}

func (e *InvalidContourError) Error() string {
	return fmt.Sprintf("contour of region %d (%d verts) cannot be triangulated", e.RegionID, e.NumVerts)
}

// MeshOverflowError reports a polygon mesh exceeding the 16-bit index space
// of its vertex or polygon arrays.
type MeshOverflowError struct {
	Vertices int
	Polygons int
}

func (e *MeshOverflowError) Error() string {
	if e.Vertices > 0 {
		return fmt.Sprintf("polygon mesh has too many vertices: %d (max %d)", e.Vertices, 0xffff)
	}
	return fmt.Sprintf("polygon mesh has too many polygons: %d (max %d)", e.Polygons, 0xffff)
}

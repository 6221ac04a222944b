// Package common holds the small numeric and grid helpers shared by every
// stage of the bake pipeline.
package common

import "cmp"

// Number covers every numeric type the pipeline clamps or squares.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sqr returns a*a.
func Sqr[T Number](a T) T {
	return a * a
}

// Abs returns the absolute value.
func Abs[T Number](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// Clamp clamps value to [minInclusive, maxInclusive].
func Clamp[T cmp.Ordered](value, minInclusive, maxInclusive T) T {
	if value < minInclusive {
		return minInclusive
	}
	if value > maxInclusive {
		return maxInclusive
	}
	return value
}

// The four cardinal grid directions used throughout the pipeline:
// 0 = -x, 1 = +z, 2 = +x, 3 = -z.
var (
	dirOffsetX = [4]int{-1, 0, 1, 0}
	dirOffsetZ = [4]int{0, 1, 0, -1}
)

// DirOffsetX returns the x offset of direction dir.
func DirOffsetX(dir int) int {
	return dirOffsetX[dir&0x03]
}

// DirOffsetZ returns the z offset of direction dir.
func DirOffsetZ(dir int) int {
	return dirOffsetZ[dir&0x03]
}

// DirForOffset returns the direction whose offset is (offsetX, offsetZ).
func DirForOffset(offsetX, offsetZ int) int {
	dirs := [5]int{3, 0, -1, 2, 1}
	return dirs[((offsetZ+1)<<1)+offsetX]
}

// NextIndex returns i+1 wrapping around at n.
func NextIndex(i, n int) int {
	if i+1 < n {
		return i + 1
	}
	return 0
}

// PrevIndex returns i-1 wrapping around at n.
func PrevIndex(i, n int) int {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

package objfile

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navbake/navmesh"
)

func TestReadTriangles(t *testing.T) {
	const obj = `
# a single triangle
v 0 0 0
v 1 0 0
v 0 0 1
f 1 2 3
`
	mesh, err := Read(strings.NewReader(obj), 1)
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 3)
	require.Len(t, mesh.Triangles, 1)
	assert.Equal(t, [3]int32{0, 1, 2}, mesh.Triangles[0])
	assert.Equal(t, navmesh.NullArea, mesh.Areas[0])
}

func TestReadFansQuads(t *testing.T) {
	const obj = `
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
f 1 2 3 4
`
	mesh, err := Read(strings.NewReader(obj), 1)
	require.NoError(t, err)
	require.Len(t, mesh.Triangles, 2)
	assert.Equal(t, [3]int32{0, 1, 2}, mesh.Triangles[0])
	assert.Equal(t, [3]int32{0, 2, 3}, mesh.Triangles[1])
}

func TestReadFaceIndexForms(t *testing.T) {
	const obj = `
v 0 0 0
v 1 0 0
v 0 0 1
vt 0 0
vn 0 1 0
f 1/1/1 2/1/1 3/1/1
f -3//1 -2//1 -1//1
`
	mesh, err := Read(strings.NewReader(obj), 1)
	require.NoError(t, err)
	require.Len(t, mesh.Triangles, 2)
	assert.Equal(t, mesh.Triangles[0], mesh.Triangles[1])
}

func TestReadAppliesScale(t *testing.T) {
	const obj = "v 1 2 3\n"
	mesh, err := Read(strings.NewReader(obj), 0.5)
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 1)
	assert.Equal(t, mgl32.Vec3{0.5, 1, 1.5}, mesh.Vertices[0])
}

func TestReadSkipsCommentsAndUnknown(t *testing.T) {
	const obj = `
# comment
o object
g group
usemtl stone
v 0 0 0 # trailing comment
v 1 0 0
v 0 0 1
s off
f 1 2 3
`
	mesh, err := Read(strings.NewReader(obj), 1)
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 3)
	assert.Len(t, mesh.Triangles, 1)
}

func TestReadRejectsBadVertex(t *testing.T) {
	_, err := Read(strings.NewReader("v 1 x 3\n"), 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "line 1")
}

func TestReadRejectsOutOfRangeIndex(t *testing.T) {
	const obj = `
v 0 0 0
v 1 0 0
f 1 2 3
`
	_, err := Read(strings.NewReader(obj), 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of range")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does/not/exist.obj", 1)
	require.Error(t, err)
}

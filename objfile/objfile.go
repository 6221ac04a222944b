// Package objfile reads Wavefront OBJ triangle soups for baking. Only vertex
// and face statements are honored; normals, texture coordinates, materials
// and groups are skipped. Faces with more than three vertices are fanned into
// triangles from their first vertex.
package objfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"navbake/navmesh"
)

// maxFaceVerts bounds the vertex count accepted per face statement.
const maxFaceVerts = 32

// Load reads the OBJ file at path, scaling all vertices by scale.
func Load(path string, scale float32) (*navmesh.TriMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mesh, err := Read(f, scale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mesh, nil
}

// Read parses OBJ statements from r into a triangle soup. All triangles start
// with a NullArea id.
func Read(r io.Reader, scale float32) (*navmesh.TriMesh, error) {
	if scale == 0 {
		scale = 1
	}
	mesh := &navmesh.TriMesh{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(row, '#'); i >= 0 {
			row = strings.TrimSpace(row[:i])
		}
		if row == "" {
			continue
		}
		fields := strings.Fields(row)
		switch fields[0] {
		case "v":
			v, err := parseVertex(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			mesh.Vertices = append(mesh.Vertices, v.Mul(scale))
		case "f":
			if err := parseFace(mesh, fields[1:]); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mesh, nil
}

func parseVertex(fields []string) (mgl32.Vec3, error) {
	if len(fields) < 3 {
		return mgl32.Vec3{}, fmt.Errorf("vertex has %d coordinates, need 3", len(fields))
	}
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return mgl32.Vec3{}, fmt.Errorf("bad vertex coordinate %q: %w", fields[i], err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseFace(mesh *navmesh.TriMesh, fields []string) error {
	if len(fields) > maxFaceVerts {
		fields = fields[:maxFaceVerts]
	}
	idx := make([]int32, 0, len(fields))
	for _, field := range fields {
		// "v", "v/vt", "v//vn" and "v/vt/vn" all start with the vertex index.
		s, _, _ := strings.Cut(field, "/")
		vi, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad face index %q: %w", field, err)
		}
		if vi < 0 {
			// Negative indices count back from the last vertex read.
			vi += len(mesh.Vertices)
		} else {
			vi--
		}
		if vi < 0 || vi >= len(mesh.Vertices) {
			return fmt.Errorf("face index %q out of range", field)
		}
		idx = append(idx, int32(vi))
	}
	for i := 2; i < len(idx); i++ {
		mesh.Triangles = append(mesh.Triangles, [3]int32{idx[0], idx[i-1], idx[i]})
		mesh.Areas = append(mesh.Areas, navmesh.NullArea)
	}
	return nil
}

// Package meshutil implements the mesh passes run during extraction: normal
// generation, the split-vertex pass for per-index attributes, bone weight
// reduction and topology validation.
package meshutil

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrDegenerateMesh = errors.New("degenerate mesh")

// ValidateTopology checks that counts and indices describe polygons over
// numPoints points.
func ValidateTopology(numPoints int, counts, indices []int32) error {
	total := 0
	for i, c := range counts {
		if c < 3 {
			return fmt.Errorf("face %d has %d corners: %w", i, c, ErrDegenerateMesh)
		}
		total += int(c)
	}
	if total != len(indices) {
		return fmt.Errorf("faces reference %d corners but %d indices are present: %w", total, len(indices), ErrDegenerateMesh)
	}
	for i, idx := range indices {
		if idx < 0 || int(idx) >= numPoints {
			return fmt.Errorf("index %d at corner %d is out of range [0, %d): %w", idx, i, numPoints, ErrDegenerateMesh)
		}
	}
	return nil
}

// FaceNormal computes the normal of a polygon with Newell's method, which is
// robust for non-planar and concave polygons. Zero-area faces yield a zero vector.
func FaceNormal(points []mgl32.Vec3, corners []int32) mgl32.Vec3 {
	var n mgl32.Vec3
	for i := range corners {
		cur := points[corners[i]]
		next := points[corners[(i+1)%len(corners)]]
		n[0] += (cur[1] - next[1]) * (cur[2] + next[2])
		n[1] += (cur[2] - next[2]) * (cur[0] + next[0])
		n[2] += (cur[0] - next[0]) * (cur[1] + next[1])
	}
	return normalize(n)
}

// VertexNormals averages the normals of the faces around each point, weighted
// by face area.
func VertexNormals(points []mgl32.Vec3, counts, indices []int32) []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(points))
	offset := 0
	for _, c := range counts {
		corners := indices[offset : offset+int(c)]
		// Newell's sum before normalization is twice the area-weighted normal.
		var n mgl32.Vec3
		for i := range corners {
			cur := points[corners[i]]
			next := points[corners[(i+1)%len(corners)]]
			n[0] += (cur[1] - next[1]) * (cur[2] + next[2])
			n[1] += (cur[2] - next[2]) * (cur[0] + next[0])
			n[2] += (cur[0] - next[0]) * (cur[1] + next[1])
		}
		for _, idx := range corners {
			normals[idx] = normals[idx].Add(n)
		}
		offset += int(c)
	}
	for i := range normals {
		normals[i] = normalize(normals[i])
	}
	return normals
}

// PerIndexNormals returns one normal per face corner: the point normal on
// smooth faces and the face normal on flat ones. smooth may be nil, in which
// case every face is flat.
func PerIndexNormals(points []mgl32.Vec3, counts, indices []int32, smooth []bool, vertexNormals []mgl32.Vec3) []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, 0, len(indices))
	offset := 0
	for fi, c := range counts {
		corners := indices[offset : offset+int(c)]
		if fi < len(smooth) && smooth[fi] && len(vertexNormals) == len(points) {
			for _, idx := range corners {
				normals = append(normals, vertexNormals[idx])
			}
		} else {
			fn := FaceNormal(points, corners)
			for range corners {
				normals = append(normals, fn)
			}
		}
		offset += int(c)
	}
	return normals
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}

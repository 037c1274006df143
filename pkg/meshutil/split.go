package meshutil

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/scene"
)

// DefaultEpsilon is the component-wise tolerance under which two corner
// attributes are considered equal by SplitPerIndex.
const DefaultEpsilon = 1e-4

func nearVec2(a, b mgl32.Vec2, eps float32) bool {
	return mgl32.Abs(a[0]-b[0]) <= eps && mgl32.Abs(a[1]-b[1]) <= eps
}

func nearVec3(a, b mgl32.Vec3, eps float32) bool {
	return mgl32.Abs(a[0]-b[0]) <= eps && mgl32.Abs(a[1]-b[1]) <= eps && mgl32.Abs(a[2]-b[2]) <= eps
}

func nearVec4(a, b mgl32.Vec4, eps float32) bool {
	return nearVec3(a.Vec3(), b.Vec3(), eps) && mgl32.Abs(a[3]-b[3]) <= eps
}

// SplitPerIndex converts a mesh whose Normals, UV0 and Colors are stored per
// face corner into one where every attribute is stored per point, duplicating
// points whose corners disagree.
//
// Corners are visited in index order. A corner reuses the first already
// emitted copy of its source point whose attributes all lie within eps
// component-wise of its own; otherwise a new copy is emitted. Comparison is
// always against the emitted copy, never chained through other corners, so the
// result does not depend on how close intermediate corners are.
//
// Per-point data (bone weights, blend shape deltas) follows the copies. Meshes
// already split, or without per-corner attributes, are left untouched.
func SplitPerIndex(m *scene.Mesh, eps float32) {
	if m.Flags.Has(scene.MeshSplitPerIndex) {
		return
	}
	n := len(m.Indices)
	hasNormals := len(m.Normals) == n && n > 0
	hasUV := len(m.UV0) == n && n > 0
	hasColors := len(m.Colors) == n && n > 0
	if !hasNormals && !hasUV && !hasColors {
		return
	}

	numSource := len(m.Points)
	// copies[v] lists the emitted point indices created from source point v.
	copies := make([][]int32, numSource)
	remap := make([]int32, 0, n)

	points := make([]mgl32.Vec3, 0, n)
	var normals []mgl32.Vec3
	var uvs []mgl32.Vec2
	var colors []mgl32.Vec4
	var weights []scene.Weights4
	hasWeights := len(m.Weights4) == numSource && numSource > 0

	for corner, src := range m.Indices {
		found := int32(-1)
		for _, cand := range copies[src] {
			if hasNormals && !nearVec3(normals[cand], m.Normals[corner], eps) {
				continue
			}
			if hasUV && !nearVec2(uvs[cand], m.UV0[corner], eps) {
				continue
			}
			if hasColors && !nearVec4(colors[cand], m.Colors[corner], eps) {
				continue
			}
			found = cand
			break
		}
		if found < 0 {
			found = int32(len(points))
			copies[src] = append(copies[src], found)
			points = append(points, m.Points[src])
			if hasNormals {
				normals = append(normals, m.Normals[corner])
			}
			if hasUV {
				uvs = append(uvs, m.UV0[corner])
			}
			if hasColors {
				colors = append(colors, m.Colors[corner])
			}
			if hasWeights {
				weights = append(weights, m.Weights4[src])
			}
			remap = append(remap, src)
		}
		m.Indices[corner] = found
	}

	for _, bs := range m.BlendShapes {
		for _, frame := range bs.Frames {
			frame.Points = expand(frame.Points, remap, numSource)
			frame.Normals = expand(frame.Normals, remap, numSource)
		}
	}

	m.Points = points
	if hasNormals {
		m.Normals = normals
	}
	if hasUV {
		m.UV0 = uvs
	}
	if hasColors {
		m.Colors = colors
	}
	if hasWeights {
		m.Weights4 = weights
	}
	m.Flags |= scene.MeshSplitPerIndex
}

// expand maps per-source-point data onto the emitted copies. Data of the wrong
// length is dropped.
func expand(src []mgl32.Vec3, remap []int32, numSource int) []mgl32.Vec3 {
	if len(src) != numSource {
		return nil
	}
	out := make([]mgl32.Vec3, len(remap))
	for i, s := range remap {
		out[i] = src[s]
	}
	return out
}

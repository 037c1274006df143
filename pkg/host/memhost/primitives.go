package memhost

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
)

func trs(t, eulerDeg, s mgl32.Vec3) mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(eulerDeg[0]),
		mgl32.DegToRad(eulerDeg[1]),
		mgl32.DegToRad(eulerDeg[2]),
		mgl32.XYZ,
	)
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// TRS builds a local matrix from a translation, XYZ euler angles in degrees
// and a scale.
func TRS(t, eulerDeg, s mgl32.Vec3) mgl32.Mat4 {
	return trs(t, eulerDeg, s)
}

var quadUVs = []mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// polygons builds quads or triangles from corner lists.
func polygons(md *host.MeshData, faces [][]int32, smooth bool) {
	for _, f := range faces {
		md.Polygons = append(md.Polygons, host.Polygon{
			LoopStart: int32(len(md.LoopVertices)),
			LoopTotal: int32(len(f)),
			Smooth:    smooth,
		})
		md.LoopVertices = append(md.LoopVertices, f...)
		if len(f) == 4 {
			md.UVs = append(md.UVs, quadUVs...)
		} else {
			md.UVs = append(md.UVs, quadUVs[:len(f)]...)
		}
	}
}

// Cube returns an axis-aligned cube of the given edge size with outward
// facing quads.
func Cube(size float32, smooth bool) *host.MeshData {
	h := size / 2
	md := &host.MeshData{
		Points: []mgl32.Vec3{
			{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
			{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
		},
	}
	polygons(md, [][]int32{
		{0, 3, 2, 1}, // -z
		{4, 5, 6, 7}, // +z
		{0, 1, 5, 4}, // -y
		{2, 3, 7, 6}, // +y
		{1, 2, 6, 5}, // +x
		{0, 4, 7, 3}, // -x
	}, smooth)
	return md
}

// Plane returns a single quad in the XY plane facing +Z.
func Plane(size float32) *host.MeshData {
	h := size / 2
	md := &host.MeshData{
		Points: []mgl32.Vec3{{-h, -h, 0}, {h, -h, 0}, {h, h, 0}, {-h, h, 0}},
	}
	polygons(md, [][]int32{{0, 1, 2, 3}}, false)
	return md
}

// EditMeshFrom builds the edit mesh matching md.
func EditMeshFrom(md *host.MeshData) *host.EditMesh {
	if md == nil {
		return nil
	}
	em := &host.EditMesh{Verts: make([]host.EditVert, len(md.Points))}
	for i, p := range md.Points {
		em.Verts[i].Co = p
		if len(md.VertexNormals) == len(md.Points) {
			em.Verts[i].Normal = md.VertexNormals[i]
		}
	}
	hasUVs := len(md.UVs) == len(md.LoopVertices)
	for _, p := range md.Polygons {
		f := host.EditFace{
			Verts:         append([]int32(nil), md.LoopVertices[p.LoopStart:p.LoopStart+p.LoopTotal]...),
			MaterialIndex: p.MaterialIndex,
			Smooth:        p.Smooth,
		}
		if hasUVs {
			f.UVs = append([]mgl32.Vec2(nil), md.UVs[p.LoopStart:p.LoopStart+p.LoopTotal]...)
		}
		em.Faces = append(em.Faces, f)
	}
	return em
}

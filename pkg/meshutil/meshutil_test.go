package meshutil

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeMesh() *scene.Mesh {
	m := scene.NewMesh()
	m.Points = []mgl32.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	m.Counts = []int32{4, 4, 4, 4, 4, 4}
	m.Indices = []int32{
		0, 3, 2, 1, // -z
		4, 5, 6, 7, // +z
		0, 1, 5, 4, // -y
		2, 3, 7, 6, // +y
		1, 2, 6, 5, // +x
		0, 4, 7, 3, // -x
	}
	return m
}

func TestValidateTopology(t *testing.T) {
	m := cubeMesh()
	assert.NoError(t, ValidateTopology(len(m.Points), m.Counts, m.Indices))

	assert.ErrorIs(t, ValidateTopology(8, []int32{2}, []int32{0, 1}), ErrDegenerateMesh)
	assert.ErrorIs(t, ValidateTopology(8, []int32{3}, []int32{0, 1}), ErrDegenerateMesh)
	assert.ErrorIs(t, ValidateTopology(3, []int32{3}, []int32{0, 1, 3}), ErrDegenerateMesh)
}

func TestFaceNormal(t *testing.T) {
	m := cubeMesh()
	n := FaceNormal(m.Points, m.Indices[4:8])
	assert.InDelta(t, 1, n[2], 1e-6)
	n = FaceNormal(m.Points, m.Indices[0:4])
	assert.InDelta(t, -1, n[2], 1e-6)
	assert.Equal(t, mgl32.Vec3{}, FaceNormal(m.Points, []int32{0, 0, 0}))
}

func TestVertexNormals(t *testing.T) {
	m := cubeMesh()
	normals := VertexNormals(m.Points, m.Counts, m.Indices)
	require.Len(t, normals, 8)
	// Every cube corner averages three axis-aligned faces.
	for i, n := range normals {
		expected := m.Points[i].Normalize()
		assert.True(t, nearVec3(n, expected, 1e-5), "point %d: %v != %v", i, n, expected)
	}
}

func TestSplitPerIndexCube(t *testing.T) {
	m := cubeMesh()
	m.Normals = PerIndexNormals(m.Points, m.Counts, m.Indices, nil, nil)
	require.Len(t, m.Normals, 24)

	SplitPerIndex(m, DefaultEpsilon)

	assert.True(t, m.Flags.Has(scene.MeshSplitPerIndex))
	assert.Len(t, m.Points, 24)
	assert.Len(t, m.Normals, 24)
	assert.Len(t, m.Indices, 24)

	// Every face gets four corners of its own, all facing the face normal.
	seen := map[int32]bool{}
	offset := 0
	for _, c := range m.Counts {
		corners := m.Indices[offset : offset+int(c)]
		fn := FaceNormal(m.Points, corners)
		for _, idx := range corners {
			assert.False(t, seen[idx], "split vertex %d shared between faces", idx)
			seen[idx] = true
			assert.True(t, nearVec3(m.Normals[idx], fn, 1e-6))
		}
		offset += int(c)
	}

	// Splitting twice is a no-op.
	SplitPerIndex(m, DefaultEpsilon)
	assert.Len(t, m.Points, 24)
}

func TestSplitPerIndexSmoothKeepsSharedPoints(t *testing.T) {
	m := cubeMesh()
	smooth := []bool{true, true, true, true, true, true}
	vn := VertexNormals(m.Points, m.Counts, m.Indices)
	m.Normals = PerIndexNormals(m.Points, m.Counts, m.Indices, smooth, vn)

	SplitPerIndex(m, DefaultEpsilon)
	assert.Len(t, m.Points, 8)
}

func TestSplitPerIndexEpsilon(t *testing.T) {
	m := scene.NewMesh()
	m.Points = []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	m.Counts = []int32{3, 3}
	m.Indices = []int32{0, 1, 2, 1, 3, 2}
	up := mgl32.Vec3{0, 0, 1}
	nearlyUp := mgl32.Vec3{0, 0.00005, 1}
	farUp := mgl32.Vec3{0, 0.001, 1}
	m.Normals = []mgl32.Vec3{up, up, up, nearlyUp, farUp, nearlyUp}

	SplitPerIndex(m, DefaultEpsilon)

	// Point 1 and 2 merge within epsilon, point 3 is new.
	assert.Len(t, m.Points, 4)
	assert.Equal(t, []int32{0, 1, 2, 1, 3, 2}, m.Indices)

	m2 := scene.NewMesh()
	m2.Points = []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	m2.Counts = []int32{3, 3}
	m2.Indices = []int32{0, 1, 2, 1, 3, 2}
	m2.Normals = []mgl32.Vec3{up, up, up, farUp, farUp, farUp}
	SplitPerIndex(m2, DefaultEpsilon)
	assert.Len(t, m2.Points, 6)
}

func TestSplitPerIndexCarriesPerPointData(t *testing.T) {
	m := cubeMesh()
	m.Normals = PerIndexNormals(m.Points, m.Counts, m.Indices, nil, nil)
	m.Weights4 = make([]scene.Weights4, 8)
	for i := range m.Weights4 {
		m.Weights4[i] = scene.Weights4{Weights: [4]float32{1}, Indices: [4]int32{int32(i)}}
	}
	delta := make([]mgl32.Vec3, 8)
	for i := range delta {
		delta[i] = mgl32.Vec3{float32(i), 0, 0}
	}
	m.BlendShapes = []*scene.BlendShape{{Name: "key", Frames: []*scene.BlendShapeFrame{{Weight: 100, Points: delta}}}}
	original := append([]mgl32.Vec3(nil), m.Points...)

	SplitPerIndex(m, DefaultEpsilon)

	require.Len(t, m.Weights4, 24)
	require.Len(t, m.BlendShapes[0].Frames[0].Points, 24)
	for i, p := range m.Points {
		src := m.Weights4[i].Indices[0]
		assert.Equal(t, original[src], p)
		assert.Equal(t, float32(src), m.BlendShapes[0].Frames[0].Points[i][0])
	}
}

func TestReduceWeights(t *testing.T) {
	w := ReduceWeights([]BoneWeight{
		{Bone: 0, Weight: 0.1},
		{Bone: 1, Weight: 0.4},
		{Bone: 2, Weight: 0.2},
		{Bone: 3, Weight: 0.2},
		{Bone: 4, Weight: 0.1},
		{Bone: 5, Weight: 0},
	})
	assert.Equal(t, [4]int32{1, 2, 3, 0}, w.Indices)
	var sum float32
	for _, v := range w.Weights {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.InDelta(t, 0.4/0.9, w.Weights[0], 1e-6)

	assert.Equal(t, scene.Weights4{}, ReduceWeights(nil))
	assert.Equal(t, scene.Weights4{}, ReduceWeights([]BoneWeight{{Bone: 1, Weight: 0}}))
}

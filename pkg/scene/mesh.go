package scene

import "github.com/go-gl/mathgl/mgl32"

type MeshFlags uint32

const (
	MeshHasPoints MeshFlags = 1 << iota
	MeshHasNormals
	MeshHasUV0
	MeshHasColors
	MeshHasIndices
	MeshHasMaterialIDs
	MeshHasBones
	MeshHasBlendshapes
	// MeshSplitPerIndex is set when shared vertices were split so that every
	// attribute is stored per point.
	MeshSplitPerIndex
)

func (f MeshFlags) Has(flag MeshFlags) bool {
	return f&flag != 0
}

// Weights4 holds the four most influential bones of a point, normalized.
type Weights4 struct {
	Weights [4]float32
	Indices [4]int32
}

type BlendShapeFrame struct {
	Weight  float32
	Points  []mgl32.Vec3
	Normals []mgl32.Vec3
}

type BlendShape struct {
	Name   string
	Weight float32
	Frames []*BlendShapeFrame
}

type Mesh struct {
	Transform
	Flags MeshFlags

	Points      []mgl32.Vec3
	Normals     []mgl32.Vec3
	UV0         []mgl32.Vec2
	Colors      []mgl32.Vec4
	Counts      []int32
	Indices     []int32
	MaterialIDs []int32

	RootBone  string
	Bones     []string
	BindPoses []mgl32.Mat4
	Weights4  []Weights4

	BlendShapes []*BlendShape
}

func NewMesh() *Mesh {
	m := &Mesh{}
	m.Reset()
	return m
}

func (m *Mesh) Type() EntityType { return EntityMesh }
func (m *Mesh) Base() *Transform { return &m.Transform }

// Reset truncates every buffer without releasing it so a cached mesh can be
// refilled without allocating.
func (m *Mesh) Reset() {
	m.Transform.Reset()
	m.Flags = 0
	m.Points = m.Points[:0]
	m.Normals = m.Normals[:0]
	m.UV0 = m.UV0[:0]
	m.Colors = m.Colors[:0]
	m.Counts = m.Counts[:0]
	m.Indices = m.Indices[:0]
	m.MaterialIDs = m.MaterialIDs[:0]
	m.RootBone = ""
	m.Bones = m.Bones[:0]
	m.BindPoses = m.BindPoses[:0]
	m.Weights4 = m.Weights4[:0]
	m.BlendShapes = m.BlendShapes[:0]
}

// IndexCount returns the number of face corners.
func (m *Mesh) IndexCount() int {
	return len(m.Indices)
}

// UpdateFlags derives the presence flags from the buffer contents.
func (m *Mesh) UpdateFlags() {
	split := m.Flags & MeshSplitPerIndex
	m.Flags = split
	set := func(flag MeshFlags, present bool) {
		if present {
			m.Flags |= flag
		}
	}
	set(MeshHasPoints, len(m.Points) > 0)
	set(MeshHasNormals, len(m.Normals) > 0)
	set(MeshHasUV0, len(m.UV0) > 0)
	set(MeshHasColors, len(m.Colors) > 0)
	set(MeshHasIndices, len(m.Indices) > 0)
	set(MeshHasMaterialIDs, len(m.MaterialIDs) > 0)
	set(MeshHasBones, len(m.Bones) > 0)
	set(MeshHasBlendshapes, len(m.BlendShapes) > 0)
}

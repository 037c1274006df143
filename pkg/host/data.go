package host

import "github.com/go-gl/mathgl/mgl32"

// MeshData is the evaluated (modifier-applied) mesh of an object.
// Per-loop layers are indexed by face corner, in polygon order.
type MeshData struct {
	Points       []mgl32.Vec3
	Polygons     []Polygon
	LoopVertices []int32
	// VertexNormals has one entry per point; LoopNormals, when present, holds
	// custom split normals per face corner.
	VertexNormals []mgl32.Vec3
	LoopNormals   []mgl32.Vec3
	UVs           []mgl32.Vec2
	Colors        []mgl32.Vec4
	VertexGroups  []string
	// Weights has one entry per point.
	Weights   [][]VertexWeight
	ShapeKeys []ShapeKey
}

type Polygon struct {
	LoopStart     int32
	LoopTotal     int32
	MaterialIndex int
	Smooth        bool
}

type VertexWeight struct {
	Group  int
	Weight float32
}

// ShapeKey stores absolute point positions. The first key of a mesh is the basis.
type ShapeKey struct {
	Name   string
	Weight float32
	Points []mgl32.Vec3
}

// EditMesh is the live mesh of an object in edit mode.
type EditMesh struct {
	Verts []EditVert
	Faces []EditFace
}

type EditVert struct {
	Co     mgl32.Vec3
	Normal mgl32.Vec3
}

type EditFace struct {
	Verts         []int32
	MaterialIndex int
	Smooth        bool
	Normal        mgl32.Vec3
	// UVs has one entry per face corner when the mesh has a UV layer.
	UVs []mgl32.Vec2
}

type CameraData struct {
	Ortho bool
	// FocalLength and SensorHeight are in millimeters.
	FocalLength  float32
	SensorHeight float32
	OrthoScale   float32
	Near         float32
	Far          float32
}

type LightType int

const (
	LightSun LightType = iota
	LightPoint
	LightSpot
	LightArea
)

type LightData struct {
	Type   LightType
	Color  mgl32.Vec3
	Energy float32
	// Distance is the cutoff range; zero means unlimited.
	Distance float32
	// SpotSize is the full cone angle in radians.
	SpotSize float32
}

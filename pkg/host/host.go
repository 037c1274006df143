// Package host describes the parts of a 3D authoring tool's scene graph that the
// sync engine reads. Implementations wrap the tool's native object model; the
// engine never holds on to native pointers, only to Handle values.
package host

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Handle identifies a host entity for as long as the host keeps it. Handles are
// only compared, never dereferenced.
type Handle uint64

// NoHandle is never assigned to a live entity. Handle methods must be callable
// on a nil wrapper and return NoHandle there.
const NoHandle Handle = 0

type Kind int

const (
	KindEmpty Kind = iota
	KindMesh
	KindCamera
	KindLight
	KindArmature
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "EMPTY"
	case KindMesh:
		return "MESH"
	case KindCamera:
		return "CAMERA"
	case KindLight:
		return "LIGHT"
	case KindArmature:
		return "ARMATURE"
	}
	return "UNKNOWN"
}

type Scene interface {
	// Objects returns every object of the scene, parents before children.
	Objects() []Object
	Contains(h Handle) bool
}

type Object interface {
	Handle() Handle
	Name() string
	Kind() Kind
	// Parent returns nil for root objects.
	Parent() Object
	LocalMatrix() mgl32.Mat4
	WorldMatrix() mgl32.Mat4
	Visible() bool
}

// MeshObject is implemented by objects that carry geometry.
type MeshObject interface {
	Object
	// InEditMode reports whether the mesh is being edited, in which case the
	// evaluated mesh does not reflect the latest changes yet.
	InEditMode() bool
	EvaluatedMesh() (*MeshData, error)
	EditMesh() (*EditMesh, error)
	Materials() []Material
	// Armature returns the armature deforming this mesh, or nil.
	Armature() ArmatureObject
}

type CameraObject interface {
	Object
	Camera() CameraData
}

type LightObject interface {
	Object
	Light() LightData
}

type ArmatureObject interface {
	Object
	// Bones returns every bone of the skeleton, parents before children.
	Bones() []Bone
	// Pose returns the pose channel driving b, or nil when the armature has no pose.
	Pose(b Bone) PoseChannel
}

// Animated is implemented by objects that may carry an action.
type Animated interface {
	Action() Action
}

type Bone interface {
	Handle() Handle
	Name() string
	Parent() Bone
	// RestMatrix is the bone's rest transform in armature space.
	RestMatrix() mgl32.Mat4
}

type PoseChannel interface {
	Handle() Handle
	Bone() Bone
	// Matrix is the posed transform in armature space.
	Matrix() mgl32.Mat4
}

type Material interface {
	Handle() Handle
	Name() string
	Color() mgl32.Vec4
	Metallic() float32
	Roughness() float32
}

// Action is a keyframed animation driving an object's local transform.
type Action interface {
	Name() string
	// Range returns the start and end time in seconds.
	Range() (start, end float32)
	KeyTimes() []float32
	// Evaluate returns the local matrix at time t in seconds.
	Evaluate(t float32) mgl32.Mat4
}

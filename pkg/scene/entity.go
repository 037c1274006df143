// Package scene holds the transport-side representation of a synchronized scene:
// the entities handed to the network layer, their aggregate and the outgoing message.
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type EntityType int32

const (
	EntityUnknown EntityType = iota
	EntityTransform
	EntityCamera
	EntityLight
	EntityMesh
)

func (t EntityType) String() string {
	switch t {
	case EntityTransform:
		return "transform"
	case EntityCamera:
		return "camera"
	case EntityLight:
		return "light"
	case EntityMesh:
		return "mesh"
	}
	return "unknown"
}

// Entity is implemented by every exportable scene element.
type Entity interface {
	Type() EntityType
	// Base returns the transform part shared by every entity.
	Base() *Transform
	// Reset clears the entity for reuse, keeping allocated buffers.
	Reset()
}

type Transform struct {
	Path      string
	Position  mgl32.Vec3
	Rotation  mgl32.Quat
	Scale     mgl32.Vec3
	Visible   bool
	Reference string
}

func NewTransform() *Transform {
	t := &Transform{}
	t.Reset()
	return t
}

func (t *Transform) Type() EntityType { return EntityTransform }
func (t *Transform) Base() *Transform { return t }

func (t *Transform) Reset() {
	*t = Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		Visible:  true,
	}
}

// SetMatrix decomposes m into position, rotation and scale. Shear is dropped.
func (t *Transform) SetMatrix(m mgl32.Mat4) {
	t.Position = m.Col(3).Vec3()

	x, y, z := m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()
	sx, sy, sz := x.Len(), y.Len(), z.Len()
	if x.Cross(y).Dot(z) < 0 {
		sx = -sx
	}
	t.Scale = mgl32.Vec3{sx, sy, sz}

	if sx == 0 || sy == 0 || sz == 0 {
		t.Rotation = mgl32.QuatIdent()
		return
	}
	rot := mgl32.Mat4FromCols(
		x.Mul(1/sx).Vec4(0),
		y.Mul(1/sy).Vec4(0),
		z.Mul(1/sz).Vec4(0),
		mgl32.Vec4{0, 0, 0, 1},
	)
	t.Rotation = mgl32.Mat4ToQuat(rot).Normalize()
}

// Matrix rebuilds the local matrix from position, rotation and scale.
func (t *Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

type Camera struct {
	Transform
	Ortho bool
	// FOV is the vertical field of view in degrees.
	FOV       float32
	NearPlane float32
	FarPlane  float32
	OrthoSize float32
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Type() EntityType { return EntityCamera }
func (c *Camera) Base() *Transform { return &c.Transform }

func (c *Camera) Reset() {
	c.Transform.Reset()
	c.Ortho = false
	c.FOV = 60
	c.NearPlane = 0.3
	c.FarPlane = 1000
	c.OrthoSize = 0
}

type LightType int32

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
	LightArea
)

type Light struct {
	Transform
	LightType LightType
	Color     mgl32.Vec4
	Intensity float32
	Range     float32
	// SpotAngle is the full cone angle in degrees.
	SpotAngle float32
}

func NewLight() *Light {
	l := &Light{}
	l.Reset()
	return l
}

func (l *Light) Type() EntityType { return EntityLight }
func (l *Light) Base() *Transform { return &l.Transform }

func (l *Light) Reset() {
	l.Transform.Reset()
	l.LightType = LightDirectional
	l.Color = mgl32.Vec4{1, 1, 1, 1}
	l.Intensity = 1
	l.Range = 0
	l.SpotAngle = 30
}

// SpotAngleFromRadians converts a host cone angle to degrees.
func SpotAngleFromRadians(r float32) float32 {
	return float32(float64(r) * 180 / math.Pi)
}

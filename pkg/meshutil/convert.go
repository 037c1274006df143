package meshutil

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/scene"
)

// toZUp maps coordinates of each system into right-handed Z-up. Matrices are
// column-major: column i is the image of basis vector i.
var toZUp = map[scene.Handedness]mgl32.Mat3{
	scene.RightHandedZUp: mgl32.Ident3(),
	// x, y, z -> x, -z, y
	scene.RightHandedYUp: {1, 0, 0, 0, 0, 1, 0, -1, 0},
	// x, y, z -> x, z, y
	scene.LeftHandedYUp: {1, 0, 0, 0, 0, 1, 0, 1, 0},
}

// AxisConversion returns the orthogonal matrix that maps vectors from one
// coordinate system to another.
func AxisConversion(from, to scene.Handedness) (mgl32.Mat3, error) {
	f, ok := toZUp[from]
	if !ok {
		return mgl32.Mat3{}, fmt.Errorf("unknown handedness %d", from)
	}
	t, ok := toZUp[to]
	if !ok {
		return mgl32.Mat3{}, fmt.Errorf("unknown handedness %d", to)
	}
	return t.Transpose().Mul3(f), nil
}

type converter struct {
	axes     mgl32.Mat3
	axesT    mgl32.Mat3
	axes4    mgl32.Mat4
	axes4Inv mgl32.Mat4
	scale    float32
	flip     bool
}

// ConvertScene rewrites s in place into the to coordinate system and applies
// the scene's scale factor to every length. The settings of s are updated to
// describe the result. Polygon winding is reversed when the conversion
// changes handedness so faces keep pointing outwards.
func ConvertScene(s *scene.Scene, to scene.Handedness) error {
	axes, err := AxisConversion(s.Settings.Handedness, to)
	if err != nil {
		return err
	}
	scale := s.Settings.ScaleFactor
	if scale == 0 {
		scale = 1
	}
	if s.Settings.Handedness == to && scale == 1 {
		return nil
	}

	c := &converter{
		axes:     axes,
		axesT:    axes.Transpose(),
		axes4:    axes.Mat4(),
		axes4Inv: axes.Transpose().Mat4(),
		scale:    scale,
		flip:     axes.Det() < 0,
	}
	for _, e := range s.Objects {
		c.transform(e.Base())
		if m, ok := e.(*scene.Mesh); ok {
			c.mesh(m)
		}
	}
	for _, clip := range s.Animations {
		for _, a := range clip.Animations {
			c.animation(a)
		}
	}
	s.Settings = scene.SceneSettings{Handedness: to, ScaleFactor: 1}
	return nil
}

func (c *converter) point(p mgl32.Vec3) mgl32.Vec3 {
	return c.axes.Mul3x1(p).Mul(c.scale)
}

// matrix conjugates m by the axis change and scales its translation.
func (c *converter) matrix(m mgl32.Mat4) mgl32.Mat4 {
	m = c.axes4.Mul4(m).Mul4(c.axes4Inv)
	m[12] *= c.scale
	m[13] *= c.scale
	m[14] *= c.scale
	return m
}

func (c *converter) rotation(q mgl32.Quat) mgl32.Quat {
	return mgl32.Mat4ToQuat(c.axes4.Mul4(q.Mat4()).Mul4(c.axes4Inv)).Normalize()
}

// scaleVector permutes the per-axis scale along with the axes.
func (c *converter) scaleVector(s mgl32.Vec3) mgl32.Vec3 {
	m := c.axes.Mul3(mgl32.Diag3(s)).Mul3(c.axesT)
	return mgl32.Vec3{m.At(0, 0), m.At(1, 1), m.At(2, 2)}
}

func (c *converter) transform(t *scene.Transform) {
	t.Position = c.point(t.Position)
	t.Rotation = c.rotation(t.Rotation)
	t.Scale = c.scaleVector(t.Scale)
}

func (c *converter) mesh(m *scene.Mesh) {
	for i, p := range m.Points {
		m.Points[i] = c.point(p)
	}
	for i, n := range m.Normals {
		m.Normals[i] = c.axes.Mul3x1(n)
	}
	for i, b := range m.BindPoses {
		m.BindPoses[i] = c.matrix(b)
	}
	for _, bs := range m.BlendShapes {
		for _, f := range bs.Frames {
			for i, p := range f.Points {
				f.Points[i] = c.point(p)
			}
			for i, n := range f.Normals {
				f.Normals[i] = c.axes.Mul3x1(n)
			}
		}
	}
	if c.flip {
		reverseWinding(m)
	}
}

// reverseWinding reverses the corner order of every polygon, together with
// any attribute stored per corner rather than per point.
func reverseWinding(m *scene.Mesh) {
	corners := len(m.Indices)
	perCorner := func(n int) bool { return n == corners && n != len(m.Points) }
	swap := func(i, j int) {
		m.Indices[i], m.Indices[j] = m.Indices[j], m.Indices[i]
		if perCorner(len(m.Normals)) {
			m.Normals[i], m.Normals[j] = m.Normals[j], m.Normals[i]
		}
		if perCorner(len(m.UV0)) {
			m.UV0[i], m.UV0[j] = m.UV0[j], m.UV0[i]
		}
		if perCorner(len(m.Colors)) {
			m.Colors[i], m.Colors[j] = m.Colors[j], m.Colors[i]
		}
	}

	offset := 0
	for _, count := range m.Counts {
		end := offset + int(count)
		if end > corners {
			return
		}
		for i, j := offset, end-1; i < j; i, j = i+1, j-1 {
			swap(i, j)
		}
		offset = end
	}
}

func (c *converter) animation(a *scene.TransformAnimation) {
	for i, t := range a.Translation {
		a.Translation[i] = c.point(t)
	}
	for i, q := range a.Rotation {
		a.Rotation[i] = c.rotation(q)
	}
	for i, s := range a.Scale {
		a.Scale[i] = c.scaleVector(s)
	}
}

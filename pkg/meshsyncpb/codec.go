package meshsyncpb

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/scene"
	"google.golang.org/protobuf/encoding/protowire"
)

func (m *HelloMessage) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.ProtocolVersion))
	b = appendString(b, 2, m.SessionName)
	b = appendString(b, 3, m.ClientName)
	return b, nil
}

func (m *HelloMessage) Unmarshal(b []byte) error {
	*m = HelloMessage{}
	return consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.varint()
			m.ProtocolVersion = uint32(v)
			return n, err
		case 2:
			v, n, err := f.str()
			m.SessionName = v
			return n, err
		case 3:
			v, n, err := f.str()
			m.ClientName = v
			return n, err
		}
		return 0, nil
	})
}

func (m *DisconnectMessage) Marshal() ([]byte, error) {
	return appendString(nil, 1, m.Reason), nil
}

func (m *DisconnectMessage) Unmarshal(b []byte) error {
	*m = DisconnectMessage{}
	return consumeMessage(b, func(f field) (int, error) {
		if f.num == 1 {
			v, n, err := f.str()
			m.Reason = v
			return n, err
		}
		return 0, nil
	})
}

func (m *SetMessage) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, m.Seq)
	b = appendVarint(b, 2, uint64(m.SyncFlags))
	if m.Scene != nil {
		body, err := marshalScene(m.Scene)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 3, body)
	}
	return b, nil
}

func (m *SetMessage) Unmarshal(b []byte) error {
	*m = SetMessage{}
	return consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.varint()
			m.Seq = v
			return n, err
		case 2:
			v, n, err := f.varint()
			m.SyncFlags = uint32(v)
			return n, err
		case 3:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			m.Scene, err = unmarshalScene(body)
			return n, err
		}
		return 0, nil
	})
}

// Entity wrapper field numbers within a Scene.
const (
	fieldTransform protowire.Number = 1
	fieldCamera    protowire.Number = 2
	fieldLight     protowire.Number = 3
	fieldMesh      protowire.Number = 4
)

func marshalScene(s *scene.Scene) ([]byte, error) {
	var b []byte

	var settings []byte
	settings = appendVarint(settings, 1, uint64(s.Settings.Handedness))
	settings = appendFloat(settings, 2, s.Settings.ScaleFactor)
	b = appendMessage(b, 1, settings)

	for _, e := range s.Objects {
		var entity []byte
		switch e := e.(type) {
		case *scene.Mesh:
			entity = appendMessage(entity, fieldMesh, marshalMesh(e))
		case *scene.Camera:
			entity = appendMessage(entity, fieldCamera, marshalCamera(e))
		case *scene.Light:
			entity = appendMessage(entity, fieldLight, marshalLight(e))
		case *scene.Transform:
			entity = appendMessage(entity, fieldTransform, marshalTransform(e))
		default:
			return nil, fmt.Errorf("unsupported entity %T", e)
		}
		b = appendMessage(b, 2, entity)
	}
	for _, mat := range s.Materials {
		b = appendMessage(b, 3, marshalMaterial(mat))
	}
	for _, clip := range s.Animations {
		b = appendMessage(b, 4, marshalClip(clip))
	}
	b = appendStrings(b, 5, s.Deleted)
	return b, nil
}

func unmarshalScene(b []byte) (*scene.Scene, error) {
	s := &scene.Scene{}
	err := consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			return n, consumeMessage(body, func(f field) (int, error) {
				switch f.num {
				case 1:
					v, n, err := f.varint()
					s.Settings.Handedness = scene.Handedness(v)
					return n, err
				case 2:
					v, n, err := f.float()
					s.Settings.ScaleFactor = v
					return n, err
				}
				return 0, nil
			})
		case 2:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			e, err := unmarshalEntity(body)
			if err != nil {
				return 0, err
			}
			s.Objects = append(s.Objects, e)
			return n, nil
		case 3:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			mat, err := unmarshalMaterial(body)
			s.Materials = append(s.Materials, mat)
			return n, err
		case 4:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			clip, err := unmarshalClip(body)
			s.Animations = append(s.Animations, clip)
			return n, err
		case 5:
			v, n, err := f.str()
			s.Deleted = append(s.Deleted, v)
			return n, err
		}
		return 0, nil
	})
	return s, err
}

func unmarshalEntity(b []byte) (scene.Entity, error) {
	var e scene.Entity
	err := consumeMessage(b, func(f field) (int, error) {
		body, n, err := f.bytes()
		if err != nil {
			return 0, err
		}
		switch f.num {
		case fieldTransform:
			t := &scene.Transform{}
			e = t
			return n, unmarshalTransform(t, body)
		case fieldCamera:
			c := &scene.Camera{}
			e = c
			return n, unmarshalCamera(c, body)
		case fieldLight:
			l := &scene.Light{}
			e = l
			return n, unmarshalLight(l, body)
		case fieldMesh:
			m := &scene.Mesh{}
			e = m
			return n, unmarshalMesh(m, body)
		}
		return n, nil
	})
	if err == nil && e == nil {
		err = fmt.Errorf("entity without payload: %w", ErrMalformed)
	}
	return e, err
}

func marshalTransform(t *scene.Transform) []byte {
	var b []byte
	b = appendString(b, 1, t.Path)
	b = appendVec3s(b, 2, []mgl32.Vec3{t.Position})
	b = appendQuats(b, 3, []mgl32.Quat{t.Rotation})
	b = appendVec3s(b, 4, []mgl32.Vec3{t.Scale})
	b = appendBool(b, 5, t.Visible)
	b = appendString(b, 6, t.Reference)
	return b
}

func unmarshalTransform(t *scene.Transform, b []byte) error {
	return consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.str()
			t.Path = v
			return n, err
		case 2, 4:
			v, n, err := f.vec3s()
			if err == nil && len(v) != 1 {
				err = fmt.Errorf("transform field %d: %w", f.num, ErrMalformed)
			}
			if err != nil {
				return 0, err
			}
			if f.num == 2 {
				t.Position = v[0]
			} else {
				t.Scale = v[0]
			}
			return n, nil
		case 3:
			v, n, err := f.quats()
			if err == nil && len(v) != 1 {
				err = fmt.Errorf("transform rotation: %w", ErrMalformed)
			}
			if err != nil {
				return 0, err
			}
			t.Rotation = v[0]
			return n, nil
		case 5:
			v, n, err := f.varint()
			t.Visible = v != 0
			return n, err
		case 6:
			v, n, err := f.str()
			t.Reference = v
			return n, err
		}
		return 0, nil
	})
}

func marshalCamera(c *scene.Camera) []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTransform(&c.Transform))
	b = appendBool(b, 2, c.Ortho)
	b = appendFloat(b, 3, c.FOV)
	b = appendFloat(b, 4, c.NearPlane)
	b = appendFloat(b, 5, c.FarPlane)
	b = appendFloat(b, 6, c.OrthoSize)
	return b
}

func unmarshalCamera(c *scene.Camera, b []byte) error {
	return consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			return n, unmarshalTransform(&c.Transform, body)
		case 2:
			v, n, err := f.varint()
			c.Ortho = v != 0
			return n, err
		case 3:
			v, n, err := f.float()
			c.FOV = v
			return n, err
		case 4:
			v, n, err := f.float()
			c.NearPlane = v
			return n, err
		case 5:
			v, n, err := f.float()
			c.FarPlane = v
			return n, err
		case 6:
			v, n, err := f.float()
			c.OrthoSize = v
			return n, err
		}
		return 0, nil
	})
}

func marshalLight(l *scene.Light) []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTransform(&l.Transform))
	b = appendVarint(b, 2, uint64(l.LightType))
	b = appendVec4s(b, 3, []mgl32.Vec4{l.Color})
	b = appendFloat(b, 4, l.Intensity)
	b = appendFloat(b, 5, l.Range)
	b = appendFloat(b, 6, l.SpotAngle)
	return b
}

func unmarshalLight(l *scene.Light, b []byte) error {
	return consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			return n, unmarshalTransform(&l.Transform, body)
		case 2:
			v, n, err := f.varint()
			l.LightType = scene.LightType(v)
			return n, err
		case 3:
			v, n, err := f.vec4s()
			if err == nil && len(v) != 1 {
				err = fmt.Errorf("light color: %w", ErrMalformed)
			}
			if err != nil {
				return 0, err
			}
			l.Color = v[0]
			return n, nil
		case 4:
			v, n, err := f.float()
			l.Intensity = v
			return n, err
		case 5:
			v, n, err := f.float()
			l.Range = v
			return n, err
		case 6:
			v, n, err := f.float()
			l.SpotAngle = v
			return n, err
		}
		return 0, nil
	})
}

func marshalMesh(m *scene.Mesh) []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTransform(&m.Transform))
	b = appendVarint(b, 2, uint64(m.Flags))
	b = appendVec3s(b, 3, m.Points)
	b = appendVec3s(b, 4, m.Normals)
	b = appendVec2s(b, 5, m.UV0)
	b = appendVec4s(b, 6, m.Colors)
	b = appendInt32s(b, 7, m.Counts)
	b = appendInt32s(b, 8, m.Indices)
	b = appendInt32s(b, 9, m.MaterialIDs)
	b = appendString(b, 10, m.RootBone)
	b = appendStrings(b, 11, m.Bones)
	b = appendMat4s(b, 12, m.BindPoses)
	if len(m.Weights4) > 0 {
		weights := make([]float32, 0, len(m.Weights4)*4)
		indices := make([]int32, 0, len(m.Weights4)*4)
		for _, w := range m.Weights4 {
			weights = append(weights, w.Weights[:]...)
			indices = append(indices, w.Indices[:]...)
		}
		b = appendFloats(b, 13, weights)
		b = appendInt32s(b, 14, indices)
	}
	for _, bs := range m.BlendShapes {
		b = appendMessage(b, 15, marshalBlendShape(bs))
	}
	return b
}

func unmarshalMesh(m *scene.Mesh, b []byte) error {
	var weights []float32
	var indices []int32
	err := consumeMessage(b, func(f field) (int, error) {
		var n int
		var err error
		switch f.num {
		case 1:
			var body []byte
			body, n, err = f.bytes()
			if err == nil {
				err = unmarshalTransform(&m.Transform, body)
			}
		case 2:
			var v uint64
			v, n, err = f.varint()
			m.Flags = scene.MeshFlags(v)
		case 3:
			m.Points, n, err = f.vec3s()
		case 4:
			m.Normals, n, err = f.vec3s()
		case 5:
			m.UV0, n, err = f.vec2s()
		case 6:
			m.Colors, n, err = f.vec4s()
		case 7:
			m.Counts, n, err = f.int32s()
		case 8:
			m.Indices, n, err = f.int32s()
		case 9:
			m.MaterialIDs, n, err = f.int32s()
		case 10:
			m.RootBone, n, err = f.str()
		case 11:
			var v string
			v, n, err = f.str()
			m.Bones = append(m.Bones, v)
		case 12:
			m.BindPoses, n, err = f.mat4s()
		case 13:
			weights, n, err = f.floats(4)
		case 14:
			indices, n, err = f.int32s()
		case 15:
			var body []byte
			body, n, err = f.bytes()
			if err == nil {
				var bs *scene.BlendShape
				bs, err = unmarshalBlendShape(body)
				m.BlendShapes = append(m.BlendShapes, bs)
			}
		}
		return n, err
	})
	if err != nil {
		return err
	}
	if len(weights) != len(indices) {
		return fmt.Errorf("mesh %s: %d bone weights but %d bone indices: %w", m.Path, len(weights), len(indices), ErrMalformed)
	}
	if len(weights) > 0 {
		m.Weights4 = make([]scene.Weights4, len(weights)/4)
		for i := range m.Weights4 {
			copy(m.Weights4[i].Weights[:], weights[i*4:])
			copy(m.Weights4[i].Indices[:], indices[i*4:])
		}
	}
	return nil
}

func marshalBlendShape(bs *scene.BlendShape) []byte {
	var b []byte
	b = appendString(b, 1, bs.Name)
	b = appendFloat(b, 2, bs.Weight)
	for _, frame := range bs.Frames {
		var fb []byte
		fb = appendFloat(fb, 1, frame.Weight)
		fb = appendVec3s(fb, 2, frame.Points)
		fb = appendVec3s(fb, 3, frame.Normals)
		b = appendMessage(b, 3, fb)
	}
	return b
}

func unmarshalBlendShape(b []byte) (*scene.BlendShape, error) {
	bs := &scene.BlendShape{}
	err := consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.str()
			bs.Name = v
			return n, err
		case 2:
			v, n, err := f.float()
			bs.Weight = v
			return n, err
		case 3:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			frame := &scene.BlendShapeFrame{}
			bs.Frames = append(bs.Frames, frame)
			return n, consumeMessage(body, func(f field) (int, error) {
				var n int
				var err error
				switch f.num {
				case 1:
					frame.Weight, n, err = f.float()
				case 2:
					frame.Points, n, err = f.vec3s()
				case 3:
					frame.Normals, n, err = f.vec3s()
				}
				return n, err
			})
		}
		return 0, nil
	})
	return bs, err
}

func marshalMaterial(m *scene.Material) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(int64(m.ID)))
	b = appendString(b, 2, m.Name)
	b = appendVec4s(b, 3, []mgl32.Vec4{m.Color})
	b = appendFloat(b, 4, m.Metallic)
	b = appendFloat(b, 5, m.Roughness)
	return b
}

func unmarshalMaterial(b []byte) (*scene.Material, error) {
	m := &scene.Material{}
	err := consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.varint()
			m.ID = int32(v)
			return n, err
		case 2:
			v, n, err := f.str()
			m.Name = v
			return n, err
		case 3:
			v, n, err := f.vec4s()
			if err == nil && len(v) == 1 {
				m.Color = v[0]
			}
			return n, err
		case 4:
			v, n, err := f.float()
			m.Metallic = v
			return n, err
		case 5:
			v, n, err := f.float()
			m.Roughness = v
			return n, err
		}
		return 0, nil
	})
	return m, err
}

func marshalClip(c *scene.AnimationClip) []byte {
	var b []byte
	b = appendString(b, 1, c.Name)
	for _, a := range c.Animations {
		var ab []byte
		ab = appendString(ab, 1, a.Path)
		ab = appendFloats(ab, 2, a.Times)
		ab = appendVec3s(ab, 3, a.Translation)
		ab = appendQuats(ab, 4, a.Rotation)
		ab = appendVec3s(ab, 5, a.Scale)
		b = appendMessage(b, 2, ab)
	}
	return b
}

func unmarshalClip(b []byte) (*scene.AnimationClip, error) {
	c := &scene.AnimationClip{}
	err := consumeMessage(b, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.str()
			c.Name = v
			return n, err
		case 2:
			body, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			a := &scene.TransformAnimation{}
			c.Animations = append(c.Animations, a)
			return n, consumeMessage(body, func(f field) (int, error) {
				var n int
				var err error
				switch f.num {
				case 1:
					a.Path, n, err = f.str()
				case 2:
					a.Times, n, err = f.floats(1)
				case 3:
					a.Translation, n, err = f.vec3s()
				case 4:
					a.Rotation, n, err = f.quats()
				case 5:
					a.Scale, n, err = f.vec3s()
				}
				return n, err
			})
		}
		return 0, nil
	})
	return c, err
}

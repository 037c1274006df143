package memhost

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"gopkg.in/yaml.v3"
)

type sceneFile struct {
	Materials []materialDef `yaml:"materials"`
	Objects   []objectDef   `yaml:"objects"`
}

type materialDef struct {
	Name      string    `yaml:"name"`
	Color     []float32 `yaml:"color"`
	Metallic  float32   `yaml:"metallic"`
	Roughness *float32  `yaml:"roughness"`
}

type objectDef struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Position  []float32     `yaml:"position"`
	Rotation  []float32     `yaml:"rotation"`
	Scale     []float32     `yaml:"scale"`
	Hidden    bool          `yaml:"hidden"`
	Mesh      *meshDef      `yaml:"mesh"`
	Materials []string      `yaml:"materials"`
	Armature  string        `yaml:"armature"`
	Camera    *cameraDef    `yaml:"camera"`
	Light     *lightDef     `yaml:"light"`
	Bones     []boneDef     `yaml:"bones"`
	Animation *animationDef `yaml:"animation"`
	Children  []objectDef   `yaml:"children"`
}

type meshDef struct {
	Primitive    string        `yaml:"primitive"`
	Size         float32       `yaml:"size"`
	Smooth       bool          `yaml:"smooth"`
	Points       [][]float32   `yaml:"points"`
	Faces        [][]int32     `yaml:"faces"`
	VertexGroups []string      `yaml:"vertex_groups"`
	Weights      [][]weightDef `yaml:"weights"`
	ShapeKeys    []shapeKeyDef `yaml:"shape_keys"`
	EditMode     bool          `yaml:"edit_mode"`
	Colors       [][]float32   `yaml:"colors"`
}

type weightDef struct {
	Group  int     `yaml:"group"`
	Weight float32 `yaml:"weight"`
}

type shapeKeyDef struct {
	Name   string      `yaml:"name"`
	Weight float32     `yaml:"weight"`
	Points [][]float32 `yaml:"points"`
}

type cameraDef struct {
	Ortho        bool    `yaml:"ortho"`
	FocalLength  float32 `yaml:"focal_length"`
	SensorHeight float32 `yaml:"sensor_height"`
	OrthoScale   float32 `yaml:"ortho_scale"`
	Near         float32 `yaml:"near"`
	Far          float32 `yaml:"far"`
}

type lightDef struct {
	Type     string    `yaml:"type"`
	Color    []float32 `yaml:"color"`
	Energy   float32   `yaml:"energy"`
	Distance float32   `yaml:"distance"`
	// SpotSize is in degrees in scene files.
	SpotSize float32 `yaml:"spot_size"`
}

type boneDef struct {
	Name     string    `yaml:"name"`
	Head     []float32 `yaml:"head"`
	Rotation []float32 `yaml:"rotation"`
	Pose     []float32 `yaml:"pose_rotation"`
	Children []boneDef `yaml:"children"`
}

type animationDef struct {
	Name string   `yaml:"name"`
	Keys []keyDef `yaml:"keys"`
}

type keyDef struct {
	Time     float32   `yaml:"time"`
	Position []float32 `yaml:"position"`
	Rotation []float32 `yaml:"rotation"`
	Scale    []float32 `yaml:"scale"`
}

var ErrInvalidScene = errors.New("invalid scene file")

func vec3(v []float32, def mgl32.Vec3) (mgl32.Vec3, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return mgl32.Vec3{v[0], v[1], v[2]}, nil
	}
	return def, fmt.Errorf("expected 3 components, got %d: %w", len(v), ErrInvalidScene)
}

func vec4(v []float32, def mgl32.Vec4) (mgl32.Vec4, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return mgl32.Vec4{v[0], v[1], v[2], 1}, nil
	case 4:
		return mgl32.Vec4{v[0], v[1], v[2], v[3]}, nil
	}
	return def, fmt.Errorf("expected 3 or 4 components, got %d: %w", len(v), ErrInvalidScene)
}

func LoadFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load builds a scene from YAML.
func Load(r io.Reader) (*Scene, error) {
	var file sceneFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding scene: %w", err)
	}

	s := New()
	for _, md := range file.Materials {
		color, err := vec4(md.Color, mgl32.Vec4{0.8, 0.8, 0.8, 1})
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", md.Name, err)
		}
		m := s.NewMaterial(md.Name, color)
		m.metallic = md.Metallic
		if md.Roughness != nil {
			m.roughness = *md.Roughness
		}
	}

	l := &loader{scene: s}
	for i := range file.Objects {
		if err := l.object(&file.Objects[i], nil); err != nil {
			return nil, err
		}
	}
	for _, link := range l.armatureLinks {
		arm, ok := s.Find(link.armature).(*Armature)
		if !ok {
			return nil, fmt.Errorf("mesh %q: armature %q not found: %w", link.mesh.Name(), link.armature, ErrInvalidScene)
		}
		link.mesh.armature = arm
	}
	return s, nil
}

type loader struct {
	scene         *Scene
	armatureLinks []armatureLink
}

type armatureLink struct {
	mesh     *Mesh
	armature string
}

func (l *loader) object(def *objectDef, parent host.Object) error {
	if def.Name == "" {
		return fmt.Errorf("object without a name: %w", ErrInvalidScene)
	}
	if l.scene.Find(def.Name) != nil {
		return fmt.Errorf("duplicate object name %q: %w", def.Name, ErrInvalidScene)
	}
	wrap := func(err error) error {
		return fmt.Errorf("object %q: %w", def.Name, err)
	}

	pos, err := vec3(def.Position, mgl32.Vec3{})
	if err != nil {
		return wrap(err)
	}
	rot, err := vec3(def.Rotation, mgl32.Vec3{})
	if err != nil {
		return wrap(err)
	}
	scale, err := vec3(def.Scale, mgl32.Vec3{1, 1, 1})
	if err != nil {
		return wrap(err)
	}

	var obj host.Object
	var base *Object
	switch strings.ToLower(def.Type) {
	case "", "empty":
		o := l.scene.AddEmpty(def.Name, parent)
		obj, base = o, o
	case "mesh":
		data, err := meshData(def.Mesh)
		if err != nil {
			return wrap(err)
		}
		m := l.scene.AddMesh(def.Name, parent, data)
		for _, name := range def.Materials {
			mat := l.scene.Material(name)
			if mat == nil {
				return wrap(fmt.Errorf("material %q not found: %w", name, ErrInvalidScene))
			}
			m.materials = append(m.materials, mat)
		}
		if def.Armature != "" {
			l.armatureLinks = append(l.armatureLinks, armatureLink{m, def.Armature})
		}
		m.editMode = def.Mesh != nil && def.Mesh.EditMode
		obj, base = m, m.Object
	case "camera":
		var cd cameraDef
		if def.Camera != nil {
			cd = *def.Camera
		}
		c := l.scene.AddCamera(def.Name, parent, host.CameraData(cd))
		obj, base = c, c.Object
	case "light":
		data, err := lightData(def.Light)
		if err != nil {
			return wrap(err)
		}
		lo := l.scene.AddLight(def.Name, parent, data)
		obj, base = lo, lo.Object
	case "armature":
		a := l.scene.AddArmature(def.Name, parent)
		for i := range def.Bones {
			if err := addBones(a, &def.Bones[i], nil); err != nil {
				return wrap(err)
			}
		}
		obj, base = a, a.Object
	default:
		return wrap(fmt.Errorf("unknown type %q: %w", def.Type, ErrInvalidScene))
	}

	base.local = trs(pos, rot, scale)
	base.visible = !def.Hidden
	if def.Animation != nil {
		act, err := action(def.Animation)
		if err != nil {
			return wrap(err)
		}
		base.action = act
	}

	for i := range def.Children {
		if err := l.object(&def.Children[i], obj); err != nil {
			return err
		}
	}
	return nil
}

func meshData(def *meshDef) (*host.MeshData, error) {
	if def == nil {
		return nil, fmt.Errorf("mesh object without mesh data: %w", ErrInvalidScene)
	}
	size := def.Size
	if size == 0 {
		size = 2
	}

	var md *host.MeshData
	switch def.Primitive {
	case "cube":
		md = Cube(size, def.Smooth)
	case "plane":
		md = Plane(size)
	case "":
		md = &host.MeshData{}
		for _, p := range def.Points {
			v, err := vec3(p, mgl32.Vec3{})
			if err != nil {
				return nil, err
			}
			md.Points = append(md.Points, v)
		}
		polygons(md, def.Faces, def.Smooth)
	default:
		return nil, fmt.Errorf("unknown primitive %q: %w", def.Primitive, ErrInvalidScene)
	}

	for _, c := range def.Colors {
		v, err := vec4(c, mgl32.Vec4{1, 1, 1, 1})
		if err != nil {
			return nil, err
		}
		md.Colors = append(md.Colors, v)
	}

	md.VertexGroups = def.VertexGroups
	if len(def.Weights) > 0 {
		if len(def.Weights) != len(md.Points) {
			return nil, fmt.Errorf("%d weight lists for %d points: %w", len(def.Weights), len(md.Points), ErrInvalidScene)
		}
		md.Weights = make([][]host.VertexWeight, len(def.Weights))
		for i, ws := range def.Weights {
			for _, w := range ws {
				md.Weights[i] = append(md.Weights[i], host.VertexWeight{Group: w.Group, Weight: w.Weight})
			}
		}
	}

	for _, sk := range def.ShapeKeys {
		key := host.ShapeKey{Name: sk.Name, Weight: sk.Weight}
		if len(sk.Points) == 0 {
			key.Points = append([]mgl32.Vec3(nil), md.Points...)
		}
		for _, p := range sk.Points {
			v, err := vec3(p, mgl32.Vec3{})
			if err != nil {
				return nil, err
			}
			key.Points = append(key.Points, v)
		}
		md.ShapeKeys = append(md.ShapeKeys, key)
	}
	return md, nil
}

var lightTypes = map[string]host.LightType{
	"":      host.LightPoint,
	"sun":   host.LightSun,
	"point": host.LightPoint,
	"spot":  host.LightSpot,
	"area":  host.LightArea,
}

func lightData(def *lightDef) (host.LightData, error) {
	if def == nil {
		return host.LightData{Type: host.LightPoint, Color: mgl32.Vec3{1, 1, 1}, Energy: 1}, nil
	}
	lt, ok := lightTypes[strings.ToLower(def.Type)]
	if !ok {
		return host.LightData{}, fmt.Errorf("unknown light type %q: %w", def.Type, ErrInvalidScene)
	}
	color, err := vec3(def.Color, mgl32.Vec3{1, 1, 1})
	if err != nil {
		return host.LightData{}, err
	}
	return host.LightData{
		Type:     lt,
		Color:    color,
		Energy:   def.Energy,
		Distance: def.Distance,
		SpotSize: mgl32.DegToRad(def.SpotSize),
	}, nil
}

func addBones(a *Armature, def *boneDef, parent *Bone) error {
	head, err := vec3(def.Head, mgl32.Vec3{})
	if err != nil {
		return fmt.Errorf("bone %q: %w", def.Name, err)
	}
	rot, err := vec3(def.Rotation, mgl32.Vec3{})
	if err != nil {
		return fmt.Errorf("bone %q: %w", def.Name, err)
	}
	rest := trs(head, rot, mgl32.Vec3{1, 1, 1})
	b := a.AddBone(def.Name, parent, rest)
	if len(def.Pose) > 0 {
		pose, err := vec3(def.Pose, mgl32.Vec3{})
		if err != nil {
			return fmt.Errorf("bone %q: %w", def.Name, err)
		}
		a.SetPose(b, trs(head, pose, mgl32.Vec3{1, 1, 1}))
	}
	for i := range def.Children {
		if err := addBones(a, &def.Children[i], b); err != nil {
			return err
		}
	}
	return nil
}

func action(def *animationDef) (*Action, error) {
	keys := make([]Keyframe, 0, len(def.Keys))
	for _, kd := range def.Keys {
		pos, err := vec3(kd.Position, mgl32.Vec3{})
		if err != nil {
			return nil, err
		}
		rot, err := vec3(kd.Rotation, mgl32.Vec3{})
		if err != nil {
			return nil, err
		}
		scale, err := vec3(kd.Scale, mgl32.Vec3{1, 1, 1})
		if err != nil {
			return nil, err
		}
		keys = append(keys, Keyframe{Time: kd.Time, Position: pos, Rotation: rot, Scale: scale})
	}
	return NewAction(def.Name, keys...), nil
}

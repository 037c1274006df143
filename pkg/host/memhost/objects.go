package memhost

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
)

// Object is an empty; it is also embedded by every other object kind.
type Object struct {
	scene *Scene
	// self is the outermost wrapper, handed to change listeners.
	self    host.Object
	handle  host.Handle
	name    string
	kind    host.Kind
	parent  host.Object
	local   mgl32.Mat4
	visible bool
	action  *Action
}

func (o *Object) Handle() host.Handle {
	if o == nil {
		return host.NoHandle
	}
	return o.handle
}

func (o *Object) Name() string    { return o.name }
func (o *Object) Kind() host.Kind { return o.kind }
func (o *Object) Visible() bool   { return o.visible }

func (o *Object) Parent() host.Object {
	return o.parent
}

func (o *Object) LocalMatrix() mgl32.Mat4 {
	return o.local
}

func (o *Object) WorldMatrix() mgl32.Mat4 {
	if o.parent == nil {
		return o.local
	}
	return o.parent.WorldMatrix().Mul4(o.local)
}

func (o *Object) Action() host.Action {
	if o.action == nil {
		return nil
	}
	return o.action
}

func (o *Object) wrapper() host.Object {
	if o.self != nil {
		return o.self
	}
	return o
}

func (o *Object) SetLocal(m mgl32.Mat4) {
	o.local = m
	o.scene.changed(o.wrapper(), false)
}

// SetTRS sets the local transform from a translation, XYZ euler angles in
// degrees and a scale.
func (o *Object) SetTRS(t, eulerDeg, s mgl32.Vec3) {
	o.SetLocal(trs(t, eulerDeg, s))
}

func (o *Object) SetVisible(visible bool) {
	o.visible = visible
	o.scene.changed(o.wrapper(), false)
}

func (o *Object) Rename(name string) {
	s := o.scene
	s.lock.Lock()
	if s.byName[o.name] == o.wrapper() {
		delete(s.byName, o.name)
	}
	o.name = name
	s.byName[name] = o.wrapper()
	s.lock.Unlock()
	s.changed(o.wrapper(), true)
}

func (o *Object) SetParent(parent host.Object) {
	o.parent = parent
	o.scene.changed(o.wrapper(), true)
}

func (o *Object) SetAction(a *Action) {
	o.action = a
	o.scene.changed(o.wrapper(), false)
}

type Mesh struct {
	*Object
	data      *host.MeshData
	edit      *host.EditMesh
	editMode  bool
	materials []host.Material
	armature  *Armature
	// evalErr makes EvaluatedMesh fail, for exercising error paths.
	evalErr error
}

func (m *Mesh) Handle() host.Handle {
	if m == nil {
		return host.NoHandle
	}
	return m.Object.Handle()
}

func (m *Mesh) InEditMode() bool { return m.editMode }

func (m *Mesh) EvaluatedMesh() (*host.MeshData, error) {
	if m.evalErr != nil {
		return nil, m.evalErr
	}
	return m.data, nil
}

func (m *Mesh) EditMesh() (*host.EditMesh, error) {
	if m.edit == nil {
		return EditMeshFrom(m.data), nil
	}
	return m.edit, nil
}

func (m *Mesh) Materials() []host.Material {
	return m.materials
}

func (m *Mesh) Armature() host.ArmatureObject {
	if m.armature == nil {
		return nil
	}
	return m.armature
}

func (m *Mesh) SetData(data *host.MeshData) {
	m.data = data
	m.scene.changed(m, false)
}

// SetEditMode toggles edit mode. A nil edit mesh is derived from the mesh data.
func (m *Mesh) SetEditMode(on bool, edit *host.EditMesh) {
	m.editMode = on
	m.edit = edit
	m.scene.changed(m, false)
}

func (m *Mesh) SetMaterials(mats ...*Material) {
	m.materials = m.materials[:0]
	for _, mat := range mats {
		m.materials = append(m.materials, mat)
	}
	m.scene.changed(m, false)
}

func (m *Mesh) SetArmature(a *Armature) {
	m.armature = a
	m.scene.changed(m, false)
}

func (m *Mesh) SetEvaluationError(err error) {
	m.evalErr = err
}

type Camera struct {
	*Object
	data host.CameraData
}

func (c *Camera) Handle() host.Handle {
	if c == nil {
		return host.NoHandle
	}
	return c.Object.Handle()
}

func (c *Camera) Camera() host.CameraData { return c.data }

func (c *Camera) SetCamera(data host.CameraData) {
	c.data = data
	c.scene.changed(c, false)
}

type Light struct {
	*Object
	data host.LightData
}

func (l *Light) Handle() host.Handle {
	if l == nil {
		return host.NoHandle
	}
	return l.Object.Handle()
}

func (l *Light) Light() host.LightData { return l.data }

func (l *Light) SetLight(data host.LightData) {
	l.data = data
	l.scene.changed(l, false)
}

type Armature struct {
	*Object
	bones []*Bone
	poses map[host.Handle]*PoseChannel
}

func (a *Armature) Handle() host.Handle {
	if a == nil {
		return host.NoHandle
	}
	return a.Object.Handle()
}

func (a *Armature) Bones() []host.Bone {
	out := make([]host.Bone, len(a.bones))
	for i, b := range a.bones {
		out[i] = b
	}
	return out
}

func (a *Armature) Pose(b host.Bone) host.PoseChannel {
	if b == nil {
		return nil
	}
	if pc, ok := a.poses[b.Handle()]; ok {
		return pc
	}
	return nil
}

// AddBone adds a bone whose rest transform is rest, relative to parent (or to
// the armature when parent is nil). The bone starts posed at rest.
func (a *Armature) AddBone(name string, parent *Bone, rest mgl32.Mat4) *Bone {
	b := &Bone{handle: a.scene.newHandle(), name: name, parent: parent, local: rest}
	a.bones = append(a.bones, b)
	a.poses[b.handle] = &PoseChannel{handle: a.scene.newHandle(), bone: b, armature: a, local: rest}
	a.scene.changed(a, false)
	return b
}

// SetPose poses b with m, relative to the posed parent bone.
func (a *Armature) SetPose(b *Bone, m mgl32.Mat4) {
	a.poses[b.handle].local = m
	a.scene.changed(a, false)
}

type Bone struct {
	handle host.Handle
	name   string
	parent *Bone
	local  mgl32.Mat4
}

func (b *Bone) Handle() host.Handle {
	if b == nil {
		return host.NoHandle
	}
	return b.handle
}

func (b *Bone) Name() string { return b.name }

func (b *Bone) Parent() host.Bone {
	if b.parent == nil {
		return nil
	}
	return b.parent
}

func (b *Bone) RestMatrix() mgl32.Mat4 {
	if b.parent == nil {
		return b.local
	}
	return b.parent.RestMatrix().Mul4(b.local)
}

type PoseChannel struct {
	handle   host.Handle
	bone     *Bone
	armature *Armature
	local    mgl32.Mat4
}

func (pc *PoseChannel) Handle() host.Handle {
	if pc == nil {
		return host.NoHandle
	}
	return pc.handle
}

func (pc *PoseChannel) Bone() host.Bone { return pc.bone }

// Matrix composes the local poses up the bone chain.
func (pc *PoseChannel) Matrix() mgl32.Mat4 {
	parent := pc.bone.parent
	if parent == nil {
		return pc.local
	}
	return pc.armature.poses[parent.handle].Matrix().Mul4(pc.local)
}

type Material struct {
	handle    host.Handle
	name      string
	color     mgl32.Vec4
	metallic  float32
	roughness float32
}

func (m *Material) Handle() host.Handle {
	if m == nil {
		return host.NoHandle
	}
	return m.handle
}

func (m *Material) Name() string       { return m.name }
func (m *Material) Color() mgl32.Vec4  { return m.color }
func (m *Material) Metallic() float32  { return m.metallic }
func (m *Material) Roughness() float32 { return m.roughness }

func (m *Material) SetShader(metallic, roughness float32) {
	m.metallic = metallic
	m.roughness = roughness
}

func (m *Material) SetColor(color mgl32.Vec4) {
	m.color = color
}

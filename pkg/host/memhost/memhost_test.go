package memhost

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	s, err := LoadFile("testdata/scene.yaml")
	require.NoError(t, err)

	objs := s.Objects()
	assert.Len(t, objs, 8)
	// Parents come first.
	seen := map[host.Handle]bool{}
	for _, o := range objs {
		if p := o.Parent(); p != nil {
			assert.True(t, seen[p.Handle()], "%s listed before its parent", o.Name())
		}
		seen[o.Handle()] = true
	}

	body, ok := s.Find("Body").(*Mesh)
	require.True(t, ok)
	assert.Equal(t, "Root", body.Parent().Name())
	assert.Len(t, body.Materials(), 2)
	require.NotNil(t, body.Armature())
	assert.Equal(t, "Rig", body.Armature().Name())

	md, err := body.EvaluatedMesh()
	require.NoError(t, err)
	assert.Len(t, md.Points, 8)
	assert.Len(t, md.Polygons, 6)
	assert.Len(t, md.ShapeKeys, 2)
	assert.Equal(t, md.Points, md.ShapeKeys[0].Points)

	rig := s.Find("Rig").(*Armature)
	bones := rig.Bones()
	require.Len(t, bones, 2)
	assert.Equal(t, "Spine", bones[1].Name())
	assert.Equal(t, "Hip", bones[1].Parent().Name())
	require.NotNil(t, rig.Pose(bones[0]))
	assert.Equal(t, bones[0].RestMatrix(), rig.Pose(bones[0]).Matrix())
	assert.NotEqual(t, bones[1].RestMatrix(), rig.Pose(bones[1]).Matrix())

	lamp := s.Find("Lamp").(*Light)
	assert.Equal(t, host.LightSpot, lamp.Light().Type)
	assert.InDelta(t, mgl32.DegToRad(45), lamp.Light().SpotSize, 1e-6)

	spinner := s.Find("Spinner")
	action := spinner.(host.Animated).Action()
	require.NotNil(t, action)
	start, end := action.Range()
	assert.Equal(t, float32(0), start)
	assert.Equal(t, float32(1), end)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"unknown type":      "objects:\n  - name: A\n    type: teapot\n",
		"duplicate name":    "objects:\n  - name: A\n  - name: A\n",
		"missing armature":  "objects:\n  - name: A\n    type: mesh\n    armature: Rig\n    mesh: {primitive: cube}\n",
		"missing material":  "objects:\n  - name: A\n    type: mesh\n    materials: [Gold]\n    mesh: {primitive: cube}\n",
		"bad vector":        "objects:\n  - name: A\n    position: [1, 2]\n",
		"unknown field":     "objects:\n  - name: A\n    colour: red\n",
		"mesh without data": "objects:\n  - name: A\n    type: mesh\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestWorldMatrix(t *testing.T) {
	s := New()
	root := s.AddEmpty("Root", nil)
	root.SetTRS(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{}, mgl32.Vec3{2, 2, 2})
	child := s.AddEmpty("Child", root)
	child.SetTRS(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})

	world := child.WorldMatrix()
	assert.InDelta(t, 1, world.Col(3).X(), 1e-6)
	assert.InDelta(t, 2, world.Col(3).Y(), 1e-6)
}

func TestChangeNotifications(t *testing.T) {
	s := New()
	var changed []string
	s.OnChange(func(o host.Object) {
		changed = append(changed, o.Name())
	})

	root := s.AddEmpty("Root", nil)
	cube := s.AddMesh("Cube", root, Cube(1, false))
	assert.Equal(t, []string{"Root", "Cube"}, changed)

	changed = nil
	root.Rename("Top")
	assert.ElementsMatch(t, []string{"Top", "Cube"}, changed)

	changed = nil
	cube.SetVisible(false)
	assert.Equal(t, []string{"Cube"}, changed)

	changed = nil
	s.Remove(root)
	assert.ElementsMatch(t, []string{"Top", "Cube"}, changed)
	assert.False(t, s.Contains(root.Handle()))
	assert.False(t, s.Contains(cube.Handle()))
	assert.Empty(t, s.Objects())
}

func TestNotificationsCarryWrapper(t *testing.T) {
	s := New()
	var got host.Object
	cam := s.AddCamera("Cam", nil, host.CameraData{FocalLength: 50, SensorHeight: 24})
	s.OnChange(func(o host.Object) { got = o })

	cam.SetVisible(false)
	_, ok := got.(host.CameraObject)
	assert.True(t, ok)
}

func TestPoseChannelMatrix(t *testing.T) {
	s := New()
	arm := s.AddArmature("Rig", nil)
	hip := arm.AddBone("Hip", nil, mgl32.Translate3D(0, 0, 1))
	spine := arm.AddBone("Spine", hip, mgl32.Translate3D(0, 0, 1))

	assert.InDelta(t, 2, spine.RestMatrix().Col(3).Z(), 1e-6)

	assert.Equal(t, spine.RestMatrix(), arm.Pose(spine).Matrix())

	// An unposed child follows its parent.
	arm.SetPose(hip, mgl32.Translate3D(0, 0, 3))
	assert.InDelta(t, 4, arm.Pose(spine).Matrix().Col(3).Z(), 1e-6)

	arm.SetPose(spine, mgl32.Translate3D(0, 0, 2))
	assert.InDelta(t, 5, arm.Pose(spine).Matrix().Col(3).Z(), 1e-6)
}

func TestEditMeshFrom(t *testing.T) {
	md := Cube(2, true)
	em := EditMeshFrom(md)
	require.Len(t, em.Verts, 8)
	require.Len(t, em.Faces, 6)
	for i, f := range em.Faces {
		p := md.Polygons[i]
		assert.Equal(t, md.LoopVertices[p.LoopStart:p.LoopStart+p.LoopTotal], f.Verts)
		assert.Len(t, f.UVs, 4)
		assert.True(t, f.Smooth)
	}
}

func TestActionEvaluate(t *testing.T) {
	a := NewAction("Move",
		Keyframe{Time: 1, Position: mgl32.Vec3{2, 0, 0}, Scale: mgl32.Vec3{1, 1, 1}},
		Keyframe{Time: 0, Scale: mgl32.Vec3{1, 1, 1}},
	)
	assert.Equal(t, []float32{0, 1}, a.KeyTimes())
	assert.InDelta(t, 1, a.Evaluate(0.5).Col(3).X(), 1e-6)
	assert.InDelta(t, 2, a.Evaluate(5).Col(3).X(), 1e-6)
	assert.InDelta(t, 0, a.Evaluate(-1).Col(3).X(), 1e-6)
}

package meshsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/host/memhost"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queuedSender records every message it is handed. When block is set, Send
// waits for it to be closed or for the context to be cancelled.
type queuedSender struct {
	lock  sync.Mutex
	msgs  []*scene.SetMessage
	block chan struct{}
	err   error
}

func (s *queuedSender) Send(ctx context.Context, msg *scene.SetMessage) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *queuedSender) messages() []*scene.SetMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]*scene.SetMessage(nil), s.msgs...)
}

type testScene struct {
	*memhost.Scene
	root  *memhost.Object
	cube  *memhost.Mesh
	cam   *memhost.Camera
	light *memhost.Light
	rig   *memhost.Armature
	hip   *memhost.Bone
	spine *memhost.Bone
}

func newTestScene() *testScene {
	s := &testScene{Scene: memhost.New()}
	s.root = s.AddEmpty("Root", nil)
	s.rig = s.AddArmature("Rig", s.root)
	s.hip = s.rig.AddBone("Hip", nil, mgl32.Translate3D(0, 0, 1))
	s.spine = s.rig.AddBone("Spine", s.hip, mgl32.Translate3D(0, 0, 1))
	s.cube = s.AddMesh("Cube", s.root, memhost.Cube(2, false))
	s.cam = s.AddCamera("Camera", nil, host.CameraData{FocalLength: 50, SensorHeight: 24, Near: 0.1, Far: 100})
	s.light = s.AddLight("Light", nil, host.LightData{Type: host.LightPoint, Color: mgl32.Vec3{1, 1, 1}, Energy: 10})
	return s
}

// trackChanges forwards host notifications to c like a depsgraph handler would.
func (s *testScene) trackChanges(c *Context) {
	s.OnChange(func(o host.Object) {
		c.AddObject(o)
	})
}

func TestPathStability(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, &queuedSender{})

	c.SyncAll()
	cubeRec := c.Record(s.cube)
	require.NotNil(t, cubeRec)
	assert.Equal(t, "/Root/Cube", cubeRec.Path)
	assert.True(t, cubeRec.Alive)
	assert.Equal(t, HostObject{s.cube}, cubeRec.Source)

	spineRec := c.RecordByPath("/Root/Rig/Hip/Spine")
	require.NotNil(t, spineRec)
	assert.Equal(t, SkeletalJoint{s.rig, s.spine}, spineRec.Source)
	assert.NotNil(t, c.RecordByPath("/Root/Rig/Hip"))

	id := cubeRec.ID
	c.Prepare()
	c.SyncAll()
	assert.Equal(t, id, c.Record(s.cube).ID)
	assert.Equal(t, "/Root/Cube", c.Record(s.cube).Path)
	assert.Same(t, spineRec, c.RecordByPath("/Root/Rig/Hip/Spine"))
}

func TestPoseChannelResolvesToBone(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	boneRec, err := c.findOrAddBone(s.rig, s.spine)
	require.NoError(t, err)
	poseRec, err := c.findOrAddPoseChannel(s.rig, s.rig.Pose(s.spine))
	require.NoError(t, err)
	assert.Same(t, boneRec, poseRec)

	_, err = c.findOrAddPoseChannel(s.rig, nil)
	assert.ErrorIs(t, err, ErrForeignHandle)
}

func TestBoneMatrices(t *testing.T) {
	s := newTestScene()
	s.root.SetTRS(mgl32.Vec3{5, 0, 0}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
	c := NewContext(DefaultSettings(), s, nil)

	c.SyncAll()
	spine := c.BoneTransform(s.spine)
	require.NotNil(t, spine)
	assert.Equal(t, "/Root/Rig/Hip/Spine", spine.Path)
	assert.InDelta(t, 1, spine.Position.Z(), 1e-6)

	rec := c.RecordByPath("/Root/Rig/Hip/Spine")
	assert.InDelta(t, 5, rec.GlobalMatrix.Col(3).X(), 1e-6)
	assert.InDelta(t, 2, rec.GlobalMatrix.Col(3).Z(), 1e-6)

	// Posing the parent moves the child in world space but not locally.
	s.rig.SetPose(s.hip, mgl32.Translate3D(0, 0, 3))
	c.Prepare()
	c.SyncAll()
	assert.InDelta(t, 1, c.BoneTransform(s.spine).Position.Z(), 1e-6)
	assert.InDelta(t, 4, rec.GlobalMatrix.Col(3).Z(), 1e-6)

	// Without pose sync bones stay at rest.
	settings := DefaultSettings()
	settings.SyncPoses = false
	c.SetSettings(settings)
	c.Prepare()
	c.SyncAll()
	assert.InDelta(t, 2, rec.GlobalMatrix.Col(3).Z(), 1e-6)
}

func TestPathConflict(t *testing.T) {
	s := memhost.New()
	root := s.AddEmpty("Root", nil)
	s.AddEmpty("Twin", root)
	s.AddEmpty("Twin", root)
	c := NewContext(DefaultSettings(), s, nil)

	report := c.SyncAll()
	assert.Equal(t, 2, report.Exported[scene.EntityTransform])
	assert.Equal(t, 1, report.Skipped)
	assert.ErrorIs(t, report.Err, ErrPathConflict)
}

func TestDeletionReportedBySyncAll(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	c.SyncAll()
	require.True(t, c.Prepare())

	s.Remove(s.cube)
	report := c.SyncAll()
	assert.Equal(t, 1, report.Deleted)
	assert.False(t, c.Record(s.cube).Alive)
	assert.Equal(t, []string{"/Root/Cube"}, c.Deleted())

	require.True(t, c.Prepare())
	msg := c.Prepared()
	assert.Equal(t, []string{"/Root/Cube"}, msg.Scene.Deleted)
	assert.Nil(t, msg.Scene.Find("/Root/Cube"))
	assert.Empty(t, c.Deleted())

	// Reported once.
	c.SyncAll()
	assert.Empty(t, c.Deleted())
}

func TestDeletionReportedBySyncUpdated(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)
	s.trackChanges(c)

	c.SyncAll()
	c.Prepare()
	assert.Zero(t, c.PendingCount())

	s.Remove(s.root)
	assert.Equal(t, 3, c.PendingCount())
	report := c.SyncUpdated()
	assert.Equal(t, 3, report.Deleted)
	assert.Zero(t, report.ExportedTotal())
	assert.ElementsMatch(t, []string{"/Root", "/Root/Rig", "/Root/Cube"}, c.Deleted())
	assert.False(t, c.Record(s.root).Alive)
}

func TestRemovedArmatureTakesBonesAlong(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)
	s.trackChanges(c)

	c.SyncAll()
	require.True(t, c.Prepare())

	s.Remove(s.rig)
	report := c.SyncUpdated()
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, []string{"/Root/Rig"}, c.Deleted())
	for _, path := range []string{"/Root/Rig", "/Root/Rig/Hip", "/Root/Rig/Hip/Spine"} {
		rec := c.RecordByPath(path)
		require.NotNil(t, rec, path)
		assert.False(t, rec.Alive, path)
	}
	require.True(t, c.Prepare())

	// Nothing is left over for the next full pass to report.
	c.SyncAll()
	assert.Empty(t, c.Deleted())
}

func TestMovedParentResendsDescendants(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	c.SyncAll()
	require.True(t, c.Prepare())

	// Only the renamed object is marked, as a host without subtree
	// notifications would do.
	s.root.Rename("Top")
	require.NoError(t, c.AddObject(s.root))
	c.SyncUpdated()

	assert.Contains(t, c.Deleted(), "/Root")
	for _, path := range []string{"/Top", "/Top/Cube", "/Top/Rig", "/Top/Rig/Hip", "/Top/Rig/Hip/Spine"} {
		assert.NotNil(t, c.Scene().Find(path), path)
	}
	assert.Nil(t, c.Scene().Find("/Root/Cube"))
	assert.Nil(t, c.Scene().Find("/Camera"), "unrelated objects stay out")

	rec := c.Record(s.cube)
	assert.Equal(t, "/Top/Cube", rec.Path)
	assert.True(t, rec.Alive)
	assert.Same(t, rec, c.RecordByPath("/Top/Cube"))
}

func TestDeletedThenExportedAgain(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	c.AddDeleted("/Root/Cube")
	c.AddDeleted("/Root/Cube")
	assert.Equal(t, []string{"/Root/Cube"}, c.Deleted())

	_, err := c.AddMesh(s.cube)
	require.NoError(t, err)
	assert.Empty(t, c.Deleted())

	c.AddDeleted("/Root/Cube")
	assert.Nil(t, c.Scene().Find("/Root/Cube"))
}

func TestRenameReportsOldPaths(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)
	s.trackChanges(c)

	c.SyncAll()
	c.Prepare()
	id := c.Record(s.cube).ID

	s.root.Rename("Top")
	c.SyncUpdated()
	require.True(t, c.Prepare())

	msg := c.Prepared()
	assert.Contains(t, msg.Scene.Deleted, "/Root")
	assert.Contains(t, msg.Scene.Deleted, "/Root/Cube")
	assert.NotNil(t, msg.Scene.Find("/Top"))
	assert.NotNil(t, msg.Scene.Find("/Top/Cube"))
	assert.Nil(t, msg.Scene.Find("/Root/Cube"))

	rec := c.Record(s.cube)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "/Top/Cube", rec.Path)
	assert.True(t, rec.Alive)
	assert.Same(t, rec, c.RecordByPath("/Top/Cube"))
}

func TestSyncUpdatedExportsUnseenParents(t *testing.T) {
	s := memhost.New()
	c := NewContext(DefaultSettings(), s, nil)
	s.OnChange(func(o host.Object) {
		c.AddObject(o)
	})

	root := s.AddEmpty("Root", nil)
	c.FlushPendingList()
	s.AddEmpty("Child", root)

	report := c.SyncUpdated()
	assert.Equal(t, 2, report.Exported[scene.EntityTransform])
	assert.NotNil(t, c.Scene().Find("/Root"))
	assert.NotNil(t, c.Scene().Find("/Root/Child"))
}

func TestPrepareIdempotent(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	assert.False(t, c.Prepare())

	c.SyncAll()
	require.True(t, c.Prepare())
	msg := c.Prepared()
	n := len(msg.Scene.Objects)

	assert.False(t, c.Prepare())
	assert.Same(t, msg, c.Prepared())
	assert.Len(t, msg.Scene.Objects, n)
	assert.True(t, c.Scene().Empty())
}

func TestPrepareMergesUnsentMessages(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	_, err := c.AddTransform(s.root)
	require.NoError(t, err)
	require.True(t, c.Prepare())
	msg := c.Prepared()

	_, err = c.AddCamera(s.cam)
	require.NoError(t, err)
	_, err = c.AddTransform(s.root)
	require.NoError(t, err)
	require.True(t, c.Prepare())

	assert.Same(t, msg, c.Prepared())
	assert.Len(t, msg.Scene.Objects, 2)
	assert.Equal(t, uint64(1), msg.Seq)
}

func TestPendingDoubleBuffer(t *testing.T) {
	s := memhost.New()
	const n = 1000
	objs := make([]host.Object, n)
	for i := range objs {
		objs[i] = s.AddEmpty(fmt.Sprintf("Obj%d", i), nil)
	}
	c := NewContext(DefaultSettings(), s, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, o := range objs {
			assert.NoError(t, c.AddObject(o))
		}
	}()

	seen := make(map[host.Handle]int)
	deadline := time.Now().Add(5 * time.Second)
	for len(seen) < n && time.Now().Before(deadline) {
		for _, o := range c.FlushPendingList() {
			seen[o.Handle()]++
		}
	}
	wg.Wait()
	for _, o := range c.FlushPendingList() {
		seen[o.Handle()]++
	}

	assert.Len(t, seen, n)
	for h, count := range seen {
		assert.Equal(t, 1, count, "handle %d flushed more than once", h)
	}
}

// markingObject runs onRead whenever its matrix is read, like a host that
// fires change notifications while the engine evaluates it.
type markingObject struct {
	host.Object
	onRead func()
}

func (o *markingObject) LocalMatrix() mgl32.Mat4 {
	o.onRead()
	return o.Object.LocalMatrix()
}

func TestMarkDuringSyncUpdatedRunsNextPass(t *testing.T) {
	s := memhost.New()
	a := s.AddEmpty("A", nil)
	x := s.AddEmpty("X", nil)
	c := NewContext(DefaultSettings(), s, nil)
	c.SyncAll()
	require.True(t, c.Prepare())

	marks := 0
	require.NoError(t, c.AddObject(&markingObject{Object: a, onRead: func() {
		marks++
		assert.NoError(t, c.AddObject(x))
	}}))

	report := c.SyncUpdated()
	assert.Positive(t, marks)
	assert.Equal(t, 1, report.ExportedTotal())
	assert.NotNil(t, c.Scene().Find("/A"))
	assert.Nil(t, c.Scene().Find("/X"))
	assert.Equal(t, 1, c.PendingCount())
	require.True(t, c.Prepare())

	report = c.SyncUpdated()
	assert.Equal(t, 1, report.ExportedTotal())
	assert.NotNil(t, c.Scene().Find("/X"))
	assert.Zero(t, c.PendingCount())

	report = c.SyncUpdated()
	assert.Zero(t, report.ExportedTotal())
}

func TestSyncAllAbsorbsPending(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)
	s.trackChanges(c)

	s.cube.SetVisible(false)
	assert.Equal(t, 1, c.PendingCount())
	c.SyncAll()
	assert.Zero(t, c.PendingCount())
}

func TestForeignHandles(t *testing.T) {
	s := newTestScene()
	c := NewContext(DefaultSettings(), s, nil)

	assert.ErrorIs(t, c.AddObject("Cube"), ErrForeignHandle)
	assert.ErrorIs(t, c.AddObject(nil), ErrForeignHandle)
	_, err := c.AddMesh(42)
	assert.ErrorIs(t, err, ErrForeignHandle)
	_, err = c.AddMesh(s.cam)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.ErrorIs(t, err, ErrForeignHandle)
	_, err = c.AddCamera(s.cube)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = c.AddLight(s.root)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = c.AddMaterial(s.cube)
	assert.ErrorIs(t, err, ErrForeignHandle)
	assert.ErrorIs(t, c.ExtractTransformData(scene.NewTransform(), struct{}{}), ErrForeignHandle)
	assert.Nil(t, c.Record("Cube"))

	// Typed nils are rejected instead of panicking.
	var nilObject *memhost.Object
	var nilMesh *memhost.Mesh
	var nilMaterial *memhost.Material
	assert.ErrorIs(t, c.AddObject(nilObject), ErrForeignHandle)
	assert.ErrorIs(t, c.AddObject(nilMesh), ErrForeignHandle)
	_, err = c.AddMesh(nilMesh)
	assert.ErrorIs(t, err, ErrForeignHandle)
	_, err = c.AddTransform(nilObject)
	assert.ErrorIs(t, err, ErrForeignHandle)
	_, err = c.AddMaterial(nilMaterial)
	assert.ErrorIs(t, err, ErrForeignHandle)
	assert.Nil(t, c.Record(nilMesh))
}

func TestSyncFlags(t *testing.T) {
	settings := DefaultSettings()
	all := settings.SyncFlags()
	assert.NotZero(t, all&SyncFlagMeshes)
	assert.NotZero(t, all&SyncFlagLights)

	settings.SyncNormals = NormalsNone
	settings.SyncLights = false
	flags := settings.SyncFlags()
	assert.Zero(t, flags&SyncFlagNormals)
	assert.Zero(t, flags&SyncFlagLights)
	assert.NotZero(t, flags&SyncFlagCameras)
}

func TestNormalSyncModeText(t *testing.T) {
	var m NormalSyncMode
	require.NoError(t, m.UnmarshalText([]byte("per_vertex")))
	assert.Equal(t, NormalsPerVertex, m)
	require.NoError(t, m.UnmarshalText([]byte("PerIndex")))
	assert.Equal(t, NormalsPerIndex, m)
	assert.Error(t, m.UnmarshalText([]byte("sometimes")))

	text, err := NormalsNone.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "none", string(text))
}

package receiver

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/stretchr/testify/assert"
)

func transform(path string, x float32) *scene.Transform {
	t := scene.NewTransform()
	t.Path = path
	t.Position = mgl32.Vec3{x, 0, 0}
	return t
}

func TestSessionApply(t *testing.T) {
	s := newSession("test")
	s.Apply(&scene.SetMessage{Seq: 1, Scene: &scene.Scene{
		Settings: scene.SceneSettings{Handedness: scene.RightHandedYUp, ScaleFactor: 0.5},
		Objects: []scene.Entity{
			transform("/A", 1),
			transform("/A/B", 2),
			transform("/AB", 3),
			transform("/C", 4),
		},
		Materials:  []*scene.Material{{ID: 0, Name: "Red"}},
		Animations: []*scene.AnimationClip{{Name: "Spin"}},
	}})
	assert.Equal(t, []string{"/A", "/A/B", "/AB", "/C"}, s.Paths())
	assert.Equal(t, float32(0.5), s.Settings().ScaleFactor)
	assert.Equal(t, "Red", s.Material(0).Name)
	assert.NotNil(t, s.Animation("Spin"))

	// Upsert by path, delete a subtree but not its name-prefixed sibling.
	s.Apply(&scene.SetMessage{Seq: 2, Scene: &scene.Scene{
		Objects:   []scene.Entity{transform("/C", 5), transform("/D", 6)},
		Materials: []*scene.Material{{ID: 0, Name: "Blue"}},
		Deleted:   []string{"/A"},
	}})
	assert.Equal(t, []string{"/AB", "/C", "/D"}, s.Paths())
	assert.Nil(t, s.Find("/A/B"))
	assert.Equal(t, float32(5), s.Find("/C").Base().Position[0])
	assert.Equal(t, "Blue", s.Material(0).Name)
	assert.Equal(t, uint64(2), s.LastSeq())
	assert.Equal(t, 2, s.Updates())
}

func TestSessionRecreatesDeletedPath(t *testing.T) {
	s := newSession("test")
	s.Apply(&scene.SetMessage{Scene: &scene.Scene{Objects: []scene.Entity{transform("/A", 1)}}})
	s.Apply(&scene.SetMessage{Scene: &scene.Scene{
		Objects: []scene.Entity{transform("/A", 2)},
		Deleted: []string{"/A"},
	}})
	// Deletions apply before the objects of the same message.
	assert.Equal(t, []string{"/A"}, s.Paths())
	assert.Equal(t, float32(2), s.Find("/A").Base().Position[0])
}

func TestSessionApplyWithoutScene(t *testing.T) {
	s := newSession("test")
	s.Apply(&scene.SetMessage{Seq: 4})
	assert.Empty(t, s.Paths())
	assert.Equal(t, uint64(4), s.LastSeq())
	assert.Equal(t, float32(1), s.Settings().ScaleFactor)
}

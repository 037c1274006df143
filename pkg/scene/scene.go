package scene

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

type Handedness int32

const (
	RightHandedZUp Handedness = iota
	RightHandedYUp
	LeftHandedYUp
)

var handednessNames = map[Handedness]string{
	RightHandedZUp: "right_z_up",
	RightHandedYUp: "right_y_up",
	LeftHandedYUp:  "left_y_up",
}

func (h Handedness) String() string {
	if name, ok := handednessNames[h]; ok {
		return name
	}
	return fmt.Sprintf("Handedness(%d)", int32(h))
}

func (h Handedness) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText accepts a name such as "left_y_up" or the numeric value.
func (h *Handedness) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for value, name := range handednessNames {
		if s == name {
			*h = value
			return nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := handednessNames[Handedness(n)]; ok {
			*h = Handedness(n)
			return nil
		}
	}
	return fmt.Errorf("unknown handedness %q", string(text))
}

type SceneSettings struct {
	Handedness  Handedness `yaml:"handedness"`
	ScaleFactor float32    `yaml:"scale_factor"`
}

type Material struct {
	ID        int32
	Name      string
	Color     mgl32.Vec4
	Metallic  float32
	Roughness float32
}

// TransformAnimation is a baked transform curve of one entity.
type TransformAnimation struct {
	Path        string
	Times       []float32
	Translation []mgl32.Vec3
	Rotation    []mgl32.Quat
	Scale       []mgl32.Vec3
}

type AnimationClip struct {
	Name       string
	Animations []*TransformAnimation
}

// Scene aggregates the entities exported during a sync cycle and the paths of
// entities that disappeared since the previous one.
type Scene struct {
	Settings   SceneSettings
	Objects    []Entity
	Materials  []*Material
	Animations []*AnimationClip
	Deleted    []string
}

func New() *Scene {
	return &Scene{Settings: SceneSettings{ScaleFactor: 1}}
}

// Empty reports whether the scene carries nothing to transmit.
func (s *Scene) Empty() bool {
	return len(s.Objects) == 0 && len(s.Materials) == 0 && len(s.Animations) == 0 && len(s.Deleted) == 0
}

// Clear truncates the contents. The entities themselves are not reset since
// they are owned by the caller's caches.
func (s *Scene) Clear() {
	s.Objects = s.Objects[:0]
	s.Materials = s.Materials[:0]
	s.Animations = s.Animations[:0]
	s.Deleted = s.Deleted[:0]
}

// Find returns the entity with the given path, or nil.
func (s *Scene) Find(path string) Entity {
	for _, e := range s.Objects {
		if e.Base().Path == path {
			return e
		}
	}
	return nil
}

// Merge appends src's contents. Entities with a path already present replace
// the older entry.
func (s *Scene) Merge(src *Scene) {
	s.Settings = src.Settings
	if len(src.Objects) > 0 {
		byPath := make(map[string]int, len(s.Objects))
		for i, e := range s.Objects {
			byPath[e.Base().Path] = i
		}
		for _, e := range src.Objects {
			s.undelete(e.Base().Path)
			if i, ok := byPath[e.Base().Path]; ok {
				s.Objects[i] = e
				continue
			}
			byPath[e.Base().Path] = len(s.Objects)
			s.Objects = append(s.Objects, e)
		}
	}
	for _, m := range src.Materials {
		replaced := false
		for i, old := range s.Materials {
			if old.ID == m.ID {
				s.Materials[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			s.Materials = append(s.Materials, m)
		}
	}
	s.Animations = append(s.Animations, src.Animations...)
	for _, path := range src.Deleted {
		s.AddDeleted(path)
	}
}

// AddDeleted appends path once, and drops any live entity with the same path.
func (s *Scene) AddDeleted(path string) {
	for _, p := range s.Deleted {
		if p == path {
			return
		}
	}
	s.Deleted = append(s.Deleted, path)
	for i, e := range s.Objects {
		if e.Base().Path == path {
			s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
			break
		}
	}
}

// undelete drops path from the deletion list once it is exported again.
func (s *Scene) undelete(path string) {
	for i, p := range s.Deleted {
		if p == path {
			s.Deleted = append(s.Deleted[:i], s.Deleted[i+1:]...)
			return
		}
	}
}

// SetMessage is the outgoing message of one send.
type SetMessage struct {
	Seq       uint64
	SyncFlags uint32
	Scene     *Scene
}

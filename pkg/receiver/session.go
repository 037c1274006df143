package receiver

import (
	"strings"
	"sync"

	"github.com/metaworking/meshsync/pkg/scene"
)

// Session mirrors the scene streamed by the clients that said hello with the
// same session name.
type Session struct {
	name string

	lock       sync.RWMutex
	settings   scene.SceneSettings
	objects    []scene.Entity
	byPath     map[string]int
	materials  map[int32]*scene.Material
	animations map[string]*scene.AnimationClip
	lastSeq    uint64
	updates    int
}

func newSession(name string) *Session {
	return &Session{
		name:       name,
		settings:   scene.SceneSettings{ScaleFactor: 1},
		byPath:     make(map[string]int),
		materials:  make(map[int32]*scene.Material),
		animations: make(map[string]*scene.AnimationClip),
	}
}

func (s *Session) Name() string {
	return s.name
}

func isSameOrDescendant(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// Apply folds msg into the mirror. Deletions apply first and remove every
// entity at or below the deleted path, then entities are upserted by path.
func (s *Session) Apply(msg *scene.SetMessage) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastSeq = msg.Seq
	s.updates++
	if msg.Scene == nil {
		return
	}
	src := msg.Scene
	s.settings = src.Settings

	if len(src.Deleted) > 0 {
		kept := s.objects[:0]
		for _, e := range s.objects {
			deleted := false
			for _, path := range src.Deleted {
				if isSameOrDescendant(e.Base().Path, path) {
					deleted = true
					break
				}
			}
			if !deleted {
				kept = append(kept, e)
			}
		}
		for i := len(kept); i < len(s.objects); i++ {
			s.objects[i] = nil
		}
		s.objects = kept
		s.reindex()
	}

	for _, e := range src.Objects {
		path := e.Base().Path
		if i, ok := s.byPath[path]; ok {
			s.objects[i] = e
			continue
		}
		s.byPath[path] = len(s.objects)
		s.objects = append(s.objects, e)
	}
	for _, m := range src.Materials {
		s.materials[m.ID] = m
	}
	for _, clip := range src.Animations {
		s.animations[clip.Name] = clip
	}
}

func (s *Session) reindex() {
	clear(s.byPath)
	for i, e := range s.objects {
		s.byPath[e.Base().Path] = i
	}
}

func (s *Session) Find(path string) scene.Entity {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if i, ok := s.byPath[path]; ok {
		return s.objects[i]
	}
	return nil
}

// Paths returns the paths of the mirrored entities in arrival order.
func (s *Session) Paths() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	paths := make([]string, len(s.objects))
	for i, e := range s.objects {
		paths[i] = e.Base().Path
	}
	return paths
}

func (s *Session) Material(id int32) *scene.Material {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.materials[id]
}

func (s *Session) Animation(name string) *scene.AnimationClip {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.animations[name]
}

func (s *Session) Settings() scene.SceneSettings {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.settings
}

// LastSeq returns the sequence number of the last applied message.
func (s *Session) LastSeq() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastSeq
}

// Updates counts the applied messages.
func (s *Session) Updates() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.updates
}

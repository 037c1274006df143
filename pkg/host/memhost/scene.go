// Package memhost is an in-memory host scene. It backs the tests and the CLI,
// and can be loaded from YAML scene files.
package memhost

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
)

type Scene struct {
	nextHandle atomic.Uint64

	lock      sync.RWMutex
	objects   []host.Object
	byHandle  map[host.Handle]host.Object
	byName    map[string]host.Object
	materials map[string]*Material

	listenersLock sync.RWMutex
	listeners     []func(host.Object)
}

func New() *Scene {
	return &Scene{
		byHandle:  make(map[host.Handle]host.Object),
		byName:    make(map[string]host.Object),
		materials: make(map[string]*Material),
	}
}

func (s *Scene) newHandle() host.Handle {
	return host.Handle(s.nextHandle.Add(1))
}

// OnChange registers fn to be called with every object a mutation touches,
// including removed ones.
func (s *Scene) OnChange(fn func(host.Object)) {
	s.listenersLock.Lock()
	defer s.listenersLock.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scene) notify(objs ...host.Object) {
	s.listenersLock.RLock()
	listeners := s.listeners
	s.listenersLock.RUnlock()
	for _, obj := range objs {
		for _, fn := range listeners {
			fn(obj)
		}
	}
}

// Touch reports obj as changed without modifying it.
func (s *Scene) Touch(obj host.Object) {
	s.notify(obj)
}

func depth(obj host.Object) int {
	d := 0
	for p := obj.Parent(); p != nil; p = p.Parent() {
		d++
	}
	return d
}

// Objects returns the objects ordered by depth, so parents come before children.
func (s *Scene) Objects() []host.Object {
	s.lock.RLock()
	out := make([]host.Object, len(s.objects))
	copy(out, s.objects)
	s.lock.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return depth(out[i]) < depth(out[j])
	})
	return out
}

func (s *Scene) Contains(h host.Handle) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.byHandle[h]
	return ok
}

// Find returns the object named name, or nil.
func (s *Scene) Find(name string) host.Object {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.byName[name]
}

func (s *Scene) Material(name string) *Material {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.materials[name]
}

func (s *Scene) add(obj host.Object) {
	s.lock.Lock()
	s.objects = append(s.objects, obj)
	s.byHandle[obj.Handle()] = obj
	s.byName[obj.Name()] = obj
	s.lock.Unlock()
	s.notify(obj)
}

func (s *Scene) newObject(name string, kind host.Kind, parent host.Object) *Object {
	return &Object{
		scene:   s,
		handle:  s.newHandle(),
		name:    name,
		kind:    kind,
		parent:  parent,
		local:   mgl32.Ident4(),
		visible: true,
	}
}

func (s *Scene) AddEmpty(name string, parent host.Object) *Object {
	o := s.newObject(name, host.KindEmpty, parent)
	s.add(o)
	return o
}

func (s *Scene) AddMesh(name string, parent host.Object, data *host.MeshData) *Mesh {
	m := &Mesh{Object: s.newObject(name, host.KindMesh, parent), data: data}
	m.self = m
	s.add(m)
	return m
}

func (s *Scene) AddCamera(name string, parent host.Object, data host.CameraData) *Camera {
	c := &Camera{Object: s.newObject(name, host.KindCamera, parent), data: data}
	c.self = c
	s.add(c)
	return c
}

func (s *Scene) AddLight(name string, parent host.Object, data host.LightData) *Light {
	l := &Light{Object: s.newObject(name, host.KindLight, parent), data: data}
	l.self = l
	s.add(l)
	return l
}

func (s *Scene) AddArmature(name string, parent host.Object) *Armature {
	a := &Armature{Object: s.newObject(name, host.KindArmature, parent), poses: make(map[host.Handle]*PoseChannel)}
	a.self = a
	s.add(a)
	return a
}

func (s *Scene) NewMaterial(name string, color mgl32.Vec4) *Material {
	m := &Material{handle: s.newHandle(), name: name, color: color, roughness: 0.5}
	s.lock.Lock()
	s.materials[name] = m
	s.lock.Unlock()
	return m
}

func (s *Scene) descendants(obj host.Object) []host.Object {
	var out []host.Object
	for _, o := range s.objects {
		for p := o.Parent(); p != nil; p = p.Parent() {
			if p.Handle() == obj.Handle() {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// Remove deletes obj and its descendants.
func (s *Scene) Remove(obj host.Object) {
	s.lock.Lock()
	removed := append([]host.Object{obj}, s.descendants(obj)...)
	gone := make(map[host.Handle]struct{}, len(removed))
	for _, o := range removed {
		gone[o.Handle()] = struct{}{}
		delete(s.byHandle, o.Handle())
		if s.byName[o.Name()] == o {
			delete(s.byName, o.Name())
		}
	}
	kept := s.objects[:0]
	for _, o := range s.objects {
		if _, ok := gone[o.Handle()]; !ok {
			kept = append(kept, o)
		}
	}
	s.objects = kept
	s.lock.Unlock()
	s.notify(removed...)
}

// changed notifies obj and, when its path may have changed, its descendants.
func (s *Scene) changed(obj host.Object, withDescendants bool) {
	objs := []host.Object{obj}
	if withDescendants {
		s.lock.RLock()
		objs = append(objs, s.descendants(obj)...)
		s.lock.RUnlock()
	}
	s.notify(objs...)
}

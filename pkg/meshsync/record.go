package meshsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/metaworking/meshsync/pkg/host"
	"go.uber.org/zap"
)

var ErrPathConflict = errors.New("path already taken by another entity")

// RecordSource is the host entity an ObjectRecord tracks: HostObject or SkeletalJoint.
type RecordSource interface {
	sourceKey() recordKey
}

type HostObject struct {
	Object host.Object
}

type SkeletalJoint struct {
	Armature host.ArmatureObject
	Bone     host.Bone
}

type recordKey struct {
	joint  bool
	handle host.Handle
}

func (s HostObject) sourceKey() recordKey    { return recordKey{false, s.Object.Handle()} }
func (s SkeletalJoint) sourceKey() recordKey { return recordKey{true, s.Bone.Handle()} }

type ObjectRecord struct {
	ID     uuid.UUID
	Source RecordSource
	Name   string
	Path   string

	LocalMatrix  mgl32.Mat4
	GlobalMatrix mgl32.Mat4

	// Alive is cleared when the entity is not found by a full sync.
	Alive bool
}

func (r *ObjectRecord) String() string {
	return fmt.Sprintf("ObjectRecord(%s %s)", r.Path, r.ID)
}

// registry maps host entities to records. Records stay for the whole session.
type registry struct {
	byKey  map[recordKey]*ObjectRecord
	byPath map[string]*ObjectRecord
}

func newRegistry() *registry {
	return &registry{
		byKey:  make(map[recordKey]*ObjectRecord),
		byPath: make(map[string]*ObjectRecord),
	}
}

func (r *registry) records() []*ObjectRecord {
	out := make([]*ObjectRecord, 0, len(r.byKey))
	for _, rec := range r.byKey {
		out = append(out, rec)
	}
	return out
}

func objectPath(obj host.Object) string {
	var names []string
	for o := obj; o != nil; o = o.Parent() {
		names = append(names, o.Name())
	}
	var sb strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(names[i])
	}
	return sb.String()
}

func bonePath(armaturePath string, bone host.Bone) string {
	var names []string
	for b := bone; b != nil; b = b.Parent() {
		names = append(names, b.Name())
	}
	var sb strings.Builder
	sb.WriteString(armaturePath)
	for i := len(names) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(names[i])
	}
	return sb.String()
}

// findOrAdd returns the record of src, creating it on first sight. A changed
// path is re-indexed and the old path returned so the caller can report it
// as deleted.
func (r *registry) findOrAdd(src RecordSource, name, path string) (rec *ObjectRecord, oldPath string, err error) {
	if other, ok := r.byPath[path]; ok && other.Source.sourceKey() != src.sourceKey() && other.Alive {
		return nil, "", fmt.Errorf("%s: %w", path, ErrPathConflict)
	}

	key := src.sourceKey()
	rec, ok := r.byKey[key]
	if !ok {
		rec = &ObjectRecord{
			ID:     uuid.New(),
			Source: src,
			Name:   name,
			Path:   path,
		}
		r.byKey[key] = rec
		r.byPath[path] = rec
	} else if rec.Path != path {
		oldPath = rec.Path
		if r.byPath[oldPath] == rec {
			delete(r.byPath, oldPath)
		}
		rec.Path = path
		rec.Name = name
		r.byPath[path] = rec
	}
	// Host wrappers may be recreated for the same handle; keep the latest.
	rec.Source = src
	rec.Alive = true
	return rec, oldPath, nil
}

func (r *registry) findByPath(path string) *ObjectRecord {
	return r.byPath[path]
}

func (r *registry) findObject(obj host.Object) *ObjectRecord {
	return r.byKey[recordKey{false, obj.Handle()}]
}

func (c *Context) findOrAddObject(obj host.Object) (*ObjectRecord, error) {
	if obj == nil {
		return nil, ErrForeignHandle
	}
	rec, oldPath, err := c.records.findOrAdd(HostObject{obj}, obj.Name(), objectPath(obj))
	if err != nil {
		return nil, err
	}
	if oldPath != "" {
		c.logger.Debug("object moved", zap.String("from", oldPath), zap.String("to", rec.Path))
		c.addDeleted(oldPath, false)
	}
	rec.LocalMatrix = obj.LocalMatrix()
	rec.GlobalMatrix = obj.WorldMatrix()
	return rec, nil
}

func (c *Context) findOrAddBone(arm host.ArmatureObject, bone host.Bone) (*ObjectRecord, error) {
	if arm == nil || bone == nil {
		return nil, ErrForeignHandle
	}
	armRec, err := c.findOrAddObject(arm)
	if err != nil {
		return nil, err
	}
	rec, oldPath, err := c.records.findOrAdd(SkeletalJoint{arm, bone}, bone.Name(), bonePath(armRec.Path, bone))
	if err != nil {
		return nil, err
	}
	if oldPath != "" {
		c.addDeleted(oldPath, false)
	}

	pose := c.bonePoseMatrix(arm, bone)
	rec.LocalMatrix = pose
	if parent := bone.Parent(); parent != nil {
		rec.LocalMatrix = c.bonePoseMatrix(arm, parent).Inv().Mul4(pose)
	}
	rec.GlobalMatrix = armRec.GlobalMatrix.Mul4(pose)
	return rec, nil
}

func (c *Context) findOrAddPoseChannel(arm host.ArmatureObject, pose host.PoseChannel) (*ObjectRecord, error) {
	if pose == nil {
		return nil, ErrForeignHandle
	}
	return c.findOrAddBone(arm, pose.Bone())
}

// bonePoseMatrix returns the bone transform in armature space: the pose when
// poses are synced and present, the rest matrix otherwise.
func (c *Context) bonePoseMatrix(arm host.ArmatureObject, bone host.Bone) mgl32.Mat4 {
	if c.settings.SyncPoses {
		if pose := arm.Pose(bone); pose != nil {
			return pose.Matrix()
		}
	}
	return bone.RestMatrix()
}

// Record returns the record tracking obj, or nil when obj was never exported.
func (c *Context) Record(obj any) *ObjectRecord {
	o, err := asObject(obj)
	if err != nil {
		return nil
	}
	return c.records.findObject(o)
}

// RecordByPath returns the record currently owning path, or nil.
func (c *Context) RecordByPath(path string) *ObjectRecord {
	return c.records.findByPath(path)
}

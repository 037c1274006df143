package meshsync

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
)

// exportArmature exports a transform per bone, parents first. It runs once per
// armature and cycle.
func (c *Context) exportArmature(arm host.ArmatureObject) {
	if _, done := c.exportedArmatures[arm.Handle()]; done {
		return
	}
	c.exportedArmatures[arm.Handle()] = struct{}{}

	for _, bone := range arm.Bones() {
		c.exportBone(arm, bone)
	}
}

func (c *Context) exportBone(arm host.ArmatureObject, bone host.Bone) *scene.Transform {
	if t, ok := c.bones[bone.Handle()]; ok {
		return t
	}
	rec, err := c.findOrAddBone(arm, bone)
	if err != nil {
		c.skip("bone", arm, err)
		return nil
	}
	dst := getCacheOrCreate(c, c.transformCache)
	extractTransform(dst, rec.Path, rec.LocalMatrix, true)
	c.bones[bone.Handle()] = dst
	c.addEntity(dst, nil)
	return dst
}

// BoneTransform returns the transform exported for bone during the current cycle.
func (c *Context) BoneTransform(bone host.Bone) *scene.Transform {
	if bone == nil {
		return nil
	}
	return c.bones[bone.Handle()]
}

// boneBinding is what a mesh job needs to skin against a bone.
type boneBinding struct {
	path string
	// restGlobal is the bone rest transform in world space.
	restGlobal mgl32.Mat4
}

// armatureBindings resolves the bones of arm by name. It exports the armature
// first when it was not part of the cycle yet.
func (c *Context) armatureBindings(arm host.ArmatureObject) (root string, bindings map[string]boneBinding) {
	armRec, err := c.findOrAddObject(arm)
	if err != nil {
		c.skip("armature", arm, err)
		return "", nil
	}
	if _, exported := c.exported[armRec.Path]; !exported {
		c.addTransform_(arm)
	}
	c.exportArmature(arm)

	bindings = make(map[string]boneBinding)
	for _, bone := range arm.Bones() {
		t, ok := c.bones[bone.Handle()]
		if !ok {
			continue
		}
		bindings[bone.Name()] = boneBinding{
			path:       t.Path,
			restGlobal: armRec.GlobalMatrix.Mul4(bone.RestMatrix()),
		}
	}
	return armRec.Path, bindings
}

package meshsync

import (
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/zap"
)

// AddMaterial registers a host material and returns its index. Indices are
// assigned in first-seen order and never change during a session.
func (c *Context) AddMaterial(mat any) (int, error) {
	m, ok := mat.(host.Material)
	if !ok || m == nil || m.Handle() == host.NoHandle {
		return -1, ErrForeignHandle
	}
	return c.getMaterialIndex(m), nil
}

// getMaterialIndex returns the index of m, registering it on first sight. A
// material seen again is refreshed by replacing its transport copy, since the
// previous copy may still be referenced by an outgoing message.
func (c *Context) getMaterialIndex(m host.Material) int {
	if m == nil {
		return -1
	}
	dst := &scene.Material{
		Name:      m.Name(),
		Color:     m.Color(),
		Metallic:  m.Metallic(),
		Roughness: m.Roughness(),
	}
	if i, ok := c.materialIndex[m.Handle()]; ok {
		dst.ID = int32(i)
		if *c.materials[i] != *dst {
			c.materials[i] = dst
			if i < c.materialsSent {
				c.materialsSent = i
			}
		}
		return i
	}

	i := len(c.materials)
	dst.ID = int32(i)
	c.materialIndex[m.Handle()] = i
	c.materials = append(c.materials, dst)
	c.logger.Debug("added material", zap.String("name", dst.Name), zap.Int("index", i))
	return i
}

// Materials returns the transport materials in index order.
func (c *Context) Materials() []*scene.Material {
	return c.materials
}

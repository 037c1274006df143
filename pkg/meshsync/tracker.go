package meshsync

import (
	"sort"
	"strings"
	"time"

	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/zap"
)

// SyncReport summarizes one sync pass. Err aggregates the per-entity failures
// of the skipped entities.
type SyncReport struct {
	Exported map[scene.EntityType]int
	Deleted  int
	Skipped  int
	Duration time.Duration
	Err      error
}

func newSyncReport() *SyncReport {
	return &SyncReport{Exported: make(map[scene.EntityType]int)}
}

func (r *SyncReport) ExportedTotal() int {
	total := 0
	for _, n := range r.Exported {
		total += n
	}
	return total
}

// AddObject marks obj as changed. It may be called from any goroutine.
func (c *Context) AddObject(obj any) error {
	o, err := asObject(obj)
	if err != nil {
		return err
	}
	c.pendingLock.Lock()
	c.pending[o.Handle()] = o
	c.pendingLock.Unlock()
	return nil
}

// FlushPendingList swaps the pending buffers and returns the objects marked
// since the previous flush. Marks arriving afterwards go to the other buffer.
func (c *Context) FlushPendingList() []host.Object {
	c.pendingLock.Lock()
	snapshot := c.pending
	c.pending, c.pendingTmp = c.pendingTmp, c.pending
	c.pendingLock.Unlock()

	objs := make([]host.Object, 0, len(snapshot))
	for _, obj := range snapshot {
		objs = append(objs, obj)
	}
	for h := range snapshot {
		delete(snapshot, h)
	}
	return objs
}

// PendingCount returns the number of objects waiting for SyncUpdated.
func (c *Context) PendingCount() int {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()
	return len(c.pending)
}

func (c *Context) beginCycle() {
	c.rewindCaches()
	c.report = newSyncReport()
	for h := range c.bones {
		delete(c.bones, h)
	}
	for h := range c.exportedArmatures {
		delete(c.exportedArmatures, h)
	}
}

// SyncAll exports every object of the host scene and reports the entities
// that disappeared since the previous pass.
func (c *Context) SyncAll() *SyncReport {
	start := time.Now()
	// A full pass replaces whatever earlier unprepared passes exported.
	c.resetScene()
	c.beginCycle()
	syncCycles.WithLabelValues("all").Inc()

	// The full pass covers everything marked so far.
	c.FlushPendingList()

	records := c.records.records()
	wasAlive := make([]*ObjectRecord, 0, len(records))
	for _, rec := range records {
		if rec.Alive {
			wasAlive = append(wasAlive, rec)
		}
		rec.Alive = false
	}

	var objs []host.Object
	if c.host != nil {
		objs = c.host.Objects()
	}
	c.exportObjects(objs)
	if c.settings.SyncAnimations {
		c.exportAnimations(objs)
	}

	for _, rec := range wasAlive {
		if !rec.Alive {
			c.addDeleted(rec.Path, false)
		}
	}
	// Every known material is resent.
	c.materialsSent = 0

	c.report.Duration = time.Since(start)
	c.logger.Debug("synced all",
		zap.Int("exported", c.report.ExportedTotal()),
		zap.Int("deleted", c.report.Deleted),
		zap.Int("skipped", c.report.Skipped),
		zap.Duration("duration", c.report.Duration),
	)
	return c.report
}

// SyncUpdated exports the objects marked by AddObject since the previous pass.
// Marked objects the host no longer contains are reported as deleted.
func (c *Context) SyncUpdated() *SyncReport {
	start := time.Now()
	c.beginCycle()
	syncCycles.WithLabelValues("updated").Inc()

	snapshot := c.FlushPendingList()
	live := snapshot[:0]
	for _, obj := range snapshot {
		if c.host != nil && !c.host.Contains(obj.Handle()) {
			if rec := c.records.findObject(obj); rec != nil {
				c.addDeleted(rec.Path, true)
			}
			continue
		}
		live = append(live, obj)
	}
	live = c.withMovedDescendants(live)

	// Parents never exported before go first so the viewer can build the hierarchy.
	var withParents []host.Object
	seen := make(map[host.Handle]struct{}, len(live))
	for _, obj := range live {
		var chain []host.Object
		for p := obj.Parent(); p != nil; p = p.Parent() {
			if _, ok := c.added[p.Handle()]; ok {
				break
			}
			chain = append(chain, p)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			if _, ok := seen[chain[i].Handle()]; !ok {
				seen[chain[i].Handle()] = struct{}{}
				withParents = append(withParents, chain[i])
			}
		}
		if _, ok := seen[obj.Handle()]; !ok {
			seen[obj.Handle()] = struct{}{}
			withParents = append(withParents, obj)
		}
	}
	c.exportObjects(withParents)

	c.report.Duration = time.Since(start)
	c.logger.Debug("synced updated",
		zap.Int("pending", len(snapshot)),
		zap.Int("exported", c.report.ExportedTotal()),
		zap.Int("deleted", c.report.Deleted),
		zap.Int("skipped", c.report.Skipped),
	)
	return c.report
}

// withMovedDescendants appends the live descendants of objects whose path
// changed since they were exported. The viewer drops the old path with
// everything below it, so the descendants have to be sent again under the
// new one.
func (c *Context) withMovedDescendants(objs []host.Object) []host.Object {
	var moved []string
	queued := make(map[host.Handle]struct{}, len(objs))
	for _, obj := range objs {
		queued[obj.Handle()] = struct{}{}
		if rec := c.records.findObject(obj); rec != nil && rec.Path != objectPath(obj) {
			moved = append(moved, rec.Path+"/")
		}
	}
	if len(moved) == 0 {
		return objs
	}

	var descendants []*ObjectRecord
	for _, rec := range c.records.records() {
		src, ok := rec.Source.(HostObject)
		if !ok || !rec.Alive {
			continue
		}
		h := src.Object.Handle()
		if _, ok := queued[h]; ok {
			continue
		}
		if c.host != nil && !c.host.Contains(h) {
			continue
		}
		for _, prefix := range moved {
			if strings.HasPrefix(rec.Path, prefix) {
				queued[h] = struct{}{}
				descendants = append(descendants, rec)
				break
			}
		}
	}
	// Shallow paths first so parents are exported before their children.
	sort.Slice(descendants, func(i, j int) bool {
		di, dj := strings.Count(descendants[i].Path, "/"), strings.Count(descendants[j].Path, "/")
		if di != dj {
			return di < dj
		}
		return descendants[i].Path < descendants[j].Path
	})
	for _, rec := range descendants {
		objs = append(objs, rec.Source.(HostObject).Object)
	}
	return objs
}

// exportObjects dispatches every object to its extractor. Mesh geometry goes
// through the worker pool.
func (c *Context) exportObjects(objs []host.Object) {
	var meshes []host.MeshObject
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		switch obj.Kind() {
		case host.KindMesh:
			if mo, ok := obj.(host.MeshObject); ok && c.settings.SyncMeshes {
				meshes = append(meshes, mo)
				continue
			}
			c.addTransform_(obj)
		case host.KindCamera:
			if c.settings.SyncCameras {
				c.addCamera_(obj)
			} else {
				c.addTransform_(obj)
			}
		case host.KindLight:
			if c.settings.SyncLights {
				c.addLight_(obj)
			} else {
				c.addTransform_(obj)
			}
		case host.KindArmature:
			c.addTransform_(obj)
			if arm, ok := obj.(host.ArmatureObject); ok && c.settings.SyncBones {
				c.exportArmature(arm)
			}
		default:
			c.addTransform_(obj)
		}
	}
	c.addMeshes(meshes)
}

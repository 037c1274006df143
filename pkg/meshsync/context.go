// Package meshsync mirrors a host scene graph into a remote viewer. A Context
// tracks which host entities changed, extracts them into transport entities,
// and sends the result on a background goroutine so the host thread never
// waits on the network.
package meshsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/meshutil"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrForeignHandle is returned when a value handed to a public entry point
	// is not a host entity of the expected kind.
	ErrForeignHandle  = errors.New("not a host entity")
	ErrDegenerateMesh = meshutil.ErrDegenerateMesh
	ErrNothingToSend  = errors.New("no prepared message to send")
	ErrSendInProgress = errors.New("a send is already in progress")
	ErrNoSender       = errors.New("no sender configured")
)

// Sender transmits a prepared message. It is called from the send goroutine
// and must honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg *scene.SetMessage) error
}

type SenderFunc func(ctx context.Context, msg *scene.SetMessage) error

func (f SenderFunc) Send(ctx context.Context, msg *scene.SetMessage) error {
	return f(ctx, msg)
}

// Context is the sync engine of one session. Except for AddObject, its
// methods must be called from a single driver goroutine.
type Context struct {
	settings Settings
	host     host.Scene
	sender   Sender
	logger   *Logger

	records *registry
	// added holds the handles exported at least once.
	added map[host.Handle]struct{}

	pendingLock sync.Mutex
	pending     map[host.Handle]host.Object
	pendingTmp  map[host.Handle]host.Object

	// Per-cycle armature state: bone handle -> exported transform.
	bones             map[host.Handle]*scene.Transform
	exportedArmatures map[host.Handle]struct{}

	transformCache *entityCache[*scene.Transform]
	cameraCache    *entityCache[*scene.Camera]
	lightCache     *entityCache[*scene.Light]
	meshCache      *entityCache[*scene.Mesh]

	materials     []*scene.Material
	materialIndex map[host.Handle]int
	materialsSent int

	scene *scene.Scene
	// exported maps a path to its position in scene.Objects.
	exported map[string]int
	// cycleObjects are the host objects exported into scene.
	cycleObjects []host.Object

	deleted    []string
	deletedSet map[string]struct{}

	report *SyncReport

	sendCtx    context.Context
	cancelSend context.CancelFunc
	seq        uint64
	message    *scene.SetMessage
	msgObjects []host.Object
	inflight   *sendTask
	lastErr    error
	failed     []host.Object
}

// NewContext creates a session over hostScene. hostScene may be nil when the
// caller only feeds objects explicitly; SyncAll then has nothing to traverse.
func NewContext(settings Settings, hostScene host.Scene, sender Sender) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		settings:          settings,
		host:              hostScene,
		sender:            sender,
		logger:            &Logger{RootLogger().With(zap.String("session", settings.ClientSettings.SessionName))},
		records:           newRegistry(),
		added:             make(map[host.Handle]struct{}),
		pending:           make(map[host.Handle]host.Object),
		pendingTmp:        make(map[host.Handle]host.Object),
		bones:             make(map[host.Handle]*scene.Transform),
		exportedArmatures: make(map[host.Handle]struct{}),
		transformCache:    newEntityCache(scene.EntityTransform, scene.NewTransform),
		cameraCache:       newEntityCache(scene.EntityCamera, scene.NewCamera),
		lightCache:        newEntityCache(scene.EntityLight, scene.NewLight),
		meshCache:         newEntityCache(scene.EntityMesh, scene.NewMesh),
		materialIndex:     make(map[host.Handle]int),
		scene:             scene.New(),
		exported:          make(map[string]int),
		deletedSet:        make(map[string]struct{}),
		report:            newSyncReport(),
		sendCtx:           ctx,
		cancelSend:        cancel,
	}
	c.scene.Settings = settings.SceneSettings
	return c
}

func (c *Context) Settings() Settings {
	return c.settings
}

// SetSettings replaces the settings. Entities exported afterwards follow them.
func (c *Context) SetSettings(settings Settings) {
	c.settings = settings
}

func (c *Context) Logger() *Logger {
	return c.logger
}

// Scene returns the scene being built by the current cycle.
func (c *Context) Scene() *scene.Scene {
	return c.scene
}

// cachesLent reports whether an outgoing message may reference cached entities.
func (c *Context) cachesLent() bool {
	return c.message != nil || c.inflight != nil
}

func (c *Context) addEntity(e scene.Entity, obj host.Object) {
	path := e.Base().Path
	if i, ok := c.exported[path]; ok {
		c.scene.Objects[i] = e
	} else {
		c.exported[path] = len(c.scene.Objects)
		c.scene.Objects = append(c.scene.Objects, e)
	}
	if obj != nil {
		c.cycleObjects = append(c.cycleObjects, obj)
		c.added[obj.Handle()] = struct{}{}
	}
	c.undelete(path)

	entitiesExtracted.WithLabelValues(e.Type().String()).Inc()
	c.report.Exported[e.Type()]++
	c.logger.Trace("exported entity", zap.String("path", path), zap.Stringer("type", e.Type()))
}

func (c *Context) undelete(path string) {
	if _, ok := c.deletedSet[path]; !ok {
		return
	}
	delete(c.deletedSet, path)
	for i, p := range c.deleted {
		if p == path {
			c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
			break
		}
	}
}

// AddDeleted reports path as deleted in the next message.
func (c *Context) AddDeleted(path string) {
	c.addDeleted(path, true)
}

func (c *Context) addDeleted(path string, markDead bool) {
	if _, dup := c.deletedSet[path]; dup {
		return
	}
	c.deletedSet[path] = struct{}{}
	c.deleted = append(c.deleted, path)
	c.report.Deleted++

	if markDead {
		if rec := c.records.findByPath(path); rec != nil {
			rec.Alive = false
		}
		c.dropSubtree(path)
	}
	if i, ok := c.exported[path]; ok {
		c.scene.Objects = append(c.scene.Objects[:i], c.scene.Objects[i+1:]...)
		c.reindexExported()
	}

	c.logger.Debug("entity deleted", zap.String("path", path))
	Event_EntityDeleted.Broadcast(DeletedEventData{Context: c, Path: path})
}

// dropSubtree marks the records below path dead and removes them from the
// current scene. The viewer deletes them together with path, so they are not
// reported one by one.
func (c *Context) dropSubtree(path string) {
	prefix := path + "/"
	for _, rec := range c.records.records() {
		if strings.HasPrefix(rec.Path, prefix) {
			rec.Alive = false
		}
	}
	kept := c.scene.Objects[:0]
	for _, e := range c.scene.Objects {
		if !strings.HasPrefix(e.Base().Path, prefix) {
			kept = append(kept, e)
		}
	}
	if len(kept) != len(c.scene.Objects) {
		c.scene.Objects = kept
		c.reindexExported()
	}
}

// resetScene drops the entities exported since the last Prepare.
func (c *Context) resetScene() {
	c.scene.Objects = c.scene.Objects[:0]
	c.scene.Animations = c.scene.Animations[:0]
	c.cycleObjects = c.cycleObjects[:0]
	for path := range c.exported {
		delete(c.exported, path)
	}
}

func (c *Context) reindexExported() {
	for k := range c.exported {
		delete(c.exported, k)
	}
	for i, e := range c.scene.Objects {
		c.exported[e.Base().Path] = i
	}
}

// Deleted returns the paths waiting to be reported as deleted.
func (c *Context) Deleted() []string {
	return c.deleted
}

// skip records a per-entity failure without aborting the pass.
func (c *Context) skip(kind string, obj host.Object, err error) {
	name := "<nil>"
	if obj != nil {
		name = obj.Name()
	}
	c.logger.Warn("skipped entity", zap.String("kind", kind), zap.String("object", name), zap.Error(err))
	entitiesSkipped.WithLabelValues(kind).Inc()
	c.report.Skipped++
	c.report.Err = multierr.Append(c.report.Err, fmt.Errorf("%s %q: %w", kind, name, err))
}

func asObject(v any) (host.Object, error) {
	obj, ok := v.(host.Object)
	if !ok || obj == nil || obj.Handle() == host.NoHandle {
		return nil, fmt.Errorf("%T: %w", v, ErrForeignHandle)
	}
	return obj, nil
}

package meshsync

import (
	"context"
	"time"

	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/zap"
)

type sendTask struct {
	msg     *scene.SetMessage
	objects []host.Object
	start   time.Time
	done    chan error
}

// Prepare moves the entities of the current cycle, the new materials and the
// pending deletions into the outgoing message, merging with a message that was
// prepared but not sent yet. It returns false when there was nothing new.
func (c *Context) Prepare() bool {
	c.scene.Settings = c.settings.SceneSettings
	for _, path := range c.deleted {
		c.scene.AddDeleted(path)
	}
	c.deleted = c.deleted[:0]
	for path := range c.deletedSet {
		delete(c.deletedSet, path)
	}
	if c.materialsSent < len(c.materials) {
		c.scene.Materials = append(c.scene.Materials, c.materials[c.materialsSent:]...)
		c.materialsSent = len(c.materials)
	}

	if c.scene.Empty() {
		return false
	}

	if c.message == nil {
		c.seq++
		c.message = &scene.SetMessage{Seq: c.seq, Scene: scene.New()}
	}
	c.message.SyncFlags = c.settings.SyncFlags()
	c.message.Scene.Merge(c.scene)
	c.msgObjects = append(c.msgObjects, c.cycleObjects...)

	c.logger.Trace("prepared message",
		zap.Uint64("seq", c.message.Seq),
		zap.Int("objects", len(c.message.Scene.Objects)),
		zap.Int("deleted", len(c.message.Scene.Deleted)),
	)

	c.scene.Clear()
	c.cycleObjects = nil
	for path := range c.exported {
		delete(c.exported, path)
	}
	return true
}

// Prepared returns the message waiting for Send, or nil.
func (c *Context) Prepared() *scene.SetMessage {
	return c.message
}

// Send hands the prepared message to a background goroutine. It never blocks:
// a send already in flight yields ErrSendInProgress and leaves both messages
// untouched.
func (c *Context) Send() error {
	if c.IsSending() {
		c.logger.Debug("send skipped, previous send in progress")
		return ErrSendInProgress
	}
	if c.message == nil {
		return ErrNothingToSend
	}
	if c.sender == nil {
		return ErrNoSender
	}

	task := &sendTask{
		msg:     c.message,
		objects: c.msgObjects,
		start:   time.Now(),
		done:    make(chan error, 1),
	}
	c.message = nil
	c.msgObjects = nil
	c.inflight = task

	sender, ctx := c.sender, c.sendCtx
	go func() {
		task.done <- sender.Send(ctx, task.msg)
	}()
	return nil
}

// IsSending polls the in-flight send. Once it has completed, its result is
// collected and the entity caches become reusable.
func (c *Context) IsSending() bool {
	if c.inflight == nil {
		return false
	}
	select {
	case err := <-c.inflight.done:
		c.complete(err)
		return false
	default:
		return true
	}
}

// Wait blocks until the in-flight send completes or ctx is done, and returns
// the send's error.
func (c *Context) Wait(ctx context.Context) error {
	if c.inflight == nil {
		return c.lastErr
	}
	select {
	case err := <-c.inflight.done:
		c.complete(err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) complete(err error) {
	task := c.inflight
	c.inflight = nil
	c.lastErr = err

	sendDuration.Observe(time.Since(task.start).Seconds())
	if err != nil {
		sendsTotal.WithLabelValues("error").Inc()
		c.failed = append(c.failed, task.objects...)
		c.logger.Error("send failed", zap.Uint64("seq", task.msg.Seq), zap.Error(err))
	} else {
		sendsTotal.WithLabelValues("ok").Inc()
		c.logger.Debug("sent", zap.Uint64("seq", task.msg.Seq), zap.Duration("duration", time.Since(task.start)))
	}
	Event_SendCompleted.Broadcast(SendResult{Context: c, Seq: task.msg.Seq, Err: err})
}

// LastSendError returns the result of the most recently collected send.
func (c *Context) LastSendError() error {
	return c.lastErr
}

// RequeueFailed marks the objects of failed sends pending again and returns
// how many were requeued.
func (c *Context) RequeueFailed() int {
	n := 0
	for _, obj := range c.failed {
		if c.AddObject(obj) == nil {
			n++
		}
	}
	c.failed = nil
	return n
}

// Close cancels the in-flight send and waits for its goroutine to return.
func (c *Context) Close() error {
	c.cancelSend()
	if c.inflight == nil {
		return nil
	}
	err := <-c.inflight.done
	c.complete(err)
	return err
}

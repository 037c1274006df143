package meshsync

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/zap"
)

// ExtractAnimations bakes the actions of objs into the current scene. Objects
// sharing an action land in the same clip.
func (c *Context) ExtractAnimations(objs []any) error {
	hostObjs := make([]host.Object, 0, len(objs))
	for _, v := range objs {
		o, err := asObject(v)
		if err != nil {
			return err
		}
		hostObjs = append(hostObjs, o)
	}
	c.exportAnimations(hostObjs)
	return nil
}

func (c *Context) exportAnimations(objs []host.Object) {
	clips := make(map[string]*scene.AnimationClip)
	var order []string
	for _, obj := range objs {
		animated, ok := obj.(host.Animated)
		if !ok {
			continue
		}
		action := animated.Action()
		if action == nil {
			continue
		}
		rec := c.records.findObject(obj)
		if rec == nil || !rec.Alive {
			continue
		}
		anim := c.bakeAction(rec.Path, action)
		if anim == nil {
			continue
		}

		clip, ok := clips[action.Name()]
		if !ok {
			clip = &scene.AnimationClip{Name: action.Name()}
			clips[action.Name()] = clip
			order = append(order, action.Name())
		}
		clip.Animations = append(clip.Animations, anim)
	}
	for _, name := range order {
		c.scene.Animations = append(c.scene.Animations, clips[name])
	}
	if len(order) > 0 {
		c.logger.Debug("exported animations", zap.Int("clips", len(order)))
	}
}

// sampleTimes returns the times an action is evaluated at: evenly spaced at
// AnimationSPS samples per second including both ends, or the key times.
func (c *Context) sampleTimes(action host.Action) []float32 {
	start, end := action.Range()
	if !c.settings.SampleAnimation || c.settings.AnimationSPS <= 0 {
		times := append([]float32(nil), action.KeyTimes()...)
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		return times
	}
	if end < start {
		return nil
	}
	step := 1 / float32(c.settings.AnimationSPS)
	var times []float32
	for i := 0; ; i++ {
		t := start + float32(i)*step
		if t >= end-step*1e-3 {
			break
		}
		times = append(times, t)
	}
	return append(times, end)
}

func (c *Context) bakeAction(path string, action host.Action) *scene.TransformAnimation {
	times := c.sampleTimes(action)
	if len(times) == 0 {
		return nil
	}
	anim := &scene.TransformAnimation{
		Path:        path,
		Times:       times,
		Translation: make([]mgl32.Vec3, 0, len(times)),
	}
	var t scene.Transform
	for _, time := range times {
		t.SetMatrix(action.Evaluate(time))
		anim.Translation = append(anim.Translation, t.Position)
		anim.Rotation = append(anim.Rotation, t.Rotation)
		anim.Scale = append(anim.Scale, t.Scale)
	}
	return anim
}

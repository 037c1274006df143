package memhost

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type Keyframe struct {
	Time     float32
	Position mgl32.Vec3
	// Rotation holds XYZ euler angles in degrees.
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

// Action interpolates keyframes linearly, with spherical interpolation of
// rotations.
type Action struct {
	name string
	keys []Keyframe
}

func NewAction(name string, keys ...Keyframe) *Action {
	sorted := append([]Keyframe(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &Action{name: name, keys: sorted}
}

func (a *Action) Name() string { return a.name }

func (a *Action) Range() (start, end float32) {
	if len(a.keys) == 0 {
		return 0, 0
	}
	return a.keys[0].Time, a.keys[len(a.keys)-1].Time
}

func (a *Action) KeyTimes() []float32 {
	times := make([]float32, len(a.keys))
	for i, k := range a.keys {
		times[i] = k.Time
	}
	return times
}

func (k *Keyframe) quat() mgl32.Quat {
	return mgl32.AnglesToQuat(
		mgl32.DegToRad(k.Rotation[0]),
		mgl32.DegToRad(k.Rotation[1]),
		mgl32.DegToRad(k.Rotation[2]),
		mgl32.XYZ,
	)
}

func (a *Action) Evaluate(t float32) mgl32.Mat4 {
	if len(a.keys) == 0 {
		return mgl32.Ident4()
	}
	if t <= a.keys[0].Time {
		k := a.keys[0]
		return trs(k.Position, k.Rotation, k.Scale)
	}
	last := a.keys[len(a.keys)-1]
	if t >= last.Time {
		return trs(last.Position, last.Rotation, last.Scale)
	}

	i := sort.Search(len(a.keys), func(i int) bool { return a.keys[i].Time > t })
	k0, k1 := a.keys[i-1], a.keys[i]
	f := (t - k0.Time) / (k1.Time - k0.Time)
	pos := k0.Position.Add(k1.Position.Sub(k0.Position).Mul(f))
	scale := k0.Scale.Add(k1.Scale.Sub(k0.Scale).Mul(f))
	rot := mgl32.QuatSlerp(k0.quat(), k1.quat(), f)
	return mgl32.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

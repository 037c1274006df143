package meshsync

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/scene"
	"go.uber.org/multierr"
)

// ErrUnsupportedKind is returned when an object lacks the data an extractor needs.
var ErrUnsupportedKind = fmt.Errorf("object kind not supported by this extractor: %w", ErrForeignHandle)

func (c *Context) AddTransform(obj any) (*scene.Transform, error) {
	o, err := asObject(obj)
	if err != nil {
		return nil, err
	}
	t := c.addTransform_(o)
	if t == nil {
		return nil, c.lastSkipErr()
	}
	return t, nil
}

func (c *Context) AddCamera(obj any) (*scene.Camera, error) {
	o, err := asObject(obj)
	if err != nil {
		return nil, err
	}
	cam := c.addCamera_(o)
	if cam == nil {
		return nil, c.lastSkipErr()
	}
	return cam, nil
}

func (c *Context) AddLight(obj any) (*scene.Light, error) {
	o, err := asObject(obj)
	if err != nil {
		return nil, err
	}
	l := c.addLight_(o)
	if l == nil {
		return nil, c.lastSkipErr()
	}
	return l, nil
}

func (c *Context) lastSkipErr() error {
	errs := multierr.Errors(c.report.Err)
	if len(errs) == 0 {
		return ErrForeignHandle
	}
	return errs[len(errs)-1]
}

func (c *Context) ExtractTransformData(dst *scene.Transform, obj any) error {
	o, err := asObject(obj)
	if err != nil {
		return err
	}
	rec, err := c.findOrAddObject(o)
	if err != nil {
		return err
	}
	c.extractTransformData_(dst, o, rec)
	return nil
}

func (c *Context) ExtractCameraData(dst *scene.Camera, obj any) error {
	o, err := asObject(obj)
	if err != nil {
		return err
	}
	rec, err := c.findOrAddObject(o)
	if err != nil {
		return err
	}
	return c.extractCameraData_(dst, o, rec)
}

func (c *Context) ExtractLightData(dst *scene.Light, obj any) error {
	o, err := asObject(obj)
	if err != nil {
		return err
	}
	rec, err := c.findOrAddObject(o)
	if err != nil {
		return err
	}
	return c.extractLightData_(dst, o, rec)
}

func (c *Context) addTransform_(obj host.Object) *scene.Transform {
	rec, err := c.findOrAddObject(obj)
	if err != nil {
		c.skip(scene.EntityTransform.String(), obj, err)
		return nil
	}
	dst := getCacheOrCreate(c, c.transformCache)
	c.extractTransformData_(dst, obj, rec)
	c.addEntity(dst, obj)
	return dst
}

func (c *Context) addCamera_(obj host.Object) *scene.Camera {
	rec, err := c.findOrAddObject(obj)
	if err != nil {
		c.skip(scene.EntityCamera.String(), obj, err)
		return nil
	}
	dst := getCacheOrCreate(c, c.cameraCache)
	if err := c.extractCameraData_(dst, obj, rec); err != nil {
		c.skip(scene.EntityCamera.String(), obj, err)
		return nil
	}
	c.addEntity(dst, obj)
	return dst
}

func (c *Context) addLight_(obj host.Object) *scene.Light {
	rec, err := c.findOrAddObject(obj)
	if err != nil {
		c.skip(scene.EntityLight.String(), obj, err)
		return nil
	}
	dst := getCacheOrCreate(c, c.lightCache)
	if err := c.extractLightData_(dst, obj, rec); err != nil {
		c.skip(scene.EntityLight.String(), obj, err)
		return nil
	}
	c.addEntity(dst, obj)
	return dst
}

func (c *Context) extractTransformData_(dst *scene.Transform, obj host.Object, rec *ObjectRecord) {
	extractTransform(dst, rec.Path, rec.LocalMatrix, obj.Visible())
}

func extractTransform(dst *scene.Transform, path string, local mgl32.Mat4, visible bool) {
	dst.Path = path
	dst.SetMatrix(local)
	dst.Visible = visible
}

func (c *Context) extractCameraData_(dst *scene.Camera, obj host.Object, rec *ObjectRecord) error {
	co, ok := obj.(host.CameraObject)
	if !ok {
		return fmt.Errorf("%s: %w", obj.Kind(), ErrUnsupportedKind)
	}
	c.extractTransformData_(&dst.Transform, obj, rec)

	data := co.Camera()
	dst.Ortho = data.Ortho
	if data.FocalLength > 0 && data.SensorHeight > 0 {
		fov := 2 * math.Atan(float64(data.SensorHeight)/(2*float64(data.FocalLength)))
		dst.FOV = float32(fov * 180 / math.Pi)
	}
	if data.Near > 0 {
		dst.NearPlane = data.Near
	}
	if data.Far > 0 {
		dst.FarPlane = data.Far
	}
	dst.OrthoSize = data.OrthoScale / 2
	return nil
}

func (c *Context) extractLightData_(dst *scene.Light, obj host.Object, rec *ObjectRecord) error {
	lo, ok := obj.(host.LightObject)
	if !ok {
		return fmt.Errorf("%s: %w", obj.Kind(), ErrUnsupportedKind)
	}
	c.extractTransformData_(&dst.Transform, obj, rec)

	data := lo.Light()
	switch data.Type {
	case host.LightSun:
		dst.LightType = scene.LightDirectional
	case host.LightPoint:
		dst.LightType = scene.LightPoint
	case host.LightSpot:
		dst.LightType = scene.LightSpot
		dst.SpotAngle = scene.SpotAngleFromRadians(data.SpotSize)
	case host.LightArea:
		dst.LightType = scene.LightArea
	}
	dst.Color = data.Color.Vec4(1)
	dst.Intensity = data.Energy
	dst.Range = data.Distance
	return nil
}

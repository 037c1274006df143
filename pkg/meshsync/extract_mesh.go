package meshsync

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/host"
	"github.com/metaworking/meshsync/pkg/meshutil"
	"github.com/metaworking/meshsync/pkg/scene"
	"golang.org/x/sync/errgroup"
)

// meshJob carries everything geometry extraction needs. Materials and bones are
// resolved on the driver goroutine beforehand, so run only reads the host mesh
// and writes dst.
type meshJob struct {
	obj      host.MeshObject
	dst      *scene.Mesh
	settings Settings
	world    mgl32.Mat4

	// materialIDs maps a material slot of the object to its session index.
	materialIDs []int32
	rootBone    string
	bones       map[string]boneBinding
}

type meshResult struct {
	index int
	err   error
}

func (c *Context) AddMesh(obj any) (*scene.Mesh, error) {
	o, err := asObject(obj)
	if err != nil {
		return nil, err
	}
	mo, ok := o.(host.MeshObject)
	if !ok {
		return nil, fmt.Errorf("%s: %w", o.Kind(), ErrUnsupportedKind)
	}
	job, err := c.prepareMeshJob(mo)
	if err != nil {
		c.skip(scene.EntityMesh.String(), mo, err)
		return nil, err
	}
	if err := job.run(); err != nil {
		c.skip(scene.EntityMesh.String(), mo, err)
		return nil, err
	}
	c.addEntity(job.dst, mo)
	return job.dst, nil
}

func (c *Context) ExtractMeshData(dst *scene.Mesh, obj any) error {
	o, err := asObject(obj)
	if err != nil {
		return err
	}
	mo, ok := o.(host.MeshObject)
	if !ok {
		return fmt.Errorf("%s: %w", o.Kind(), ErrUnsupportedKind)
	}
	rec, err := c.findOrAddObject(mo)
	if err != nil {
		return err
	}
	dst.Reset()
	return c.newMeshJob(mo, rec, dst).run()
}

func (c *Context) prepareMeshJob(mo host.MeshObject) (*meshJob, error) {
	rec, err := c.findOrAddObject(mo)
	if err != nil {
		return nil, err
	}
	return c.newMeshJob(mo, rec, getCacheOrCreate(c, c.meshCache)), nil
}

func (c *Context) newMeshJob(mo host.MeshObject, rec *ObjectRecord, dst *scene.Mesh) *meshJob {
	c.extractTransformData_(&dst.Transform, mo, rec)

	job := &meshJob{
		obj:      mo,
		dst:      dst,
		settings: c.settings,
		world:    rec.GlobalMatrix,
	}
	mats := mo.Materials()
	job.materialIDs = make([]int32, len(mats))
	for i, m := range mats {
		job.materialIDs[i] = int32(c.getMaterialIndex(m))
	}
	if c.settings.SyncBones {
		if arm := mo.Armature(); arm != nil {
			job.rootBone, job.bones = c.armatureBindings(arm)
		}
	}
	return job
}

// addMeshes extracts the geometry of meshes, on the worker pool when enabled,
// and adds the results to the scene in input order.
func (c *Context) addMeshes(meshes []host.MeshObject) {
	jobs := make([]*meshJob, 0, len(meshes))
	for _, mo := range meshes {
		job, err := c.prepareMeshJob(mo)
		if err != nil {
			c.skip(scene.EntityMesh.String(), mo, err)
			continue
		}
		jobs = append(jobs, job)
	}

	errs := c.runMeshJobs(jobs)
	for i, job := range jobs {
		if errs[i] != nil {
			c.skip(scene.EntityMesh.String(), job.obj, errs[i])
			continue
		}
		c.addEntity(job.dst, job.obj)
	}
}

func (c *Context) runMeshJobs(jobs []*meshJob) []error {
	errs := make([]error, len(jobs))
	workers := c.settings.ExtractWorkers
	if workers <= 1 || len(jobs) < 2 {
		for i, job := range jobs {
			errs[i] = job.run()
		}
		return errs
	}

	results := make(chan meshResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			results <- meshResult{index: i, err: job.run()}
			return nil
		})
	}
	// Jobs report through results and never fail the group.
	_ = g.Wait()
	close(results)
	for r := range results {
		errs[r.index] = r.err
	}
	return errs
}

func (j *meshJob) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during mesh extraction: %v", r)
		}
	}()

	if j.obj.InEditMode() {
		err = j.doExtractEditMeshData()
	} else {
		err = j.doExtractNonEditMeshData()
	}
	if err != nil {
		return err
	}

	if j.settings.SyncNormals == NormalsPerIndex && j.settings.CalcPerIndexNormals {
		meshutil.SplitPerIndex(j.dst, j.settings.normalEpsilon())
	}
	j.dst.UpdateFlags()
	return nil
}

func (j *meshJob) materialID(slot int) int32 {
	if slot >= 0 && slot < len(j.materialIDs) {
		return j.materialIDs[slot]
	}
	return -1
}

// doExtractNonEditMeshData reads the evaluated mesh.
func (j *meshJob) doExtractNonEditMeshData() error {
	md, err := j.obj.EvaluatedMesh()
	if err != nil {
		return fmt.Errorf("evaluating mesh: %w", err)
	}
	if md == nil {
		return fmt.Errorf("no evaluated mesh: %w", ErrDegenerateMesh)
	}
	dst := j.dst

	dst.Points = append(dst.Points, md.Points...)
	smooth := make([]bool, 0, len(md.Polygons))
	// corners lists the loop index of every face corner in polygon order.
	corners := make([]int32, 0, len(md.LoopVertices))
	for i, p := range md.Polygons {
		if p.LoopStart < 0 || p.LoopTotal < 0 || int(p.LoopStart)+int(p.LoopTotal) > len(md.LoopVertices) {
			return fmt.Errorf("polygon %d loops [%d, %d) exceed %d loops: %w",
				i, p.LoopStart, p.LoopStart+p.LoopTotal, len(md.LoopVertices), ErrDegenerateMesh)
		}
		dst.Counts = append(dst.Counts, p.LoopTotal)
		for l := p.LoopStart; l < p.LoopStart+p.LoopTotal; l++ {
			dst.Indices = append(dst.Indices, md.LoopVertices[l])
			corners = append(corners, l)
		}
		dst.MaterialIDs = append(dst.MaterialIDs, j.materialID(p.MaterialIndex))
		smooth = append(smooth, p.Smooth)
	}
	if err := meshutil.ValidateTopology(len(dst.Points), dst.Counts, dst.Indices); err != nil {
		return err
	}

	vertexNormals := func() []mgl32.Vec3 {
		if len(md.VertexNormals) == len(md.Points) {
			return md.VertexNormals
		}
		return meshutil.VertexNormals(dst.Points, dst.Counts, dst.Indices)
	}
	switch j.settings.SyncNormals {
	case NormalsPerVertex:
		dst.Normals = append(dst.Normals, vertexNormals()...)
	case NormalsPerIndex:
		if !j.settings.CalcPerIndexNormals && len(md.LoopNormals) == len(md.LoopVertices) {
			for _, l := range corners {
				dst.Normals = append(dst.Normals, md.LoopNormals[l])
			}
		} else {
			dst.Normals = append(dst.Normals, meshutil.PerIndexNormals(dst.Points, dst.Counts, dst.Indices, smooth, vertexNormals())...)
		}
	}

	if j.settings.SyncUVs && len(md.UVs) == len(md.LoopVertices) && len(md.UVs) > 0 {
		for _, l := range corners {
			dst.UV0 = append(dst.UV0, md.UVs[l])
		}
	}
	if j.settings.SyncColors && len(md.Colors) == len(md.LoopVertices) && len(md.Colors) > 0 {
		for _, l := range corners {
			dst.Colors = append(dst.Colors, md.Colors[l])
		}
	}

	j.extractBones(md)
	if j.settings.SyncBlendshapes {
		j.extractBlendShapes(md)
	}
	return nil
}

// doExtractEditMeshData reads the live edit mesh. It carries no skinning or
// shape keys.
func (j *meshJob) doExtractEditMeshData() error {
	em, err := j.obj.EditMesh()
	if err != nil {
		return fmt.Errorf("reading edit mesh: %w", err)
	}
	if em == nil {
		return fmt.Errorf("no edit mesh: %w", ErrDegenerateMesh)
	}
	dst := j.dst

	hasVertexNormals := true
	for _, v := range em.Verts {
		dst.Points = append(dst.Points, v.Co)
		if v.Normal.Len() == 0 {
			hasVertexNormals = false
		}
	}
	smooth := make([]bool, 0, len(em.Faces))
	hasUVs := len(em.Faces) > 0
	for _, f := range em.Faces {
		dst.Counts = append(dst.Counts, int32(len(f.Verts)))
		dst.Indices = append(dst.Indices, f.Verts...)
		dst.MaterialIDs = append(dst.MaterialIDs, j.materialID(f.MaterialIndex))
		smooth = append(smooth, f.Smooth)
		if len(f.UVs) != len(f.Verts) {
			hasUVs = false
		}
	}
	if err := meshutil.ValidateTopology(len(dst.Points), dst.Counts, dst.Indices); err != nil {
		return err
	}

	var vertexNormals []mgl32.Vec3
	if hasVertexNormals {
		vertexNormals = make([]mgl32.Vec3, len(em.Verts))
		for i, v := range em.Verts {
			vertexNormals[i] = v.Normal
		}
	} else {
		vertexNormals = meshutil.VertexNormals(dst.Points, dst.Counts, dst.Indices)
	}
	switch j.settings.SyncNormals {
	case NormalsPerVertex:
		dst.Normals = append(dst.Normals, vertexNormals...)
	case NormalsPerIndex:
		dst.Normals = append(dst.Normals, meshutil.PerIndexNormals(dst.Points, dst.Counts, dst.Indices, smooth, vertexNormals)...)
	}

	if j.settings.SyncUVs && hasUVs {
		for _, f := range em.Faces {
			dst.UV0 = append(dst.UV0, f.UVs...)
		}
	}
	return nil
}

// extractBones maps the vertex groups named after bones to bone indices and
// reduces every point to four influences.
func (j *meshJob) extractBones(md *host.MeshData) {
	if len(j.bones) == 0 || len(md.Weights) != len(md.Points) {
		return
	}
	dst := j.dst
	groupBone := make([]int32, len(md.VertexGroups))
	for gi, name := range md.VertexGroups {
		groupBone[gi] = -1
		b, ok := j.bones[name]
		if !ok {
			continue
		}
		groupBone[gi] = int32(len(dst.Bones))
		dst.Bones = append(dst.Bones, b.path)
		dst.BindPoses = append(dst.BindPoses, b.restGlobal.Inv().Mul4(j.world))
	}
	if len(dst.Bones) == 0 {
		return
	}
	dst.RootBone = j.rootBone

	var influences []meshutil.BoneWeight
	for _, ws := range md.Weights {
		influences = influences[:0]
		for _, w := range ws {
			if w.Group < 0 || w.Group >= len(groupBone) || groupBone[w.Group] < 0 {
				continue
			}
			influences = append(influences, meshutil.BoneWeight{Bone: groupBone[w.Group], Weight: w.Weight})
		}
		dst.Weights4 = append(dst.Weights4, meshutil.ReduceWeights(influences))
	}
}

// extractBlendShapes turns every shape key after the basis into a single
// frame of point deltas.
func (j *meshJob) extractBlendShapes(md *host.MeshData) {
	if len(md.ShapeKeys) < 2 || len(md.ShapeKeys[0].Points) != len(md.Points) {
		return
	}
	basis := md.ShapeKeys[0].Points
	for _, key := range md.ShapeKeys[1:] {
		if len(key.Points) != len(basis) {
			continue
		}
		frame := &scene.BlendShapeFrame{
			Weight: 100,
			Points: make([]mgl32.Vec3, len(basis)),
		}
		for i, p := range key.Points {
			frame.Points[i] = p.Sub(basis[i])
		}
		j.dst.BlendShapes = append(j.dst.BlendShapes, &scene.BlendShape{
			Name:   key.Name,
			Weight: key.Weight * 100,
			Frames: []*scene.BlendShapeFrame{frame},
		})
	}
}

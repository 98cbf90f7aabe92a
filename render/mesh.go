package render

import (
	"errors"
	"image"
	"sync/atomic"

	mgl32 "github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// meshResources are the GPU objects shared by a mesh and its clones.
type meshResources struct {
	vertices VertexBuffer
	texture  Texture
	sampler  Sampler
	refs     atomic.Int32
}

func (r *meshResources) retain() *meshResources {
	r.refs.Add(1)
	return r
}

func (r *meshResources) release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if r.sampler != nil {
		r.sampler.Destroy()
	}
	if r.texture != nil {
		r.texture.Destroy()
	}
	if r.vertices != nil {
		r.vertices.Destroy()
	}
}

// Mesh is a textured vertex list with its own transform.
type Mesh struct {
	ID        uuid.UUID
	Transform Transform
	// ComposeRotation folds Transform.Rotation into the model matrix.
	// Off by default: the model matrix is scale * translation.
	ComposeRotation bool

	res *meshResources
}

// NewMesh uploads vertices and the texture at texturePath. On failure
// nothing is left allocated.
func NewMesh(alloc Allocator, vertices []Vertex, texturePath string) (*Mesh, error) {
	img, err := LoadTexture(texturePath)
	if err != nil {
		return nil, &MeshError{Path: texturePath, Stage: "texture", Err: err}
	}
	m, err := NewMeshFromImage(alloc, vertices, img)
	var me *MeshError
	if errors.As(err, &me) && me.Path == "" {
		me.Path = texturePath
	}
	return m, err
}

// NewMeshFromImage is NewMesh for an already decoded texture.
func NewMeshFromImage(alloc Allocator, vertices []Vertex, img *image.RGBA) (*Mesh, error) {
	res := &meshResources{}
	res.refs.Store(1)

	vb, err := alloc.CreateVertexBuffer(vertices)
	if err != nil {
		return nil, &MeshError{Stage: "vertex buffer", Err: err}
	}
	res.vertices = vb

	tex, err := alloc.CreateTexture(img)
	if err != nil {
		res.release()
		return nil, &MeshError{Stage: "texture upload", Err: err}
	}
	res.texture = tex

	smp, err := alloc.CreateSampler(LinearRepeat)
	if err != nil {
		res.release()
		return nil, &MeshError{Stage: "sampler", Err: err}
	}
	res.sampler = smp

	return &Mesh{
		ID:        uuid.New(),
		Transform: NewTransform(),
		res:       res,
	}, nil
}

// Update computes the uniform payload for this mesh. The camera's World
// matrix is not used.
func (m *Mesh) Update(cam Camera) UniformBlock {
	model := m.Transform.Scale.Mul4(m.Transform.TranslationMatrix())
	if m.ComposeRotation {
		model = model.Mul4(m.Transform.Rotation)
	}
	return UniformBlock{
		Model:      model,
		View:       cam.View,
		Projection: cam.Projection,
	}
}

// Clone shares the GPU resources and copies the transform.
func (m *Mesh) Clone() *Mesh {
	c := *m
	if m.res != nil {
		c.res = m.res.retain()
	}
	return &c
}

// Release drops this handle's reference; the last one destroys the GPU
// objects.
func (m *Mesh) Release() {
	if m.res == nil {
		return
	}
	m.res.release()
	m.res = nil
}

func (m *Mesh) VertexCount() int {
	if m.res == nil || m.res.vertices == nil {
		return 0
	}
	return m.res.vertices.Len()
}

func (m *Mesh) Vertices() VertexBuffer { return m.res.vertices }
func (m *Mesh) Texture() Texture       { return m.res.texture }
func (m *Mesh) Sampler() Sampler       { return m.res.sampler }

// ModelMatrix is Update's model term on its own.
func (m *Mesh) ModelMatrix() mgl32.Mat4 {
	return m.Update(Camera{}).Model
}

package render

import (
	"image"
	"time"
)

type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

type VertexBuffer interface {
	Len() int
	Destroy()
}

type Texture interface {
	Size() (width, height int)
	Destroy()
}

type Sampler interface {
	Destroy()
}

// PipelineHandle identifies a graphics pipeline owned by a Device.
type PipelineHandle interface {
	Name() string
}

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

type SamplerDesc struct {
	MagFilter, MinFilter         Filter
	AddressU, AddressV, AddressW AddressMode
	MipLodBias, MinLod, MaxLod   float32
}

// LinearRepeat is the sampler every mesh is built with: linear filtering,
// repeat addressing on all axes, no mipmapping.
var LinearRepeat = SamplerDesc{
	MagFilter: FilterLinear,
	MinFilter: FilterLinear,
	AddressU:  AddressRepeat,
	AddressV:  AddressRepeat,
	AddressW:  AddressRepeat,
}

// Allocator creates the GPU objects backing a Mesh.
type Allocator interface {
	CreateVertexBuffer(vertices []Vertex) (VertexBuffer, error)
	CreateTexture(img *image.RGBA) (Texture, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
}

// Recorder receives the commands of one frame's render pass.
type Recorder interface {
	BindPipeline(p PipelineHandle)
	SetViewport(extent Extent)
	// WriteUniform claims a region of the frame's uniform buffer and copies
	// block into it.
	WriteUniform(block UniformBlock) (UniformRange, error)
	// BindResources allocates a descriptor set from the frame's pool, points
	// it at ubo, tex and smp, and binds it.
	BindResources(ubo UniformRange, tex Texture, smp Sampler) error
	Draw(vb VertexBuffer)
	End() error
}

// Device is the GPU half of the frame protocol. Slots index the in-flight
// frame resources; images index the swapchain.
type Device interface {
	Allocator

	ImageCount() int
	FramesInFlight() int
	Extent() Extent
	GraphicsPipeline() PipelineHandle

	// WaitFrame blocks until the work last submitted from slot completed.
	WaitFrame(slot int, timeout time.Duration) error
	// PrepareFrame recycles slot's uniform and descriptor storage, sized
	// for draws meshes. The slot's fence must have signaled.
	PrepareFrame(slot, draws int) error
	Acquire(slot int, timeout time.Duration) (uint32, error)
	// Begin starts the slot's command buffer and the render pass on the
	// framebuffer of image, clearing color to opaque black and depth to 1.
	Begin(slot int, image uint32) (Recorder, error)
	Submit(slot int, image uint32) error
	Present(slot int, image uint32) error

	RecreateSwapchain() error
	WaitIdle() error
	Destroy()
}

package render

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// fakeDevice is an in-memory Device that records the frame protocol.
type fakeDevice struct {
	images int
	slots  int
	extent Extent

	nextImage uint32
	calls     []string
	begun     []uint32
	rec       *fakeRecorder
	live      int
	recreated int
	idle      bool
	destroyed bool

	waitErr, prepareErr, acquireErr   error
	beginErr, submitErr, presentErr   error
	recreateErr                       error
	vertexErr, textureErr, samplerErr error
	uniformErr                        error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		images: 3,
		slots:  2,
		extent: Extent{Width: 800, Height: 800},
	}
}

// take returns *err and clears it so failures are one-shot.
func take(err *error) error {
	e := *err
	*err = nil
	return e
}

func (d *fakeDevice) log(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) ImageCount() int                  { return d.images }
func (d *fakeDevice) FramesInFlight() int              { return d.slots }
func (d *fakeDevice) Extent() Extent                   { return d.extent }
func (d *fakeDevice) GraphicsPipeline() PipelineHandle { return fakePipeline("textured") }

func (d *fakeDevice) WaitFrame(slot int, timeout time.Duration) error {
	d.log("wait %d", slot)
	return take(&d.waitErr)
}

func (d *fakeDevice) PrepareFrame(slot, draws int) error {
	d.log("prepare %d %d", slot, draws)
	return take(&d.prepareErr)
}

func (d *fakeDevice) Acquire(slot int, timeout time.Duration) (uint32, error) {
	d.log("acquire %d", slot)
	if err := take(&d.acquireErr); err != nil {
		return 0, err
	}
	img := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(d.images)
	return img, nil
}

func (d *fakeDevice) Begin(slot int, image uint32) (Recorder, error) {
	d.log("begin %d %d", slot, image)
	if err := take(&d.beginErr); err != nil {
		return nil, err
	}
	d.begun = append(d.begun, image)
	d.rec = &fakeRecorder{dev: d}
	return d.rec, nil
}

func (d *fakeDevice) Submit(slot int, image uint32) error {
	d.log("submit %d %d", slot, image)
	return take(&d.submitErr)
}

func (d *fakeDevice) Present(slot int, image uint32) error {
	d.log("present %d %d", slot, image)
	return take(&d.presentErr)
}

func (d *fakeDevice) RecreateSwapchain() error {
	d.log("recreate")
	if err := take(&d.recreateErr); err != nil {
		return err
	}
	d.recreated++
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.idle = true
	return nil
}

func (d *fakeDevice) Destroy() { d.destroyed = true }

func (d *fakeDevice) CreateVertexBuffer(vertices []Vertex) (VertexBuffer, error) {
	if err := take(&d.vertexErr); err != nil {
		return nil, err
	}
	d.live++
	return &fakeBuffer{dev: d, n: len(vertices)}, nil
}

func (d *fakeDevice) CreateTexture(img *image.RGBA) (Texture, error) {
	if err := take(&d.textureErr); err != nil {
		return nil, err
	}
	d.live++
	return &fakeTexture{dev: d, w: img.Rect.Dx(), h: img.Rect.Dy()}, nil
}

func (d *fakeDevice) CreateSampler(desc SamplerDesc) (Sampler, error) {
	if err := take(&d.samplerErr); err != nil {
		return nil, err
	}
	d.live++
	return &fakeSampler{dev: d, desc: desc}, nil
}

type fakePipeline string

func (p fakePipeline) Name() string { return string(p) }

type fakeBuffer struct {
	dev *fakeDevice
	n   int
}

func (b *fakeBuffer) Len() int { return b.n }
func (b *fakeBuffer) Destroy() { b.dev.live-- }

type fakeTexture struct {
	dev  *fakeDevice
	w, h int
}

func (t *fakeTexture) Size() (int, int) { return t.w, t.h }
func (t *fakeTexture) Destroy()         { t.dev.live-- }

type fakeSampler struct {
	dev  *fakeDevice
	desc SamplerDesc
}

func (s *fakeSampler) Destroy() { s.dev.live-- }

type fakeRecorder struct {
	dev      *fakeDevice
	ops      []string
	uniforms []UniformBlock
	draws    []VertexBuffer
	next     uint64
	ended    bool
}

func (r *fakeRecorder) BindPipeline(p PipelineHandle) {
	r.ops = append(r.ops, "pipeline "+p.Name())
}

func (r *fakeRecorder) SetViewport(extent Extent) {
	r.ops = append(r.ops, fmt.Sprintf("viewport %dx%d", extent.Width, extent.Height))
}

func (r *fakeRecorder) WriteUniform(block UniformBlock) (UniformRange, error) {
	if err := take(&r.dev.uniformErr); err != nil {
		return UniformRange{}, err
	}
	rng := UniformRange{Offset: r.next, Size: UniformBlockSize}
	r.next += 256
	r.uniforms = append(r.uniforms, block)
	r.ops = append(r.ops, fmt.Sprintf("uniform %d", rng.Offset))
	return rng, nil
}

func (r *fakeRecorder) BindResources(ubo UniformRange, tex Texture, smp Sampler) error {
	if tex == nil || smp == nil {
		return errors.New("missing texture or sampler")
	}
	r.ops = append(r.ops, fmt.Sprintf("bind %d", ubo.Offset))
	return nil
}

func (r *fakeRecorder) Draw(vb VertexBuffer) {
	r.draws = append(r.draws, vb)
	r.ops = append(r.ops, fmt.Sprintf("draw %d", vb.Len()))
}

func (r *fakeRecorder) End() error {
	r.ended = true
	r.ops = append(r.ops, "end")
	return nil
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

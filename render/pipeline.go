package render

// FrameState is what a pipeline sees of the frame being recorded.
type FrameState struct {
	Slot   int
	Image  uint32
	Camera Camera
	Extent Extent
}

// Pipeline records the commands of one pipeline variant. Bind runs once per
// frame, Draw once per queued mesh.
type Pipeline interface {
	Bind(rec Recorder, frame *FrameState)
	Draw(rec Recorder, mesh *Mesh, frame *FrameState) error
}

// TexturedPipeline draws meshes with one descriptor set per mesh holding
// the mesh's uniform block, texture and sampler.
type TexturedPipeline struct {
	handle PipelineHandle
}

func NewTexturedPipeline(handle PipelineHandle) *TexturedPipeline {
	return &TexturedPipeline{handle: handle}
}

func (p *TexturedPipeline) Bind(rec Recorder, frame *FrameState) {
	rec.BindPipeline(p.handle)
	rec.SetViewport(frame.Extent)
}

func (p *TexturedPipeline) Draw(rec Recorder, mesh *Mesh, frame *FrameState) error {
	if mesh.VertexCount() == 0 {
		return nil
	}
	ubo, err := rec.WriteUniform(mesh.Update(frame.Camera))
	if err != nil {
		return err
	}
	if err := rec.BindResources(ubo, mesh.Texture(), mesh.Sampler()); err != nil {
		return err
	}
	rec.Draw(mesh.Vertices())
	return nil
}

package vk

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

var errForeignResource = errors.New("resource was not created by this device")

// recorder writes one frame's render pass into its slot's command buffer.
type recorder struct {
	dev   *Device
	frame *frameSlot
	ended bool
}

func (r *recorder) BindPipeline(p render.PipelineHandle) {
	if p != texturedPipeline {
		r.dev.log.Warnf("unknown pipeline %q, binding %q", p.Name(), texturedPipeline)
	}
	vulkan.CmdBindPipeline(r.frame.cmd, vulkan.PipelineBindPointGraphics, r.dev.pipeline)
}

func (r *recorder) SetViewport(extent render.Extent) {
	viewport := vulkan.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vulkan.Rect2D{
		Offset: vulkan.Offset2D{X: 0, Y: 0},
		Extent: vulkan.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vulkan.CmdSetViewport(r.frame.cmd, 0, 1, []vulkan.Viewport{viewport})
	vulkan.CmdSetScissor(r.frame.cmd, 0, 1, []vulkan.Rect2D{scissor})
}

func (r *recorder) WriteUniform(block render.UniformBlock) (render.UniformRange, error) {
	rng, err := r.frame.ring.Claim()
	if err != nil {
		return rng, err
	}
	dst := mappedBytes(unsafe.Add(r.frame.uniformData, rng.Offset), int(rng.Size))
	copy(dst, block.Bytes())
	return rng, nil
}

func (r *recorder) BindResources(ubo render.UniformRange, tex render.Texture, smp render.Sampler) error {
	t, ok := tex.(*texture)
	if !ok || t.dev != r.dev {
		return fmt.Errorf("texture: %w", errForeignResource)
	}
	s, ok := smp.(*sampler)
	if !ok || s.dev != r.dev {
		return fmt.Errorf("sampler: %w", errForeignResource)
	}

	allocInfo := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.frame.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vulkan.DescriptorSetLayout{r.dev.descriptorSetLayout},
	}
	var set vulkan.DescriptorSet
	if res := vulkan.AllocateDescriptorSets(r.dev.device, &allocInfo, &set); res != vulkan.Success {
		return fmt.Errorf("allocate descriptor set: %w", vulkan.Error(res))
	}

	writes := []vulkan.WriteDescriptorSet{
		{
			SType:           vulkan.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
			PBufferInfo: []vulkan.DescriptorBufferInfo{{
				Buffer: r.frame.uniformBuffer,
				Offset: vulkan.DeviceSize(ubo.Offset),
				Range:  vulkan.DeviceSize(ubo.Size),
			}},
		},
		{
			SType:           vulkan.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vulkan.DescriptorTypeSampledImage,
			PImageInfo: []vulkan.DescriptorImageInfo{{
				ImageView:   t.view,
				ImageLayout: vulkan.ImageLayoutShaderReadOnlyOptimal,
			}},
		},
		{
			SType:           vulkan.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      2,
			DescriptorCount: 1,
			DescriptorType:  vulkan.DescriptorTypeSampler,
			PImageInfo: []vulkan.DescriptorImageInfo{{
				Sampler: s.handle,
			}},
		},
	}
	vulkan.UpdateDescriptorSets(r.dev.device, uint32(len(writes)), writes, 0, nil)
	vulkan.CmdBindDescriptorSets(r.frame.cmd, vulkan.PipelineBindPointGraphics, r.dev.pipelineLayout, 0, 1, []vulkan.DescriptorSet{set}, 0, nil)
	return nil
}

func (r *recorder) Draw(vb render.VertexBuffer) {
	b, ok := vb.(*vertexBuffer)
	if !ok || b.count == 0 || b.buffer == vulkan.Buffer(vulkan.NullHandle) {
		return
	}
	vulkan.CmdBindVertexBuffers(r.frame.cmd, 0, 1, []vulkan.Buffer{b.buffer}, []vulkan.DeviceSize{0})
	vulkan.CmdDraw(r.frame.cmd, uint32(b.count), 1, 0, 0)
}

// End closes the render pass and the command buffer. Calling it twice is a
// no-op.
func (r *recorder) End() error {
	if r.ended {
		return nil
	}
	r.ended = true
	vulkan.CmdEndRenderPass(r.frame.cmd)
	if res := vulkan.EndCommandBuffer(r.frame.cmd); res != vulkan.Success {
		return fmt.Errorf("end command buffer: %w", vulkan.Error(res))
	}
	return nil
}

package vk

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

const minDescriptorSets = 16

// frameSlot is everything one in-flight frame records into. None of it is
// touched again until fence signals.
type frameSlot struct {
	cmd            vulkan.CommandBuffer
	imageAvailable vulkan.Semaphore
	renderFinished vulkan.Semaphore
	fence          vulkan.Fence

	ring          *render.UniformRing
	uniformBuffer vulkan.Buffer
	uniformMemory vulkan.DeviceMemory
	uniformData   unsafe.Pointer

	descriptorPool vulkan.DescriptorPool
	poolSets       int
}

func (d *Device) createFrameSlots() error {
	n := d.cfg.FramesInFlight
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	cmds := make([]vulkan.CommandBuffer, n)
	if res := vulkan.AllocateCommandBuffers(d.device, &allocInfo, cmds); res != vulkan.Success {
		return fmt.Errorf("allocate command buffers: %w", vulkan.Error(res))
	}

	d.frames = make([]*frameSlot, n)
	for i := range d.frames {
		d.frames[i] = &frameSlot{
			cmd:  cmds[i],
			ring: render.NewUniformRing(render.UniformBlockSize, d.uniformAlign),
		}
	}
	if err := d.createSyncObjects(); err != nil {
		return err
	}
	for i := range d.frames {
		if err := d.growFrameStorage(d.frames[i], 0); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func (d *Device) createSyncObjects() error {
	semInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
		Flags: vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit),
	}
	for i, f := range d.frames {
		if res := vulkan.CreateSemaphore(d.device, &semInfo, nil, &f.imageAvailable); res != vulkan.Success {
			return fmt.Errorf("create imageAvailable semaphore %d: %w", i, vulkan.Error(res))
		}
		if res := vulkan.CreateSemaphore(d.device, &semInfo, nil, &f.renderFinished); res != vulkan.Success {
			return fmt.Errorf("create renderFinished semaphore %d: %w", i, vulkan.Error(res))
		}
		if res := vulkan.CreateFence(d.device, &fenceInfo, nil, &f.fence); res != vulkan.Success {
			return fmt.Errorf("create fence %d: %w", i, vulkan.Error(res))
		}
	}
	return nil
}

func (d *Device) destroySyncObjects() {
	for _, f := range d.frames {
		if f.imageAvailable != vulkan.Semaphore(vulkan.NullHandle) {
			vulkan.DestroySemaphore(d.device, f.imageAvailable, nil)
			f.imageAvailable = vulkan.Semaphore(vulkan.NullHandle)
		}
		if f.renderFinished != vulkan.Semaphore(vulkan.NullHandle) {
			vulkan.DestroySemaphore(d.device, f.renderFinished, nil)
			f.renderFinished = vulkan.Semaphore(vulkan.NullHandle)
		}
		if f.fence != vulkan.Fence(vulkan.NullHandle) {
			vulkan.DestroyFence(d.device, f.fence, nil)
			f.fence = vulkan.Fence(vulkan.NullHandle)
		}
	}
}

// resetSyncObjects runs with the device idle.
func (d *Device) resetSyncObjects() error {
	d.destroySyncObjects()
	return d.createSyncObjects()
}

func (d *Device) destroyFrameStorage(f *frameSlot) {
	if f.uniformData != nil {
		vulkan.UnmapMemory(d.device, f.uniformMemory)
		f.uniformData = nil
	}
	if f.uniformBuffer != vulkan.Buffer(vulkan.NullHandle) {
		vulkan.DestroyBuffer(d.device, f.uniformBuffer, nil)
		f.uniformBuffer = vulkan.Buffer(vulkan.NullHandle)
	}
	if f.uniformMemory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(d.device, f.uniformMemory, nil)
		f.uniformMemory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
	if f.descriptorPool != vulkan.DescriptorPool(vulkan.NullHandle) {
		vulkan.DestroyDescriptorPool(d.device, f.descriptorPool, nil)
		f.descriptorPool = vulkan.DescriptorPool(vulkan.NullHandle)
	}
	f.poolSets = 0
}

func (d *Device) destroyFrameSlots() {
	d.destroySyncObjects()
	cmds := make([]vulkan.CommandBuffer, 0, len(d.frames))
	for _, f := range d.frames {
		d.destroyFrameStorage(f)
		if f.cmd != nil {
			cmds = append(cmds, f.cmd)
		}
	}
	if len(cmds) > 0 {
		vulkan.FreeCommandBuffers(d.device, d.commandPool, uint32(len(cmds)), cmds)
	}
	d.frames = nil
}

// growFrameStorage makes room for draws meshes in the slot's uniform
// buffer and descriptor pool. Both are only replaced while the slot is idle.
func (d *Device) growFrameStorage(f *frameSlot, draws int) error {
	if f.ring.Reserve(draws) || f.uniformBuffer == vulkan.Buffer(vulkan.NullHandle) {
		if err := d.allocateUniformRing(f); err != nil {
			return err
		}
	}
	if draws > f.poolSets || f.descriptorPool == vulkan.DescriptorPool(vulkan.NullHandle) {
		if err := d.allocateDescriptorPool(f, max(f.ring.Capacity(), draws)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) allocateUniformRing(f *frameSlot) error {
	if f.ring.Capacity() == 0 {
		f.ring.Reserve(minDescriptorSets)
	}
	if f.uniformData != nil {
		vulkan.UnmapMemory(d.device, f.uniformMemory)
		f.uniformData = nil
	}
	if f.uniformBuffer != vulkan.Buffer(vulkan.NullHandle) {
		vulkan.DestroyBuffer(d.device, f.uniformBuffer, nil)
		vulkan.FreeMemory(d.device, f.uniformMemory, nil)
		f.uniformBuffer = vulkan.Buffer(vulkan.NullHandle)
		f.uniformMemory = vulkan.DeviceMemory(vulkan.NullHandle)
	}

	size := vulkan.DeviceSize(f.ring.BufferSize())
	buf, mem, err := d.createBuffer(size, vulkan.BufferUsageFlags(vulkan.BufferUsageUniformBufferBit), vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	f.uniformBuffer, f.uniformMemory = buf, mem

	var data unsafe.Pointer
	if res := vulkan.MapMemory(d.device, mem, 0, size, 0, &data); res != vulkan.Success {
		return fmt.Errorf("map uniform buffer: %w", vulkan.Error(res))
	}
	f.uniformData = data
	d.log.Debugf("uniform ring: %d blocks, stride %d", f.ring.Capacity(), f.ring.Stride())
	return nil
}

func (d *Device) allocateDescriptorPool(f *frameSlot, sets int) error {
	if sets < minDescriptorSets {
		sets = minDescriptorSets
	}
	if f.descriptorPool != vulkan.DescriptorPool(vulkan.NullHandle) {
		vulkan.DestroyDescriptorPool(d.device, f.descriptorPool, nil)
		f.descriptorPool = vulkan.DescriptorPool(vulkan.NullHandle)
		f.poolSets = 0
	}
	poolSizes := make([]vulkan.DescriptorPoolSize, len(descriptorBindings))
	for i, b := range descriptorBindings {
		poolSizes[i] = vulkan.DescriptorPoolSize{
			Type:            b.DescriptorType,
			DescriptorCount: uint32(sets),
		}
	}
	poolInfo := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(sets),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vulkan.CreateDescriptorPool(d.device, &poolInfo, nil, &f.descriptorPool); res != vulkan.Success {
		return fmt.Errorf("create descriptor pool: %w", vulkan.Error(res))
	}
	f.poolSets = sets
	return nil
}

func (d *Device) slot(i int) (*frameSlot, error) {
	if i < 0 || i >= len(d.frames) {
		return nil, fmt.Errorf("frame slot %d out of range [0, %d)", i, len(d.frames))
	}
	return d.frames[i], nil
}

func (d *Device) WaitFrame(slot int, timeout time.Duration) error {
	f, err := d.slot(slot)
	if err != nil {
		return err
	}
	res := vulkan.WaitForFences(d.device, 1, []vulkan.Fence{f.fence}, vulkan.True, timeoutNanos(timeout))
	return resultError("wait for frame fence", res)
}

// PrepareFrame recycles the slot's uniform ring and descriptor sets.
func (d *Device) PrepareFrame(slot, draws int) error {
	f, err := d.slot(slot)
	if err != nil {
		return err
	}
	f.ring.Reset()
	if err := d.growFrameStorage(f, draws); err != nil {
		return err
	}
	return resultError("reset descriptor pool", vulkan.ResetDescriptorPool(d.device, f.descriptorPool, 0))
}

// Acquire takes the next swapchain image. If an earlier frame still renders
// to that image, Acquire waits for it.
func (d *Device) Acquire(slot int, timeout time.Duration) (uint32, error) {
	f, err := d.slot(slot)
	if err != nil {
		return 0, err
	}
	var image uint32
	res := vulkan.AcquireNextImage(d.device, d.swapchain, timeoutNanos(timeout), f.imageAvailable, vulkan.Fence(vulkan.NullHandle), &image)
	if res != vulkan.Success && res != vulkan.Suboptimal {
		return 0, resultError("acquire next image", res)
	}

	if prev := d.imagesInFlight[image]; prev != vulkan.Fence(vulkan.NullHandle) && prev != f.fence {
		res := vulkan.WaitForFences(d.device, 1, []vulkan.Fence{prev}, vulkan.True, timeoutNanos(timeout))
		if err := resultError("wait for image fence", res); err != nil {
			return 0, heldImageError(image, err)
		}
	}
	d.imagesInFlight[image] = f.fence
	return image, nil
}

func (d *Device) Begin(slot int, image uint32) (render.Recorder, error) {
	f, err := d.slot(slot)
	if err != nil {
		return nil, err
	}
	if int(image) >= len(d.framebuffers) {
		return nil, fmt.Errorf("image %d has no framebuffer (%d images)", image, len(d.framebuffers))
	}

	vulkan.ResetCommandBuffer(f.cmd, 0)
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vulkan.BeginCommandBuffer(f.cmd, &beginInfo); res != vulkan.Success {
		return nil, fmt.Errorf("begin command buffer: %w", vulkan.Error(res))
	}

	clearValues := []vulkan.ClearValue{
		vulkan.NewClearValue([]float32{0, 0, 0, 1}),
		vulkan.NewClearDepthStencil(1.0, 0),
	}
	renderPassInfo := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPass,
		Framebuffer: d.framebuffers[image],
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: d.swapchainExtent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vulkan.CmdBeginRenderPass(f.cmd, &renderPassInfo, vulkan.SubpassContentsInline)

	return &recorder{dev: d, frame: f}, nil
}

func (d *Device) Submit(slot int, image uint32) error {
	f, err := d.slot(slot)
	if err != nil {
		return err
	}
	// reset only once work that signals the fence is certain to be queued
	if res := vulkan.ResetFences(d.device, 1, []vulkan.Fence{f.fence}); res != vulkan.Success {
		return resultError("reset fence", res)
	}

	waitStages := []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)}
	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{f.imageAvailable},
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{f.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{f.renderFinished},
	}
	res := vulkan.QueueSubmit(d.graphicsQueue, 1, []vulkan.SubmitInfo{submitInfo}, f.fence)
	return resultError("queue submit", res)
}

func (d *Device) Present(slot int, image uint32) error {
	f, err := d.slot(slot)
	if err != nil {
		return err
	}
	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{f.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{d.swapchain},
		PImageIndices:      []uint32{image},
	}
	return resultError("queue present", vulkan.QueuePresent(d.presentQueue, &presentInfo))
}

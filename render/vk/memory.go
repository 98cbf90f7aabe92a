package vk

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/vulkan-go/vulkan"
)

var errNoMemoryType = errors.New("no suitable memory type")

func (d *Device) findMemoryType(typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, error) {
	var memProps vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(d.physicalDevice, &memProps)
	memProps.Deref()

	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memoryType := memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&vulkan.MemoryPropertyFlags(properties) == vulkan.MemoryPropertyFlags(properties) {
			return i, nil
		}
	}
	return 0, errNoMemoryType
}

func (d *Device) createBuffer(size vulkan.DeviceSize, usage vulkan.BufferUsageFlags, properties vulkan.MemoryPropertyFlagBits) (vulkan.Buffer, vulkan.DeviceMemory, error) {
	bufferInfo := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buffer vulkan.Buffer
	if res := vulkan.CreateBuffer(d.device, &bufferInfo, nil, &buffer); res != vulkan.Success {
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("create buffer: %w", vulkan.Error(res))
	}
	var memReq vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.device, buffer, &memReq)
	memReq.Deref()

	typeIndex, err := d.findMemoryType(memReq.MemoryTypeBits, properties)
	if err != nil {
		vulkan.DestroyBuffer(d.device, buffer, nil)
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("buffer memory: %w", err)
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	var bufferMemory vulkan.DeviceMemory
	if res := vulkan.AllocateMemory(d.device, &allocInfo, nil, &bufferMemory); res != vulkan.Success {
		vulkan.DestroyBuffer(d.device, buffer, nil)
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("allocate buffer memory: %w", vulkan.Error(res))
	}
	vulkan.BindBufferMemory(d.device, buffer, bufferMemory, 0)
	return buffer, bufferMemory, nil
}

// mappedBytes views n bytes of mapped device memory.
func mappedBytes(ptr unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}

// upload copies data into host-visible memory.
func (d *Device) upload(mem vulkan.DeviceMemory, data []byte) error {
	size := vulkan.DeviceSize(len(data))
	var ptr unsafe.Pointer
	if res := vulkan.MapMemory(d.device, mem, 0, size, 0, &ptr); res != vulkan.Success {
		return fmt.Errorf("map memory: %w", vulkan.Error(res))
	}
	copy(mappedBytes(ptr, len(data)), data)
	vulkan.UnmapMemory(d.device, mem)
	return nil
}

func (d *Device) createImage(width, height uint32, format vulkan.Format, tiling vulkan.ImageTiling, usage vulkan.ImageUsageFlags, properties vulkan.MemoryPropertyFlagBits) (vulkan.Image, vulkan.DeviceMemory, error) {
	createInfo := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Extent: vulkan.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vulkan.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vulkan.SampleCount1Bit,
		SharingMode:   vulkan.SharingModeExclusive,
	}

	var image vulkan.Image
	if res := vulkan.CreateImage(d.device, &createInfo, nil, &image); res != vulkan.Success {
		return vulkan.Image(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("create image: %w", vulkan.Error(res))
	}

	var memRequirements vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(d.device, image, &memRequirements)
	memRequirements.Deref()

	typeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		vulkan.DestroyImage(d.device, image, nil)
		return vulkan.Image(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("image memory: %w", err)
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vulkan.DeviceMemory
	if res := vulkan.AllocateMemory(d.device, &allocInfo, nil, &memory); res != vulkan.Success {
		vulkan.DestroyImage(d.device, image, nil)
		return vulkan.Image(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("allocate image memory: %w", vulkan.Error(res))
	}
	if res := vulkan.BindImageMemory(d.device, image, memory, 0); res != vulkan.Success {
		vulkan.DestroyImage(d.device, image, nil)
		vulkan.FreeMemory(d.device, memory, nil)
		return vulkan.Image(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), fmt.Errorf("bind image memory: %w", vulkan.Error(res))
	}
	return image, memory, nil
}

func (d *Device) createImageView(image vulkan.Image, format vulkan.Format, aspectFlags vulkan.ImageAspectFlags) (vulkan.ImageView, error) {
	viewInfo := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vulkan.ImageViewType2d,
		Format:   format,
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vulkan.ImageView
	if res := vulkan.CreateImageView(d.device, &viewInfo, nil, &view); res != vulkan.Success {
		return vulkan.ImageView(vulkan.NullHandle), fmt.Errorf("create image view: %w", vulkan.Error(res))
	}
	return view, nil
}

// submitOnce records fn into a throwaway command buffer and waits for the
// graphics queue to finish it.
func (d *Device) submitOnce(fn func(cb vulkan.CommandBuffer)) error {
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
	}
	cbs := make([]vulkan.CommandBuffer, 1)
	if res := vulkan.AllocateCommandBuffers(d.device, &allocInfo, cbs); res != vulkan.Success {
		return fmt.Errorf("allocate command buffer: %w", vulkan.Error(res))
	}
	defer vulkan.FreeCommandBuffers(d.device, d.commandPool, 1, cbs)

	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vulkan.BeginCommandBuffer(cbs[0], &beginInfo); res != vulkan.Success {
		return fmt.Errorf("begin command buffer: %w", vulkan.Error(res))
	}
	fn(cbs[0])
	if res := vulkan.EndCommandBuffer(cbs[0]); res != vulkan.Success {
		return fmt.Errorf("end command buffer: %w", vulkan.Error(res))
	}

	submitInfo := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}
	if res := vulkan.QueueSubmit(d.graphicsQueue, 1, []vulkan.SubmitInfo{submitInfo}, vulkan.Fence(vulkan.NullHandle)); res != vulkan.Success {
		return resultError("queue submit", res)
	}
	return resultError("queue wait idle", vulkan.QueueWaitIdle(d.graphicsQueue))
}

type layoutTransition struct {
	srcAccess, dstAccess vulkan.AccessFlags
	srcStage, dstStage   vulkan.PipelineStageFlags
}

func transitionFor(from, to vulkan.ImageLayout) (layoutTransition, error) {
	switch {
	case from == vulkan.ImageLayoutUndefined && to == vulkan.ImageLayoutTransferDstOptimal:
		return layoutTransition{
			dstAccess: vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
			srcStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit),
			dstStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
		}, nil
	case from == vulkan.ImageLayoutTransferDstOptimal && to == vulkan.ImageLayoutShaderReadOnlyOptimal:
		return layoutTransition{
			srcAccess: vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
			dstAccess: vulkan.AccessFlags(vulkan.AccessShaderReadBit),
			srcStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
			dstStage:  vulkan.PipelineStageFlags(vulkan.PipelineStageFragmentShaderBit),
		}, nil
	}
	return layoutTransition{}, fmt.Errorf("unsupported layout transition %d -> %d", from, to)
}

func (d *Device) transitionImageLayout(image vulkan.Image, from, to vulkan.ImageLayout) error {
	t, err := transitionFor(from, to)
	if err != nil {
		return err
	}
	barrier := vulkan.ImageMemoryBarrier{
		SType:               vulkan.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       t.srcAccess,
		DstAccessMask:       t.dstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	return d.submitOnce(func(cb vulkan.CommandBuffer) {
		vulkan.CmdPipelineBarrier(cb, t.srcStage, t.dstStage, 0, 0, nil, 0, nil, 1, []vulkan.ImageMemoryBarrier{barrier})
	})
}

func (d *Device) copyBufferToImage(buffer vulkan.Buffer, image vulkan.Image, width, height uint32) error {
	region := vulkan.BufferImageCopy{
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vulkan.Extent3D{Width: width, Height: height, Depth: 1},
	}
	return d.submitOnce(func(cb vulkan.CommandBuffer) {
		vulkan.CmdCopyBufferToImage(cb, buffer, image, vulkan.ImageLayoutTransferDstOptimal, 1, []vulkan.BufferImageCopy{region})
	})
}

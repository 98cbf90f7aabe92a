package vk

import (
	"errors"
	"fmt"
	"math"

	"github.com/vulkan-go/vulkan"
)

func (d *Device) querySwapchainSupport(device vulkan.PhysicalDevice) swapchainSupport {
	var details swapchainSupport
	vulkan.GetPhysicalDeviceSurfaceCapabilities(device, d.surface, &details.capabilities)
	details.capabilities.Deref()
	details.capabilities.CurrentExtent.Deref()
	details.capabilities.MinImageExtent.Deref()
	details.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, nil)
	if formatCount > 0 {
		details.formats = make([]vulkan.SurfaceFormat, formatCount)
		vulkan.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, details.formats)
		for i := range details.formats {
			details.formats[i].Deref()
		}
	}

	var presentCount uint32
	vulkan.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, nil)
	if presentCount > 0 {
		details.presentModes = make([]vulkan.PresentMode, presentCount)
		vulkan.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, details.presentModes)
	}
	return details
}

func chooseSwapSurfaceFormat(available []vulkan.SurfaceFormat) vulkan.SurfaceFormat {
	for _, f := range available {
		if f.Format == vulkan.FormatB8g8r8a8Srgb && f.ColorSpace == vulkan.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return available[0]
}

// chooseSwapPresentMode returns want when the surface offers it, else FIFO,
// which every surface supports.
func chooseSwapPresentMode(available []vulkan.PresentMode, want vulkan.PresentMode) vulkan.PresentMode {
	for _, m := range available {
		if m == want {
			return m
		}
	}
	return vulkan.PresentModeFifo
}

func chooseSwapExtent(caps vulkan.SurfaceCapabilities, fbWidth, fbHeight int) vulkan.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	lo := caps.MinImageExtent
	hi := caps.MaxImageExtent
	return vulkan.Extent2D{
		Width:  uint32(clamp(uint64(max(fbWidth, 0)), uint64(lo.Width), uint64(hi.Width))),
		Height: uint32(clamp(uint64(max(fbHeight, 0)), uint64(lo.Height), uint64(hi.Height))),
	}
}

func chooseImageCount(caps vulkan.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(val, lo, hi uint64) uint64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func (d *Device) createSwapchain() error {
	support := d.querySwapchainSupport(d.physicalDevice)
	if len(support.formats) == 0 {
		return errors.New("surface reports no formats")
	}

	surfaceFormat := chooseSwapSurfaceFormat(support.formats)
	presentMode := chooseSwapPresentMode(support.presentModes, d.presentMode)
	w, h := d.window.GetFramebufferSize()
	extent := chooseSwapExtent(support.capabilities, w, h)
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("surface extent %dx%d: %w", extent.Width, extent.Height, errMinimized)
	}

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    chooseImageCount(support.capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vulkan.True,
		OldSwapchain:     vulkan.Swapchain(vulkan.NullHandle),
	}

	if d.queues.graphicsFamily != d.queues.presentFamily {
		indices := []uint32{d.queues.graphicsFamily, d.queues.presentFamily}
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	} else {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	}

	if res := vulkan.CreateSwapchain(d.device, &createInfo, nil, &d.swapchain); res != vulkan.Success {
		return fmt.Errorf("create swapchain: %w", vulkan.Error(res))
	}

	var count uint32
	vulkan.GetSwapchainImages(d.device, d.swapchain, &count, nil)
	d.swapchainImages = make([]vulkan.Image, count)
	vulkan.GetSwapchainImages(d.device, d.swapchain, &count, d.swapchainImages)
	d.swapchainFormat = surfaceFormat.Format
	d.swapchainExtent = extent
	d.imagesInFlight = make([]vulkan.Fence, count)
	d.log.Debugf("swapchain: %d images, format %d, present mode %d, %dx%d",
		count, surfaceFormat.Format, presentMode, extent.Width, extent.Height)
	return nil
}

// perImage builds one value per swapchain image, index for index. On
// failure it returns what was built so far.
func perImage[T any](n int, build func(i int) (T, error)) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := build(i)
		if err != nil {
			return out, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Device) createImageViews() error {
	views, err := perImage(len(d.swapchainImages), func(i int) (vulkan.ImageView, error) {
		return d.createImageView(d.swapchainImages[i], d.swapchainFormat, vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit))
	})
	d.swapchainViews = views
	return err
}

func (d *Device) createDepthResources() error {
	depthFormat, err := d.findDepthFormat()
	if err != nil {
		return err
	}
	d.depthFormat = depthFormat
	image, memory, err := d.createImage(d.swapchainExtent.Width, d.swapchainExtent.Height, depthFormat, vulkan.ImageTilingOptimal, vulkan.ImageUsageFlags(vulkan.ImageUsageDepthStencilAttachmentBit), vulkan.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return fmt.Errorf("create depth image: %w", err)
	}
	d.depthImage = image
	d.depthImageMemory = memory
	view, err := d.createImageView(image, depthFormat, vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit))
	if err != nil {
		return fmt.Errorf("create depth image view: %w", err)
	}
	d.depthImageView = view
	return nil
}

func (d *Device) findDepthFormat() (vulkan.Format, error) {
	candidates := []vulkan.Format{
		vulkan.FormatD32Sfloat,
		vulkan.FormatD32SfloatS8Uint,
		vulkan.FormatD24UnormS8Uint,
	}
	return d.findSupportedFormat(candidates, vulkan.ImageTilingOptimal, vulkan.FormatFeatureFlags(vulkan.FormatFeatureDepthStencilAttachmentBit))
}

func (d *Device) findSupportedFormat(candidates []vulkan.Format, tiling vulkan.ImageTiling, features vulkan.FormatFeatureFlags) (vulkan.Format, error) {
	for _, format := range candidates {
		var props vulkan.FormatProperties
		vulkan.GetPhysicalDeviceFormatProperties(d.physicalDevice, format, &props)
		props.Deref()
		if tiling == vulkan.ImageTilingLinear && props.LinearTilingFeatures&features == features {
			return format, nil
		}
		if tiling == vulkan.ImageTilingOptimal && props.OptimalTilingFeatures&features == features {
			return format, nil
		}
	}
	return 0, errors.New("no supported depth format found")
}

func (d *Device) createRenderPass() error {
	colorAttachment := vulkan.AttachmentDescription{
		Format:         d.swapchainFormat,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutPresentSrc,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
	}
	depthAttachment := vulkan.AttachmentDescription{
		Format:         d.depthFormat,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpDontCare,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutDepthStencilAttachmentOptimal,
	}

	colorRef := vulkan.AttachmentReference{
		Attachment: 0,
		Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
	}
	depthRef := vulkan.AttachmentReference{
		Attachment: 1,
		Layout:     vulkan.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:       vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vulkan.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit | vulkan.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit | vulkan.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit | vulkan.AccessDepthStencilAttachmentWriteBit),
	}

	attachments := []vulkan.AttachmentDescription{colorAttachment, depthAttachment}
	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}
	if res := vulkan.CreateRenderPass(d.device, &createInfo, nil, &d.renderPass); res != vulkan.Success {
		return fmt.Errorf("create render pass: %w", vulkan.Error(res))
	}
	return nil
}

// createFramebuffers makes framebuffers[i] target swapchain image i.
func (d *Device) createFramebuffers() error {
	fbs, err := perImage(len(d.swapchainViews), func(i int) (vulkan.Framebuffer, error) {
		attachments := []vulkan.ImageView{d.swapchainViews[i], d.depthImageView}
		createInfo := vulkan.FramebufferCreateInfo{
			SType:           vulkan.StructureTypeFramebufferCreateInfo,
			RenderPass:      d.renderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           d.swapchainExtent.Width,
			Height:          d.swapchainExtent.Height,
			Layers:          1,
		}
		var fb vulkan.Framebuffer
		if res := vulkan.CreateFramebuffer(d.device, &createInfo, nil, &fb); res != vulkan.Success {
			return fb, fmt.Errorf("create framebuffer: %w", vulkan.Error(res))
		}
		return fb, nil
	})
	d.framebuffers = fbs
	return err
}

func (d *Device) cleanupSwapchain() {
	for _, fb := range d.framebuffers {
		vulkan.DestroyFramebuffer(d.device, fb, nil)
	}
	d.framebuffers = nil
	if d.pipeline != vulkan.Pipeline(vulkan.NullHandle) {
		vulkan.DestroyPipeline(d.device, d.pipeline, nil)
		d.pipeline = vulkan.Pipeline(vulkan.NullHandle)
	}
	if d.pipelineLayout != vulkan.PipelineLayout(vulkan.NullHandle) {
		vulkan.DestroyPipelineLayout(d.device, d.pipelineLayout, nil)
		d.pipelineLayout = vulkan.PipelineLayout(vulkan.NullHandle)
	}
	if d.renderPass != vulkan.RenderPass(vulkan.NullHandle) {
		vulkan.DestroyRenderPass(d.device, d.renderPass, nil)
		d.renderPass = vulkan.RenderPass(vulkan.NullHandle)
	}
	for _, view := range d.swapchainViews {
		vulkan.DestroyImageView(d.device, view, nil)
	}
	d.swapchainViews = nil
	if d.depthImageView != vulkan.ImageView(vulkan.NullHandle) {
		vulkan.DestroyImageView(d.device, d.depthImageView, nil)
		d.depthImageView = vulkan.ImageView(vulkan.NullHandle)
	}
	if d.depthImage != vulkan.Image(vulkan.NullHandle) {
		vulkan.DestroyImage(d.device, d.depthImage, nil)
		d.depthImage = vulkan.Image(vulkan.NullHandle)
	}
	if d.depthImageMemory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(d.device, d.depthImageMemory, nil)
		d.depthImageMemory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
	if d.swapchain != vulkan.Swapchain(vulkan.NullHandle) {
		vulkan.DestroySwapchain(d.device, d.swapchain, nil)
		d.swapchain = vulkan.Swapchain(vulkan.NullHandle)
	}
	d.swapchainImages = nil
	d.imagesInFlight = nil
}

// RecreateSwapchain rebuilds everything sized by the surface. The per-slot
// semaphores and fences are recreated too since an abandoned frame may
// have left them signaled or unsignaled with no pending work.
func (d *Device) RecreateSwapchain() error {
	w, h := d.window.GetFramebufferSize()
	if w == 0 || h == 0 {
		return fmt.Errorf("recreate swapchain: %w", errMinimized)
	}
	if res := vulkan.DeviceWaitIdle(d.device); res != vulkan.Success {
		return resultError("device wait idle", res)
	}
	d.cleanupSwapchain()

	steps := []func() error{
		d.createSwapchain,
		d.createImageViews,
		d.createDepthResources,
		d.createRenderPass,
		d.createGraphicsPipeline,
		d.createFramebuffers,
		d.resetSyncObjects,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

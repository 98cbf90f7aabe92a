package vk

/*
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

const textureFormat = vulkan.FormatR8g8b8a8Srgb

type vertexBuffer struct {
	dev    *Device
	buffer vulkan.Buffer
	memory vulkan.DeviceMemory
	count  int
}

func (b *vertexBuffer) Len() int { return b.count }

func (b *vertexBuffer) Destroy() {
	if b.buffer != vulkan.Buffer(vulkan.NullHandle) {
		vulkan.DestroyBuffer(b.dev.device, b.buffer, nil)
		b.buffer = vulkan.Buffer(vulkan.NullHandle)
	}
	if b.memory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(b.dev.device, b.memory, nil)
		b.memory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
}

// CreateVertexBuffer uploads vertices into host-visible memory. An empty
// list yields a buffer that draws nothing.
func (d *Device) CreateVertexBuffer(vertices []render.Vertex) (render.VertexBuffer, error) {
	vb := &vertexBuffer{dev: d, count: len(vertices)}
	if len(vertices) == 0 {
		return vb, nil
	}
	data := render.VertexBytes(vertices)
	buf, mem, err := d.createBuffer(vulkan.DeviceSize(len(data)), vulkan.BufferUsageFlags(vulkan.BufferUsageVertexBufferBit), vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, fmt.Errorf("create vertex buffer: %w", err)
	}
	vb.buffer, vb.memory = buf, mem
	if err := d.upload(mem, data); err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("upload vertices: %w", err)
	}
	return vb, nil
}

type texture struct {
	dev           *Device
	image         vulkan.Image
	memory        vulkan.DeviceMemory
	view          vulkan.ImageView
	width, height int
}

func (t *texture) Size() (int, int) { return t.width, t.height }

func (t *texture) Destroy() {
	if t.view != vulkan.ImageView(vulkan.NullHandle) {
		vulkan.DestroyImageView(t.dev.device, t.view, nil)
		t.view = vulkan.ImageView(vulkan.NullHandle)
	}
	if t.image != vulkan.Image(vulkan.NullHandle) {
		vulkan.DestroyImage(t.dev.device, t.image, nil)
		t.image = vulkan.Image(vulkan.NullHandle)
	}
	if t.memory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(t.dev.device, t.memory, nil)
		t.memory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
}

// CreateTexture copies img through a staging buffer into a device-local
// sRGB image ready for sampling.
func (d *Device) CreateTexture(img *image.RGBA) (render.Texture, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("texture has no pixels")
	}
	pixels := img.Pix
	if img.Stride != 4*w || len(pixels) != 4*w*h {
		return nil, fmt.Errorf("texture is not tightly packed RGBA (stride %d, width %d)", img.Stride, w)
	}

	imageSize := vulkan.DeviceSize(len(pixels))
	stageBuf, stageMem, err := d.createBuffer(imageSize, vulkan.BufferUsageFlags(vulkan.BufferUsageTransferSrcBit), vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer vulkan.DestroyBuffer(d.device, stageBuf, nil)
	defer vulkan.FreeMemory(d.device, stageMem, nil)

	if err := d.upload(stageMem, pixels); err != nil {
		return nil, fmt.Errorf("fill staging buffer: %w", err)
	}

	image, memory, err := d.createImage(uint32(w), uint32(h), textureFormat, vulkan.ImageTilingOptimal, vulkan.ImageUsageFlags(vulkan.ImageUsageTransferDstBit|vulkan.ImageUsageSampledBit), vulkan.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, fmt.Errorf("create texture image: %w", err)
	}
	tex := &texture{dev: d, image: image, memory: memory, width: w, height: h}

	if err := d.transitionImageLayout(image, vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal); err != nil {
		tex.Destroy()
		return nil, err
	}
	if err := d.copyBufferToImage(stageBuf, image, uint32(w), uint32(h)); err != nil {
		tex.Destroy()
		return nil, err
	}
	if err := d.transitionImageLayout(image, vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal); err != nil {
		tex.Destroy()
		return nil, err
	}

	view, err := d.createImageView(image, textureFormat, vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit))
	if err != nil {
		tex.Destroy()
		return nil, err
	}
	tex.view = view
	return tex, nil
}

type sampler struct {
	dev    *Device
	handle vulkan.Sampler
}

func (s *sampler) Destroy() {
	if s.handle != vulkan.Sampler(vulkan.NullHandle) {
		vulkan.DestroySampler(s.dev.device, s.handle, nil)
		s.handle = vulkan.Sampler(vulkan.NullHandle)
	}
}

func samplerCreateInfo(desc render.SamplerDesc) vulkan.SamplerCreateInfo {
	return vulkan.SamplerCreateInfo{
		SType:                   vulkan.StructureTypeSamplerCreateInfo,
		MagFilter:               vkFilter(desc.MagFilter),
		MinFilter:               vkFilter(desc.MinFilter),
		AddressModeU:            vkAddressMode(desc.AddressU),
		AddressModeV:            vkAddressMode(desc.AddressV),
		AddressModeW:            vkAddressMode(desc.AddressW),
		AnisotropyEnable:        vulkan.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vulkan.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vulkan.False,
		CompareEnable:           vulkan.False,
		CompareOp:               vulkan.CompareOpAlways,
		MipmapMode:              vulkan.SamplerMipmapModeNearest,
		MipLodBias:              desc.MipLodBias,
		MinLod:                  desc.MinLod,
		MaxLod:                  desc.MaxLod,
	}
}

func (d *Device) CreateSampler(desc render.SamplerDesc) (render.Sampler, error) {
	samplerInfo := samplerCreateInfo(desc)

	// the handle is written through C memory
	var zero vulkan.Sampler
	samplerOut := (*vulkan.Sampler)(C.malloc(C.size_t(unsafe.Sizeof(zero))))
	if samplerOut == nil {
		return nil, errors.New("allocate sampler handle")
	}
	defer C.free(unsafe.Pointer(samplerOut))

	if res := vulkan.CreateSampler(d.device, &samplerInfo, nil, samplerOut); res != vulkan.Success {
		return nil, fmt.Errorf("create sampler: %w", vulkan.Error(res))
	}
	return &sampler{dev: d, handle: *samplerOut}, nil
}

func vkFilter(f render.Filter) vulkan.Filter {
	if f == render.FilterNearest {
		return vulkan.FilterNearest
	}
	return vulkan.FilterLinear
}

func vkAddressMode(m render.AddressMode) vulkan.SamplerAddressMode {
	if m == render.AddressClampToEdge {
		return vulkan.SamplerAddressModeClampToEdge
	}
	return vulkan.SamplerAddressModeRepeat
}

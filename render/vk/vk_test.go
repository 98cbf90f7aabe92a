package vk

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("VK_VALIDATION", "0")
	cfg := DefaultConfig()
	assert.False(t, cfg.Validation)
	assert.Equal(t, DefaultFramesInFlight, cfg.FramesInFlight)
	assert.Equal(t, "fifo", cfg.PresentMode)

	filled := Config{}.withDefaults()
	assert.Equal(t, DefaultAppName, filled.AppName)
	assert.Equal(t, DefaultShaderDir, filled.ShaderDir)
	assert.Equal(t, 2, filled.FramesInFlight)

	kept := Config{FramesInFlight: 3, ShaderDir: "spv"}.withDefaults()
	assert.Equal(t, 3, kept.FramesInFlight)
	assert.Equal(t, "spv", kept.ShaderDir)
}

func TestValidationFromEnv(t *testing.T) {
	for val, want := range map[string]bool{"": true, "1": true, "yes": true, "0": false, "false": false, "FALSE": false} {
		t.Setenv("VK_VALIDATION", val)
		assert.Equal(t, want, ValidationFromEnv(), "VK_VALIDATION=%q", val)
	}
}

func TestParsePresentMode(t *testing.T) {
	m, err := ParsePresentMode("Mailbox")
	require.NoError(t, err)
	assert.Equal(t, vulkan.PresentModeMailbox, m)

	m, err = ParsePresentMode("")
	require.NoError(t, err)
	assert.Equal(t, vulkan.PresentModeFifo, m)

	m, err = ParsePresentMode("vsync-ish")
	assert.Error(t, err)
	assert.Equal(t, vulkan.PresentModeFifo, m)
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError("op", vulkan.Success))

	tests := []struct {
		res  vulkan.Result
		want error
	}{
		{vulkan.ErrorOutOfDate, render.ErrSwapchainStale},
		{vulkan.Suboptimal, render.ErrSwapchainStale},
		{vulkan.ErrorDeviceLost, render.ErrDeviceLost},
		{vulkan.ErrorSurfaceLost, render.ErrDeviceLost},
		{vulkan.Timeout, render.ErrTimeout},
		{vulkan.NotReady, render.ErrTimeout},
	}
	for _, tt := range tests {
		err := resultError("acquire", tt.res)
		assert.ErrorIs(t, err, tt.want, "result %d", tt.res)
		assert.Contains(t, err.Error(), "acquire")
	}

	other := resultError("submit", vulkan.ErrorOutOfHostMemory)
	require.Error(t, other)
	for _, s := range []error{render.ErrSwapchainStale, render.ErrDeviceLost, render.ErrTimeout} {
		assert.False(t, errors.Is(other, s))
	}

	assert.ErrorIs(t, errMinimized, render.ErrSwapchainStale)

	var ie *render.InitError
	require.ErrorAs(t, initError("swapchain", other), &ie)
	assert.Equal(t, "swapchain", ie.Stage)
}

func TestHeldImageError(t *testing.T) {
	timeout := heldImageError(2, resultError("wait for image fence", vulkan.Timeout))
	assert.ErrorIs(t, timeout, render.ErrSwapchainStale)
	assert.ErrorIs(t, timeout, render.ErrTimeout)
	assert.Contains(t, timeout.Error(), "image 2")

	lost := heldImageError(0, resultError("wait for image fence", vulkan.ErrorDeviceLost))
	assert.ErrorIs(t, lost, render.ErrDeviceLost)
	assert.NotErrorIs(t, lost, render.ErrSwapchainStale)

	other := heldImageError(1, resultError("wait for image fence", vulkan.ErrorOutOfHostMemory))
	assert.ErrorIs(t, other, render.ErrSwapchainStale)
}

func TestMappedBytes(t *testing.T) {
	backing := make([]byte, 8)
	view := mappedBytes(unsafe.Pointer(&backing[0]), 6)
	require.Len(t, view, 6)
	assert.Equal(t, 6, cap(view))

	copy(view, []byte{1, 2, 3, 4, 5, 6, 7})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0, 0}, backing)
}

func TestChooseSwapSurfaceFormat(t *testing.T) {
	unorm := vulkan.SurfaceFormat{Format: vulkan.FormatB8g8r8a8Unorm, ColorSpace: vulkan.ColorSpaceSrgbNonlinear}
	srgb := vulkan.SurfaceFormat{Format: vulkan.FormatB8g8r8a8Srgb, ColorSpace: vulkan.ColorSpaceSrgbNonlinear}

	assert.Equal(t, srgb, chooseSwapSurfaceFormat([]vulkan.SurfaceFormat{unorm, srgb}))
	assert.Equal(t, unorm, chooseSwapSurfaceFormat([]vulkan.SurfaceFormat{unorm}))
}

func TestChooseSwapPresentMode(t *testing.T) {
	avail := []vulkan.PresentMode{vulkan.PresentModeFifo, vulkan.PresentModeImmediate}
	assert.Equal(t, vulkan.PresentModeImmediate, chooseSwapPresentMode(avail, vulkan.PresentModeImmediate))
	assert.Equal(t, vulkan.PresentModeFifo, chooseSwapPresentMode(avail, vulkan.PresentModeMailbox))
	assert.Equal(t, vulkan.PresentModeFifo, chooseSwapPresentMode(avail, vulkan.PresentModeFifo))
}

func TestChooseSwapExtent(t *testing.T) {
	fixed := vulkan.SurfaceCapabilities{CurrentExtent: vulkan.Extent2D{Width: 800, Height: 800}}
	assert.Equal(t, vulkan.Extent2D{Width: 800, Height: 800}, chooseSwapExtent(fixed, 1024, 768))

	free := vulkan.SurfaceCapabilities{
		CurrentExtent:  vulkan.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vulkan.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: vulkan.Extent2D{Width: 1000, Height: 1000},
	}
	assert.Equal(t, vulkan.Extent2D{Width: 640, Height: 480}, chooseSwapExtent(free, 640, 480))
	assert.Equal(t, vulkan.Extent2D{Width: 1000, Height: 100}, chooseSwapExtent(free, 4000, 10))
	assert.Equal(t, vulkan.Extent2D{Width: 100, Height: 100}, chooseSwapExtent(free, -5, 0))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, uint32(2), chooseImageCount(vulkan.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint64(5), clamp(5, 1, 10))
	assert.Equal(t, uint64(1), clamp(0, 1, 10))
	assert.Equal(t, uint64(10), clamp(11, 1, 10))
}

func TestPerImageBuildsOnePerIndex(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		var seen []int
		got, err := perImage(n, func(i int) (int, error) {
			seen = append(seen, i)
			return i * 10, nil
		})
		require.NoError(t, err)
		require.Len(t, got, n)
		for i := range got {
			assert.Equal(t, i*10, got[i], "entry %d belongs to image %d", i, i)
		}
		assert.Len(t, seen, n)
	}
}

func TestPerImageStopsOnError(t *testing.T) {
	boom := errors.New("out of memory")
	got, err := perImage(4, func(i int) (string, error) {
		if i == 2 {
			return "", boom
		}
		return "ok", nil
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "image 2")
	assert.Equal(t, []string{"ok", "ok"}, got, "built prefix is returned for cleanup")
}

func TestScoreDeviceType(t *testing.T) {
	assert.Greater(t, scoreDeviceType(vulkan.PhysicalDeviceTypeDiscreteGpu), scoreDeviceType(vulkan.PhysicalDeviceTypeIntegratedGpu))
	assert.Greater(t, scoreDeviceType(vulkan.PhysicalDeviceTypeIntegratedGpu), scoreDeviceType(vulkan.PhysicalDeviceTypeCpu))
}

func TestDescriptorBindings(t *testing.T) {
	require.Len(t, descriptorBindings, 3)
	assert.Equal(t, vulkan.DescriptorTypeUniformBuffer, descriptorBindings[0].DescriptorType)
	assert.Equal(t, vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit), descriptorBindings[0].StageFlags)
	assert.Equal(t, vulkan.DescriptorTypeSampledImage, descriptorBindings[1].DescriptorType)
	assert.Equal(t, vulkan.DescriptorTypeSampler, descriptorBindings[2].DescriptorType)
	for i, b := range descriptorBindings {
		assert.Equal(t, uint32(i), b.Binding)
	}
}

func TestVertexInputDescriptions(t *testing.T) {
	binding, attrs := vertexInputDescriptions()
	assert.Equal(t, uint32(20), binding.Stride)
	require.Len(t, attrs, 2)
	assert.Equal(t, vulkan.FormatR32g32b32Sfloat, attrs[0].Format)
	assert.Equal(t, uint32(0), attrs[0].Offset)
	assert.Equal(t, vulkan.FormatR32g32Sfloat, attrs[1].Format)
	assert.Equal(t, uint32(12), attrs[1].Offset)
}

func TestSamplerCreateInfo(t *testing.T) {
	info := samplerCreateInfo(render.LinearRepeat)
	assert.Equal(t, vulkan.FilterLinear, info.MagFilter)
	assert.Equal(t, vulkan.FilterLinear, info.MinFilter)
	assert.Equal(t, vulkan.SamplerAddressModeRepeat, info.AddressModeU)
	assert.Equal(t, vulkan.SamplerAddressModeRepeat, info.AddressModeW)
	assert.Equal(t, vulkan.False, info.AnisotropyEnable)
	assert.Zero(t, info.MaxLod)
	assert.Equal(t, vulkan.SamplerMipmapModeNearest, info.MipmapMode)

	nearest := samplerCreateInfo(render.SamplerDesc{MagFilter: render.FilterNearest, AddressU: render.AddressClampToEdge})
	assert.Equal(t, vulkan.FilterNearest, nearest.MagFilter)
	assert.Equal(t, vulkan.SamplerAddressModeClampToEdge, nearest.AddressModeU)
}

func TestTransitionFor(t *testing.T) {
	up, err := transitionFor(vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Equal(t, vulkan.AccessFlags(vulkan.AccessTransferWriteBit), up.dstAccess)

	read, err := transitionFor(vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal)
	require.NoError(t, err)
	assert.Equal(t, vulkan.PipelineStageFlags(vulkan.PipelineStageFragmentShaderBit), read.dstStage)

	_, err = transitionFor(vulkan.ImageLayoutShaderReadOnlyOptimal, vulkan.ImageLayoutUndefined)
	assert.Error(t, err)
}

func TestBytesToUint32(t *testing.T) {
	words, err := bytesToUint32([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = bytesToUint32([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errShaderSize)
	_, err = bytesToUint32(nil)
	assert.ErrorIs(t, err, errShaderSize)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b"}))
	assert.Equal(t, uint64(vulkan.MaxUint64), timeoutNanos(0))
}

package vk

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"sw3d/logging"
	"sw3d/render"
)

// Window is the part of *glfw.Window the device needs.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetFramebufferSize() (width, height int)
}

type queueFamilyIndices struct {
	graphicsFamily uint32
	presentFamily  uint32
	hasGraphics    bool
	hasPresent     bool
}

type swapchainSupport struct {
	capabilities vulkan.SurfaceCapabilities
	formats      []vulkan.SurfaceFormat
	presentModes []vulkan.PresentMode
}

// Device implements render.Device on a Vulkan logical device presenting to
// one window surface.
type Device struct {
	cfg         Config
	log         logging.Logger
	window      Window
	presentMode vulkan.PresentMode

	instance        vulkan.Instance
	debugCallback   vulkan.DebugReportCallback
	surface         vulkan.Surface
	physicalDevice  vulkan.PhysicalDevice
	uniformAlign    uint64
	device          vulkan.Device
	graphicsQueue   vulkan.Queue
	presentQueue    vulkan.Queue
	queues          queueFamilyIndices
	swapchain       vulkan.Swapchain
	swapchainImages []vulkan.Image
	swapchainFormat vulkan.Format
	swapchainExtent vulkan.Extent2D
	swapchainViews  []vulkan.ImageView

	depthFormat      vulkan.Format
	depthImage       vulkan.Image
	depthImageMemory vulkan.DeviceMemory
	depthImageView   vulkan.ImageView

	renderPass          vulkan.RenderPass
	descriptorSetLayout vulkan.DescriptorSetLayout
	pipelineLayout      vulkan.PipelineLayout
	pipeline            vulkan.Pipeline
	framebuffers        []vulkan.Framebuffer
	commandPool         vulkan.CommandPool

	frames         []*frameSlot
	imagesInFlight []vulkan.Fence
}

var _ render.Device = (*Device)(nil)

// NewDevice builds everything needed to render into window. On failure the
// partially built device is torn down and a *render.InitError returned.
func NewDevice(window Window, cfg Config, log logging.Logger) (*Device, error) {
	cfg = cfg.withDefaults()
	d := &Device{
		cfg:    cfg,
		log:    logging.OrNop(log),
		window: window,
	}
	mode, err := ParsePresentMode(cfg.PresentMode)
	if err != nil {
		d.log.Warnf("%v, using fifo", err)
	}
	d.presentMode = mode

	if err := d.init(); err != nil {
		d.Destroy()
		return nil, err
	}
	d.log.Infof("vulkan ready: %d swapchain images, %dx%d, %d frames in flight",
		len(d.swapchainImages), d.swapchainExtent.Width, d.swapchainExtent.Height, len(d.frames))
	return d, nil
}

func (d *Device) init() error {
	steps := []struct {
		stage string
		fn    func() error
	}{
		{"loader", d.loadVulkan},
		{"instance", d.createInstance},
		{"debug callback", d.setupDebugCallback},
		{"surface", d.createSurface},
		{"physical device", d.pickPhysicalDevice},
		{"logical device", d.createLogicalDevice},
		{"swapchain", d.createSwapchain},
		{"image views", d.createImageViews},
		{"depth buffer", d.createDepthResources},
		{"render pass", d.createRenderPass},
		{"descriptor set layout", d.createDescriptorSetLayout},
		{"pipeline", d.createGraphicsPipeline},
		{"framebuffers", d.createFramebuffers},
		{"command pool", d.createCommandPool},
		{"frame slots", d.createFrameSlots},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return initError(s.stage, err)
		}
	}
	return nil
}

func (d *Device) loadVulkan() error {
	if !glfw.VulkanSupported() {
		return errors.New("GLFW Vulkan loader not found")
	}
	vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		return fmt.Errorf("vulkan init: %w", err)
	}
	return nil
}

func (d *Device) createInstance() error {
	if d.cfg.Validation && !validationLayersSupported() {
		d.log.Warnf("validation layers requested but not available, continuing without")
		d.cfg.Validation = false
	}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   safeString(d.cfg.AppName),
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        safeString("sw3d"),
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}

	extensions := d.window.GetRequiredInstanceExtensions()
	if d.cfg.Validation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if d.cfg.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}

	if res := vulkan.CreateInstance(&createInfo, nil, &d.instance); res != vulkan.Success {
		return fmt.Errorf("create instance: %w", vulkan.Error(res))
	}
	if err := vulkan.InitInstance(d.instance); err != nil {
		return fmt.Errorf("vkInitInstance: %w", err)
	}
	return nil
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	return containsAll(supported, validationLayers)
}

func containsAll(set map[string]bool, names []string) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}

func (d *Device) setupDebugCallback() error {
	if !d.cfg.Validation {
		return nil
	}
	createInfo := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: d.debugReport,
	}
	if res := vulkan.CreateDebugReportCallback(d.instance, &createInfo, nil, &d.debugCallback); res != vulkan.Success {
		return fmt.Errorf("create debug callback: %w", vulkan.Error(res))
	}
	return nil
}

func (d *Device) debugReport(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
	if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
		d.log.Errorf("[VK][%s] %s (code=%d)", layerPrefix, message, messageCode)
	} else {
		d.log.Warnf("[VK][%s] %s (code=%d)", layerPrefix, message, messageCode)
	}
	return vulkan.False
}

func (d *Device) createSurface() error {
	surfacePtr, err := d.window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return fmt.Errorf("create window surface: %w", err)
	}
	d.surface = vulkan.SurfaceFromPointer(surfacePtr)
	return nil
}

func (d *Device) pickPhysicalDevice() error {
	var count uint32
	if res := vulkan.EnumeratePhysicalDevices(d.instance, &count, nil); res != vulkan.Success || count == 0 {
		return fmt.Errorf("enumerate physical devices: %w", errors.Join(errors.New("no Vulkan devices"), vulkan.Error(res)))
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if res := vulkan.EnumeratePhysicalDevices(d.instance, &count, devices); res != vulkan.Success {
		return fmt.Errorf("enumerate physical devices list: %w", vulkan.Error(res))
	}

	selected := -1
	var selectedQueues queueFamilyIndices
	bestScore := int32(-1)
	for i, dev := range devices {
		q := d.findQueueFamilies(dev)
		if !q.hasGraphics || !q.hasPresent {
			continue
		}
		if !deviceExtensionsSupported(dev) {
			continue
		}
		support := d.querySwapchainSupport(dev)
		if len(support.formats) == 0 || len(support.presentModes) == 0 {
			continue
		}
		// ties keep the earlier device
		if score := deviceScore(dev); score > bestScore {
			bestScore = score
			selected = i
			selectedQueues = q
		}
	}
	if selected < 0 {
		return errors.New("no suitable GPU found")
	}

	d.physicalDevice = devices[selected]
	d.queues = selectedQueues

	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(d.physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()
	d.uniformAlign = uint64(props.Limits.MinUniformBufferOffsetAlignment)
	d.log.Infof("using GPU %s", vulkan.ToString(props.DeviceName[:]))
	return nil
}

func deviceScore(device vulkan.PhysicalDevice) int32 {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	return scoreDeviceType(props.DeviceType)
}

func scoreDeviceType(t vulkan.PhysicalDeviceType) int32 {
	switch t {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return 1000
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return 500
	default:
		return 100
	}
}

func deviceExtensionsSupported(device vulkan.PhysicalDevice) bool {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vulkan.Success {
		return false
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].ExtensionName[:])] = true
	}
	return containsAll(supported, deviceExtensions)
}

func (d *Device) findQueueFamilies(device vulkan.PhysicalDevice) queueFamilyIndices {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	var indices queueFamilyIndices
	for i := range props {
		props[i].Deref()
		if !indices.hasGraphics && props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0 {
			indices.graphicsFamily = uint32(i)
			indices.hasGraphics = true
		}
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &present)
		if !indices.hasPresent && present == vulkan.True {
			indices.presentFamily = uint32(i)
			indices.hasPresent = true
		}
		if indices.hasGraphics && indices.hasPresent {
			break
		}
	}
	return indices
}

func (d *Device) createLogicalDevice() error {
	queueInfos := []vulkan.DeviceQueueCreateInfo{}
	uniqueFamilies := []uint32{d.queues.graphicsFamily}
	if d.queues.presentFamily != d.queues.graphicsFamily {
		uniqueFamilies = append(uniqueFamilies, d.queues.presentFamily)
	}
	for _, family := range uniqueFamilies {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		PpEnabledExtensionNames: safeStrings(deviceExtensions),
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
	}
	if d.cfg.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}

	if res := vulkan.CreateDevice(d.physicalDevice, &createInfo, nil, &d.device); res != vulkan.Success {
		return fmt.Errorf("create logical device: %w", vulkan.Error(res))
	}

	vulkan.GetDeviceQueue(d.device, d.queues.graphicsFamily, 0, &d.graphicsQueue)
	vulkan.GetDeviceQueue(d.device, d.queues.presentFamily, 0, &d.presentQueue)
	return nil
}

func (d *Device) createCommandPool() error {
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queues.graphicsFamily,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vulkan.CreateCommandPool(d.device, &poolInfo, nil, &d.commandPool); res != vulkan.Success {
		return fmt.Errorf("create command pool: %w", vulkan.Error(res))
	}
	return nil
}

func (d *Device) ImageCount() int     { return len(d.swapchainImages) }
func (d *Device) FramesInFlight() int { return d.cfg.FramesInFlight }

func (d *Device) Extent() render.Extent {
	return render.Extent{Width: d.swapchainExtent.Width, Height: d.swapchainExtent.Height}
}

func (d *Device) WaitIdle() error {
	if d.device == vulkan.Device(vulkan.NullHandle) {
		return nil
	}
	return resultError("device wait idle", vulkan.DeviceWaitIdle(d.device))
}

// Destroy releases everything in reverse construction order. It is safe on
// a partially built device.
func (d *Device) Destroy() {
	if d.device != vulkan.Device(vulkan.NullHandle) {
		vulkan.DeviceWaitIdle(d.device)

		d.destroyFrameSlots()
		d.cleanupSwapchain()

		if d.commandPool != vulkan.CommandPool(vulkan.NullHandle) {
			vulkan.DestroyCommandPool(d.device, d.commandPool, nil)
			d.commandPool = vulkan.CommandPool(vulkan.NullHandle)
		}
		if d.descriptorSetLayout != vulkan.DescriptorSetLayout(vulkan.NullHandle) {
			vulkan.DestroyDescriptorSetLayout(d.device, d.descriptorSetLayout, nil)
			d.descriptorSetLayout = vulkan.DescriptorSetLayout(vulkan.NullHandle)
		}
		vulkan.DestroyDevice(d.device, nil)
		d.device = vulkan.Device(vulkan.NullHandle)
	}
	if d.debugCallback != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
		d.debugCallback = vulkan.DebugReportCallback(vulkan.NullHandle)
	}
	if d.surface != vulkan.Surface(vulkan.NullHandle) {
		vulkan.DestroySurface(d.instance, d.surface, nil)
		d.surface = vulkan.Surface(vulkan.NullHandle)
	}
	if d.instance != vulkan.Instance(vulkan.NullHandle) {
		vulkan.DestroyInstance(d.instance, nil)
		d.instance = vulkan.Instance(vulkan.NullHandle)
	}
}

func timeoutNanos(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return vulkan.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// safeString null-terminates s for the C side.
func safeString(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

package vk

//go:generate glslc ../../shaders/mesh.vert -o ../../shaders/mesh.vert.spv
//go:generate glslc ../../shaders/mesh.frag -o ../../shaders/mesh.frag.spv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

const (
	vertexShaderFile   = "mesh.vert.spv"
	fragmentShaderFile = "mesh.frag.spv"
)

// pipelineHandle names the device's fixed pipeline. The Vulkan objects
// behind it are rebuilt with the swapchain.
type pipelineHandle string

func (p pipelineHandle) Name() string { return string(p) }

const texturedPipeline = pipelineHandle("textured")

func (d *Device) GraphicsPipeline() render.PipelineHandle { return texturedPipeline }

// descriptorBindings is the per-mesh set: the uniform block for the vertex
// stage, then the texture and its sampler for the fragment stage.
var descriptorBindings = []vulkan.DescriptorSetLayoutBinding{
	{
		Binding:         0,
		DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit),
	},
	{
		Binding:         1,
		DescriptorType:  vulkan.DescriptorTypeSampledImage,
		DescriptorCount: 1,
		StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageFragmentBit),
	},
	{
		Binding:         2,
		DescriptorType:  vulkan.DescriptorTypeSampler,
		DescriptorCount: 1,
		StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageFragmentBit),
	},
}

func (d *Device) createDescriptorSetLayout() error {
	layoutInfo := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(descriptorBindings)),
		PBindings:    descriptorBindings,
	}
	if res := vulkan.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &d.descriptorSetLayout); res != vulkan.Success {
		return fmt.Errorf("create descriptor set layout: %w", vulkan.Error(res))
	}
	return nil
}

func vertexInputDescriptions() (vulkan.VertexInputBindingDescription, []vulkan.VertexInputAttributeDescription) {
	binding := vulkan.VertexInputBindingDescription{
		Binding:   0,
		Stride:    render.VertexStride,
		InputRate: vulkan.VertexInputRateVertex,
	}
	attributes := []vulkan.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vulkan.FormatR32g32b32Sfloat, Offset: render.PositionOffset},
		{Location: 1, Binding: 0, Format: vulkan.FormatR32g32Sfloat, Offset: render.TexCoordOffset},
	}
	return binding, attributes
}

func (d *Device) createGraphicsPipeline() error {
	vertCode, err := os.ReadFile(filepath.Join(d.cfg.ShaderDir, vertexShaderFile))
	if err != nil {
		return fmt.Errorf("read vertex shader: %w", err)
	}
	fragCode, err := os.ReadFile(filepath.Join(d.cfg.ShaderDir, fragmentShaderFile))
	if err != nil {
		return fmt.Errorf("read fragment shader: %w", err)
	}

	vertModule, err := d.createShaderModule(vertCode)
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(d.device, vertModule, nil)
	fragModule, err := d.createShaderModule(fragCode)
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(d.device, fragModule, nil)

	mainName := "main\x00"
	shaderStages := []vulkan.PipelineShaderStageCreateInfo{
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vertModule,
			PName:  mainName,
		},
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  mainName,
		},
	}

	bindingDescription, attributeDescriptions := vertexInputDescriptions()
	vertexInput := vulkan.PipelineVertexInputStateCreateInfo{
		SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vulkan.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributeDescriptions)),
		PVertexAttributeDescriptions:    attributeDescriptions,
	}

	inputAssembly := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:                  vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vulkan.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vulkan.False,
	}

	// viewport and scissor are set per frame
	viewportState := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vulkan.DynamicState{
		vulkan.DynamicStateViewport,
		vulkan.DynamicStateScissor,
	}
	dynamicState := vulkan.PipelineDynamicStateCreateInfo{
		SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	rasterizer := vulkan.PipelineRasterizationStateCreateInfo{
		SType:                   vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vulkan.False,
		RasterizerDiscardEnable: vulkan.False,
		PolygonMode:             vulkan.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkan.CullModeFlags(vulkan.CullModeNone),
		FrontFace:               vulkan.FrontFaceCounterClockwise,
		DepthBiasEnable:         vulkan.False,
	}

	multisampling := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vulkan.SampleCount1Bit,
	}

	depthStencil := vulkan.PipelineDepthStencilStateCreateInfo{
		SType:                 vulkan.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vulkan.True,
		DepthWriteEnable:      vulkan.True,
		DepthCompareOp:        vulkan.CompareOpLess,
		DepthBoundsTestEnable: vulkan.False,
		StencilTestEnable:     vulkan.False,
	}

	colorBlendAttachment := vulkan.PipelineColorBlendAttachmentState{
		ColorWriteMask: vulkan.ColorComponentFlags(vulkan.ColorComponentRBit | vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit),
		BlendEnable:    vulkan.False,
	}
	colorBlending := vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	pipelineLayoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vulkan.DescriptorSetLayout{d.descriptorSetLayout},
	}
	if res := vulkan.CreatePipelineLayout(d.device, &pipelineLayoutInfo, nil, &d.pipelineLayout); res != vulkan.Success {
		return fmt.Errorf("create pipeline layout: %w", vulkan.Error(res))
	}

	pipelineInfo := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              d.pipelineLayout,
		RenderPass:          d.renderPass,
		Subpass:             0,
	}

	pipelines := make([]vulkan.Pipeline, 1)
	if res := vulkan.CreateGraphicsPipelines(d.device, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines); res != vulkan.Success {
		return fmt.Errorf("create graphics pipeline: %w", vulkan.Error(res))
	}
	d.pipeline = pipelines[0]
	return nil
}

func (d *Device) createShaderModule(code []byte) (vulkan.ShaderModule, error) {
	words, err := bytesToUint32(code)
	if err != nil {
		return vulkan.ShaderModule(vulkan.NullHandle), err
	}
	createInfo := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vulkan.ShaderModule
	if res := vulkan.CreateShaderModule(d.device, &createInfo, nil, &module); res != vulkan.Success {
		return vulkan.ShaderModule(vulkan.NullHandle), fmt.Errorf("create shader module: %w", vulkan.Error(res))
	}
	return module, nil
}

var errShaderSize = errors.New("shader code length must be a non-zero multiple of 4")

func bytesToUint32(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errShaderSize
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4), nil
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// pipeline is a graphics or compute pipeline with its layout.
type pipeline struct {
	Handle    vk.Pipeline
	Layout    vk.PipelineLayout
	BindPoint vk.PipelineBindPoint
	Desc      rhi.PipelineDescription
}

func createPipeline(c *Context, rp *renderPass, desc rhi.PipelineDescription) (*pipeline, error) {
	p := &pipeline{Desc: desc, BindPoint: vk.PipelineBindPointGraphics}
	if desc.IsCompute() {
		p.BindPoint = vk.PipelineBindPointCompute
	} else if rp == nil {
		return nil, fmt.Errorf("pipeline %s: graphics pipeline without a render pass", desc.Label)
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if err := resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(c.Device, &layoutInfo, c.Allocator, &p.Layout)); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}

	var err error
	if desc.IsCompute() {
		err = p.createCompute(c)
	} else {
		err = p.createGraphics(c, rp)
	}
	if err != nil {
		p.destroy(c)
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}
	return p, nil
}

func (p *pipeline) createCompute(c *Context) error {
	module, err := createShaderModule(c, *p.Desc.Compute)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(c.Device, module, c.Allocator)

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  safeString(entryPoint(*p.Desc.Compute, "cs_main")),
		},
		Layout: p.Layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = c.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateComputePipelines", vk.CreateComputePipelines(c.Device, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{createInfo}, c.Allocator, pipelines))
	})
	if err != nil {
		return err
	}
	p.Handle = pipelines[0]
	return nil
}

func (p *pipeline) createGraphics(c *Context, rp *renderPass) error {
	desc := p.Desc
	vertex, err := createShaderModule(c, desc.Vertex)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(c.Device, vertex, c.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertex,
		PName:  safeString(entryPoint(desc.Vertex, "vs_main")),
	}}
	if desc.Fragment != nil {
		fragment, err := createShaderModule(c, *desc.Fragment)
		if err != nil {
			return err
		}
		defer vk.DestroyShaderModule(c.Device, fragment, c.Allocator)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragment,
			PName:  safeString(entryPoint(*desc.Fragment, "fs_main")),
		})
	}

	// Vertices are generated in the shader; no vertex buffers are bound.
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(desc.Primitive.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	// Viewport and scissor are dynamic, so only the counts matter.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vkCullMode(desc.Primitive.CullMode),
		FrontFace:               vkFrontFace(desc.Primitive.FrontFace),
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if ds := desc.DepthStencil; ds != nil {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vkCompareOp(ds.DepthCompare)
		if ds.DepthWriteEnabled {
			depthStencil.DepthWriteEnable = vk.True
		}
		if ds.DepthBias != 0 || ds.DepthBiasSlopeScale != 0 {
			rasterizer.DepthBiasEnable = vk.True
			rasterizer.DepthBiasConstantFactor = float32(ds.DepthBias)
			rasterizer.DepthBiasSlopeFactor = ds.DepthBiasSlopeScale
			rasterizer.DepthBiasClamp = ds.DepthBiasClamp
		}
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, 0, len(desc.ColorTargets))
	for _, t := range desc.ColorTargets {
		blends = append(blends, vkColorBlend(t))
	}
	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              p.Layout,
		RenderPass:          rp.Handle,
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = c.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(c.Device, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{createInfo}, c.Allocator, pipelines))
	})
	if err != nil {
		return err
	}
	p.Handle = pipelines[0]
	return nil
}

func (p *pipeline) destroy(c *Context) {
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(c.Device, p.Handle, c.Allocator)
		p.Handle = vk.NullPipeline
	}
	if p.Layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(c.Device, p.Layout, c.Allocator)
		p.Layout = vk.NullPipelineLayout
	}
}

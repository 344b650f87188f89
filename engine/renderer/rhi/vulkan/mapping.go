package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

var formats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR16Float:             vk.FormatR16Sfloat,
	gputypes.TextureFormatRG8Unorm:             vk.FormatR8g8Unorm,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB10A2Unorm:         vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRG11B10Ufloat:        vk.FormatB10g11r11UfloatPack32,
	gputypes.TextureFormatRG32Float:            vk.FormatR32g32Sfloat,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatStencil8:             vk.FormatS8Uint,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatX8D24UnormPack32,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
}

// vkFormat fails for formats that cannot be render targets here, such as
// the block compressed ones.
func vkFormat(f gputypes.TextureFormat) (vk.Format, error) {
	if v, ok := formats[f]; ok {
		return v, nil
	}
	return vk.FormatUndefined, fmt.Errorf("texture format %s has no vulkan mapping", f)
}

func vkLayout(l rhi.ImageLayout) vk.ImageLayout {
	switch l {
	case rhi.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case rhi.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case rhi.ImageLayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case rhi.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case rhi.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case rhi.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case rhi.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

var stageBits = []struct {
	from rhi.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{rhi.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{rhi.PipelineStageDrawIndirect, vk.PipelineStageDrawIndirectBit},
	{rhi.PipelineStageVertexInput, vk.PipelineStageVertexInputBit},
	{rhi.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
	{rhi.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{rhi.PipelineStageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{rhi.PipelineStageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{rhi.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{rhi.PipelineStageComputeShader, vk.PipelineStageComputeShaderBit},
	{rhi.PipelineStageTransfer, vk.PipelineStageTransferBit},
	{rhi.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

// vkStages maps a stage mask. An empty source mask becomes top of pipe
// and an empty destination mask bottom of pipe, since vulkan rejects zero.
func vkStages(s rhi.PipelineStage, empty vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(empty)
	}
	return out
}

var accessBits = []struct {
	from rhi.Access
	to   vk.AccessFlagBits
}{
	{rhi.AccessIndirectCommandRead, vk.AccessIndirectCommandReadBit},
	{rhi.AccessIndexRead, vk.AccessIndexReadBit},
	{rhi.AccessVertexAttributeRead, vk.AccessVertexAttributeReadBit},
	{rhi.AccessUniformRead, vk.AccessUniformReadBit},
	{rhi.AccessShaderRead, vk.AccessShaderReadBit},
	{rhi.AccessShaderWrite, vk.AccessShaderWriteBit},
	{rhi.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{rhi.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{rhi.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{rhi.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{rhi.AccessTransferRead, vk.AccessTransferReadBit},
	{rhi.AccessTransferWrite, vk.AccessTransferWriteBit},
}

func vkAccess(a rhi.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

func vkLoadOp(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func vkStoreOp(op gputypes.StoreOp) vk.AttachmentStoreOp {
	if op == gputypes.StoreOpDiscard {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func vkImageUsage(u gputypes.TextureUsage, format gputypes.TextureFormat) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&gputypes.TextureUsageCopySrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&gputypes.TextureUsageCopyDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&gputypes.TextureUsageTextureBinding != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&gputypes.TextureUsageStorageBinding != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			out |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			out |= vk.ImageUsageColorAttachmentBit
		}
	}
	return vk.ImageUsageFlags(out)
}

func vkBufferUsage(u gputypes.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&gputypes.BufferUsageCopySrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&gputypes.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&gputypes.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&gputypes.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&gputypes.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&gputypes.BufferUsageIndirect != 0 {
		out |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func vkAspect(f gputypes.TextureFormat) vk.ImageAspectFlags {
	if !f.IsDepthStencil() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	var out vk.ImageAspectFlagBits
	if f.HasDepth() {
		out |= vk.ImageAspectDepthBit
	}
	if f.HasStencil() {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}

func vkTopology(t gputypes.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func vkCullMode(c gputypes.CullMode) vk.CullModeFlags {
	switch c {
	case gputypes.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gputypes.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func vkFrontFace(f gputypes.FrontFace) vk.FrontFace {
	if f == gputypes.FrontFaceCW {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func vkCompareOp(c gputypes.CompareFunction) vk.CompareOp {
	switch c {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

var blendFactors = map[gputypes.BlendFactor]vk.BlendFactor{
	gputypes.BlendFactorZero:              vk.BlendFactorZero,
	gputypes.BlendFactorOne:               vk.BlendFactorOne,
	gputypes.BlendFactorSrc:               vk.BlendFactorSrcColor,
	gputypes.BlendFactorOneMinusSrc:       vk.BlendFactorOneMinusSrcColor,
	gputypes.BlendFactorSrcAlpha:          vk.BlendFactorSrcAlpha,
	gputypes.BlendFactorOneMinusSrcAlpha:  vk.BlendFactorOneMinusSrcAlpha,
	gputypes.BlendFactorDst:               vk.BlendFactorDstColor,
	gputypes.BlendFactorOneMinusDst:       vk.BlendFactorOneMinusDstColor,
	gputypes.BlendFactorDstAlpha:          vk.BlendFactorDstAlpha,
	gputypes.BlendFactorOneMinusDstAlpha:  vk.BlendFactorOneMinusDstAlpha,
	gputypes.BlendFactorSrcAlphaSaturated: vk.BlendFactorSrcAlphaSaturate,
	gputypes.BlendFactorConstant:          vk.BlendFactorConstantColor,
	gputypes.BlendFactorOneMinusConstant:  vk.BlendFactorOneMinusConstantColor,
}

func vkBlendFactor(f gputypes.BlendFactor, fallback vk.BlendFactor) vk.BlendFactor {
	if v, ok := blendFactors[f]; ok {
		return v
	}
	return fallback
}

func vkBlendOp(op gputypes.BlendOperation) vk.BlendOp {
	switch op {
	case gputypes.BlendOperationSubtract:
		return vk.BlendOpSubtract
	case gputypes.BlendOperationReverseSubtract:
		return vk.BlendOpReverseSubtract
	case gputypes.BlendOperationMin:
		return vk.BlendOpMin
	case gputypes.BlendOperationMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

// vkColorBlend maps a color target. A nil blend state disables blending
// and a zero write mask means all channels.
func vkColorBlend(t gputypes.ColorTargetState) vk.PipelineColorBlendAttachmentState {
	mask := t.WriteMask
	if mask == gputypes.ColorWriteMaskNone {
		mask = gputypes.ColorWriteMaskAll
	}
	var write vk.ColorComponentFlagBits
	if mask&gputypes.ColorWriteMaskRed != 0 {
		write |= vk.ColorComponentRBit
	}
	if mask&gputypes.ColorWriteMaskGreen != 0 {
		write |= vk.ColorComponentGBit
	}
	if mask&gputypes.ColorWriteMaskBlue != 0 {
		write |= vk.ColorComponentBBit
	}
	if mask&gputypes.ColorWriteMaskAlpha != 0 {
		write |= vk.ColorComponentABit
	}
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask:      vk.ColorComponentFlags(write),
	}
	if b := t.Blend; b != nil {
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vkBlendFactor(b.Color.SrcFactor, vk.BlendFactorOne)
		state.DstColorBlendFactor = vkBlendFactor(b.Color.DstFactor, vk.BlendFactorZero)
		state.ColorBlendOp = vkBlendOp(b.Color.Operation)
		state.SrcAlphaBlendFactor = vkBlendFactor(b.Alpha.SrcFactor, vk.BlendFactorOne)
		state.DstAlphaBlendFactor = vkBlendFactor(b.Alpha.DstFactor, vk.BlendFactorZero)
		state.AlphaBlendOp = vkBlendOp(b.Alpha.Operation)
	}
	return state
}

func vkClearValue(c rhi.ClearValue) vk.ClearValue {
	if c.IsDepthStencil() {
		return vk.NewClearDepthStencil(c.Depth, c.Stencil)
	}
	return vk.NewClearValue([]float32{float32(c.Color.R), float32(c.Color.G), float32(c.Color.B), float32(c.Color.A)})
}

func vkRect(r rhi.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
}

func vkViewport(v rhi.Viewport) vk.Viewport {
	return vk.Viewport{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
}

package vulkan

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

func TestFormatMapping(t *testing.T) {
	tests := []struct {
		in   gputypes.TextureFormat
		want vk.Format
	}{
		{gputypes.TextureFormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
		{gputypes.TextureFormatBGRA8Unorm, vk.FormatB8g8r8a8Unorm},
		{gputypes.TextureFormatRGBA16Float, vk.FormatR16g16b16a16Sfloat},
		{gputypes.TextureFormatDepth32Float, vk.FormatD32Sfloat},
		{gputypes.TextureFormatDepth24PlusStencil8, vk.FormatD24UnormS8Uint},
	}
	for _, tt := range tests {
		got, err := vkFormat(tt.in)
		if err != nil {
			t.Errorf("vkFormat(%s) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("vkFormat(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := vkFormat(gputypes.TextureFormatBC1RGBAUnorm); err == nil {
		t.Error("vkFormat(BC1) succeeded, want error")
	}
}

func TestLayoutMapping(t *testing.T) {
	tests := []struct {
		in   rhi.ImageLayout
		want vk.ImageLayout
	}{
		{rhi.ImageLayoutUndefined, vk.ImageLayoutUndefined},
		{rhi.ImageLayoutGeneral, vk.ImageLayoutGeneral},
		{rhi.ImageLayoutColorAttachment, vk.ImageLayoutColorAttachmentOptimal},
		{rhi.ImageLayoutDepthStencilAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{rhi.ImageLayoutShaderReadOnly, vk.ImageLayoutShaderReadOnlyOptimal},
		{rhi.ImageLayoutTransferSrc, vk.ImageLayoutTransferSrcOptimal},
		{rhi.ImageLayoutTransferDst, vk.ImageLayoutTransferDstOptimal},
		{rhi.ImageLayoutPresentSrc, vk.ImageLayoutPresentSrc},
	}
	for _, tt := range tests {
		if got := vkLayout(tt.in); got != tt.want {
			t.Errorf("vkLayout(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStageMapping(t *testing.T) {
	got := vkStages(rhi.PipelineStageFragmentShader|rhi.PipelineStageComputeShader, vk.PipelineStageTopOfPipeBit)
	want := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	if got != want {
		t.Errorf("vkStages() = %#x, want %#x", got, want)
	}
	if got := vkStages(rhi.PipelineStageNone, vk.PipelineStageTopOfPipeBit); got != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("vkStages(None) = %#x, want top of pipe", got)
	}
	if got := vkStages(rhi.PipelineStageNone, vk.PipelineStageBottomOfPipeBit); got != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("vkStages(None) = %#x, want bottom of pipe", got)
	}
}

func TestAccessMapping(t *testing.T) {
	got := vkAccess(rhi.AccessShaderRead | rhi.AccessColorAttachmentWrite)
	want := vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	if got != want {
		t.Errorf("vkAccess() = %#x, want %#x", got, want)
	}
	if got := vkAccess(rhi.AccessNone); got != 0 {
		t.Errorf("vkAccess(None) = %#x, want 0", got)
	}
}

func TestAttachmentOps(t *testing.T) {
	if got := vkLoadOp(gputypes.LoadOpClear); got != vk.AttachmentLoadOpClear {
		t.Errorf("vkLoadOp(Clear) = %v", got)
	}
	if got := vkLoadOp(gputypes.LoadOpLoad); got != vk.AttachmentLoadOpLoad {
		t.Errorf("vkLoadOp(Load) = %v", got)
	}
	if got := vkLoadOp(gputypes.LoadOpUndefined); got != vk.AttachmentLoadOpDontCare {
		t.Errorf("vkLoadOp(Undefined) = %v", got)
	}
	if got := vkStoreOp(gputypes.StoreOpDiscard); got != vk.AttachmentStoreOpDontCare {
		t.Errorf("vkStoreOp(Discard) = %v", got)
	}
	if got := vkStoreOp(gputypes.StoreOpUndefined); got != vk.AttachmentStoreOpStore {
		t.Errorf("vkStoreOp(Undefined) = %v", got)
	}

	// a load from an undefined layout degrades to don't care
	d, err := attachmentDescription(rhi.AttachmentDescription{
		Format:        gputypes.TextureFormatRGBA8Unorm,
		LoadOp:        gputypes.LoadOpLoad,
		StoreOp:       gputypes.StoreOpStore,
		InitialLayout: rhi.ImageLayoutUndefined,
		FinalLayout:   rhi.ImageLayoutShaderReadOnly,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.LoadOp != vk.AttachmentLoadOpDontCare || d.FinalLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("attachmentDescription() = load %v final %v", d.LoadOp, d.FinalLayout)
	}
	d, err = attachmentDescription(rhi.AttachmentDescription{
		Format:  gputypes.TextureFormatDepth24PlusStencil8,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpStore,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.StencilLoadOp != vk.AttachmentLoadOpClear {
		t.Errorf("stencil load op = %v, want clear", d.StencilLoadOp)
	}
}

func TestUsageMapping(t *testing.T) {
	color := vkImageUsage(gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding, gputypes.TextureFormatRGBA8Unorm)
	if want := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit); color != want {
		t.Errorf("color usage = %#x, want %#x", color, want)
	}
	depth := vkImageUsage(gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatDepth32Float)
	if want := vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit); depth != want {
		t.Errorf("depth usage = %#x, want %#x", depth, want)
	}
	buf := vkBufferUsage(gputypes.BufferUsageStorage | gputypes.BufferUsageIndirect)
	if want := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageIndirectBufferBit); buf != want {
		t.Errorf("buffer usage = %#x, want %#x", buf, want)
	}
	if got := vkAspect(gputypes.TextureFormatDepth24PlusStencil8); got != vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit) {
		t.Errorf("depth stencil aspect = %#x", got)
	}
	if got := vkAspect(gputypes.TextureFormatRGBA8Unorm); got != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Errorf("color aspect = %#x", got)
	}
}

func TestPipelineStateMapping(t *testing.T) {
	if got := vkCullMode(gputypes.CullModeBack); got != vk.CullModeFlags(vk.CullModeBackBit) {
		t.Errorf("vkCullMode(Back) = %v", got)
	}
	if got := vkFrontFace(gputypes.FrontFaceCW); got != vk.FrontFaceClockwise {
		t.Errorf("vkFrontFace(CW) = %v", got)
	}
	if got := vkCompareOp(gputypes.CompareFunctionLessEqual); got != vk.CompareOpLessOrEqual {
		t.Errorf("vkCompareOp(LessEqual) = %v", got)
	}
	if got := vkTopology(gputypes.PrimitiveTopologyLineStrip); got != vk.PrimitiveTopologyLineStrip {
		t.Errorf("vkTopology(LineStrip) = %v", got)
	}

	opaque := vkColorBlend(gputypes.ColorTargetState{Format: gputypes.TextureFormatRGBA8Unorm})
	all := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	if opaque.BlendEnable != vk.False || opaque.ColorWriteMask != all {
		t.Errorf("opaque blend = %+v", opaque)
	}
	alpha := vkColorBlend(gputypes.ColorTargetState{
		Format: gputypes.TextureFormatRGBA8Unorm,
		Blend: &gputypes.BlendState{
			Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorSrcAlpha, DstFactor: gputypes.BlendFactorOneMinusSrcAlpha, Operation: gputypes.BlendOperationAdd},
			Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorZero, Operation: gputypes.BlendOperationMax},
		},
		WriteMask: gputypes.ColorWriteMaskRed,
	})
	if alpha.BlendEnable != vk.True ||
		alpha.SrcColorBlendFactor != vk.BlendFactorSrcAlpha ||
		alpha.DstColorBlendFactor != vk.BlendFactorOneMinusSrcAlpha ||
		alpha.AlphaBlendOp != vk.BlendOpMax ||
		alpha.ColorWriteMask != vk.ColorComponentFlags(vk.ColorComponentRBit) {
		t.Errorf("alpha blend = %+v", alpha)
	}
}

func TestResultError(t *testing.T) {
	if err := resultError("vkCall", vk.Success); err != nil {
		t.Errorf("resultError(Success) = %v", err)
	}
	if err := resultError("vkCall", vk.ErrorDeviceLost); !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("resultError(DeviceLost) = %v, want ErrDeviceLost", err)
	}
	if err := resultError("vkCall", vk.ErrorOutOfDate); !errors.Is(err, core.ErrSwapchainBooting) {
		t.Errorf("resultError(OutOfDate) = %v, want ErrSwapchainBooting", err)
	}
	if got := ResultString(vk.ErrorOutOfDeviceMemory); got != "VK_ERROR_OUT_OF_DEVICE_MEMORY" {
		t.Errorf("ResultString() = %q", got)
	}
	if !ResultIsSuccess(vk.Suboptimal) || ResultIsSuccess(vk.ErrorInitializationFailed) {
		t.Error("ResultIsSuccess() misclassified a result")
	}
}

func TestSpirvWords(t *testing.T) {
	words := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	if len(words) != 2 {
		t.Fatalf("len(words) = %d, want 2", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("magic = %#x, want 0x07230203", words[0])
	}
	if spirvWords(nil) != nil {
		t.Error("spirvWords(nil) != nil")
	}
}

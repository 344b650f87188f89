package rhi

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

type ImageLayout uint8

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

var imageLayoutNames = [...]string{
	ImageLayoutUndefined:              "Undefined",
	ImageLayoutGeneral:                "General",
	ImageLayoutColorAttachment:        "ColorAttachment",
	ImageLayoutDepthStencilAttachment: "DepthStencilAttachment",
	ImageLayoutShaderReadOnly:         "ShaderReadOnly",
	ImageLayoutTransferSrc:            "TransferSrc",
	ImageLayoutTransferDst:            "TransferDst",
	ImageLayoutPresentSrc:             "PresentSrc",
}

func (l ImageLayout) String() string {
	if int(l) < len(imageLayoutNames) {
		return imageLayoutNames[l]
	}
	return fmt.Sprintf("ImageLayout(%d)", l)
}

type PipelineStage uint32

const (
	PipelineStageNone                  PipelineStage = 0
	PipelineStageTopOfPipe             PipelineStage = 1 << 0
	PipelineStageDrawIndirect          PipelineStage = 1 << 1
	PipelineStageVertexInput           PipelineStage = 1 << 2
	PipelineStageVertexShader          PipelineStage = 1 << 3
	PipelineStageFragmentShader        PipelineStage = 1 << 7
	PipelineStageEarlyFragmentTests    PipelineStage = 1 << 8
	PipelineStageLateFragmentTests     PipelineStage = 1 << 9
	PipelineStageColorAttachmentOutput PipelineStage = 1 << 10
	PipelineStageComputeShader         PipelineStage = 1 << 11
	PipelineStageTransfer              PipelineStage = 1 << 12
	PipelineStageBottomOfPipe          PipelineStage = 1 << 13
)

var pipelineStageNames = []struct {
	bit  PipelineStage
	name string
}{
	{PipelineStageTopOfPipe, "TopOfPipe"},
	{PipelineStageDrawIndirect, "DrawIndirect"},
	{PipelineStageVertexInput, "VertexInput"},
	{PipelineStageVertexShader, "VertexShader"},
	{PipelineStageFragmentShader, "FragmentShader"},
	{PipelineStageEarlyFragmentTests, "EarlyFragmentTests"},
	{PipelineStageLateFragmentTests, "LateFragmentTests"},
	{PipelineStageColorAttachmentOutput, "ColorAttachmentOutput"},
	{PipelineStageComputeShader, "ComputeShader"},
	{PipelineStageTransfer, "Transfer"},
	{PipelineStageBottomOfPipe, "BottomOfPipe"},
}

func (s PipelineStage) Contains(other PipelineStage) bool {
	return s&other == other
}

func (s PipelineStage) String() string {
	if s == PipelineStageNone {
		return "None"
	}
	var parts []string
	for _, n := range pipelineStageNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

type Access uint32

const (
	AccessNone                        Access = 0
	AccessIndirectCommandRead         Access = 1 << 0
	AccessIndexRead                   Access = 1 << 1
	AccessVertexAttributeRead         Access = 1 << 2
	AccessUniformRead                 Access = 1 << 3
	AccessShaderRead                  Access = 1 << 5
	AccessShaderWrite                 Access = 1 << 6
	AccessColorAttachmentRead         Access = 1 << 7
	AccessColorAttachmentWrite        Access = 1 << 8
	AccessDepthStencilAttachmentRead  Access = 1 << 9
	AccessDepthStencilAttachmentWrite Access = 1 << 10
	AccessTransferRead                Access = 1 << 11
	AccessTransferWrite               Access = 1 << 12
)

var accessNames = []struct {
	bit  Access
	name string
}{
	{AccessIndirectCommandRead, "IndirectCommandRead"},
	{AccessIndexRead, "IndexRead"},
	{AccessVertexAttributeRead, "VertexAttributeRead"},
	{AccessUniformRead, "UniformRead"},
	{AccessShaderRead, "ShaderRead"},
	{AccessShaderWrite, "ShaderWrite"},
	{AccessColorAttachmentRead, "ColorAttachmentRead"},
	{AccessColorAttachmentWrite, "ColorAttachmentWrite"},
	{AccessDepthStencilAttachmentRead, "DepthStencilAttachmentRead"},
	{AccessDepthStencilAttachmentWrite, "DepthStencilAttachmentWrite"},
	{AccessTransferRead, "TransferRead"},
	{AccessTransferWrite, "TransferWrite"},
}

func (a Access) Contains(other Access) bool {
	return a&other == other
}

func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

type Extent2D struct {
	Width, Height uint32
}

type Offset2D struct {
	X, Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// FullViewport covers the extent with the [0, 1] depth range.
func FullViewport(e Extent2D) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// ClearValue is either a color or a depth/stencil pair.
type ClearValue struct {
	Color        gputypes.Color
	Depth        float32
	Stencil      uint32
	depthStencil bool
}

func ClearColor(c gputypes.Color) ClearValue {
	return ClearValue{Color: c}
}

func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, depthStencil: true}
}

func (c ClearValue) IsDepthStencil() bool {
	return c.depthStencil
}

func (c ClearValue) String() string {
	if c.depthStencil {
		return fmt.Sprintf("depth(%g, %d)", c.Depth, c.Stencil)
	}
	return fmt.Sprintf("color(%g, %g, %g, %g)", c.Color.R, c.Color.G, c.Color.B, c.Color.A)
}

// MemoryBarrier orders memory accesses without a layout change.
type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier transitions a texture between layouts.
type ImageBarrier struct {
	Texture   TextureHandle
	SrcLayout ImageLayout
	DstLayout ImageLayout
	SrcAccess Access
	DstAccess Access
}

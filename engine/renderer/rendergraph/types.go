package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// ResourceID identifies a named resource for the lifetime of a graph.
type ResourceID uint32

// Reserved ids, registered by every registry on construction.
const (
	SwapchainColor ResourceID = iota
	SwapchainDepth
)

const (
	SwapchainColorName = "swapchain"
	SwapchainDepthName = "swapchain.depth"
)

type PassType uint8

const (
	PassGraphics PassType = iota
	PassCompute
)

func (t PassType) String() string {
	switch t {
	case PassGraphics:
		return "graphics"
	case PassCompute:
		return "compute"
	default:
		return fmt.Sprintf("PassType(%d)", t)
	}
}

type SizeMethod uint8

const (
	// SizeFixed sizes are in pixels.
	SizeFixed SizeMethod = iota
	// SizeSwapchainRelative sizes are a percentage of the framebuffer
	// extent.
	SizeSwapchainRelative
)

type AttachmentType uint8

const (
	AttachmentColor AttachmentType = iota
	AttachmentDepth
)

func (t AttachmentType) String() string {
	if t == AttachmentDepth {
		return "depth"
	}
	return "color"
}

// AttachmentSpec describes a transient texture. The zero value means "keep
// whatever is registered".
type AttachmentSpec struct {
	Format gputypes.TextureFormat
	Size   SizeMethod
	Width  uint32
	Height uint32
	Layers uint32
	Clear  rhi.ClearValue
}

// Relative returns a swapchain relative spec covering pct percent of the
// framebuffer in both directions.
func Relative(format gputypes.TextureFormat, pct uint32, clear rhi.ClearValue) AttachmentSpec {
	return AttachmentSpec{Format: format, Size: SizeSwapchainRelative, Width: pct, Height: pct, Layers: 1, Clear: clear}
}

// Fixed returns a spec with an absolute size in pixels.
func Fixed(format gputypes.TextureFormat, width, height uint32, clear rhi.ClearValue) AttachmentSpec {
	return AttachmentSpec{Format: format, Size: SizeFixed, Width: width, Height: height, Layers: 1, Clear: clear}
}

func (s AttachmentSpec) IsZero() bool {
	return s == AttachmentSpec{}
}

// Type reports whether the attachment is bound as color or depth. Imports
// registered without a format are classified by their clear value.
func (s AttachmentSpec) Type() AttachmentType {
	if s.Format == gputypes.TextureFormatUndefined {
		if s.Clear.IsDepthStencil() {
			return AttachmentDepth
		}
		return AttachmentColor
	}
	if s.Format.HasDepth() || s.Format.IsDepthStencil() {
		return AttachmentDepth
	}
	return AttachmentColor
}

// Extent resolves the size of the attachment against the framebuffer
// extent.
func (s AttachmentSpec) Extent(framebuffer rhi.Extent2D) rhi.Extent2D {
	if s.Size == SizeSwapchainRelative {
		return rhi.Extent2D{
			Width:  math.ScalePercent(framebuffer.Width, s.Width),
			Height: math.ScalePercent(framebuffer.Height, s.Height),
		}
	}
	return rhi.Extent2D{Width: max(s.Width, 1), Height: max(s.Height, 1)}
}

func (s AttachmentSpec) validate() error {
	if s.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("undefined format")
	}
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("zero size %dx%d", s.Width, s.Height)
	}
	if s.Type() == AttachmentDepth && !s.Clear.IsDepthStencil() {
		return fmt.Errorf("depth format %s with a color clear value", s.Format)
	}
	if s.Type() == AttachmentColor && s.Clear.IsDepthStencil() {
		return fmt.Errorf("color format %s with a depth clear value", s.Format)
	}
	return nil
}

// BufferSpec describes a transient buffer written by a pass.
type BufferSpec struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// Dirty records which kind of rebuild the graph needs.
type Dirty uint8

const (
	DirtyNone        Dirty = 0
	DirtyPassChanges Dirty = 1 << 0
	DirtySizeUpdate  Dirty = 1 << 1
)

func (d Dirty) Has(flag Dirty) bool {
	return d&flag != 0
}

func (d Dirty) String() string {
	switch d {
	case DirtyNone:
		return "none"
	case DirtyPassChanges:
		return "pass-changes"
	case DirtySizeUpdate:
		return "size-update"
	case DirtyPassChanges | DirtySizeUpdate:
		return "pass-changes|size-update"
	default:
		return fmt.Sprintf("Dirty(%d)", uint8(d))
	}
}

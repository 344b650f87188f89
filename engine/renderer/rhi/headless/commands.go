package headless

import "github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"

// CommandType identifies a recorded command.
type CommandType uint8

const (
	CmdBeginRenderPass CommandType = iota // Begin a render pass
	CmdEndRenderPass                      // End the current render pass
	CmdBindPipeline                       // Bind a pipeline
	CmdSetViewport                        // Set the viewport
	CmdSetScissor                         // Set the scissor rectangle
	CmdDraw                               // Non-indexed draw
	CmdDrawIndexed                        // Indexed draw
	CmdDispatch                           // Compute dispatch
	CmdPipelineBarrier                    // Pipeline barrier
)

var commandTypeNames = [...]string{
	CmdBeginRenderPass: "BeginRenderPass",
	CmdEndRenderPass:   "EndRenderPass",
	CmdBindPipeline:    "BindPipeline",
	CmdSetViewport:     "SetViewport",
	CmdSetScissor:      "SetScissor",
	CmdDraw:            "Draw",
	CmdDrawIndexed:     "DrawIndexed",
	CmdDispatch:        "Dispatch",
	CmdPipelineBarrier: "PipelineBarrier",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is one recorded call. Only the fields relevant to Type are set.
type Command struct {
	Type CommandType

	RenderPass  rhi.RenderPassHandle
	Framebuffer rhi.FramebufferHandle
	Area        rhi.Rect2D
	Clears      []rhi.ClearValue

	Pipeline rhi.PipelineHandle
	Viewport rhi.Viewport
	Scissor  rhi.Rect2D

	// Counts holds vertex/index and instance counts for draws, group
	// counts for dispatches.
	Counts [3]uint32

	SrcStage       rhi.PipelineStage
	DstStage       rhi.PipelineStage
	MemoryBarriers []rhi.MemoryBarrier
	ImageBarriers  []rhi.ImageBarrier
}

// CommandList records every call for later inspection.
type CommandList struct {
	Commands []Command

	inRenderPass bool
}

var _ rhi.CommandList = (*CommandList)(nil)

func (c *CommandList) BeginRenderPass(pass rhi.RenderPassHandle, fb rhi.FramebufferHandle, area rhi.Rect2D, clears []rhi.ClearValue) {
	if c.inRenderPass {
		panic("headless: BeginRenderPass inside a render pass")
	}
	c.inRenderPass = true
	c.Commands = append(c.Commands, Command{
		Type:        CmdBeginRenderPass,
		RenderPass:  pass,
		Framebuffer: fb,
		Area:        area,
		Clears:      append([]rhi.ClearValue(nil), clears...),
	})
}

func (c *CommandList) EndRenderPass() {
	if !c.inRenderPass {
		panic("headless: EndRenderPass outside a render pass")
	}
	c.inRenderPass = false
	c.Commands = append(c.Commands, Command{Type: CmdEndRenderPass})
}

func (c *CommandList) BindPipeline(p rhi.PipelineHandle) {
	c.Commands = append(c.Commands, Command{Type: CmdBindPipeline, Pipeline: p})
}

func (c *CommandList) SetViewport(v rhi.Viewport) {
	c.Commands = append(c.Commands, Command{Type: CmdSetViewport, Viewport: v})
}

func (c *CommandList) SetScissor(r rhi.Rect2D) {
	c.Commands = append(c.Commands, Command{Type: CmdSetScissor, Scissor: r})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.Commands = append(c.Commands, Command{Type: CmdDraw, Counts: [3]uint32{vertexCount, instanceCount}})
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.Commands = append(c.Commands, Command{Type: CmdDrawIndexed, Counts: [3]uint32{indexCount, instanceCount}})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.Commands = append(c.Commands, Command{Type: CmdDispatch, Counts: [3]uint32{x, y, z}})
}

func (c *CommandList) PipelineBarrier(src, dst rhi.PipelineStage, memory []rhi.MemoryBarrier, images []rhi.ImageBarrier) {
	if c.inRenderPass {
		panic("headless: PipelineBarrier inside a render pass")
	}
	c.Commands = append(c.Commands, Command{
		Type:           CmdPipelineBarrier,
		SrcStage:       src,
		DstStage:       dst,
		MemoryBarriers: append([]rhi.MemoryBarrier(nil), memory...),
		ImageBarriers:  append([]rhi.ImageBarrier(nil), images...),
	})
}

// Types returns the recorded command types in order.
func (c *CommandList) Types() []CommandType {
	types := make([]CommandType, len(c.Commands))
	for i, cmd := range c.Commands {
		types[i] = cmd.Type
	}
	return types
}

func (c *CommandList) Reset() {
	c.Commands = c.Commands[:0]
	c.inRenderPass = false
}

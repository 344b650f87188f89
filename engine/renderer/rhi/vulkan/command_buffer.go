package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type CommandBufferState int

const (
	CommandBufferNotAllocated CommandBufferState = iota
	CommandBufferReady
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
)

var commandBufferStateNames = [...]string{
	CommandBufferNotAllocated:   "not-allocated",
	CommandBufferReady:          "ready",
	CommandBufferRecording:      "recording",
	CommandBufferInRenderPass:   "in-render-pass",
	CommandBufferRecordingEnded: "recording-ended",
	CommandBufferSubmitted:      "submitted",
}

func (s CommandBufferState) String() string {
	if int(s) < len(commandBufferStateNames) {
		return commandBufferStateNames[s]
	}
	return fmt.Sprintf("CommandBufferState(%d)", int(s))
}

// CommandList records into one primary command buffer. Handles are
// resolved through the device that allocated it.
type CommandList struct {
	Handle vk.CommandBuffer
	State  CommandBufferState

	device *Device
	// bindPoint of the last bound pipeline.
	bindPoint vk.PipelineBindPoint
}

var _ rhi.CommandList = (*CommandList)(nil)

func allocateCommandLists(d *Device, count int) ([]*CommandList, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vk.CommandBuffer, count)
	err := d.ctx.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.ctx.Device, &allocInfo, handles))
	})
	if err != nil {
		return nil, err
	}
	lists := make([]*CommandList, count)
	for i, h := range handles {
		lists[i] = &CommandList{Handle: h, State: CommandBufferReady, device: d}
	}
	return lists, nil
}

func (cl *CommandList) free(c *Context) {
	if cl.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(c.Device, c.CommandPool, 1, []vk.CommandBuffer{cl.Handle})
	cl.Handle = nil
	cl.State = CommandBufferNotAllocated
}

func (cl *CommandList) begin() error {
	if cl.State != CommandBufferReady && cl.State != CommandBufferSubmitted {
		return fmt.Errorf("begin command buffer in state %s", cl.State)
	}
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(cl.Handle, 0)); err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(cl.Handle, &beginInfo)); err != nil {
		return err
	}
	cl.State = CommandBufferRecording
	return nil
}

func (cl *CommandList) end() error {
	if cl.State == CommandBufferInRenderPass {
		return fmt.Errorf("end command buffer inside a render pass")
	}
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cl.Handle)); err != nil {
		return err
	}
	cl.State = CommandBufferRecordingEnded
	return nil
}

func (cl *CommandList) BeginRenderPass(pass rhi.RenderPassHandle, fb rhi.FramebufferHandle, area rhi.Rect2D, clears []rhi.ClearValue) {
	rp, ok := cl.device.renderPasses[pass]
	if !ok {
		cl.device.logger.Error("begin unknown render pass", "pass", pass)
		return
	}
	target, ok := cl.device.framebuffers[fb]
	if !ok {
		cl.device.logger.Error("begin unknown framebuffer", "framebuffer", fb)
		return
	}
	values := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		values[i] = vkClearValue(c)
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.Handle,
		Framebuffer:     target.Handle,
		RenderArea:      vkRect(area),
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}
	vk.CmdBeginRenderPass(cl.Handle, &beginInfo, vk.SubpassContentsInline)
	cl.State = CommandBufferInRenderPass
}

func (cl *CommandList) EndRenderPass() {
	vk.CmdEndRenderPass(cl.Handle)
	cl.State = CommandBufferRecording
}

func (cl *CommandList) BindPipeline(h rhi.PipelineHandle) {
	p, ok := cl.device.pipelines[h]
	if !ok {
		cl.device.logger.Error("bind unknown pipeline", "pipeline", h)
		return
	}
	vk.CmdBindPipeline(cl.Handle, p.BindPoint, p.Handle)
	cl.bindPoint = p.BindPoint
}

func (cl *CommandList) SetViewport(v rhi.Viewport) {
	vk.CmdSetViewport(cl.Handle, 0, 1, []vk.Viewport{vkViewport(v)})
}

func (cl *CommandList) SetScissor(r rhi.Rect2D) {
	vk.CmdSetScissor(cl.Handle, 0, 1, []vk.Rect2D{vkRect(r)})
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cl.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cl *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cl.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	if cl.bindPoint != vk.PipelineBindPointCompute {
		cl.device.logger.Warn("dispatch without a compute pipeline bound")
	}
	vk.CmdDispatch(cl.Handle, x, y, z)
}

func (cl *CommandList) PipelineBarrier(srcStage, dstStage rhi.PipelineStage, memory []rhi.MemoryBarrier, images []rhi.ImageBarrier) {
	memBarriers := make([]vk.MemoryBarrier, 0, len(memory))
	for _, m := range memory {
		memBarriers = append(memBarriers, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vkAccess(m.SrcAccess),
			DstAccessMask: vkAccess(m.DstAccess),
		})
	}
	imgBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, b := range images {
		img, ok := cl.device.textures[b.Texture]
		if !ok {
			cl.device.logger.Error("barrier on unknown texture", "texture", b.Texture)
			continue
		}
		imgBarriers = append(imgBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			OldLayout:           vkLayout(b.SrcLayout),
			NewLayout:           vkLayout(b.DstLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: img.Aspect,
				LevelCount: 1,
				LayerCount: vk.RemainingArrayLayers,
			},
		})
	}
	if len(memBarriers) == 0 && len(imgBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cl.Handle,
		vkStages(srcStage, vk.PipelineStageTopOfPipeBit),
		vkStages(dstStage, vk.PipelineStageBottomOfPipeBit),
		0,
		uint32(len(memBarriers)), memBarriers,
		0, nil,
		uint32(len(imgBarriers)), imgBarriers)
}

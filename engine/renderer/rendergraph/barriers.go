package rendergraph

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// syncDependency is the stage, access and layout a pass touches a
// resource with.
type syncDependency struct {
	Stage  rhi.PipelineStage
	Access rhi.Access
	Layout rhi.ImageLayout
}

func textureReadSync(t PassType) syncDependency {
	if t == PassCompute {
		return syncDependency{rhi.PipelineStageComputeShader, rhi.AccessShaderRead, rhi.ImageLayoutShaderReadOnly}
	}
	return syncDependency{rhi.PipelineStageFragmentShader, rhi.AccessShaderRead, rhi.ImageLayoutShaderReadOnly}
}

func textureWriteSync(t PassType, at AttachmentType) syncDependency {
	if t == PassCompute {
		return syncDependency{rhi.PipelineStageComputeShader, rhi.AccessShaderWrite, rhi.ImageLayoutGeneral}
	}
	if at == AttachmentDepth {
		return syncDependency{
			rhi.PipelineStageEarlyFragmentTests | rhi.PipelineStageLateFragmentTests,
			rhi.AccessDepthStencilAttachmentWrite,
			rhi.ImageLayoutDepthStencilAttachment,
		}
	}
	return syncDependency{rhi.PipelineStageColorAttachmentOutput, rhi.AccessColorAttachmentWrite, rhi.ImageLayoutColorAttachment}
}

// bufferReadSync derives the stage and access from every usage bit set.
func bufferReadSync(t PassType, usage gputypes.BufferUsage) syncDependency {
	if t == PassCompute {
		return syncDependency{Stage: rhi.PipelineStageComputeShader, Access: rhi.AccessShaderRead}
	}
	var dep syncDependency
	if usage.Contains(gputypes.BufferUsageVertex) {
		dep.Stage |= rhi.PipelineStageVertexInput
		dep.Access |= rhi.AccessVertexAttributeRead
	}
	if usage.Contains(gputypes.BufferUsageIndex) {
		dep.Stage |= rhi.PipelineStageVertexInput
		dep.Access |= rhi.AccessIndexRead
	}
	if usage.Contains(gputypes.BufferUsageIndirect) {
		dep.Stage |= rhi.PipelineStageDrawIndirect
		dep.Access |= rhi.AccessIndirectCommandRead
	}
	if usage.Contains(gputypes.BufferUsageUniform) || usage.Contains(gputypes.BufferUsageStorage) || dep.Stage == rhi.PipelineStageNone {
		dep.Stage |= rhi.PipelineStageFragmentShader
		dep.Access |= rhi.AccessShaderRead
	}
	return dep
}

func bufferWriteSync(t PassType) syncDependency {
	if t == PassCompute {
		return syncDependency{Stage: rhi.PipelineStageComputeShader, Access: rhi.AccessShaderWrite}
	}
	return syncDependency{Stage: rhi.PipelineStageFragmentShader, Access: rhi.AccessShaderWrite}
}

// readAccess is what later passes do with a resource after it is written,
// used as the destination of the post-pass memory barrier.
func readAccess(write rhi.Access) rhi.Access {
	switch write {
	case rhi.AccessColorAttachmentWrite:
		return rhi.AccessColorAttachmentRead | rhi.AccessColorAttachmentWrite
	case rhi.AccessDepthStencilAttachmentWrite:
		return rhi.AccessDepthStencilAttachmentRead | rhi.AccessDepthStencilAttachmentWrite
	default:
		return rhi.AccessShaderRead
	}
}

func (b *Barrier) transition(src, dst rhi.PipelineStage, ib ImageBarrier) {
	b.Enabled = true
	b.SrcStage |= src
	b.DstStage |= dst
	b.ImageBarriers = append(b.ImageBarriers, ib)
}

func (b *Barrier) memory(src, dst rhi.PipelineStage, mb rhi.MemoryBarrier) {
	b.Enabled = true
	b.SrcStage |= src
	b.DstStage |= dst
	b.MemoryBarriers = append(b.MemoryBarriers, mb)
}

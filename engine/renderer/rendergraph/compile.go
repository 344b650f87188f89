package rendergraph

import (
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// Compile declares dirty passes, orders them and resolves attachments and
// barriers. Structural errors abort the process.
func (g *Graph) Compile() *Plan {
	plan, err := g.compile()
	if err != nil {
		g.ctx.Fatal(err)
		return nil
	}
	return plan
}

func (g *Graph) compile() (*Plan, error) {
	seen := make(map[string]struct{}, len(g.passes))
	for _, p := range g.passes {
		if _, ok := seen[p.name]; ok {
			return nil, graphErrorf(ErrDuplicatePass, "%q in graph %s", p.name, g.name)
		}
		seen[p.name] = struct{}{}
	}

	for _, p := range g.passes {
		if !p.dirty {
			continue
		}
		if err := p.declare(g.registry); err != nil {
			return nil, err
		}
	}

	active := make([]*Pass, 0, len(g.passes))
	for _, p := range g.passes {
		if p.isLonely() {
			g.logger.Debug("pass pruned", "pass", p.name, "graph", g.name)
			continue
		}
		active = append(active, p)
	}

	order, err := topologicalSort(active, buildAdjacency(active))
	if err != nil {
		return nil, err
	}
	sorted := make([]*Pass, len(order))
	for i, idx := range order {
		sorted[i] = active[idx]
	}

	compiled, err := g.resolve(sorted)
	if err != nil {
		return nil, err
	}
	g.generation++
	plan := &Plan{Passes: compiled, Generation: g.generation}
	g.logger.Debug("graph compiled",
		"graph", g.name,
		"passes", plan.Len(),
		"pruned", len(g.passes)-len(active),
		"order", strings.Join(plan.Names(), " "))
	return plan, nil
}

type textureState struct {
	layout rhi.ImageLayout
	stage  rhi.PipelineStage
	access rhi.Access
}

func (g *Graph) attachmentType(id ResourceID) AttachmentType {
	switch id {
	case SwapchainColor:
		return AttachmentColor
	case SwapchainDepth:
		return AttachmentDepth
	default:
		return g.registry.Attachment(id).Type()
	}
}

func (g *Graph) clearValue(id ResourceID) rhi.ClearValue {
	switch id {
	case SwapchainColor:
		return g.swapchainClear
	case SwapchainDepth:
		return g.depthClear
	default:
		return g.registry.Attachment(id).Clear
	}
}

// resolve walks the sorted passes once, assigning load ops on first and
// later writes and tracking layouts to derive the barriers around each
// pass.
func (g *Graph) resolve(sorted []*Pass) ([]*CompiledPass, error) {
	reg := g.registry
	textures := make(map[ResourceID]textureState)
	buffers := make(map[ResourceID]syncDependency)
	written := make(map[ResourceID]bool)

	for id, res := range reg.resources {
		rid := ResourceID(id)
		if !res.imported || rid == SwapchainColor || rid == SwapchainDepth {
			continue
		}
		switch res.kind {
		case kindTexture:
			textures[rid] = textureState{layout: res.layout, stage: rhi.PipelineStageTopOfPipe}
		case kindBuffer:
			buffers[rid] = syncDependency{}
		}
	}

	lastPresent := -1
	for i, p := range sorted {
		for _, id := range p.outputs {
			if id == SwapchainColor {
				lastPresent = i
			}
		}
	}

	compiled := make([]*CompiledPass, 0, len(sorted))
	for i, p := range sorted {
		cp := &CompiledPass{Pass: p}

		for _, id := range p.inputs {
			st, ok := textures[id]
			if !ok {
				return nil, graphErrorf(ErrUnwrittenResource, "pass %s reads texture %s", p.name, reg.Name(id))
			}
			read := textureReadSync(p.typ)
			cp.Inputs = append(cp.Inputs, TextureInput{ID: id, SrcLayout: st.layout, DstLayout: read.Layout})
			if st.layout == read.Layout {
				continue
			}
			cp.PreBarrier.transition(st.stage, read.Stage, ImageBarrier{
				ID:        id,
				SrcLayout: st.layout,
				DstLayout: read.Layout,
				SrcAccess: st.access,
				DstAccess: read.Access,
			})
			cp.PostBarrier.transition(read.Stage, st.stage, ImageBarrier{
				ID:        id,
				SrcLayout: read.Layout,
				DstLayout: st.layout,
				SrcAccess: read.Access,
				DstAccess: st.access,
			})
		}

		for _, in := range p.bufferInputs {
			st, ok := buffers[in.ID]
			if !ok {
				return nil, graphErrorf(ErrUnwrittenResource, "pass %s reads buffer %s", p.name, reg.Name(in.ID))
			}
			read := bufferReadSync(p.typ, in.Usage)
			cp.BufferInputs = append(cp.BufferInputs, BufferInput{ID: in.ID, Usage: in.Usage, Stage: read.Stage, Access: read.Access})
			if st.Stage == rhi.PipelineStageNone {
				// host written import
				continue
			}
			cp.PreBarrier.memory(st.Stage, read.Stage, rhi.MemoryBarrier{SrcAccess: st.Access, DstAccess: read.Access})
		}

		for _, id := range p.outputs {
			if id != SwapchainColor && id != SwapchainDepth && !reg.IsImported(id) && reg.Attachment(id).IsZero() {
				return nil, graphErrorf(ErrInvalidAttachment, "pass %s writes %s without an attachment spec", p.name, reg.Name(id))
			}
			at := g.attachmentType(id)
			write := textureWriteSync(p.typ, at)
			out := Output{
				ID:          id,
				Type:        at,
				Format:      reg.Attachment(id).Format,
				LoadOp:      gputypes.LoadOpClear,
				StoreOp:     gputypes.StoreOpStore,
				Clear:       g.clearValue(id),
				SrcLayout:   rhi.ImageLayoutUndefined,
				DstLayout:   write.Layout,
				FinalLayout: write.Layout,
			}
			if written[id] {
				out.LoadOp = gputypes.LoadOpLoad
			}
			written[id] = true

			st, seen := textures[id]
			if seen {
				out.SrcLayout = st.layout
			} else {
				st = textureState{layout: rhi.ImageLayoutUndefined, stage: rhi.PipelineStageTopOfPipe}
			}
			if p.typ == PassCompute && out.SrcLayout != write.Layout {
				// no render pass to transition the image for us
				cp.PreBarrier.transition(st.stage, write.Stage, ImageBarrier{
					ID:        id,
					SrcLayout: out.SrcLayout,
					DstLayout: write.Layout,
					SrcAccess: st.access,
					DstAccess: write.Access,
				})
			}
			if id == SwapchainColor && i == lastPresent {
				out.FinalLayout = g.presentLayout
			}
			cp.PostBarrier.memory(write.Stage, write.Stage, rhi.MemoryBarrier{SrcAccess: write.Access, DstAccess: readAccess(write.Access)})
			textures[id] = textureState{layout: out.FinalLayout, stage: write.Stage, access: write.Access}
			cp.Outputs = append(cp.Outputs, out)
		}

		for _, id := range p.bufferOutputs {
			if !reg.IsImported(id) && reg.BufferSpec(id).Size == 0 {
				return nil, graphErrorf(ErrInvalidAttachment, "pass %s writes buffer %s without a size", p.name, reg.Name(id))
			}
			write := bufferWriteSync(p.typ)
			cp.BufferOutputs = append(cp.BufferOutputs, BufferOutput{ID: id, Stage: write.Stage, Access: write.Access})
			cp.PostBarrier.memory(write.Stage, write.Stage, rhi.MemoryBarrier{SrcAccess: write.Access, DstAccess: readAccess(write.Access)})
			buffers[id] = write
		}

		compiled = append(compiled, cp)
	}
	return compiled, nil
}

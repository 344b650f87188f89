package rendergraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// Builder is handed to a pass while it declares its resources. The first
// error is kept and reported when the declaration ends; the ids returned
// after an error are still valid names.
type Builder struct {
	pass     *Pass
	registry *Registry
	err      error
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = fmt.Errorf("pass %s: %w", b.pass.name, err)
	}
}

// Pass returns the name of the pass being declared.
func (b *Builder) Pass() string {
	return b.pass.name
}

// Write declares name as an output. The spec is registered on first use;
// a zero spec reuses the registered one.
func (b *Builder) Write(name string, spec AttachmentSpec) ResourceID {
	id, err := b.registry.create(name, spec)
	if err != nil {
		b.fail(err)
		return id
	}
	b.addOutput(id)
	if b.registry.Attachment(id).Size == SizeSwapchainRelative {
		b.pass.swapchainRelative = true
	}
	return id
}

func (b *Builder) WriteSwapchainColor() ResourceID {
	b.addOutput(SwapchainColor)
	b.pass.swapchainRelative = true
	return SwapchainColor
}

func (b *Builder) WriteSwapchainDepth() ResourceID {
	b.addOutput(SwapchainDepth)
	b.pass.swapchainRelative = true
	return SwapchainDepth
}

func (b *Builder) addOutput(id ResourceID) {
	if slices.Contains(b.pass.outputs, id) {
		b.fail(graphErrorf(ErrDuplicateOutput, "%s", b.registry.Name(id)))
		return
	}
	b.pass.outputs = append(b.pass.outputs, id)
}

// Read declares name as a texture input. The writer may be declared later.
func (b *Builder) Read(name string) ResourceID {
	id := b.registry.GetResourceID(name)
	if err := b.registry.resources[id].setKind(kindTexture); err != nil {
		b.fail(err)
		return id
	}
	if !slices.Contains(b.pass.inputs, id) {
		b.pass.inputs = append(b.pass.inputs, id)
	}
	return id
}

// ReadBuffer declares name as a buffer input read with usage.
func (b *Builder) ReadBuffer(name string, usage gputypes.BufferUsage) ResourceID {
	id := b.registry.GetResourceID(name)
	if err := b.registry.resources[id].setKind(kindBuffer); err != nil {
		b.fail(err)
		return id
	}
	for i, in := range b.pass.bufferInputs {
		if in.ID == id {
			b.pass.bufferInputs[i].Usage |= usage
			return id
		}
	}
	b.pass.bufferInputs = append(b.pass.bufferInputs, BufferAccess{ID: id, Usage: usage})
	return id
}

// WriteBuffer declares name as a buffer output.
func (b *Builder) WriteBuffer(name string, spec BufferSpec) ResourceID {
	id, err := b.registry.createBuffer(name, spec)
	if err != nil {
		b.fail(err)
		return id
	}
	if slices.Contains(b.pass.bufferOutputs, id) {
		b.fail(graphErrorf(ErrDuplicateOutput, "%s", name))
		return id
	}
	b.pass.bufferOutputs = append(b.pass.bufferOutputs, id)
	return id
}

// Create registers a pipeline owned by the pass. The returned id resolves
// to a pipeline handle once the graph is realised.
func (b *Builder) Create(desc rhi.PipelineDescription) ResourceID {
	name := fmt.Sprintf("%s/pipeline.%d", b.pass.name, len(b.pass.aux))
	if desc.Label == "" {
		desc.Label = name
	}
	id, err := b.registry.createPipeline(name, desc)
	if err != nil {
		b.fail(err)
		return id
	}
	b.pass.aux = append(b.pass.aux, id)
	return id
}

package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type resourceKind uint8

const (
	kindUnknown resourceKind = iota
	kindTexture
	kindBuffer
	kindPipeline
	kindRenderTarget
)

func (k resourceKind) String() string {
	switch k {
	case kindTexture:
		return "texture"
	case kindBuffer:
		return "buffer"
	case kindPipeline:
		return "pipeline"
	case kindRenderTarget:
		return "render target"
	default:
		return "unknown"
	}
}

// RenderTarget is the realised render pass of a graphics pass together
// with its framebuffers. Passes that write the swapchain own one
// framebuffer per swapchain image.
type RenderTarget struct {
	RenderPass   rhi.RenderPassHandle
	Framebuffers []rhi.FramebufferHandle
	Extent       rhi.Extent2D
}

// Framebuffer picks the framebuffer for a swapchain image.
func (t *RenderTarget) Framebuffer(imageIndex uint32) rhi.FramebufferHandle {
	if len(t.Framebuffers) == 0 {
		return 0
	}
	return t.Framebuffers[int(imageIndex)%len(t.Framebuffers)]
}

// RealHandle is the backend object behind a ResourceID. Only the field
// matching the resource kind is set.
type RealHandle struct {
	Texture  rhi.TextureHandle
	Buffer   rhi.BufferHandle
	Pipeline rhi.PipelineHandle
	Target   *RenderTarget
}

// ReadyFunc is called every time a resource is (re)realised.
type ReadyFunc func(id ResourceID, h RealHandle)

type resource struct {
	name string
	kind resourceKind

	attachment AttachmentSpec
	buffer     BufferSpec
	pipeline   rhi.PipelineDescription
	// version grows each time the pipeline is redeclared.
	version uint64

	imported bool
	// layout is the layout an imported texture is handed over in.
	layout rhi.ImageLayout

	real     RealHandle
	realized bool
	onReady  []ReadyFunc
}

// Registry interns resource names and owns the mapping from ids to real
// backend handles.
type Registry struct {
	ctx *core.Context

	ids       map[string]ResourceID
	resources []*resource
}

func NewRegistry(ctx *core.Context) *Registry {
	r := &Registry{
		ctx: ctx,
		ids: make(map[string]ResourceID),
	}
	color := r.GetResourceID(SwapchainColorName)
	depth := r.GetResourceID(SwapchainDepthName)
	r.resources[color].kind = kindTexture
	r.resources[color].imported = true
	r.resources[depth].kind = kindTexture
	r.resources[depth].imported = true
	return r
}

// GetResourceID returns the id of name, allocating it on first use.
func (r *Registry) GetResourceID(name string) ResourceID {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := ResourceID(len(r.resources))
	r.ids[name] = id
	r.resources = append(r.resources, &resource{name: name})
	return id
}

// Lookup returns the id of name without allocating.
func (r *Registry) Lookup(name string) (ResourceID, bool) {
	id, ok := r.ids[name]
	return id, ok
}

// Create registers a transient attachment. A zero spec leaves the
// registered one untouched.
func (r *Registry) Create(name string, spec AttachmentSpec) ResourceID {
	id, err := r.create(name, spec)
	if err != nil {
		r.ctx.Fatal(err)
	}
	return id
}

func (r *Registry) create(name string, spec AttachmentSpec) (ResourceID, error) {
	id := r.GetResourceID(name)
	res := r.resources[id]
	if err := res.setKind(kindTexture); err != nil {
		return id, err
	}
	if spec.IsZero() || res.imported {
		return id, nil
	}
	if spec.Layers == 0 {
		spec.Layers = 1
	}
	if err := spec.validate(); err != nil {
		return id, graphErrorf(ErrInvalidAttachment, "%s: %v", name, err)
	}
	res.attachment = spec
	return id, nil
}

func (r *Registry) CreateBuffer(name string, spec BufferSpec) ResourceID {
	id, err := r.createBuffer(name, spec)
	if err != nil {
		r.ctx.Fatal(err)
	}
	return id
}

func (r *Registry) createBuffer(name string, spec BufferSpec) (ResourceID, error) {
	id := r.GetResourceID(name)
	res := r.resources[id]
	if err := res.setKind(kindBuffer); err != nil {
		return id, err
	}
	if spec != (BufferSpec{}) && !res.imported {
		res.buffer = spec
	}
	return id, nil
}

func (r *Registry) createPipeline(name string, desc rhi.PipelineDescription) (ResourceID, error) {
	id := r.GetResourceID(name)
	res := r.resources[id]
	if err := res.setKind(kindPipeline); err != nil {
		return id, err
	}
	res.pipeline = desc
	res.version++
	return id, nil
}

func (r *Registry) createTarget(name string) ResourceID {
	id := r.GetResourceID(name)
	r.resources[id].kind = kindRenderTarget
	return id
}

// ImportTexture registers an externally owned texture. Importing the same
// name again replaces the handle. The graph never destroys imports.
// Passes may sample such a texture; writing it from a render pass needs
// the format, see ImportAttachment.
func (r *Registry) ImportTexture(name string, h rhi.TextureHandle, layout rhi.ImageLayout, clear rhi.ClearValue) ResourceID {
	return r.ImportAttachment(name, h, layout, AttachmentSpec{Clear: clear})
}

// ImportAttachment is ImportTexture with the texture's format and size, so
// the import can be bound as a render pass attachment.
func (r *Registry) ImportAttachment(name string, h rhi.TextureHandle, layout rhi.ImageLayout, spec AttachmentSpec) ResourceID {
	id := r.GetResourceID(name)
	res := r.resources[id]
	if err := res.setKind(kindTexture); err != nil {
		r.ctx.Fatal(err)
	}
	res.imported = true
	res.layout = layout
	res.attachment = spec
	r.realize(id, RealHandle{Texture: h})
	return id
}

func (r *Registry) ImportBuffer(name string, h rhi.BufferHandle) ResourceID {
	id := r.GetResourceID(name)
	res := r.resources[id]
	if err := res.setKind(kindBuffer); err != nil {
		r.ctx.Fatal(err)
	}
	res.imported = true
	r.realize(id, RealHandle{Buffer: h})
	return id
}

// Get resolves id to its backend handle. Unknown or unrealised ids are
// programmer errors.
func (r *Registry) Get(id ResourceID) RealHandle {
	h, err := r.get(id)
	if err != nil {
		r.ctx.Fatal(err)
	}
	return h
}

func (r *Registry) get(id ResourceID) (RealHandle, error) {
	if int(id) >= len(r.resources) {
		return RealHandle{}, graphErrorf(ErrUnknownResource, "id %d", id)
	}
	res := r.resources[id]
	if !res.realized {
		return RealHandle{}, graphErrorf(ErrUnrealizedResource, "%s (id %d)", res.name, id)
	}
	return res.real, nil
}

func (r *Registry) Texture(id ResourceID) rhi.TextureHandle {
	return r.Get(id).Texture
}

func (r *Registry) Buffer(id ResourceID) rhi.BufferHandle {
	return r.Get(id).Buffer
}

func (r *Registry) Pipeline(id ResourceID) rhi.PipelineHandle {
	return r.Get(id).Pipeline
}

func (r *Registry) RenderTarget(id ResourceID) *RenderTarget {
	return r.Get(id).Target
}

// IsRealized reports whether id has a backend handle.
func (r *Registry) IsRealized(id ResourceID) bool {
	return int(id) < len(r.resources) && r.resources[id].realized
}

func (r *Registry) Name(id ResourceID) string {
	if int(id) >= len(r.resources) {
		return fmt.Sprintf("#%d", id)
	}
	return r.resources[id].name
}

// Attachment returns the registered spec of a texture.
func (r *Registry) Attachment(id ResourceID) AttachmentSpec {
	if int(id) >= len(r.resources) {
		return AttachmentSpec{}
	}
	return r.resources[id].attachment
}

func (r *Registry) BufferSpec(id ResourceID) BufferSpec {
	if int(id) >= len(r.resources) {
		return BufferSpec{}
	}
	return r.resources[id].buffer
}

func (r *Registry) IsImported(id ResourceID) bool {
	return int(id) < len(r.resources) && r.resources[id].imported
}

// Len returns the number of interned names.
func (r *Registry) Len() int {
	return len(r.resources)
}

// OnReady registers fn to run whenever id is realised. If id is already
// realised fn runs immediately.
func (r *Registry) OnReady(id ResourceID, fn ReadyFunc) {
	if int(id) >= len(r.resources) {
		r.ctx.Fatal(graphErrorf(ErrUnknownResource, "id %d", id))
		return
	}
	res := r.resources[id]
	res.onReady = append(res.onReady, fn)
	if res.realized {
		fn(id, res.real)
	}
}

func (r *Registry) realize(id ResourceID, h RealHandle) {
	res := r.resources[id]
	res.real = h
	res.realized = true
	for _, fn := range res.onReady {
		fn(id, h)
	}
}

// assign replaces the handle without notifying listeners. The evaluator
// uses it to point the swapchain id at the current image every frame.
func (r *Registry) assign(id ResourceID, h RealHandle) {
	res := r.resources[id]
	res.real = h
	res.realized = true
}

func (r *Registry) unrealize(id ResourceID) {
	res := r.resources[id]
	res.real = RealHandle{}
	res.realized = false
}

func (r *Registry) pipelineDescription(id ResourceID) (rhi.PipelineDescription, uint64) {
	res := r.resources[id]
	return res.pipeline, res.version
}

// setSwapchainSpecs mirrors the device swapchain formats into the
// reserved attachments so passes can query them.
func (r *Registry) setSwapchainSpecs(info rhi.SwapchainInfo, color, depth rhi.ClearValue) {
	r.resources[SwapchainColor].attachment = AttachmentSpec{
		Format: info.ColorFormat,
		Size:   SizeSwapchainRelative,
		Width:  100,
		Height: 100,
		Layers: 1,
		Clear:  color,
	}
	r.resources[SwapchainDepth].attachment = AttachmentSpec{
		Format: info.DepthFormat,
		Size:   SizeSwapchainRelative,
		Width:  100,
		Height: 100,
		Layers: 1,
		Clear:  depth,
	}
}

func (res *resource) setKind(k resourceKind) error {
	if res.kind == kindUnknown {
		res.kind = k
		return nil
	}
	if res.kind != k {
		return graphErrorf(ErrResourceKindChanged, "%s is a %s, used as a %s", res.name, res.kind, k)
	}
	return nil
}

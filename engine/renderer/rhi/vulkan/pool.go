package vulkan

import "sync"

type LockGroup string

const (
	ResourceManagement        LockGroup = "resource_management"
	CommandBufferManagement   LockGroup = "command_buffer_management"
	RenderpassManagement      LockGroup = "renderpass_management"
	PipelineManagement        LockGroup = "pipeline_management"
	MemoryManagement          LockGroup = "memory_management"
	ShaderManagement          LockGroup = "shader_management"
	SynchronizationManagement LockGroup = "synchronization_management"
	SwapchainManagement       LockGroup = "swapchain_management"
)

// LockPool hands out one mutex per group of vulkan calls that must not
// overlap, plus one per queue family for submissions.
type LockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[uint32]*sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (p *LockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l
}

// SafeCall runs fn while holding the group's mutex.
func (p *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	defer l.Unlock()
	return fn()
}

func (p *LockPool) SetQueueFamily(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queues[index]; !ok {
		p.queues[index] = &sync.Mutex{}
	}
}

// SafeQueueCall serialises fn against every other call on the family.
func (p *LockPool) SafeQueueCall(family uint32, fn func() error) error {
	p.mu.Lock()
	l, ok := p.queues[family]
	if !ok {
		l = &sync.Mutex{}
		p.queues[family] = l
	}
	p.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}

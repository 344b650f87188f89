package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Fence tracks whether the GPU finished the frame that signals it.
type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func newFence(c *Context, signaled bool) (*Fence, error) {
	f := &Fence{IsSignaled: signaled}
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	err := c.locks.SafeCall(SynchronizationManagement, func() error {
		return resultError("vkCreateFence", vk.CreateFence(c.Device, &createInfo, c.Allocator, &f.Handle))
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Wait blocks until the fence is signaled or the timeout expires.
func (f *Fence) Wait(c *Context, timeoutNs uint64) error {
	if f.IsSignaled {
		return nil
	}
	res := vk.WaitForFences(c.Device, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs)
	switch res {
	case vk.Success:
		f.IsSignaled = true
		return nil
	case vk.Timeout:
		return fmt.Errorf("fence wait timed out after %dns", timeoutNs)
	default:
		return resultError("vkWaitForFences", res)
	}
}

func (f *Fence) Reset(c *Context) error {
	if !f.IsSignaled {
		return nil
	}
	if err := resultError("vkResetFences", vk.ResetFences(c.Device, 1, []vk.Fence{f.Handle})); err != nil {
		return err
	}
	f.IsSignaled = false
	return nil
}

func (f *Fence) destroy(c *Context) {
	if f.Handle != vk.NullFence {
		vk.DestroyFence(c.Device, f.Handle, c.Allocator)
		f.Handle = vk.NullFence
	}
	f.IsSignaled = false
}

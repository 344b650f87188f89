package vulkan

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"
)

var (
	loaderOnce sync.Once
	loaderErr  error
)

// loadVulkan resolves the loader library once per process.
func loadVulkan() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("failed to load vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("failed to initialize vulkan loader: %w", err)
		}
	})
	return loaderErr
}

// Context holds the instance level objects shared by every resource of a
// device: one graphics queue and the pool its command buffers come from.
type Context struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Allocator      *vk.AllocationCallbacks

	QueueFamily uint32
	Queue       vk.Queue
	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	locks  *LockPool
	logger *log.Logger
}

func newContext(appName string, logger *log.Logger) (*Context, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}
	c := &Context{
		locks:  NewLockPool(),
		logger: logger,
	}
	if err := c.createInstance(appName); err != nil {
		return nil, err
	}
	if err := c.selectPhysicalDevice(); err != nil {
		c.destroy()
		return nil, err
	}
	if err := c.createDevice(); err != nil {
		c.destroy()
		return nil, err
	}
	if err := c.createCommandPool(); err != nil {
		c.destroy()
		return nil, err
	}
	return c, nil
}

func (c *Context) createInstance(appName string) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("anima"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vk.Instance
	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, c.Allocator, &instance)); err != nil {
		return err
	}
	c.Instance = instance
	vk.InitInstance(instance)
	c.logger.Info("vulkan instance created", "api", "1.1")
	return nil
}

// selectPhysicalDevice picks the first device with a graphics queue,
// preferring a discrete GPU when there is one.
func (c *Context) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(c.Instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no vulkan capable GPU found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(c.Instance, &count, devices)

	found := false
	for _, device := range devices {
		family, ok := graphicsFamily(device)
		if !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()

		discrete := props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
		if found && !discrete {
			continue
		}
		c.PhysicalDevice = device
		c.QueueFamily = family
		c.Properties = props
		found = true
		if discrete {
			break
		}
	}
	if !found {
		return fmt.Errorf("no GPU with a graphics queue found")
	}

	vk.GetPhysicalDeviceMemoryProperties(c.PhysicalDevice, &c.Memory)
	c.Memory.Deref()
	c.logger.Info("physical device selected",
		"name", vk.ToString(c.Properties.DeviceName[:]),
		"type", c.Properties.DeviceType,
		"queue_family", c.QueueFamily)
	return nil
}

func graphicsFamily(device vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for i, qf := range families {
		qf.Deref()
		if qf.QueueFlags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}

func (c *Context) createDevice() error {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}

	var device vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(c.PhysicalDevice, &createInfo, c.Allocator, &device)); err != nil {
		return err
	}
	c.Device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, c.QueueFamily, 0, &queue)
	c.Queue = queue
	c.locks.SetQueueFamily(c.QueueFamily)
	c.logger.Debug("logical device created")
	return nil
}

func (c *Context) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: c.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(c.Device, &poolInfo, c.Allocator, &pool)); err != nil {
		return err
	}
	c.CommandPool = pool
	return nil
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has all of flags.
func (c *Context) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < c.Memory.MemoryTypeCount; i++ {
		c.Memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && c.Memory.MemoryTypes[i].PropertyFlags&flags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches filter %#x with flags %#x", typeFilter, flags)
}

// allocate backs a resource with device memory.
func (c *Context) allocate(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	reqs.Deref()
	index, err := c.findMemoryIndex(reqs.MemoryTypeBits, flags)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var mem vk.DeviceMemory
	err = c.locks.SafeCall(MemoryManagement, func() error {
		return resultError("vkAllocateMemory", vk.AllocateMemory(c.Device, &allocInfo, c.Allocator, &mem))
	})
	return mem, err
}

func (c *Context) waitIdle() error {
	if c.Device == nil {
		return nil
	}
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(c.Device))
}

func (c *Context) destroy() {
	if c.CommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(c.Device, c.CommandPool, c.Allocator)
		c.CommandPool = vk.NullCommandPool
	}
	if c.Device != nil {
		vk.DestroyDevice(c.Device, c.Allocator)
		c.Device = nil
	}
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, c.Allocator)
		c.Instance = nil
	}
}

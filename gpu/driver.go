// Package gpu defines the boundary between the device context code and a concrete graphics API.
// It holds the handle interfaces, the flag types, the PhysicalDeviceInfo snapshot and the error kinds.
// Backends (gpu/vulkan, gpu/soft) implement the interfaces and register themselves on init.
package gpu

import (
	"sort"
	"sync"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
)

// Window is the part of a platform window an instance needs to present to it.
type Window interface {
	// InstanceExtensions lists the instance extensions required to create a surface for this window.
	InstanceExtensions() ([]string, error)

	// CreateVulkanSurface creates a VkSurfaceKHR for the given VkInstance and returns a pointer to it.
	CreateVulkanSurface(instance any) (unsafe.Pointer, error)

	// ProcAddr returns the window system's vkGetInstanceProcAddr, or nil if the default loader should be used.
	ProcAddr() unsafe.Pointer
}

// Driver loads a graphics API and creates instances of it.
type Driver interface {
	// Name returns the name the driver is registered under.
	Name() string

	// Load initializes the API entry point. The window is optional and may provide its own loader.
	// Failures match ErrInitialization.
	Load(win Window) error

	// CreateInstance creates a new API instance.
	CreateInstance(info InstanceInfo) (Instance, error)
}

// InstanceInfo configures instance creation.
type InstanceInfo struct {
	AppName    string
	APIVersion uint32
	Extensions []string
	Layers     []string
}

// Instance owns the surfaces and devices created through it and must be destroyed after all of them.
type Instance interface {
	// CreateSurface creates a presentation surface bound to win. Failures match ErrSurfaceCreation.
	CreateSurface(win Window) (Surface, error)

	// PhysicalDevices queries every physical device without side effects. If s is not nil, the QueuePresent
	// bit of each queue family reports present support on s.
	PhysicalDevices(s Surface) ([]PhysicalDeviceInfo, error)

	// CreateDevice creates a logical device with one queue per priority from the given family.
	CreateDevice(pd PhysicalDeviceInfo, family int, priorities []float32) (Device, error)

	Destroy()
}

// Surface is a presentation surface owned by an Instance.
type Surface interface {
	Destroy()
}

// Device is a logical device with a single queue. It owns every object created through it.
type Device interface {
	NewBuffer(size int64, usage BufferUsage) (Buffer, error)
	AllocateMemory(size int64, memType int) (Memory, error)
	NewCommandPool(family int) (CommandPool, error)
	NewFence() (Fence, error)

	// Submit hands an executable command buffer to the device queue. The fence is signaled by the device
	// once the work has completed.
	Submit(cb CommandBuffer, f Fence) error

	WaitIdle() error
	Destroy()
}

// Buffer is a buffer resource. It must be bound to memory before use.
type Buffer interface {
	Size() int64
	Requirements() MemoryRequirements
	Bind(m Memory, offset int64) error
	Destroy()
}

// Memory is a device memory allocation.
type Memory interface {
	Size() int64
	// Map maps a range of the allocation into host memory. Only host visible memory can be mapped.
	Map(offset, size int64) ([]byte, error)
	Unmap()
	Free()
}

// CommandPool allocates command buffers for one queue family.
type CommandPool interface {
	Allocate() (CommandBuffer, error)
	Destroy()
}

// CommandBuffer records transfer commands. State tracking is left to the caller.
type CommandBuffer interface {
	Begin() error
	FillBuffer(dst Buffer, offset, size int64, value uint32)
	CopyBuffer(src, dst Buffer, size int64)
	End() error
	Reset() error
	Free()
}

// Fence is a binary completion signal.
type Fence interface {
	// Wait blocks until the fence is signaled or timeout elapses. It reports whether the fence was signaled.
	// A timeout of zero polls.
	Wait(timeout time.Duration) (bool, error)
	Reset() error
	Destroy()
}

var (
	mu      sync.Mutex
	drivers = make(map[string]Driver)
)

// Register makes a driver available by name. Backends call it from init. A driver registered twice under
// the same name replaces the earlier one.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := drivers[drv.Name()]; ok {
		log.Warnf("driver '%s' replaced", drv.Name())
	}
	drivers[drv.Name()] = drv
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, bool) {
	mu.Lock()
	defer mu.Unlock()
	drv, ok := drivers[name]
	return drv, ok
}

// Drivers returns the names of all registered drivers in sorted order.
func Drivers() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package gpu

// QueueFlags describes the capabilities of a queue family. The bit layout of the first three flags matches
// Vulkan's VkQueueFlagBits, QueuePresent is not part of the Vulkan flags and is filled in per surface.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << 0
	QueueCompute  QueueFlags = 1 << 1
	QueueTransfer QueueFlags = 1 << 2
	QueuePresent  QueueFlags = 1 << 31
)

// Has reports whether all bits of want are set.
func (f QueueFlags) Has(want QueueFlags) bool {
	return f&want == want
}

// MemoryPropertyFlags mirrors VkMemoryPropertyFlagBits.
type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal     MemoryPropertyFlags = 1 << 0
	MemoryHostVisible     MemoryPropertyFlags = 1 << 1
	MemoryHostCoherent    MemoryPropertyFlags = 1 << 2
	MemoryHostCached      MemoryPropertyFlags = 1 << 3
	MemoryLazilyAllocated MemoryPropertyFlags = 1 << 4
)

// Has reports whether all bits of want are set.
func (f MemoryPropertyFlags) Has(want MemoryPropertyFlags) bool {
	return f&want == want
}

// BufferUsage mirrors VkBufferUsageFlagBits for the usages this module cares about.
type BufferUsage uint32

const (
	BufferTransferSrc BufferUsage = 1 << 0
	BufferTransferDst BufferUsage = 1 << 1
	BufferUniform     BufferUsage = 1 << 4
	BufferStorage     BufferUsage = 1 << 5
)

// DeviceType mirrors VkPhysicalDeviceType.
type DeviceType int

const (
	DeviceOther DeviceType = iota
	DeviceIntegratedGPU
	DeviceDiscreteGPU
	DeviceVirtualGPU
	DeviceCPU
)

// WholeSize may be passed as a fill size to mean "until the end of the buffer".
const WholeSize int64 = -1

// MemoryType is one entry of a device's memory type table.
type MemoryType struct {
	Flags     MemoryPropertyFlags
	HeapIndex int
}

// MemoryHeap is one entry of a device's memory heap table.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// MemoryProperties is the memory layout of a physical device.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// MemoryRequirements is what a resource needs from the memory bound to it. Bit i of TypeBits is set when
// memory type i may back the resource.
type MemoryRequirements struct {
	Size      int64
	Alignment int64
	TypeBits  uint32
}

// Features is the subset of VkPhysicalDeviceFeatures that is reported and logged.
type Features struct {
	GeometryShader     bool
	TessellationShader bool
	SamplerAnisotropy  bool
	ShaderFloat64      bool
	ShaderInt64        bool
	MultiViewport      bool
}

// QueueFamilyInfo describes one queue family of a physical device. Index is stable within its device.
type QueueFamilyInfo struct {
	Index int
	Flags QueueFlags
	Count int
}

// PhysicalDeviceInfo is a read-only snapshot of one enumerated physical device. It is produced once by
// Instance.PhysicalDevices and never mutated afterwards. Handle is the backend's own device handle.
type PhysicalDeviceInfo struct {
	Index         int
	Handle        any
	Name          string
	VendorID      uint32
	DeviceID      uint32
	Type          DeviceType
	APIVersion    uint32
	DriverVersion uint32
	Features      Features
	Memory        MemoryProperties
	QueueFamilies []QueueFamilyInfo
}

// MakeVersion packs a version the same way VK_MAKE_API_VERSION does, with a variant of 0.
func MakeVersion(major, minor, patch uint32) uint32 {
	return major<<22 | minor<<12 | patch
}

// APIVersion13 is the minimum API version requested at instance creation.
var APIVersion13 = MakeVersion(1, 3, 0)

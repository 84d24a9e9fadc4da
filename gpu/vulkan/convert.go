package vulkan

import (
	"github.com/Saphs/vulkan-go-context/gpu"
	vk "github.com/goki/vulkan"
)

func deviceType(t vk.PhysicalDeviceType) gpu.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gpu.DeviceIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gpu.DeviceDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return gpu.DeviceVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return gpu.DeviceCPU
	default:
		return gpu.DeviceOther
	}
}

// queueFlags keeps the graphics, compute and transfer bits, which share their layout with gpu.QueueFlags.
func queueFlags(f vk.QueueFlags) gpu.QueueFlags {
	return gpu.QueueFlags(f) & (gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer)
}

func toFeatures(f vk.PhysicalDeviceFeatures) gpu.Features {
	return gpu.Features{
		GeometryShader:     f.GeometryShader == vk.True,
		TessellationShader: f.TessellationShader == vk.True,
		SamplerAnisotropy:  f.SamplerAnisotropy == vk.True,
		ShaderFloat64:      f.ShaderFloat64 == vk.True,
		ShaderInt64:        f.ShaderInt64 == vk.True,
		MultiViewport:      f.MultiViewport == vk.True,
	}
}

func toMemoryProperties(p vk.PhysicalDeviceMemoryProperties) gpu.MemoryProperties {
	props := gpu.MemoryProperties{
		Types: make([]gpu.MemoryType, p.MemoryTypeCount),
		Heaps: make([]gpu.MemoryHeap, p.MemoryHeapCount),
	}
	for i := range props.Types {
		props.Types[i] = gpu.MemoryType{
			Flags:     gpu.MemoryPropertyFlags(p.MemoryTypes[i].PropertyFlags),
			HeapIndex: int(p.MemoryTypes[i].HeapIndex),
		}
	}
	for i := range props.Heaps {
		props.Heaps[i] = gpu.MemoryHeap{
			Size:        uint64(p.MemoryHeaps[i].Size),
			DeviceLocal: p.MemoryHeaps[i].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		}
	}
	return props
}

func toRequirements(r vk.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:      int64(r.Size),
		Alignment: int64(r.Alignment),
		TypeBits:  r.MemoryTypeBits,
	}
}

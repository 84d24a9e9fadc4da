package vulkan

import (
	"errors"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Utility functions wrapping the raw go bindings to provide a more go-lang style interface. This should not
// hide or alter behavior and only allow for more tidy core code by tweaking signatures.

func vkCreateInstance(pCreateInfo *vk.InstanceCreateInfo, pAllocator *vk.AllocationCallbacks) (vk.Instance, error) {
	var in vk.Instance
	err := vk.Error(vk.CreateInstance(pCreateInfo, pAllocator, &in))
	if err != nil {
		return nil, err
	}
	err = vk.InitInstance(in)
	if err != nil {
		vk.DestroyInstance(in, nil)
		return nil, err
	}
	return in, nil
}

func vkCreateDevice(physicalDevice vk.PhysicalDevice, pCreateInfo *vk.DeviceCreateInfo, pAllocator *vk.AllocationCallbacks) (vk.Device, error) {
	var d vk.Device
	err := vk.Error(vk.CreateDevice(physicalDevice, pCreateInfo, pAllocator, &d))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func vkGetDeviceQueue(device vk.Device, queueFamilyIndex *uint32, queueIndex uint32) (vk.Queue, error) {
	var q vk.Queue
	if queueFamilyIndex == nil {
		return nil, errors.New("QueueFamily index was nil")
	}
	vk.GetDeviceQueue(device, *queueFamilyIndex, queueIndex, &q)
	return q, nil
}

func vkCreateCommandPool(device vk.Device, pCreateInfo *vk.CommandPoolCreateInfo, pAllocator *vk.AllocationCallbacks) (vk.CommandPool, error) {
	var cp vk.CommandPool
	err := vk.Error(vk.CreateCommandPool(device, pCreateInfo, pAllocator, &cp))
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func vkCreateBuffer(device vk.Device, pCreateInfo *vk.BufferCreateInfo, pAllocator *vk.AllocationCallbacks) (vk.Buffer, error) {
	var buf vk.Buffer
	err := vk.Error(vk.CreateBuffer(device, pCreateInfo, pAllocator, &buf))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func vkAllocateMemory(device vk.Device, pAllocateInfo *vk.MemoryAllocateInfo, pAllocator *vk.AllocationCallbacks) (vk.DeviceMemory, error) {
	var dm vk.DeviceMemory
	err := vk.Error(vk.AllocateMemory(device, pAllocateInfo, pAllocator, &dm))
	if err != nil {
		return nil, err
	}
	return dm, nil
}

func vkMapMemory(device vk.Device, memory vk.DeviceMemory, offset vk.DeviceSize, size vk.DeviceSize, flags vk.MemoryMapFlags) (unsafe.Pointer, error) {
	var pData unsafe.Pointer
	err := vk.Error(vk.MapMemory(device, memory, offset, size, flags, &pData))
	if err != nil {
		return nil, err
	}
	return pData, nil
}

func vkCreateFence(device vk.Device, pCreateInfo *vk.FenceCreateInfo, pAllocator *vk.AllocationCallbacks) (vk.Fence, error) {
	var f vk.Fence
	err := vk.Error(vk.CreateFence(device, pCreateInfo, pAllocator, &f))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Simplified versions of the wrappers above. They only hide obvious default values, names are prefixed with vks
// which stands for (V)ul(K)an (S)implified.

// vksAllocateCommandBuffers assumes the number of desired CommandBuffers is provided in the
// vk.CommandBufferAllocateInfo parameter.
func vksAllocateCommandBuffers(device vk.Device, pAllocateInfo *vk.CommandBufferAllocateInfo) ([]vk.CommandBuffer, error) {
	var buffers = make([]vk.CommandBuffer, pAllocateInfo.CommandBufferCount)
	err := vk.Error(vk.AllocateCommandBuffers(device, pAllocateInfo, buffers))
	if err != nil {
		return nil, err
	}
	return buffers, nil
}

// vksCreateCommandPool implicitly instantiates the CreateInfo for the command pool, it only holds two interesting
// values anyway.
func vksCreateCommandPool(device vk.Device, flags vk.CommandPoolCreateFlags, queueFamilyIndex uint32) (vk.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		PNext:            nil,
		Flags:            flags,
		QueueFamilyIndex: queueFamilyIndex,
	}
	return vkCreateCommandPool(device, &poolInfo, nil)
}

// vksCreateFence creates an unsignaled fence.
func vksCreateFence(device vk.Device) (vk.Fence, error) {
	return vkCreateFence(device, &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}, nil)
}

// terminatedStr ensures the given string is \x00 terminated as vulkan expects this in certain structs.
func terminatedStr(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

// terminatedStrs returns a terminated copy of strs, the input is left untouched.
func terminatedStrs(strs []string) []string {
	out := make([]string, len(strs))
	for i := range strs {
		out[i] = terminatedStr(strs[i])
	}
	return out
}

// missing returns the entries of a not contained in b. It is used for extension and layer support checks.
func missing(a []string, b []string) []string {
	var out []string
	for _, _a := range a {
		isIn := false
		for _, _b := range b {
			if _a == _b {
				isIn = true
				break
			}
		}
		if !isIn {
			out = append(out, _a)
		}
	}
	return out
}

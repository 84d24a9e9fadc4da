package device

import (
	"github.com/Saphs/vulkan-go-context/gpu"
)

// Select picks the device and queue family a context is built on. It walks the devices in enumeration order and
// takes the first queue family that has every required capability, plus present support when needPresent is set.
// Select only looks at the snapshot it is given, so equal inputs always give the same answer.
func Select(devices []gpu.PhysicalDeviceInfo, required gpu.QueueFlags, needPresent bool) (device int, family int, err error) {
	if len(devices) == 0 {
		return -1, -1, gpu.NewError(gpu.ErrNoDevice, "Select", nil)
	}
	want := required
	if needPresent {
		want |= gpu.QueuePresent
	}
	for i := range devices {
		if f, ok := findQueueFamily(devices[i].QueueFamilies, want); ok {
			return i, f, nil
		}
	}
	return -1, -1, gpu.NewError(gpu.ErrNoSuitableDevice, "Select", nil)
}

// findQueueFamily returns the index of the first family supporting all of want.
func findQueueFamily(families []gpu.QueueFamilyInfo, want gpu.QueueFlags) (int, bool) {
	for _, qf := range families {
		if qf.Count > 0 && qf.Flags.Has(want) {
			return qf.Index, true
		}
	}
	return -1, false
}

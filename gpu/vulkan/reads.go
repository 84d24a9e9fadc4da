package vulkan

import (
	"github.com/Saphs/vulkan-go-context/gpu"
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
)

// Read operations that require duplicated function calls, allocations and dereferencing. They are pulled out to
// provide a more go-lang feel and tidy the core code.

func readInstanceExtensionNames() ([]string, error) {
	extensionCount := uint32(0)
	err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &extensionCount, nil))
	if err != nil {
		return nil, errors.Wrap(err, "read number of InstanceExtensionProperties")
	}
	extensionProperties := make([]vk.ExtensionProperties, extensionCount)
	err = vk.Error(vk.EnumerateInstanceExtensionProperties("", &extensionCount, extensionProperties))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d InstanceExtensionProperties", extensionCount)
	}
	names := make([]string, len(extensionProperties))
	for i := range extensionProperties {
		extensionProperties[i].Deref()
		names[i] = vk.ToString(extensionProperties[i].ExtensionName[:])
	}
	return names, nil
}

func readInstanceLayerNames() ([]string, error) {
	layerCount := uint32(0)
	err := vk.Error(vk.EnumerateInstanceLayerProperties(&layerCount, nil))
	if err != nil {
		return nil, errors.Wrap(err, "read number of InstanceLayerProperties")
	}
	layers := make([]vk.LayerProperties, layerCount)
	err = vk.Error(vk.EnumerateInstanceLayerProperties(&layerCount, layers))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d InstanceLayerProperties", layerCount)
	}
	names := make([]string, len(layers))
	for i := range layers {
		layers[i].Deref()
		names[i] = vk.ToString(layers[i].LayerName[:])
	}
	return names, nil
}

func readPhysicalDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var gpuCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(instance, &gpuCount, nil))
	if err != nil {
		return nil, errors.Wrap(err, "read number of PhysicalDevices")
	}
	physDevices := make([]vk.PhysicalDevice, gpuCount)
	if gpuCount == 0 {
		return physDevices, nil
	}
	err = vk.Error(vk.EnumeratePhysicalDevices(instance, &gpuCount, physDevices))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d PhysicalDevices", gpuCount)
	}
	return physDevices[:gpuCount], nil
}

func readPhysicalDeviceProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceProperties {
	var pdProps vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &pdProps)
	pdProps.Deref()
	return pdProps
}

func readPhysicalDeviceFeatures(pd vk.PhysicalDevice) vk.PhysicalDeviceFeatures {
	var pdFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &pdFeatures)
	pdFeatures.Deref()
	return pdFeatures
}

func readQueueFamilies(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	qFamilyCount := uint32(0)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &qFamilyCount, nil)
	qFamilyProps := make([]vk.QueueFamilyProperties, qFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &qFamilyCount, qFamilyProps)
	for i := range qFamilyProps {
		qFamilyProps[i].Deref()
		qFamilyProps[i].MinImageTransferGranularity.Deref()
	}
	return qFamilyProps
}

func readDeviceMemoryProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
	var pdMemProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &pdMemProps)
	pdMemProps.Deref()
	for i := range pdMemProps.MemoryTypes {
		pdMemProps.MemoryTypes[i].Deref()
	}
	for i := range pdMemProps.MemoryHeaps {
		pdMemProps.MemoryHeaps[i].Deref()
	}
	return pdMemProps
}

func readBufferMemoryRequirements(device vk.Device, b vk.Buffer) vk.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, b, &memRequirements)
	memRequirements.Deref()
	return memRequirements
}

func readSurfaceSupport(pd vk.PhysicalDevice, family uint32, surface vk.Surface) (bool, error) {
	var supported vk.Bool32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(pd, family, surface, &supported))
	if err != nil {
		return false, errors.Wrapf(err, "read surface support of queue family %d", family)
	}
	return supported == vk.True, nil
}

// toInfo converts everything queried from a physical device into its backend independent snapshot.
func toInfo(index int, pd vk.PhysicalDevice, surface vk.Surface) (gpu.PhysicalDeviceInfo, error) {
	props := readPhysicalDeviceProperties(pd)
	props.Limits.Deref()
	features := readPhysicalDeviceFeatures(pd)
	memProps := readDeviceMemoryProperties(pd)
	qFamilies := readQueueFamilies(pd)

	info := gpu.PhysicalDeviceInfo{
		Index:         index,
		Handle:        pd,
		Name:          vk.ToString(props.DeviceName[:]),
		VendorID:      props.VendorID,
		DeviceID:      props.DeviceID,
		Type:          deviceType(props.DeviceType),
		APIVersion:    props.ApiVersion,
		DriverVersion: props.DriverVersion,
		Features:      toFeatures(features),
		Memory:        toMemoryProperties(memProps),
	}
	for i, qf := range qFamilies {
		flags := queueFlags(qf.QueueFlags)
		if surface != vk.NullSurface {
			ok, err := readSurfaceSupport(pd, uint32(i), surface)
			if err != nil {
				return info, err
			}
			if ok {
				flags |= gpu.QueuePresent
			}
		}
		info.QueueFamilies = append(info.QueueFamilies, gpu.QueueFamilyInfo{Index: i, Flags: flags, Count: int(qf.QueueCount)})
	}
	return info, nil
}

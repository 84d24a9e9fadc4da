package gpu

import (
	"fmt"
	"strings"
)

// String helpers used to log and print enumerated devices in a compact, table like form.

// TableString renders a device with its queue families and memory types, one per line.
func (pd PhysicalDeviceInfo) TableString() string {
	strBuilder := strings.Builder{}
	for i, q := range pd.QueueFamilies {
		prefix := "| "
		if i == len(pd.QueueFamilies)-1 && len(pd.Memory.Types) == 0 {
			prefix = "|_"
		}
		strBuilder.WriteString(fmt.Sprintf("%sQfamily[%d] %s\n", prefix, q.Index, q.TableString()))
	}
	for i, mt := range pd.Memory.Types {
		prefix := "| "
		if i == len(pd.Memory.Types)-1 {
			prefix = "|_"
		}
		strBuilder.WriteString(fmt.Sprintf("%sMemType[%d] %s\n", prefix, i, mt.String()))
	}
	return fmt.Sprintf(
		"[%d] %s:\n|_%s\n|_%s\n%s",
		pd.Index,
		pd.Name,
		pd.propsString(),
		pd.Features.String(),
		strBuilder.String(),
	)
}

func (pd PhysicalDeviceInfo) propsString() string {
	return fmt.Sprintf("api: %s, driver: %s, vendorId: %d (%s), deviceId: %d, deviceType: %d (%s)",
		VersionString(pd.APIVersion),
		DriverVersionString(pd.VendorID, pd.DriverVersion),
		pd.VendorID,
		VendorName(pd.VendorID),
		pd.DeviceID,
		pd.Type,
		pd.Type.String(),
	)
}

func (pd PhysicalDeviceInfo) String() string {
	return fmt.Sprintf("PDevice(%d, \"%s\", %s)", pd.Index, pd.Name, pd.propsString())
}

// VendorName maps the handful of known PCI vendor ids to a name.
func VendorName(v uint32) string {
	switch v {
	case 0x1002:
		return "AMD"
	case 0x1010:
		return "ImgTec"
	case 0x10DE:
		return "NVIDIA"
	case 0x13B5:
		return "ARM"
	case 0x5143:
		return "Qualcomm"
	case 0x8086:
		return "INTEL"
	case 0x10005:
		return "Mesa"
	default:
		return "unknown"
	}
}

// VersionString formats a packed API version as major.minor.patch.
func VersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", (v>>22)&0x7f, (v>>12)&0x3ff, v&0xfff)
}

// DriverVersionString formats a driver version. NVIDIA packs its driver version differently.
func DriverVersionString(vendor uint32, raw uint32) string {
	if vendor == 0x10DE {
		return fmt.Sprintf(
			"%d.%d.%d.%d",
			(raw>>22)&0x3ff,
			(raw>>14)&0x0ff,
			(raw>>6)&0x0ff,
			raw&0x003f,
		)
	}
	return VersionString(raw)
}

func (dt DeviceType) String() string {
	switch dt {
	case DeviceOther:
		return "other"
	case DeviceIntegratedGPU:
		return "integrated Gpu"
	case DeviceDiscreteGPU:
		return "discrete Gpu"
	case DeviceVirtualGPU:
		return "virtual Gpu"
	case DeviceCPU:
		return "cpu"
	default:
		return "unknown"
	}
}

func (f Features) String() string {
	return fmt.Sprintf("PFeatures(geometryShader: %t, tessellationShader: %t, samplerAnisotropy: %t, shaderFloat64: %t, shaderInt64: %t, multiViewport: %t)",
		f.GeometryShader, f.TessellationShader, f.SamplerAnisotropy, f.ShaderFloat64, f.ShaderInt64, f.MultiViewport)
}

// TableString renders a queue family as a single table row.
func (q QueueFamilyInfo) TableString() string {
	return fmt.Sprintf("Count: %2d, Flags: %v", q.Count, q.Flags.Strings())
}

// Strings lists the names of all set queue flags.
func (f QueueFlags) Strings() []string {
	var properties []string
	if f&QueueGraphics > 0 {
		properties = append(properties, "GRAPHICS")
	}
	if f&QueueCompute > 0 {
		properties = append(properties, "COMPUTE")
	}
	if f&QueueTransfer > 0 {
		properties = append(properties, "TRANSFER")
	}
	if f&QueuePresent > 0 {
		properties = append(properties, "PRESENT")
	}
	return properties
}

func (f QueueFlags) String() string {
	return strings.Join(f.Strings(), "|")
}

// Strings lists the names of all set memory property flags.
func (f MemoryPropertyFlags) Strings() []string {
	var properties []string
	if f&MemoryDeviceLocal > 0 {
		properties = append(properties, "DEVICE_LOCAL")
	}
	if f&MemoryHostVisible > 0 {
		properties = append(properties, "HOST_VISIBLE")
	}
	if f&MemoryHostCoherent > 0 {
		properties = append(properties, "HOST_COHERENT")
	}
	if f&MemoryHostCached > 0 {
		properties = append(properties, "HOST_CACHED")
	}
	if f&MemoryLazilyAllocated > 0 {
		properties = append(properties, "LAZILY_ALLOCATED")
	}
	return properties
}

func (f MemoryPropertyFlags) String() string {
	return strings.Join(f.Strings(), "|")
}

func (mt MemoryType) String() string {
	return fmt.Sprintf("MemoryType(Flags: %v, HeapIdx: %d)", mt.Flags.Strings(), mt.HeapIndex)
}

func (mr MemoryRequirements) String() string {
	return fmt.Sprintf("MemoryRequirements(Size:%d Byte, Alignment:%d Byte, MemTypeBits:[%032b])", mr.Size, mr.Alignment, mr.TypeBits)
}

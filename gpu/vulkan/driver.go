// Package vulkan implements gpu.Driver on top of the goki/vulkan bindings. The Vulkan loader is resolved at
// runtime, either through the window system (SDL ships its own vkGetInstanceProcAddr) or through the platform
// default loader for headless use.
package vulkan

import (
	"fmt"
	"sync"

	"github.com/Saphs/vulkan-go-context/gpu"
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DriverName is the name the driver registers under.
const DriverName = "vulkan"

const engineName = "No Engine"

var appVersion = vk.MakeVersion(1, 0, 0)

func init() {
	gpu.Register(&Driver{})
}

// Driver is the Vulkan gpu.Driver. The loader is process global, so Load only does work once.
type Driver struct {
	mu      sync.Mutex
	loaded  bool
	loadErr error
}

func (d *Driver) Name() string {
	return DriverName
}

func (d *Driver) Load(win gpu.Window) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return d.loadErr
	}
	d.loaded = true

	// Find and load Vulkan addresses to be able to call driver level functions via provided mechanism
	if win != nil && win.ProcAddr() != nil {
		vk.SetGetInstanceProcAddr(win.ProcAddr())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		d.loadErr = gpu.NewError(gpu.ErrInitialization, "vkGetInstanceProcAddr", err)
		return d.loadErr
	}
	if err := vk.Init(); err != nil {
		d.loadErr = gpu.NewError(gpu.ErrInitialization, "vk.Init", err)
		return d.loadErr
	}
	log.Debug("Loaded Vulkan entry points")
	return nil
}

func (d *Driver) CreateInstance(info gpu.InstanceInfo) (gpu.Instance, error) {
	d.mu.Lock()
	loaded := d.loaded && d.loadErr == nil
	d.mu.Unlock()
	if !loaded {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateInstance", fmt.Errorf("driver not loaded"))
	}

	supportedExts, err := readInstanceExtensionNames()
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateInstance", err)
	}
	log.Debugf("Required instance extensions: %v", info.Extensions)
	log.Debugf("Available extensions (%d): %v", len(supportedExts), supportedExts)
	if m := missing(info.Extensions, supportedExts); len(m) > 0 {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateInstance", fmt.Errorf("instance extensions not supported: %v", m))
	}

	layers := info.Layers
	if len(layers) > 0 {
		supportedLayers, err := readInstanceLayerNames()
		if err != nil {
			return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateInstance", err)
		}
		if m := missing(layers, supportedLayers); len(m) > 0 {
			log.Warnf("Validation layers %v are not supported, continuing without them", m)
			layers = nil
		}
	}

	applicationInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   terminatedStr(info.AppName),
		ApplicationVersion: appVersion,
		PEngineName:        terminatedStr(engineName),
		EngineVersion:      appVersion,
		ApiVersion:         info.APIVersion,
	}
	createInfo := &vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        applicationInfo,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     terminatedStrs(layers),
		EnabledExtensionCount:   uint32(len(info.Extensions)),
		PpEnabledExtensionNames: terminatedStrs(info.Extensions),
	}
	in, err := vkCreateInstance(createInfo, nil)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateInstance", err)
	}
	log.Debugf("Created Vulkan instance (api %s, layers %v)", gpu.VersionString(info.APIVersion), layers)
	return &instance{handle: in}, nil
}

type instance struct {
	handle vk.Instance
}

type surface struct {
	inst   vk.Instance
	handle vk.Surface
}

func (s *surface) Destroy() {
	if s.handle == vk.NullSurface {
		return
	}
	vk.DestroySurface(s.inst, s.handle, nil)
	s.handle = vk.NullSurface
}

func (i *instance) CreateSurface(win gpu.Window) (gpu.Surface, error) {
	if win == nil {
		return nil, gpu.NewError(gpu.ErrSurfaceCreation, "CreateSurface", fmt.Errorf("no window"))
	}
	surfPtr, err := win.CreateVulkanSurface(i.handle)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrSurfaceCreation, "CreateSurface", err)
	}
	return &surface{inst: i.handle, handle: vk.SurfaceFromPointer(uintptr(surfPtr))}, nil
}

func (i *instance) PhysicalDevices(s gpu.Surface) ([]gpu.PhysicalDeviceInfo, error) {
	devices, err := readPhysicalDevices(i.handle)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkEnumeratePhysicalDevices", err)
	}
	surf := vk.NullSurface
	if vs, ok := s.(*surface); ok {
		surf = vs.handle
	}
	infos := make([]gpu.PhysicalDeviceInfo, 0, len(devices))
	for idx, pd := range devices {
		info, err := toInfo(idx, pd, surf)
		if err != nil {
			return nil, gpu.NewError(gpu.ErrInitialization, "PhysicalDevices", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (i *instance) CreateDevice(pd gpu.PhysicalDeviceInfo, family int, priorities []float32) (gpu.Device, error) {
	phys, ok := pd.Handle.(vk.PhysicalDevice)
	if !ok {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateDevice", fmt.Errorf("foreign physical device handle %T", pd.Handle))
	}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(family),
		QueueCount:       uint32(len(priorities)),
		PQueuePriorities: priorities,
	}}
	deviceCreateInfo := &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    queueInfos,
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{{}},
	}
	handle, err := vkCreateDevice(phys, deviceCreateInfo, nil)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateDevice", errors.Wrapf(err, "create device on %s", pd.Name))
	}
	fam := uint32(family)
	q, err := vkGetDeviceQueue(handle, &fam, 0)
	if err != nil {
		vk.DestroyDevice(handle, nil)
		return nil, gpu.NewError(gpu.ErrInitialization, "vkGetDeviceQueue", err)
	}
	return &device{handle: handle, queue: q, family: fam}, nil
}

func (i *instance) Destroy() {
	if i.handle == nil {
		return
	}
	vk.DestroyInstance(i.handle, nil)
	i.handle = nil
}

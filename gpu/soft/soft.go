// Package soft implements gpu.Driver on the host. Submitted command buffers are executed by a per device
// queue goroutine, so completion is asynchronous to the submitting goroutine just like on real hardware.
// The driver records a trace of object creation and destruction and can be told to fail at any
// construction step, which makes it the backend of choice for headless runs and tests.
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/Saphs/vulkan-go-context/gpu"
	log "github.com/sirupsen/logrus"
)

// DriverName is the name the default soft driver registers under.
const DriverName = "soft"

func init() {
	gpu.Register(New(Config{}))
}

// Faults makes individual driver calls fail with the given cause. A nil entry means the call succeeds.
type Faults struct {
	Load      error
	Instance  error
	Surface   error
	Enumerate error
	Device    error
	Allocate  error
	Bind      error
	Submit    error
}

// FamilySpec describes a simulated queue family.
type FamilySpec struct {
	Flags   gpu.QueueFlags
	Count   int
	Present bool
}

// DeviceSpec describes a simulated physical device. A zero TypeBits lets buffers use every memory type,
// a zero Alignment defaults to 64 bytes.
type DeviceSpec struct {
	Name      string
	Type      gpu.DeviceType
	VendorID  uint32
	DeviceID  uint32
	Features  gpu.Features
	Memory    gpu.MemoryProperties
	Families  []FamilySpec
	TypeBits  uint32
	Alignment int64
}

// Config configures a soft driver. A nil Devices slice uses DefaultDevices, an empty non-nil slice
// simulates a machine without any device.
type Config struct {
	Devices   []DeviceSpec
	ExecDelay time.Duration
	Faults    Faults
	Trace     *Trace
}

// DefaultDevices returns a single CPU device with one universal queue family, a transfer only family, a
// device local memory type and two host visible ones.
func DefaultDevices() []DeviceSpec {
	return []DeviceSpec{
		{
			Name:     "Soft Rasterizer",
			Type:     gpu.DeviceCPU,
			VendorID: 0x10005,
			DeviceID: 1,
			Features: gpu.Features{SamplerAnisotropy: true, ShaderInt64: true},
			Memory: gpu.MemoryProperties{
				Types: []gpu.MemoryType{
					{Flags: gpu.MemoryDeviceLocal, HeapIndex: 0},
					{Flags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent, HeapIndex: 1},
					{Flags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent | gpu.MemoryHostCached, HeapIndex: 1},
				},
				Heaps: []gpu.MemoryHeap{
					{Size: 256 << 20, DeviceLocal: true},
					{Size: 256 << 20},
				},
			},
			Families: []FamilySpec{
				{Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, Count: 1, Present: true},
				{Flags: gpu.QueueTransfer, Count: 2},
			},
		},
	}
}

// Driver is the soft gpu.Driver.
type Driver struct {
	cfg Config

	mu      sync.Mutex
	loaded  bool
	nextID  int
	devices []DeviceSpec
}

// New creates a soft driver from cfg.
func New(cfg Config) *Driver {
	devices := cfg.Devices
	if devices == nil {
		devices = DefaultDevices()
	}
	return &Driver{cfg: cfg, devices: devices}
}

func (d *Driver) Name() string {
	return DriverName
}

// Trace returns the trace the driver records into, or nil.
func (d *Driver) Trace() *Trace {
	return d.cfg.Trace
}

func (d *Driver) Load(win gpu.Window) error {
	if d.cfg.Faults.Load != nil {
		return gpu.NewError(gpu.ErrInitialization, "soft.Load", d.cfg.Faults.Load)
	}
	d.mu.Lock()
	d.loaded = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) CreateInstance(info gpu.InstanceInfo) (gpu.Instance, error) {
	d.mu.Lock()
	loaded := d.loaded
	d.nextID++
	id := d.nextID
	d.mu.Unlock()

	if !loaded {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateInstance", fmt.Errorf("driver not loaded"))
	}
	if d.cfg.Faults.Instance != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateInstance", d.cfg.Faults.Instance)
	}
	if info.APIVersion > gpu.APIVersion13 {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateInstance",
			fmt.Errorf("api version %s not supported", gpu.VersionString(info.APIVersion)))
	}
	inst := &instance{
		drv:        d,
		id:         id,
		extensions: append([]string(nil), info.Extensions...),
	}
	d.cfg.Trace.record(OpCreate, ObjInstance, id)
	log.WithField("instance", id).Debugf("Created soft instance for \"%s\"", info.AppName)
	return inst, nil
}

type instance struct {
	drv        *Driver
	id         int
	extensions []string
	destroyed  bool
}

type surface struct {
	inst      *instance
	destroyed bool
}

func (s *surface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.inst.drv.cfg.Trace.record(OpDestroy, ObjSurface, s.inst.id)
}

type physicalDevice struct {
	spec  DeviceSpec
	index int
}

func (i *instance) CreateSurface(win gpu.Window) (gpu.Surface, error) {
	if win == nil {
		return nil, gpu.NewError(gpu.ErrSurfaceCreation, "soft.CreateSurface", fmt.Errorf("no window"))
	}
	if i.drv.cfg.Faults.Surface != nil {
		return nil, gpu.NewError(gpu.ErrSurfaceCreation, "soft.CreateSurface", i.drv.cfg.Faults.Surface)
	}
	required, err := win.InstanceExtensions()
	if err != nil {
		return nil, gpu.NewError(gpu.ErrSurfaceCreation, "soft.CreateSurface", err)
	}
	for _, ext := range required {
		if !contains(i.extensions, ext) {
			return nil, gpu.NewError(gpu.ErrSurfaceCreation, "soft.CreateSurface",
				fmt.Errorf("instance was created without extension %s", ext))
		}
	}
	i.drv.cfg.Trace.record(OpCreate, ObjSurface, i.id)
	return &surface{inst: i}, nil
}

func (i *instance) PhysicalDevices(s gpu.Surface) ([]gpu.PhysicalDeviceInfo, error) {
	if i.drv.cfg.Faults.Enumerate != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.PhysicalDevices", i.drv.cfg.Faults.Enumerate)
	}
	infos := make([]gpu.PhysicalDeviceInfo, len(i.drv.devices))
	for idx, spec := range i.drv.devices {
		families := make([]gpu.QueueFamilyInfo, len(spec.Families))
		for f, fs := range spec.Families {
			flags := fs.Flags &^ gpu.QueuePresent
			if s != nil && fs.Present {
				flags |= gpu.QueuePresent
			}
			families[f] = gpu.QueueFamilyInfo{Index: f, Flags: flags, Count: fs.Count}
		}
		infos[idx] = gpu.PhysicalDeviceInfo{
			Index:         idx,
			Handle:        &physicalDevice{spec: spec, index: idx},
			Name:          spec.Name,
			VendorID:      spec.VendorID,
			DeviceID:      spec.DeviceID,
			Type:          spec.Type,
			APIVersion:    gpu.APIVersion13,
			DriverVersion: gpu.MakeVersion(0, 1, 0),
			Features:      spec.Features,
			Memory: gpu.MemoryProperties{
				Types: append([]gpu.MemoryType(nil), spec.Memory.Types...),
				Heaps: append([]gpu.MemoryHeap(nil), spec.Memory.Heaps...),
			},
			QueueFamilies: families,
		}
	}
	return infos, nil
}

func (i *instance) CreateDevice(pd gpu.PhysicalDeviceInfo, family int, priorities []float32) (gpu.Device, error) {
	phys, ok := pd.Handle.(*physicalDevice)
	if !ok {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateDevice", fmt.Errorf("foreign physical device handle %T", pd.Handle))
	}
	if family < 0 || family >= len(phys.spec.Families) {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateDevice", fmt.Errorf("queue family %d out of range", family))
	}
	if len(priorities) == 0 || len(priorities) > phys.spec.Families[family].Count {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateDevice",
			fmt.Errorf("%d queues requested from family %d with %d queues", len(priorities), family, phys.spec.Families[family].Count))
	}
	for _, p := range priorities {
		if p < 0 || p > 1 {
			return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateDevice", fmt.Errorf("queue priority %v outside [0, 1]", p))
		}
	}
	if i.drv.cfg.Faults.Device != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.CreateDevice", i.drv.cfg.Faults.Device)
	}
	dev := newDevice(i, phys.spec, family)
	i.drv.cfg.Trace.record(OpCreate, ObjDevice, i.id)
	return dev, nil
}

func (i *instance) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	i.drv.cfg.Trace.record(OpDestroy, ObjInstance, i.id)
}

func contains(list []string, s string) bool {
	for i := range list {
		if list[i] == s {
			return true
		}
	}
	return false
}

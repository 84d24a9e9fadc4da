// Package device owns the device context: the instance, the optional presentation surface, the enumerated
// physical devices and one logical device with a single queue.
package device

import (
	"sync/atomic"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultValidationLayers is used when validation is enabled without naming layers.
var DefaultValidationLayers = []string{
	"VK_LAYER_KHRONOS_validation",
}

var contextIDs atomic.Int64

// Config configures a Context. A zero Required asks for a graphics queue.
type Config struct {
	AppName    string
	Validation bool
	Layers     []string
	Required   gpu.QueueFlags
	Log        logrus.FieldLogger
}

// Context represents the interfacing objects between a window, the hardware and the rest of the code. Its main
// purpose is to encapsulate the corresponding objects to make initialization and teardown neater. Everything is
// created in New and destroyed in reverse order by Destroy.
type Context struct {
	id  int64
	log logrus.FieldLogger

	instance gpu.Instance
	surface  gpu.Surface
	devices  []gpu.PhysicalDeviceInfo
	selected int
	family   int
	device   gpu.Device

	release releaseStack
}

// New brings up a device context. The window is optional, without one no surface is created and present support
// is not required. On failure everything created so far is destroyed again before the error is returned.
func New(drv gpu.Driver, win gpu.Window, cfg Config) (*Context, error) {
	c := &Context{
		id:       contextIDs.Add(1),
		selected: -1,
		family:   -1,
	}
	c.log = logger(cfg.Log).WithField("ctx", c.id)
	if err := c.init(drv, win, cfg); err != nil {
		c.release.unwind()
		return nil, err
	}
	return c, nil
}

func (c *Context) init(drv gpu.Driver, win gpu.Window, cfg Config) error {
	if err := drv.Load(win); err != nil {
		return errors.Wrapf(err, "load driver %s", drv.Name())
	}

	var extensions []string
	if win != nil {
		var err error
		extensions, err = win.InstanceExtensions()
		if err != nil {
			return errors.Wrap(gpu.NewError(gpu.ErrInitialization, "InstanceExtensions", err), "query window extensions")
		}
	}
	var layers []string
	if cfg.Validation {
		layers = cfg.Layers
		if len(layers) == 0 {
			layers = DefaultValidationLayers
		}
		c.log.Debugf("Validation enabled, requesting layers %v", layers)
	}
	inst, err := drv.CreateInstance(gpu.InstanceInfo{
		AppName:    cfg.AppName,
		APIVersion: gpu.APIVersion13,
		Extensions: extensions,
		Layers:     layers,
	})
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	c.instance = inst
	c.release.push(inst.Destroy)

	if win != nil {
		surf, err := inst.CreateSurface(win)
		if err != nil {
			return errors.Wrap(err, "create surface")
		}
		c.surface = surf
		c.release.push(surf.Destroy)
	}

	c.devices, err = inst.PhysicalDevices(c.surface)
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}
	for _, pd := range c.devices {
		c.log.Debugf("Physical device\n%s", pd.TableString())
	}

	required := cfg.Required
	if required == 0 {
		required = gpu.QueueGraphics
	}
	c.selected, c.family, err = Select(c.devices, required, win != nil)
	if err != nil {
		return errors.Wrapf(err, "select device for %v", required)
	}
	pd := c.devices[c.selected]
	c.log.WithFields(logrus.Fields{"device": pd.Name, "family": c.family}).Info("Found suitable device")

	dev, err := inst.CreateDevice(pd, c.family, []float32{1.0})
	if err != nil {
		return errors.Wrapf(err, "create logical device on %s", pd.Name)
	}
	c.device = dev
	c.release.push(dev.Destroy)
	return nil
}

// ID identifies the context in logs.
func (c *Context) ID() int64 {
	return c.id
}

// Devices returns the snapshot of every enumerated physical device.
func (c *Context) Devices() []gpu.PhysicalDeviceInfo {
	return c.devices
}

// Selected returns the physical device the logical device was created on.
func (c *Context) Selected() gpu.PhysicalDeviceInfo {
	return c.devices[c.selected]
}

// Family returns the queue family index of the device queue.
func (c *Context) Family() int {
	return c.family
}

func (c *Context) Device() gpu.Device {
	return c.device
}

// HasSurface reports whether the context presents to a window.
func (c *Context) HasSurface() bool {
	return c.surface != nil
}

// Log returns the context's logger, allocators and executors built on top of it log through it.
func (c *Context) Log() logrus.FieldLogger {
	return c.log
}

// Destroy waits for the device to become idle, then destroys the device, the surface and the instance, in
// that order. Calling it again does nothing.
func (c *Context) Destroy() {
	if c.release.empty() {
		return
	}
	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			c.log.Warnf("Failed to wait for device idle: %v", err)
		}
	}
	c.release.unwind()
	c.device = nil
	c.surface = nil
	c.instance = nil
	c.log.Debug("Destroyed device context")
}

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

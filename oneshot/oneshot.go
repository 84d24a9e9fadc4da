// Package oneshot runs the standalone fill and readback pipeline: bring up a device context without a window,
// fill a buffer of width*height RGBA8 pixels on the device queue, wait for it and copy the result back to the
// host.
package oneshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Saphs/vulkan-go-context/command"
	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/memory"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const bytesPerPixel = 4

// Color is an RGBA8 color.
type Color struct {
	R, G, B, A uint8
}

// Pack returns the fill value that lays c out as R,G,B,A in memory.
func Pack(c Color) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.R, c.G, c.B, c.A)
}

// ParseColor parses "R,G,B,A" with components in 0..255. The alpha component may be left out and defaults to 255.
func ParseColor(s string) (Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, errors.Errorf("color %q: want R,G,B[,A]", s)
	}
	comps := [4]uint8{0, 0, 0, 255}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Color{}, errors.Wrapf(err, "color %q: component %d", s, i)
		}
		comps[i] = uint8(v)
	}
	return Color{R: comps[0], G: comps[1], B: comps[2], A: comps[3]}, nil
}

// Options configure a Run.
type Options struct {
	Width, Height int
	Color         Color
	// Location of the filled buffer. Device-local buffers are copied into a host-visible staging buffer for
	// readback.
	Location memory.Location
	// Timeout of one fence wait, retried WaitRetries times.
	Timeout     time.Duration
	WaitRetries int

	Device device.Config
	Log    logrus.FieldLogger
}

// Result is the read back pixel buffer.
type Result struct {
	Pixels        []byte
	Width, Height int
	Device        string
	MemoryType    int
}

// Run executes the pipeline on drv. Everything it creates is destroyed before it returns.
func Run(drv gpu.Driver, opts Options) (res *Result, err error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", opts.Width, opts.Height)
	}
	if opts.Timeout <= 0 {
		return nil, errors.Errorf("invalid wait timeout %v", opts.Timeout)
	}
	size := int64(opts.Width) * int64(opts.Height) * bytesPerPixel

	devCfg := opts.Device
	if devCfg.Log == nil {
		devCfg.Log = opts.Log
	}
	ctx, err := device.New(drv, nil, devCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create device context")
	}
	defer ctx.Destroy()
	log := ctx.Log()

	exec, err := command.NewExecutor(ctx.Device(), ctx.Family(), log)
	if err != nil {
		return nil, err
	}
	defer exec.Destroy()

	alloc := memory.NewAllocator(ctx.Device(), ctx.Selected().Memory, log)
	defer func() {
		if derr := alloc.Destroy(); derr != nil && err == nil {
			res, err = nil, derr
		}
	}()

	target, err := alloc.CreateBuffer(size, gpu.BufferTransferDst|gpu.BufferTransferSrc, opts.Location)
	if err != nil {
		return nil, errors.Wrap(err, "create target buffer")
	}
	defer target.Destroy()
	readback := target
	if opts.Location != memory.HostVisibleCoherent {
		staging, err := alloc.CreateBuffer(size, gpu.BufferTransferDst, memory.HostVisibleCoherent)
		if err != nil {
			return nil, errors.Wrap(err, "create staging buffer")
		}
		defer staging.Destroy()
		readback = staging
	}

	b, err := exec.BeginRecording()
	if err != nil {
		return nil, err
	}
	value := Pack(opts.Color)
	if err := exec.FillBuffer(b, target.Resource(), 0, size, value); err != nil {
		return nil, err
	}
	if readback != target {
		if err := exec.CopyBuffer(b, target.Resource(), readback.Resource(), size); err != nil {
			return nil, err
		}
	}
	if err := exec.EndRecording(b); err != nil {
		return nil, err
	}
	fence, err := exec.Submit(b)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"bytes": size, "memType": target.Allocation().MemoryType()}).
		Debugf("Submitted fill with 0x%08x", value)

	if err := wait(exec, fence, opts.Timeout, opts.WaitRetries, log); err != nil {
		// the buffers are destroyed on return, the queue must be done with them first
		if ierr := ctx.Device().WaitIdle(); ierr != nil {
			log.Warnf("Failed to wait for device idle: %v", ierr)
		}
		return nil, err
	}

	mapped, err := readback.Allocation().Mapped()
	if err != nil {
		return nil, errors.Wrap(err, "map readback buffer")
	}
	pixels := make([]byte, size)
	copy(pixels, mapped[:size])

	return &Result{
		Pixels:     pixels,
		Width:      opts.Width,
		Height:     opts.Height,
		Device:     ctx.Selected().Name,
		MemoryType: target.Allocation().MemoryType(),
	}, nil
}

func wait(exec *command.Executor, fence *command.Fence, timeout time.Duration, retries int, log logrus.FieldLogger) error {
	for attempt := 0; attempt <= retries; attempt++ {
		res, err := exec.Wait(fence, timeout)
		if err != nil {
			return err
		}
		if res == command.Completed {
			return exec.Release(fence)
		}
		log.Warnf("Fence not signaled after %v (attempt %d of %d)", timeout, attempt+1, retries+1)
	}
	return gpu.NewError(gpu.ErrWaitTimeout, "Wait", errors.Errorf("fill did not complete after %d waits of %v", retries+1, timeout))
}

package device

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/gpu/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWindow struct{}

func (testWindow) InstanceExtensions() ([]string, error) {
	return []string{"VK_KHR_surface", "VK_KHR_test_surface"}, nil
}

func (testWindow) CreateVulkanSurface(any) (unsafe.Pointer, error) { return nil, nil }

func (testWindow) ProcAddr() unsafe.Pointer { return nil }

func family(idx int, flags gpu.QueueFlags) gpu.QueueFamilyInfo {
	return gpu.QueueFamilyInfo{Index: idx, Flags: flags, Count: 1}
}

func TestSelect(t *testing.T) {
	devices := []gpu.PhysicalDeviceInfo{
		{Index: 0, Name: "transfer only", QueueFamilies: []gpu.QueueFamilyInfo{family(0, gpu.QueueTransfer)}},
		{Index: 1, Name: "graphics", QueueFamilies: []gpu.QueueFamilyInfo{
			family(0, gpu.QueueTransfer),
			family(1, gpu.QueueGraphics|gpu.QueueTransfer),
			family(2, gpu.QueueGraphics|gpu.QueueCompute|gpu.QueuePresent),
		}},
		{Index: 2, Name: "second graphics", QueueFamilies: []gpu.QueueFamilyInfo{family(0, gpu.QueueGraphics|gpu.QueuePresent)}},
	}

	tests := []struct {
		name        string
		required    gpu.QueueFlags
		present     bool
		wantDevice  int
		wantFamily  int
		wantErrKind error
	}{
		{name: "graphics", required: gpu.QueueGraphics, wantDevice: 1, wantFamily: 1},
		{name: "graphics with present", required: gpu.QueueGraphics, present: true, wantDevice: 1, wantFamily: 2},
		{name: "compute", required: gpu.QueueCompute, wantDevice: 1, wantFamily: 2},
		{name: "transfer", required: gpu.QueueTransfer, wantDevice: 0, wantFamily: 0},
		{name: "unsupported", required: gpu.QueueCompute | gpu.QueueTransfer, wantErrKind: gpu.ErrNoSuitableDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for run := 0; run < 3; run++ {
				dev, fam, err := Select(devices, tt.required, tt.present)
				if tt.wantErrKind != nil {
					assert.ErrorIs(t, err, tt.wantErrKind)
					continue
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantDevice, dev)
				assert.Equal(t, tt.wantFamily, fam)
			}
		})
	}
}

func TestSelectEmpty(t *testing.T) {
	_, _, err := Select(nil, gpu.QueueGraphics, false)
	assert.ErrorIs(t, err, gpu.ErrNoDevice)
}

func TestNewHeadless(t *testing.T) {
	trace := &soft.Trace{}
	ctx, err := New(soft.New(soft.Config{Trace: trace}), nil, Config{AppName: "test"})
	require.NoError(t, err)

	assert.False(t, ctx.HasSurface())
	assert.Equal(t, 0, ctx.Family())
	assert.Equal(t, "Soft Rasterizer", ctx.Selected().Name)
	assert.Len(t, ctx.Devices(), 1)
	assert.NotNil(t, ctx.Device())

	ctx.Destroy()
	ctx.Destroy()
	ids := trace.Instances()
	require.Len(t, ids, 1)
	assert.Equal(t, []soft.Object{soft.ObjDevice, soft.ObjInstance}, trace.Destroyed(ids[0]))
}

func TestNewWithWindowTeardownOrder(t *testing.T) {
	trace := &soft.Trace{}
	drv := soft.New(soft.Config{Trace: trace})
	var contexts []*Context
	for i := 0; i < 3; i++ {
		ctx, err := New(drv, testWindow{}, Config{AppName: "test", Validation: true})
		require.NoError(t, err)
		assert.True(t, ctx.HasSurface())
		assert.True(t, ctx.Selected().QueueFamilies[ctx.Family()].Flags.Has(gpu.QueuePresent))
		contexts = append(contexts, ctx)
	}
	for i := len(contexts) - 1; i >= 0; i-- {
		contexts[i].Destroy()
	}

	ids := trace.Instances()
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.Equal(t, []soft.Object{soft.ObjDevice, soft.ObjSurface, soft.ObjInstance}, trace.Destroyed(id))
	}
	assert.Zero(t, trace.Live(soft.ObjInstance))
	assert.Zero(t, trace.Live(soft.ObjSurface))
	assert.Zero(t, trace.Live(soft.ObjDevice))
}

func TestNewFailureReleasesEverything(t *testing.T) {
	noCompute := soft.DefaultDevices()
	noCompute[0].Families = []soft.FamilySpec{{Flags: gpu.QueueGraphics, Count: 1, Present: true}}

	tests := []struct {
		name      string
		cfg       soft.Config
		required  gpu.QueueFlags
		wantKind  error
		destroyed []soft.Object
	}{
		{
			name:     "load",
			cfg:      soft.Config{Faults: soft.Faults{Load: errors.New("no loader")}},
			wantKind: gpu.ErrInitialization,
		},
		{
			name:     "instance",
			cfg:      soft.Config{Faults: soft.Faults{Instance: errors.New("incompatible driver")}},
			wantKind: gpu.ErrInitialization,
		},
		{
			name:      "surface",
			cfg:       soft.Config{Faults: soft.Faults{Surface: errors.New("native window in use")}},
			wantKind:  gpu.ErrSurfaceCreation,
			destroyed: []soft.Object{soft.ObjInstance},
		},
		{
			name:      "no devices",
			cfg:       soft.Config{Devices: []soft.DeviceSpec{}},
			wantKind:  gpu.ErrNoDevice,
			destroyed: []soft.Object{soft.ObjSurface, soft.ObjInstance},
		},
		{
			name:      "no suitable device",
			cfg:       soft.Config{Devices: noCompute},
			required:  gpu.QueueCompute,
			wantKind:  gpu.ErrNoSuitableDevice,
			destroyed: []soft.Object{soft.ObjSurface, soft.ObjInstance},
		},
		{
			name:      "device",
			cfg:       soft.Config{Faults: soft.Faults{Device: errors.New("device lost")}},
			wantKind:  gpu.ErrInitialization,
			destroyed: []soft.Object{soft.ObjSurface, soft.ObjInstance},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := &soft.Trace{}
			tt.cfg.Trace = trace
			ctx, err := New(soft.New(tt.cfg), testWindow{}, Config{Required: tt.required})
			assert.Nil(t, ctx)
			require.ErrorIs(t, err, tt.wantKind)

			ids := trace.Instances()
			if tt.destroyed == nil {
				assert.Empty(t, ids)
				return
			}
			require.Len(t, ids, 1)
			assert.Equal(t, tt.destroyed, trace.Destroyed(ids[0]))
			assert.Zero(t, trace.Live(soft.ObjInstance))
		})
	}
}

func TestReleaseStackOrder(t *testing.T) {
	var order []int
	var r releaseStack
	for i := 0; i < 3; i++ {
		i := i
		r.push(func() { order = append(order, i) })
	}
	r.unwind()
	r.unwind()
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.True(t, r.empty())
}

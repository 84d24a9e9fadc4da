package vulkan

import (
	"testing"
	"time"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadOrSkip skips on machines without a Vulkan loader or without any physical device.
func loadOrSkip(t *testing.T) (gpu.Instance, []gpu.PhysicalDeviceInfo) {
	t.Helper()
	drv, ok := gpu.Lookup(DriverName)
	require.True(t, ok)
	if err := drv.Load(nil); err != nil {
		t.Skipf("vulkan loader unavailable: %v", err)
	}
	inst, err := drv.CreateInstance(gpu.InstanceInfo{AppName: "vulkan_test", APIVersion: gpu.APIVersion13})
	if err != nil {
		t.Skipf("vulkan instance unavailable: %v", err)
	}
	t.Cleanup(inst.Destroy)
	pds, err := inst.PhysicalDevices(nil)
	require.NoError(t, err)
	if len(pds) == 0 {
		t.Skip("no physical device")
	}
	return inst, pds
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []string{"a\x00", "b\x00"}, terminatedStrs([]string{"a", "b\x00"}))
	assert.Equal(t, []string{"c"}, missing([]string{"a", "c"}, []string{"a", "b"}))
	assert.Empty(t, missing(nil, []string{"a"}))
}

func TestPhysicalDevicesQuery(t *testing.T) {
	_, pds := loadOrSkip(t)
	for i, pd := range pds {
		assert.Equal(t, i, pd.Index)
		assert.NotEmpty(t, pd.Name)
		assert.NotEmpty(t, pd.QueueFamilies)
		assert.NotEmpty(t, pd.Memory.Types)
		for _, qf := range pd.QueueFamilies {
			assert.False(t, qf.Flags.Has(gpu.QueuePresent), "present support without surface")
		}
		t.Logf("\n%s", pd.TableString())
	}
}

func TestFillRoundTrip(t *testing.T) {
	inst, pds := loadOrSkip(t)
	pd := pds[0]
	family := -1
	for _, qf := range pd.QueueFamilies {
		if qf.Flags.Has(gpu.QueueGraphics) {
			family = qf.Index
			break
		}
	}
	if family < 0 {
		t.Skip("no graphics queue family")
	}
	dev, err := inst.CreateDevice(pd, family, []float32{1.0})
	require.NoError(t, err)
	defer dev.Destroy()

	buf, err := dev.NewBuffer(64, gpu.BufferTransferDst)
	require.NoError(t, err)
	defer buf.Destroy()
	reqs := buf.Requirements()
	memType := -1
	for i, mt := range pd.Memory.Types {
		if reqs.TypeBits&(1<<uint(i)) != 0 && mt.Flags.Has(gpu.MemoryHostVisible|gpu.MemoryHostCoherent) {
			memType = i
			break
		}
	}
	require.GreaterOrEqual(t, memType, 0)
	mem, err := dev.AllocateMemory(reqs.Size, memType)
	require.NoError(t, err)
	defer mem.Free()
	require.NoError(t, buf.Bind(mem, 0))

	pool, err := dev.NewCommandPool(family)
	require.NoError(t, err)
	defer pool.Destroy()
	cb, err := pool.Allocate()
	require.NoError(t, err)
	defer cb.Free()
	require.NoError(t, cb.Begin())
	cb.FillBuffer(buf, 0, gpu.WholeSize, 0xff9e3f46)
	require.NoError(t, cb.End())

	f, err := dev.NewFence()
	require.NoError(t, err)
	defer f.Destroy()
	require.NoError(t, dev.Submit(cb, f))
	ok, err := f.Wait(5 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	data, err := mem.Map(0, 64)
	require.NoError(t, err)
	defer mem.Unmap()
	assert.Equal(t, []byte{0x46, 0x3f, 0x9e, 0xff}, data[:4])
	assert.Equal(t, []byte{0x46, 0x3f, 0x9e, 0xff}, data[60:64])
}

package memory

import (
	"errors"
	"testing"

	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/gpu/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T, cfg soft.Config) (*Allocator, *soft.Trace) {
	t.Helper()
	if cfg.Trace == nil {
		cfg.Trace = &soft.Trace{}
	}
	ctx, err := device.New(soft.New(cfg), nil, device.Config{AppName: "memory_test"})
	require.NoError(t, err)
	t.Cleanup(ctx.Destroy)
	return NewAllocator(ctx.Device(), ctx.Selected().Memory, nil), cfg.Trace
}

func requireUseAfterFreePanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value is %T", r)
		assert.ErrorIs(t, err, gpu.ErrUseAfterFree)
	}()
	fn()
}

func TestFindMemoryType(t *testing.T) {
	a, _ := newAllocator(t, soft.Config{})

	idx, err := a.FindMemoryType(0b111, DeviceLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = a.FindMemoryType(0b111, HostVisibleCoherent)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = a.FindMemoryType(0b100, HostVisibleCoherent)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = a.FindMemoryType(0b001, HostVisibleCoherent)
	assert.ErrorIs(t, err, gpu.ErrNoCompatibleMemoryType)
}

func TestAllocateCoversRequest(t *testing.T) {
	a, _ := newAllocator(t, soft.Config{})
	for _, size := range []int64{1, 64, 100, 4096} {
		buf, err := a.CreateBuffer(size, gpu.BufferTransferDst, HostVisibleCoherent)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, buf.Allocation().Size(), size)
		assert.Equal(t, int64(0), buf.Allocation().Offset())
		assert.True(t, buf.Allocation().HostVisible())

		data, err := buf.Allocation().Mapped()
		require.NoError(t, err)
		assert.Len(t, data, int(buf.Allocation().Size()))
		require.NoError(t, buf.Destroy())
	}
	require.NoError(t, a.Destroy())
}

func TestNoCompatibleMemoryTypeAllocatesNothing(t *testing.T) {
	specs := soft.DefaultDevices()
	specs[0].TypeBits = 0b001
	a, trace := newAllocator(t, soft.Config{Devices: specs})

	res, err := a.dev.NewBuffer(64, gpu.BufferTransferDst)
	require.NoError(t, err)
	defer res.Destroy()

	_, err = a.Allocate(res, HostVisibleCoherent)
	assert.ErrorIs(t, err, gpu.ErrNoCompatibleMemoryType)
	assert.Zero(t, trace.Live(soft.ObjMemory))

	// the buffer is still unbound and can be bound to compatible memory
	al, err := a.Allocate(res, DeviceLocal)
	require.NoError(t, err)
	require.NoError(t, a.Free(al))
}

func TestDriverFailures(t *testing.T) {
	tests := []struct {
		name   string
		faults soft.Faults
	}{
		{name: "allocate", faults: soft.Faults{Allocate: errors.New("out of device memory")}},
		{name: "bind", faults: soft.Faults{Bind: errors.New("bind rejected")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, trace := newAllocator(t, soft.Config{Faults: tt.faults})
			_, err := a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
			assert.ErrorIs(t, err, gpu.ErrAllocation)
			assert.Zero(t, trace.Live(soft.ObjMemory))
			assert.Zero(t, trace.Live(soft.ObjBuffer))
			assert.Empty(t, a.Stats())
		})
	}
}

func TestUseAfterFree(t *testing.T) {
	a, _ := newAllocator(t, soft.Config{})
	buf, err := a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
	require.NoError(t, err)
	al := buf.Allocation()
	require.NoError(t, buf.Destroy())
	require.NoError(t, buf.Destroy())

	assert.ErrorIs(t, a.Free(al), gpu.ErrUseAfterFree)
	_, err = al.Mapped()
	assert.ErrorIs(t, err, gpu.ErrUseAfterFree)
	requireUseAfterFreePanic(t, func() { al.Size() })
	requireUseAfterFreePanic(t, func() { al.MemoryType() })
	requireUseAfterFreePanic(t, func() { al.HostVisible() })
}

func TestFreeForeignAllocation(t *testing.T) {
	a, _ := newAllocator(t, soft.Config{})
	b, _ := newAllocator(t, soft.Config{})
	buf, err := a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
	require.NoError(t, err)
	al := buf.Allocation()

	assert.ErrorIs(t, b.Free(al), gpu.ErrInvalidState)
	assert.Equal(t, Stats{Allocations: 1, Bytes: 64}, a.Stats()[HostVisibleCoherent])
	assert.Empty(t, b.Stats())

	buf.Resource().Destroy()
	require.NoError(t, a.Free(al))
	assert.NoError(t, a.Destroy())
	assert.NoError(t, b.Destroy())
}

func TestDeviceLocalIsNotMappable(t *testing.T) {
	a, _ := newAllocator(t, soft.Config{})
	buf, err := a.CreateBuffer(64, gpu.BufferTransferDst, DeviceLocal)
	require.NoError(t, err)
	defer buf.Destroy()

	assert.False(t, buf.Allocation().HostVisible())
	_, err = buf.Allocation().Mapped()
	assert.ErrorIs(t, err, gpu.ErrInvalidState)
}

func TestStatsAndLeakCheck(t *testing.T) {
	a, trace := newAllocator(t, soft.Config{})
	keep, err := a.CreateBuffer(100, gpu.BufferTransferDst, DeviceLocal)
	require.NoError(t, err)
	_, err = a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
	require.NoError(t, err)
	_, err = a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
	require.NoError(t, err)

	stats := a.Stats()
	assert.Equal(t, Stats{Allocations: 1, Bytes: 128}, stats[DeviceLocal])
	assert.Equal(t, Stats{Allocations: 2, Bytes: 128}, stats[HostVisibleCoherent])

	keep.Resource().Destroy()
	require.NoError(t, a.Free(keep.Allocation()))

	err = a.Destroy()
	assert.ErrorIs(t, err, gpu.ErrAllocatorLeak)
	assert.Zero(t, trace.Live(soft.ObjMemory))
	assert.Empty(t, a.Stats())
	assert.NoError(t, a.Destroy())
}

func TestBufferDestroyOrder(t *testing.T) {
	a, trace := newAllocator(t, soft.Config{})
	buf, err := a.CreateBuffer(64, gpu.BufferTransferDst, HostVisibleCoherent)
	require.NoError(t, err)
	require.NoError(t, buf.Destroy())

	var destroyed []soft.Object
	for _, e := range trace.Events() {
		if e.Op == soft.OpDestroy {
			destroyed = append(destroyed, e.Object)
		}
	}
	assert.Equal(t, []soft.Object{soft.ObjBuffer, soft.ObjMemory}, destroyed)
}

func TestParseLocation(t *testing.T) {
	for _, loc := range []Location{DeviceLocal, HostVisibleCoherent} {
		got, err := ParseLocation(loc.String())
		require.NoError(t, err)
		assert.Equal(t, loc, got)
	}
	_, err := ParseLocation("lazily")
	assert.Error(t, err)
}

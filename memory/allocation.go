package memory

import (
	"fmt"
	"sync"

	"github.com/Saphs/vulkan-go-context/gpu"
)

// Allocation is device memory bound to one resource. Once freed, Mapped fails and every other accessor panics
// with an error matching gpu.ErrUseAfterFree.
type Allocation struct {
	owner *Allocator
	id    uint64

	mem         gpu.Memory
	size        int64
	memType     int
	location    Location
	hostVisible bool

	mapOnce sync.Once
	mapped  []byte
	mapErr  error

	freed bool
}

func (al *Allocation) checkLive(op string) {
	al.owner.mu.Lock()
	freed := al.freed
	al.owner.mu.Unlock()
	if freed {
		panic(gpu.NewError(gpu.ErrUseAfterFree, op, fmt.Errorf("allocation %d", al.id)))
	}
}

// Size is the size of the driver allocation. It is at least the size the resource asked for.
func (al *Allocation) Size() int64 {
	al.checkLive("Allocation.Size")
	return al.size
}

// Offset is the offset of the resource inside the allocation.
func (al *Allocation) Offset() int64 {
	al.checkLive("Allocation.Offset")
	return 0
}

// MemoryType is the index of the memory type the allocation came from.
func (al *Allocation) MemoryType() int {
	al.checkLive("Allocation.MemoryType")
	return al.memType
}

func (al *Allocation) Location() Location {
	al.checkLive("Allocation.Location")
	return al.location
}

func (al *Allocation) HostVisible() bool {
	al.checkLive("Allocation.HostVisible")
	return al.hostVisible
}

// Mapped returns the host view of the whole allocation. The memory is mapped on first use and stays mapped
// until the allocation is freed.
func (al *Allocation) Mapped() ([]byte, error) {
	al.owner.mu.Lock()
	freed := al.freed
	al.owner.mu.Unlock()
	if freed {
		return nil, gpu.NewError(gpu.ErrUseAfterFree, "Allocation.Mapped", fmt.Errorf("allocation %d", al.id))
	}
	if !al.hostVisible {
		return nil, gpu.NewError(gpu.ErrInvalidState, "Allocation.Mapped", fmt.Errorf("memory type %d is not host visible", al.memType))
	}
	al.mapOnce.Do(func() {
		al.mapped, al.mapErr = al.mem.Map(0, gpu.WholeSize)
	})
	return al.mapped, al.mapErr
}

// release unmaps and frees the driver memory. The caller has already marked the allocation freed.
func (al *Allocation) release() {
	if al.mapped != nil {
		al.mem.Unmap()
		al.mapped = nil
	}
	al.mem.Free()
}

// Package memory allocates device memory for resources and binds it to them. Each allocation backs exactly
// one resource at offset zero, there is no sub-allocation.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Location is a placement hint translated into required memory property flags.
type Location int

const (
	// DeviceLocal memory is fastest for the device and usually not host visible.
	DeviceLocal Location = iota
	// HostVisibleCoherent memory can be mapped and needs no explicit flushes.
	HostVisibleCoherent
)

// Flags returns the memory property flags a memory type needs to serve l.
func (l Location) Flags() gpu.MemoryPropertyFlags {
	switch l {
	case DeviceLocal:
		return gpu.MemoryDeviceLocal
	case HostVisibleCoherent:
		return gpu.MemoryHostVisible | gpu.MemoryHostCoherent
	default:
		return 0
	}
}

func (l Location) String() string {
	switch l {
	case DeviceLocal:
		return "device-local"
	case HostVisibleCoherent:
		return "host-visible"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// ParseLocation parses the names produced by Location.String.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device-local", "device":
		return DeviceLocal, nil
	case "host-visible", "host", "":
		return HostVisibleCoherent, nil
	default:
		return 0, errors.Errorf("unknown memory location %q", s)
	}
}

// Stats counts the outstanding allocations of one location.
type Stats struct {
	Allocations int
	Bytes       int64
}

// Allocator hands out memory from the memory types of one device. It tracks every allocation until it is freed.
type Allocator struct {
	dev   gpu.Device
	props gpu.MemoryProperties
	log   logrus.FieldLogger

	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Allocation
}

// NewAllocator creates an allocator for dev. The memory properties are the ones queried from the physical
// device dev was created on.
func NewAllocator(dev gpu.Device, props gpu.MemoryProperties, log logrus.FieldLogger) *Allocator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Allocator{
		dev:   dev,
		props: props,
		log:   log,
		live:  make(map[uint64]*Allocation),
	}
}

// FindMemoryType returns the first memory type allowed by typeBits whose flags contain everything loc needs.
func (a *Allocator) FindMemoryType(typeBits uint32, loc Location) (int, error) {
	want := loc.Flags()
	for idx, mt := range a.props.Types {
		if idx >= 32 {
			break
		}
		if typeBits&(1<<uint(idx)) != 0 && mt.Flags.Has(want) {
			return idx, nil
		}
	}
	return -1, gpu.NewError(gpu.ErrNoCompatibleMemoryType, "FindMemoryType",
		fmt.Errorf("no memory type in [%032b] has %v", typeBits, want))
}

// Allocate allocates memory for res in loc and binds it. If binding fails the memory is freed again and res
// stays unbound.
func (a *Allocator) Allocate(res gpu.Buffer, loc Location) (*Allocation, error) {
	reqs := res.Requirements()
	memType, err := a.FindMemoryType(reqs.TypeBits, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes %s", reqs.Size, loc)
	}
	mem, err := a.dev.AllocateMemory(reqs.Size, memType)
	if err != nil {
		return nil, errors.Wrapf(asAllocationError("AllocateMemory", err), "allocate %d bytes of memory type %d", reqs.Size, memType)
	}
	if err := res.Bind(mem, 0); err != nil {
		mem.Free()
		return nil, errors.Wrapf(asAllocationError("Bind", err), "bind memory type %d", memType)
	}

	al := &Allocation{
		owner:       a,
		mem:         mem,
		size:        reqs.Size,
		memType:     memType,
		location:    loc,
		hostVisible: a.props.Types[memType].Flags.Has(gpu.MemoryHostVisible),
	}
	a.mu.Lock()
	a.nextID++
	al.id = a.nextID
	a.live[al.id] = al
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"bytes": reqs.Size, "memType": memType}).Debugf("Allocated %s memory", loc)
	return al, nil
}

// Free releases the memory of al. Freeing an allocation twice fails with ErrUseAfterFree, freeing one made by
// another allocator fails with ErrInvalidState.
func (a *Allocator) Free(al *Allocation) error {
	if al == nil {
		return gpu.NewError(gpu.ErrUseAfterFree, "Free", fmt.Errorf("nil allocation"))
	}
	if al.owner != a {
		return gpu.NewError(gpu.ErrInvalidState, "Free", fmt.Errorf("allocation %d belongs to another allocator", al.id))
	}
	a.mu.Lock()
	if al.freed {
		a.mu.Unlock()
		return gpu.NewError(gpu.ErrUseAfterFree, "Free", fmt.Errorf("allocation %d already freed", al.id))
	}
	al.freed = true
	delete(a.live, al.id)
	a.mu.Unlock()

	al.release()
	return nil
}

// Stats returns the outstanding allocations per location.
func (a *Allocator) Stats() map[Location]Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := make(map[Location]Stats)
	for _, al := range a.live {
		s := stats[al.location]
		s.Allocations++
		s.Bytes += al.size
		stats[al.location] = s
	}
	return stats
}

// Destroy checks that every allocation has been freed. Leaked allocations are logged, freed and reported as an
// error matching ErrAllocatorLeak.
func (a *Allocator) Destroy() error {
	a.mu.Lock()
	ids := make([]uint64, 0, len(a.live))
	for id := range a.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	leaked := make([]*Allocation, len(ids))
	for i, id := range ids {
		leaked[i] = a.live[id]
		leaked[i].freed = true
		delete(a.live, id)
	}
	a.mu.Unlock()

	if len(leaked) == 0 {
		return nil
	}
	var total int64
	for _, al := range leaked {
		a.log.WithFields(logrus.Fields{"bytes": al.size, "memType": al.memType}).Warnf("Leaked %s allocation", al.location)
		total += al.size
		al.release()
	}
	return gpu.NewError(gpu.ErrAllocatorLeak, "Destroy", fmt.Errorf("%d allocations (%d bytes) outstanding", len(leaked), total))
}

func asAllocationError(op string, err error) error {
	if errors.Is(err, gpu.ErrAllocation) {
		return err
	}
	return gpu.NewError(gpu.ErrAllocation, op, err)
}

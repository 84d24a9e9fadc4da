package soft

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Saphs/vulkan-go-context/gpu"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAlignment = 64
	queueDepth       = 64
)

type device struct {
	inst   *instance
	spec   DeviceSpec
	family int

	queue chan submission
	busy  sync.WaitGroup

	mu        sync.Mutex
	heapUsed  []uint64
	destroyed bool
}

type submission struct {
	ops   []op
	fence *fence
}

func newDevice(inst *instance, spec DeviceSpec, family int) *device {
	d := &device{
		inst:     inst,
		spec:     spec,
		family:   family,
		queue:    make(chan submission, queueDepth),
		heapUsed: make([]uint64, len(spec.Memory.Heaps)),
	}
	go d.run()
	return d
}

// run is the device queue. Submissions execute in order, each one signals its fence when done.
func (d *device) run() {
	for s := range d.queue {
		if d.inst.drv.cfg.ExecDelay > 0 {
			time.Sleep(d.inst.drv.cfg.ExecDelay)
		}
		for _, o := range s.ops {
			if err := o.exec(); err != nil {
				log.WithField("instance", d.inst.id).Errorf("soft queue: %v", err)
			}
		}
		if s.fence != nil {
			s.fence.signal()
		}
		d.busy.Done()
	}
}

func (d *device) alignment() int64 {
	if d.spec.Alignment > 0 {
		return d.spec.Alignment
	}
	return defaultAlignment
}

func (d *device) typeBits() uint32 {
	if d.spec.TypeBits != 0 {
		return d.spec.TypeBits
	}
	return uint32(1)<<len(d.spec.Memory.Types) - 1
}

func (d *device) NewBuffer(size int64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	if size <= 0 {
		return nil, gpu.NewError(gpu.ErrAllocation, "soft.NewBuffer", fmt.Errorf("invalid buffer size %d", size))
	}
	align := d.alignment()
	b := &buffer{
		dev:   d,
		size:  size,
		usage: usage,
		reqs: gpu.MemoryRequirements{
			Size:      (size + align - 1) / align * align,
			Alignment: align,
			TypeBits:  d.typeBits(),
		},
	}
	d.inst.drv.cfg.Trace.record(OpCreate, ObjBuffer, d.inst.id)
	return b, nil
}

func (d *device) AllocateMemory(size int64, memType int) (gpu.Memory, error) {
	if d.inst.drv.cfg.Faults.Allocate != nil {
		return nil, gpu.NewError(gpu.ErrAllocation, "soft.AllocateMemory", d.inst.drv.cfg.Faults.Allocate)
	}
	if memType < 0 || memType >= len(d.spec.Memory.Types) {
		return nil, gpu.NewError(gpu.ErrAllocation, "soft.AllocateMemory", fmt.Errorf("memory type %d out of range", memType))
	}
	if size <= 0 {
		return nil, gpu.NewError(gpu.ErrAllocation, "soft.AllocateMemory", fmt.Errorf("invalid allocation size %d", size))
	}
	mt := d.spec.Memory.Types[memType]

	d.mu.Lock()
	defer d.mu.Unlock()
	if mt.HeapIndex < len(d.heapUsed) {
		heap := d.spec.Memory.Heaps[mt.HeapIndex]
		if d.heapUsed[mt.HeapIndex]+uint64(size) > heap.Size {
			return nil, gpu.NewError(gpu.ErrAllocation, "soft.AllocateMemory",
				fmt.Errorf("heap %d exhausted: %d of %d bytes in use", mt.HeapIndex, d.heapUsed[mt.HeapIndex], heap.Size))
		}
		d.heapUsed[mt.HeapIndex] += uint64(size)
	}
	d.inst.drv.cfg.Trace.record(OpCreate, ObjMemory, d.inst.id)
	return &memory{dev: d, data: make([]byte, size), memType: memType, flags: mt.Flags}, nil
}

func (d *device) NewCommandPool(family int) (gpu.CommandPool, error) {
	if family != d.family {
		return nil, gpu.NewError(gpu.ErrInitialization, "soft.NewCommandPool",
			fmt.Errorf("queue family %d has no queue on this device", family))
	}
	return &commandPool{dev: d}, nil
}

func (d *device) NewFence() (gpu.Fence, error) {
	return newFence(), nil
}

func (d *device) Submit(cb gpu.CommandBuffer, f gpu.Fence) error {
	if d.inst.drv.cfg.Faults.Submit != nil {
		return gpu.NewError(gpu.ErrSubmission, "soft.Submit", d.inst.drv.cfg.Faults.Submit)
	}
	c, ok := cb.(*commandBuffer)
	if !ok {
		return gpu.NewError(gpu.ErrSubmission, "soft.Submit", fmt.Errorf("foreign command buffer %T", cb))
	}
	var fc *fence
	if f != nil {
		if fc, ok = f.(*fence); !ok {
			return gpu.NewError(gpu.ErrSubmission, "soft.Submit", fmt.Errorf("foreign fence %T", f))
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpu.NewError(gpu.ErrSubmission, "soft.Submit", fmt.Errorf("device destroyed"))
	}
	d.busy.Add(1)
	d.queue <- submission{ops: append([]op(nil), c.ops...), fence: fc}
	return nil
}

func (d *device) WaitIdle() error {
	d.busy.Wait()
	return nil
}

func (d *device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.mu.Unlock()

	d.busy.Wait()
	close(d.queue)
	d.inst.drv.cfg.Trace.record(OpDestroy, ObjDevice, d.inst.id)
}

type memory struct {
	dev     *device
	data    []byte
	memType int
	flags   gpu.MemoryPropertyFlags
	mapped  bool
	freed   bool
}

func (m *memory) Size() int64 {
	return int64(len(m.data))
}

func (m *memory) Map(offset, size int64) ([]byte, error) {
	if m.freed {
		return nil, gpu.NewError(gpu.ErrUseAfterFree, "soft.Map", fmt.Errorf("memory already freed"))
	}
	if !m.flags.Has(gpu.MemoryHostVisible) {
		return nil, gpu.NewError(gpu.ErrInvalidState, "soft.Map", fmt.Errorf("memory type %d is not host visible", m.memType))
	}
	if m.mapped {
		return nil, gpu.NewError(gpu.ErrInvalidState, "soft.Map", fmt.Errorf("memory already mapped"))
	}
	if size == gpu.WholeSize {
		size = int64(len(m.data)) - offset
	}
	if offset < 0 || size < 0 || offset > int64(len(m.data)) || size > int64(len(m.data))-offset {
		return nil, gpu.NewError(gpu.ErrInvalidState, "soft.Map", fmt.Errorf("%d bytes at offset %d outside allocation of %d bytes", size, offset, len(m.data)))
	}
	m.mapped = true
	return m.data[offset : offset+size : offset+size], nil
}

func (m *memory) Unmap() {
	m.mapped = false
}

func (m *memory) Free() {
	if m.freed {
		return
	}
	m.freed = true
	m.mapped = false
	d := m.dev
	d.mu.Lock()
	heap := d.spec.Memory.Types[m.memType].HeapIndex
	if heap < len(d.heapUsed) {
		d.heapUsed[heap] -= uint64(len(m.data))
	}
	d.mu.Unlock()
	d.inst.drv.cfg.Trace.record(OpDestroy, ObjMemory, d.inst.id)
}

type buffer struct {
	dev       *device
	size      int64
	usage     gpu.BufferUsage
	reqs      gpu.MemoryRequirements
	mem       *memory
	offset    int64
	destroyed bool
}

func (b *buffer) Size() int64 {
	return b.size
}

func (b *buffer) Requirements() gpu.MemoryRequirements {
	return b.reqs
}

func (b *buffer) Bind(m gpu.Memory, offset int64) error {
	if b.dev.inst.drv.cfg.Faults.Bind != nil {
		return gpu.NewError(gpu.ErrAllocation, "soft.Bind", b.dev.inst.drv.cfg.Faults.Bind)
	}
	mem, ok := m.(*memory)
	if !ok {
		return gpu.NewError(gpu.ErrAllocation, "soft.Bind", fmt.Errorf("foreign memory %T", m))
	}
	if b.mem != nil {
		return gpu.NewError(gpu.ErrInvalidState, "soft.Bind", fmt.Errorf("buffer already bound"))
	}
	if b.reqs.TypeBits&(1<<uint(mem.memType)) == 0 {
		return gpu.NewError(gpu.ErrAllocation, "soft.Bind", fmt.Errorf("memory type %d not allowed for buffer", mem.memType))
	}
	if offset%b.reqs.Alignment != 0 || offset+b.reqs.Size > mem.Size() {
		return gpu.NewError(gpu.ErrAllocation, "soft.Bind", fmt.Errorf("buffer of %d bytes does not fit at offset %d", b.reqs.Size, offset))
	}
	b.mem = mem
	b.offset = offset
	return nil
}

func (b *buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.dev.inst.drv.cfg.Trace.record(OpDestroy, ObjBuffer, b.dev.inst.id)
}

// bytes returns the bound backing store of the buffer.
func (b *buffer) bytes() ([]byte, error) {
	if b.destroyed {
		return nil, fmt.Errorf("buffer destroyed")
	}
	if b.mem == nil {
		return nil, fmt.Errorf("buffer not bound to memory")
	}
	if b.mem.freed {
		return nil, fmt.Errorf("buffer memory freed")
	}
	return b.mem.data[b.offset : b.offset+b.size], nil
}

type op interface {
	exec() error
}

type fillOp struct {
	dst          *buffer
	offset, size int64
	value        uint32
}

func (o fillOp) exec() error {
	data, err := o.dst.bytes()
	if err != nil {
		return err
	}
	size := o.size
	if size == gpu.WholeSize {
		size = (int64(len(data)) - o.offset) &^ 3
	}
	if o.offset < 0 || o.offset%4 != 0 || size < 0 || size%4 != 0 || size > int64(len(data))-o.offset {
		return fmt.Errorf("fill of %d bytes at offset %d invalid for buffer of %d bytes", size, o.offset, len(data))
	}
	for i := o.offset; i < o.offset+size; i += 4 {
		binary.LittleEndian.PutUint32(data[i:], o.value)
	}
	return nil
}

type copyOp struct {
	src, dst *buffer
	size     int64
}

func (o copyOp) exec() error {
	src, err := o.src.bytes()
	if err != nil {
		return err
	}
	dst, err := o.dst.bytes()
	if err != nil {
		return err
	}
	if o.size > int64(len(src)) || o.size > int64(len(dst)) {
		return fmt.Errorf("copy of %d bytes exceeds buffers of %d and %d bytes", o.size, len(src), len(dst))
	}
	copy(dst[:o.size], src[:o.size])
	return nil
}

type commandPool struct {
	dev       *device
	destroyed bool
}

func (p *commandPool) Allocate() (gpu.CommandBuffer, error) {
	if p.destroyed {
		return nil, gpu.NewError(gpu.ErrInvalidState, "soft.Allocate", fmt.Errorf("command pool destroyed"))
	}
	return &commandBuffer{pool: p}, nil
}

func (p *commandPool) Destroy() {
	p.destroyed = true
}

type commandBuffer struct {
	pool      *commandPool
	ops       []op
	recording bool
}

func (c *commandBuffer) Begin() error {
	if c.recording {
		return gpu.NewError(gpu.ErrInvalidState, "soft.Begin", fmt.Errorf("already recording"))
	}
	c.ops = c.ops[:0]
	c.recording = true
	return nil
}

func (c *commandBuffer) FillBuffer(dst gpu.Buffer, offset, size int64, value uint32) {
	if b, ok := dst.(*buffer); ok && c.recording {
		c.ops = append(c.ops, fillOp{dst: b, offset: offset, size: size, value: value})
	}
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, size int64) {
	s, okS := src.(*buffer)
	d, okD := dst.(*buffer)
	if okS && okD && c.recording {
		c.ops = append(c.ops, copyOp{src: s, dst: d, size: size})
	}
}

func (c *commandBuffer) End() error {
	if !c.recording {
		return gpu.NewError(gpu.ErrInvalidState, "soft.End", fmt.Errorf("not recording"))
	}
	c.recording = false
	return nil
}

func (c *commandBuffer) Reset() error {
	c.ops = nil
	c.recording = false
	return nil
}

func (c *commandBuffer) Free() {
	c.ops = nil
}

type fence struct {
	mu       sync.Mutex
	signaled bool
	done     chan struct{}
}

func newFence() *fence {
	return &fence{done: make(chan struct{})}
}

func (f *fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

func (f *fence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-done:
			return true, nil
		default:
			return false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (f *fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
	return nil
}

func (f *fence) Destroy() {}

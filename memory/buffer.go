package memory

import (
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/pkg/errors"
)

// Buffer is a buffer resource together with the allocation backing it.
type Buffer struct {
	resource   gpu.Buffer
	allocation *Allocation
	allocator  *Allocator
	usage      gpu.BufferUsage
	destroyed  bool
}

// CreateBuffer creates a buffer of size bytes, allocates memory for it in loc and binds both. Nothing is left
// behind when any step fails.
func (a *Allocator) CreateBuffer(size int64, usage gpu.BufferUsage, loc Location) (*Buffer, error) {
	res, err := a.dev.NewBuffer(size, usage)
	if err != nil {
		return nil, errors.Wrapf(asAllocationError("NewBuffer", err), "create buffer of %d bytes", size)
	}
	al, err := a.Allocate(res, loc)
	if err != nil {
		res.Destroy()
		return nil, err
	}
	return &Buffer{resource: res, allocation: al, allocator: a, usage: usage}, nil
}

// Resource returns the driver buffer for recording commands against it.
func (b *Buffer) Resource() gpu.Buffer {
	return b.resource
}

func (b *Buffer) Allocation() *Allocation {
	return b.allocation
}

// Size is the size the buffer was created with, which may be less than its allocation.
func (b *Buffer) Size() int64 {
	return b.resource.Size()
}

func (b *Buffer) Usage() gpu.BufferUsage {
	return b.usage
}

// Destroy destroys the buffer first and frees its memory afterwards. Calling it again does nothing.
func (b *Buffer) Destroy() error {
	if b.destroyed {
		return nil
	}
	b.destroyed = true
	b.resource.Destroy()
	return b.allocator.Free(b.allocation)
}

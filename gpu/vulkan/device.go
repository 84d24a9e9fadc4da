package vulkan

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/Saphs/vulkan-go-context/gpu"
	vk "github.com/goki/vulkan"
)

type device struct {
	handle vk.Device
	queue  vk.Queue
	family uint32
}

func (d *device) NewBuffer(size int64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	bufferInfo := &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b, err := vkCreateBuffer(d.handle, bufferInfo, nil)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrAllocation, "vkCreateBuffer", err)
	}
	return &buffer{dev: d, handle: b, size: size, reqs: toRequirements(readBufferMemoryRequirements(d.handle, b))}, nil
}

func (d *device) AllocateMemory(size int64, memType int) (gpu.Memory, error) {
	allocInfo := &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(memType),
	}
	m, err := vkAllocateMemory(d.handle, allocInfo, nil)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrAllocation, "vkAllocateMemory", err)
	}
	return &memory{dev: d, handle: m, size: size}, nil
}

func (d *device) NewCommandPool(family int) (gpu.CommandPool, error) {
	pool, err := vksCreateCommandPool(d.handle, vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit), uint32(family))
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateCommandPool", err)
	}
	return &commandPool{dev: d, handle: pool}, nil
}

func (d *device) NewFence() (gpu.Fence, error) {
	f, err := vksCreateFence(d.handle)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInitialization, "vkCreateFence", err)
	}
	return &fence{dev: d, handle: f}, nil
}

func (d *device) Submit(cb gpu.CommandBuffer, f gpu.Fence) error {
	c, ok := cb.(*commandBuffer)
	if !ok {
		return gpu.NewError(gpu.ErrSubmission, "vkQueueSubmit", fmt.Errorf("foreign command buffer %T", cb))
	}
	vf := vk.NullFence
	if f != nil {
		fc, ok := f.(*fence)
		if !ok {
			return gpu.NewError(gpu.ErrSubmission, "vkQueueSubmit", fmt.Errorf("foreign fence %T", f))
		}
		vf = fc.handle
	}
	submitInfo := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{c.handle},
	}}
	if err := vk.Error(vk.QueueSubmit(d.queue, 1, submitInfo, vf)); err != nil {
		return gpu.NewError(gpu.ErrSubmission, "vkQueueSubmit", err)
	}
	return nil
}

func (d *device) WaitIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(d.handle)); err != nil {
		return gpu.NewError(gpu.ErrSubmission, "vkDeviceWaitIdle", err)
	}
	return nil
}

func (d *device) Destroy() {
	if d.handle == nil {
		return
	}
	vk.DeviceWaitIdle(d.handle)
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}

type buffer struct {
	dev    *device
	handle vk.Buffer
	size   int64
	reqs   gpu.MemoryRequirements
}

func (b *buffer) Size() int64 {
	return b.size
}

func (b *buffer) Requirements() gpu.MemoryRequirements {
	return b.reqs
}

func (b *buffer) Bind(m gpu.Memory, offset int64) error {
	mem, ok := m.(*memory)
	if !ok {
		return gpu.NewError(gpu.ErrAllocation, "vkBindBufferMemory", fmt.Errorf("foreign memory %T", m))
	}
	if err := vk.Error(vk.BindBufferMemory(b.dev.handle, b.handle, mem.handle, vk.DeviceSize(offset))); err != nil {
		return gpu.NewError(gpu.ErrAllocation, "vkBindBufferMemory", err)
	}
	return nil
}

func (b *buffer) Destroy() {
	if b.handle == vk.NullBuffer {
		return
	}
	vk.DestroyBuffer(b.dev.handle, b.handle, nil)
	b.handle = vk.NullBuffer
}

type memory struct {
	dev    *device
	handle vk.DeviceMemory
	size   int64
}

func (m *memory) Size() int64 {
	return m.size
}

func (m *memory) Map(offset, size int64) ([]byte, error) {
	if size == gpu.WholeSize {
		size = m.size - offset
	}
	if offset < 0 || size < 0 || offset > m.size || size > m.size-offset {
		return nil, gpu.NewError(gpu.ErrInvalidState, "vkMapMemory", fmt.Errorf("%d bytes at offset %d outside allocation of %d bytes", size, offset, m.size))
	}
	ptr, err := vkMapMemory(m.dev.handle, m.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrInvalidState, "vkMapMemory", err)
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (m *memory) Unmap() {
	vk.UnmapMemory(m.dev.handle, m.handle)
}

func (m *memory) Free() {
	if m.handle == vk.NullDeviceMemory {
		return
	}
	vk.FreeMemory(m.dev.handle, m.handle, nil)
	m.handle = vk.NullDeviceMemory
}

type commandPool struct {
	dev    *device
	handle vk.CommandPool
}

func (p *commandPool) Allocate() (gpu.CommandBuffer, error) {
	allocInfo := &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers, err := vksAllocateCommandBuffers(p.dev.handle, allocInfo)
	if err != nil {
		return nil, gpu.NewError(gpu.ErrAllocation, "vkAllocateCommandBuffers", err)
	}
	return &commandBuffer{pool: p, handle: buffers[0]}, nil
}

func (p *commandPool) Destroy() {
	if p.handle == vk.NullCommandPool {
		return
	}
	vk.DestroyCommandPool(p.dev.handle, p.handle, nil)
	p.handle = vk.NullCommandPool
}

type commandBuffer struct {
	pool    *commandPool
	handle  vk.CommandBuffer
	written bool
}

func (c *commandBuffer) Begin() error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(c.handle, beginInfo)); err != nil {
		return gpu.NewError(gpu.ErrInvalidState, "vkBeginCommandBuffer", err)
	}
	c.written = false
	return nil
}

func (c *commandBuffer) FillBuffer(dst gpu.Buffer, offset, size int64, value uint32) {
	b := dst.(*buffer)
	if size == gpu.WholeSize {
		size = (b.size - offset) &^ 3
	}
	c.transferBarrier()
	vk.CmdFillBuffer(c.handle, b.handle, vk.DeviceSize(offset), vk.DeviceSize(size), value)
	c.written = true
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, size int64) {
	c.transferBarrier()
	region := []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: vk.DeviceSize(size)}}
	vk.CmdCopyBuffer(c.handle, src.(*buffer).handle, dst.(*buffer).handle, 1, region)
	c.written = true
}

// transferBarrier orders a transfer after all earlier transfer writes of the same command buffer.
func (c *commandBuffer) transferBarrier() {
	if !c.written {
		return
	}
	transfer := vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	vk.CmdPipelineBarrier(c.handle, transfer, transfer, vk.DependencyFlags(0), 1,
		[]vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessTransferWriteBit),
		}}, 0, nil, 0, nil)
}

func (c *commandBuffer) End() error {
	if c.written {
		// make transfer writes visible to host reads after the fence wait
		vk.CmdPipelineBarrier(c.handle, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageHostBit), vk.DependencyFlags(0), 1,
			[]vk.MemoryBarrier{{
				SType:         vk.StructureTypeMemoryBarrier,
				SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
				DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit),
			}}, 0, nil, 0, nil)
	}
	if err := vk.Error(vk.EndCommandBuffer(c.handle)); err != nil {
		return gpu.NewError(gpu.ErrInvalidState, "vkEndCommandBuffer", err)
	}
	return nil
}

func (c *commandBuffer) Reset() error {
	if err := vk.Error(vk.ResetCommandBuffer(c.handle, 0)); err != nil {
		return gpu.NewError(gpu.ErrInvalidState, "vkResetCommandBuffer", err)
	}
	c.written = false
	return nil
}

func (c *commandBuffer) Free() {
	if c.handle == nil {
		return
	}
	vk.FreeCommandBuffers(c.pool.dev.handle, c.pool.handle, 1, []vk.CommandBuffer{c.handle})
	c.handle = nil
}

type fence struct {
	dev    *device
	handle vk.Fence
}

func (f *fence) Wait(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		timeout = 0
	}
	res := vk.WaitForFences(f.dev.handle, 1, []vk.Fence{f.handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch res {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	default:
		return false, gpu.NewError(gpu.ErrSubmission, "vkWaitForFences", vk.Error(res))
	}
}

func (f *fence) Reset() error {
	if err := vk.Error(vk.ResetFences(f.dev.handle, 1, []vk.Fence{f.handle})); err != nil {
		return gpu.NewError(gpu.ErrInvalidState, "vkResetFences", err)
	}
	return nil
}

func (f *fence) Destroy() {
	if f.handle == vk.NullFence {
		return
	}
	vk.DestroyFence(f.dev.handle, f.handle, nil)
	f.handle = vk.NullFence
}

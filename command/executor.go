// Package command records transfer commands, submits them to the device queue and waits for their completion.
//
// A Buffer moves through Initial, Recording, Executable and Pending. Submit attaches a fresh fence to the
// submission and Wait is the only call that blocks. Once Wait has observed the fence signaled the buffer is
// back in Initial and may be recorded again.
package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the state of a command buffer.
type State int

const (
	Initial State = iota
	Recording
	Executable
	Pending
	Invalid
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Recording:
		return "recording"
	case Executable:
		return "executable"
	case Pending:
		return "pending"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WaitResult is the outcome of a successful Wait.
type WaitResult int

const (
	Completed WaitResult = iota
	TimedOut
)

func (r WaitResult) String() string {
	if r == Completed {
		return "completed"
	}
	return "timed out"
}

// Buffer is a primary command buffer allocated from an Executor.
type Buffer struct {
	cb    gpu.CommandBuffer
	state State
	fence *Fence
}

// State returns the current state of the buffer.
func (b *Buffer) State() State {
	return b.state
}

// Fence signals the completion of one submission.
type Fence struct {
	f        gpu.Fence
	buf      *Buffer
	signaled bool
	released bool
}

// Signaled reports whether a Wait has observed the fence signaled.
func (f *Fence) Signaled() bool {
	return f.signaled
}

// Executor owns a command pool for one queue family of a device, the buffers allocated from it and the fences
// handed out by Submit. It is not safe for concurrent use.
type Executor struct {
	dev    gpu.Device
	family int
	pool   gpu.CommandPool
	log    logrus.FieldLogger

	mu      sync.Mutex
	buffers map[*Buffer]struct{}
	fences  map[*Fence]struct{}
	idle    []gpu.Fence
}

// NewExecutor creates a command pool on the given queue family.
func NewExecutor(dev gpu.Device, family int, log logrus.FieldLogger) (*Executor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pool, err := dev.NewCommandPool(family)
	if err != nil {
		return nil, errors.Wrapf(err, "create command pool for family %d", family)
	}
	log.WithField("family", family).Debug("Successfully created command pool")
	return &Executor{
		dev:     dev,
		family:  family,
		pool:    pool,
		log:     log,
		buffers: make(map[*Buffer]struct{}),
		fences:  make(map[*Fence]struct{}),
	}, nil
}

// BeginRecording allocates a new command buffer and starts recording into it.
func (e *Executor) BeginRecording() (*Buffer, error) {
	if e.pool == nil {
		return nil, destroyed("BeginRecording")
	}
	cb, err := e.pool.Allocate()
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	b := &Buffer{cb: cb, state: Initial}
	e.mu.Lock()
	e.buffers[b] = struct{}{}
	e.mu.Unlock()
	if err := e.Begin(b); err != nil {
		e.forget(b)
		cb.Free()
		return nil, err
	}
	return b, nil
}

// Begin starts recording into b again, dropping whatever it held before. It fails while b is recording or
// pending.
func (e *Executor) Begin(b *Buffer) error {
	switch b.state {
	case Recording, Pending:
		return invalidState("Begin", b.state)
	case Executable, Invalid:
		if err := b.cb.Reset(); err != nil {
			b.state = Invalid
			return errors.Wrap(err, "reset command buffer")
		}
		b.state = Initial
	}
	if err := b.cb.Begin(); err != nil {
		b.state = Invalid
		return errors.Wrap(err, "begin command buffer")
	}
	b.state = Recording
	return nil
}

// FillBuffer records filling size bytes of dst at offset with the 32-bit value. Offset and size must be multiples
// of 4 and the range must lie within dst. gpu.WholeSize fills up to the last complete word of dst.
func (e *Executor) FillBuffer(b *Buffer, dst gpu.Buffer, offset, size int64, value uint32) error {
	if b.state != Recording {
		return invalidState("FillBuffer", b.state)
	}
	if offset < 0 || offset%4 != 0 {
		return gpu.NewError(gpu.ErrInvalidState, "FillBuffer", fmt.Errorf("offset %d is not a non-negative multiple of 4", offset))
	}
	if size != gpu.WholeSize && (size <= 0 || size%4 != 0) {
		return gpu.NewError(gpu.ErrInvalidState, "FillBuffer", fmt.Errorf("size %d is not a positive multiple of 4", size))
	}
	// compared without adding, offset+size may overflow
	if offset >= dst.Size() || (size != gpu.WholeSize && size > dst.Size()-offset) {
		return gpu.NewError(gpu.ErrInvalidState, "FillBuffer", fmt.Errorf("%d bytes at offset %d outside buffer of %d bytes", size, offset, dst.Size()))
	}
	b.cb.FillBuffer(dst, offset, size, value)
	return nil
}

// CopyBuffer records copying the first size bytes of src to the start of dst.
func (e *Executor) CopyBuffer(b *Buffer, src, dst gpu.Buffer, size int64) error {
	if b.state != Recording {
		return invalidState("CopyBuffer", b.state)
	}
	if size <= 0 || size > src.Size() || size > dst.Size() {
		return gpu.NewError(gpu.ErrInvalidState, "CopyBuffer",
			fmt.Errorf("copy of %d bytes between buffers of %d and %d bytes", size, src.Size(), dst.Size()))
	}
	b.cb.CopyBuffer(src, dst, size)
	return nil
}

// EndRecording finishes recording, b becomes executable.
func (e *Executor) EndRecording(b *Buffer) error {
	if b.state != Recording {
		return invalidState("EndRecording", b.state)
	}
	if err := b.cb.End(); err != nil {
		b.state = Invalid
		return errors.Wrap(err, "end command buffer")
	}
	b.state = Executable
	return nil
}

// Submit hands b to the device queue and returns the fence signaled on its completion. If the queue rejects
// the submission b stays executable.
func (e *Executor) Submit(b *Buffer) (*Fence, error) {
	if e.pool == nil {
		return nil, destroyed("Submit")
	}
	if b.state != Executable {
		return nil, invalidState("Submit", b.state)
	}
	gf, err := e.acquireFence()
	if err != nil {
		return nil, err
	}
	if err := e.dev.Submit(b.cb, gf); err != nil {
		e.mu.Lock()
		e.idle = append(e.idle, gf)
		e.mu.Unlock()
		if !errors.Is(err, gpu.ErrSubmission) {
			err = gpu.NewError(gpu.ErrSubmission, "Submit", err)
		}
		return nil, errors.Wrap(err, "submit command buffer")
	}
	f := &Fence{f: gf, buf: b}
	e.mu.Lock()
	e.fences[f] = struct{}{}
	e.mu.Unlock()
	b.state = Pending
	b.fence = f
	return f, nil
}

// Wait blocks until f is signaled or timeout has elapsed. A timeout of zero only polls. Timing out is not an
// error and leaves the submission running, waiting again later is fine.
func (e *Executor) Wait(f *Fence, timeout time.Duration) (WaitResult, error) {
	if f.released {
		return TimedOut, gpu.NewError(gpu.ErrInvalidState, "Wait", fmt.Errorf("fence already released"))
	}
	if f.signaled {
		return Completed, nil
	}
	ok, err := f.f.Wait(timeout)
	if err != nil {
		return TimedOut, errors.Wrap(err, "wait for fence")
	}
	if !ok {
		return TimedOut, nil
	}
	f.signaled = true
	if f.buf != nil && f.buf.fence == f {
		f.buf.state = Initial
		f.buf.fence = nil
	}
	return Completed, nil
}

// Await is Wait with a timeout turned into an error matching gpu.ErrWaitTimeout.
func (e *Executor) Await(f *Fence, timeout time.Duration) error {
	res, err := e.Wait(f, timeout)
	if err != nil {
		return err
	}
	if res == TimedOut {
		return gpu.NewError(gpu.ErrWaitTimeout, "Await", fmt.Errorf("fence not signaled after %v", timeout))
	}
	return nil
}

// Release returns f to the executor for reuse. A fence can only be released after Wait has seen it signaled.
func (e *Executor) Release(f *Fence) error {
	if f.released {
		return nil
	}
	if !f.signaled {
		return gpu.NewError(gpu.ErrInvalidState, "Release", fmt.Errorf("fence not observed signaled"))
	}
	if err := f.f.Reset(); err != nil {
		return errors.Wrap(err, "reset fence")
	}
	f.released = true
	e.mu.Lock()
	delete(e.fences, f)
	e.idle = append(e.idle, f.f)
	e.mu.Unlock()
	return nil
}

// Free returns b to the pool. Pending buffers cannot be freed.
func (e *Executor) Free(b *Buffer) error {
	if b.state == Pending {
		return invalidState("Free", b.state)
	}
	if !e.forget(b) {
		return nil
	}
	b.cb.Free()
	b.state = Invalid
	return nil
}

// Destroy waits for the device to become idle and destroys every fence, buffer and the pool. Recording or
// submitting afterwards fails with ErrInvalidState.
func (e *Executor) Destroy() {
	if err := e.dev.WaitIdle(); err != nil {
		e.log.Warnf("Failed to wait for device idle: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for f := range e.fences {
		f.f.Destroy()
		f.released = true
	}
	for _, f := range e.idle {
		f.Destroy()
	}
	for b := range e.buffers {
		b.cb.Free()
		b.state = Invalid
	}
	e.fences = make(map[*Fence]struct{})
	e.buffers = make(map[*Buffer]struct{})
	e.idle = nil
	if e.pool != nil {
		e.pool.Destroy()
		e.pool = nil
	}
}

func (e *Executor) acquireFence() (gpu.Fence, error) {
	e.mu.Lock()
	if n := len(e.idle); n > 0 {
		f := e.idle[n-1]
		e.idle = e.idle[:n-1]
		e.mu.Unlock()
		return f, nil
	}
	e.mu.Unlock()
	f, err := e.dev.NewFence()
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return f, nil
}

func (e *Executor) forget(b *Buffer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buffers[b]; !ok {
		return false
	}
	delete(e.buffers, b)
	return true
}

func invalidState(op string, s State) error {
	return gpu.NewError(gpu.ErrInvalidState, op, fmt.Errorf("command buffer is %s", s))
}

func destroyed(op string) error {
	return gpu.NewError(gpu.ErrInvalidState, op, fmt.Errorf("executor destroyed"))
}

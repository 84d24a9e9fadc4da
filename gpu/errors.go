package gpu

import (
	"errors"
	"fmt"
)

// Error kinds shared by every backend and by the layers built on top of them. Callers should test for them
// with errors.Is, as driver failures are usually wrapped into an *Error carrying the original cause.
var (
	// ErrInitialization means the API loader or the driver could not be brought up.
	ErrInitialization = errors.New("gpu: loader or driver unavailable")
	// ErrNoDevice means that enumeration returned an empty list of physical devices.
	ErrNoDevice = errors.New("gpu: no physical device found")
	// ErrNoSuitableDevice means no enumerated device satisfies the requested queue capabilities.
	ErrNoSuitableDevice = errors.New("gpu: no suitable physical device")
	// ErrSurfaceCreation means a presentation surface could not be created for a window.
	ErrSurfaceCreation = errors.New("gpu: surface creation failed")
	// ErrNoCompatibleMemoryType means no memory type satisfies both a resource and a location hint.
	ErrNoCompatibleMemoryType = errors.New("gpu: no compatible memory type")
	// ErrAllocation means the driver refused to allocate or bind device memory.
	ErrAllocation = errors.New("gpu: allocation failed")
	// ErrInvalidState means a command buffer or fence was used outside of its state machine.
	ErrInvalidState = errors.New("gpu: invalid state")
	// ErrSubmission means the queue rejected a submission.
	ErrSubmission = errors.New("gpu: submission failed")
	// ErrWaitTimeout means a fence did not signal in time. It is not fatal and waiting may be retried.
	ErrWaitTimeout = errors.New("gpu: wait timed out")
	// ErrAllocatorLeak means an allocator was destroyed while allocations were still outstanding.
	ErrAllocatorLeak = errors.New("gpu: allocator destroyed with outstanding allocations")
	// ErrUseAfterFree means a freed allocation was accessed.
	ErrUseAfterFree = errors.New("gpu: use of freed allocation")
)

// Error ties a driver level failure to one of the error kinds above. It matches its Kind under errors.Is
// and unwraps to the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError wraps cause as an error of the given kind that happened during op. Cause may be nil.
func NewError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

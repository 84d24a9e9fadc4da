package device

// releaseStack collects destroy functions in creation order and runs them in reverse.
type releaseStack []func()

func (r *releaseStack) push(fn func()) {
	*r = append(*r, fn)
}

func (r *releaseStack) empty() bool {
	return len(*r) == 0
}

// unwind runs every pushed function, last pushed first, and leaves the stack empty.
func (r *releaseStack) unwind() {
	for i := len(*r) - 1; i >= 0; i-- {
		(*r)[i]()
	}
	*r = nil
}

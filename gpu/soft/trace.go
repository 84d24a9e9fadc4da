package soft

import (
	"fmt"
	"sync"
)

// Op is the kind of a traced event.
type Op string

const (
	OpCreate  Op = "create"
	OpDestroy Op = "destroy"
)

// Object names the kind of object a traced event refers to.
type Object string

const (
	ObjInstance Object = "instance"
	ObjSurface  Object = "surface"
	ObjDevice   Object = "device"
	ObjBuffer   Object = "buffer"
	ObjMemory   Object = "memory"
)

// Event is one traced creation or destruction. Instance identifies the instance the object descends from.
type Event struct {
	Op       Op
	Object   Object
	Instance int
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s #%d", e.Op, e.Object, e.Instance)
}

// Trace records events in the order they happen. It is safe for concurrent use, a nil Trace records nothing.
type Trace struct {
	mu     sync.Mutex
	events []Event
}

func (t *Trace) record(op Op, obj Object, instance int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Op: op, Object: obj, Instance: instance})
}

// Events returns a copy of everything recorded so far.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Destroyed returns the objects destroyed under the given instance, in destruction order.
func (t *Trace) Destroyed(instance int) []Object {
	var objs []Object
	for _, e := range t.Events() {
		if e.Op == OpDestroy && e.Instance == instance {
			objs = append(objs, e.Object)
		}
	}
	return objs
}

// Instances returns the ids of all instances that were created, in creation order.
func (t *Trace) Instances() []int {
	var ids []int
	for _, e := range t.Events() {
		if e.Op == OpCreate && e.Object == ObjInstance {
			ids = append(ids, e.Instance)
		}
	}
	return ids
}

// Live counts objects of the given kind that were created and not yet destroyed.
func (t *Trace) Live(obj Object) int {
	n := 0
	for _, e := range t.Events() {
		if e.Object != obj {
			continue
		}
		if e.Op == OpCreate {
			n++
		} else {
			n--
		}
	}
	return n
}

// Package headless is an in-memory window system. Windows exist only as ids and the event loop replays a
// scripted queue of events, which makes it usable without a display and in tests.
package headless

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/Saphs/vulkan-go-context/wsi"
	log "github.com/sirupsen/logrus"
)

// DefaultExtensions are the instance extensions reported by headless windows.
var DefaultExtensions = []string{"VK_KHR_surface", "VK_EXT_headless_surface"}

// Step is one scripted event.
type Step struct {
	Window wsi.WindowID
	Event  wsi.Event
}

// System is a scripted wsi.System. The zero value is ready to use.
type System struct {
	// Extensions overrides DefaultExtensions when not nil.
	Extensions []string
	// CreateFaults makes the n-th CreateWindow call fail with the n-th entry. Nil entries succeed.
	CreateFaults []error

	queue   []Step
	windows map[wsi.WindowID]*Window
	nextID  wsi.WindowID
	created int
	exit    bool
	running bool
}

// New creates a system that replays script once its handler has been resumed.
func New(script ...Step) *System {
	return &System{queue: append([]Step(nil), script...)}
}

// Push appends an event to the queue. It may be called from handler callbacks.
func (s *System) Push(id wsi.WindowID, ev wsi.Event) {
	s.queue = append(s.queue, Step{Window: id, Event: ev})
}

// Run resumes h, delivers queued events until the queue is drained or h calls Exit, then suspends h and
// destroys every window still open.
func (s *System) Run(h wsi.Handler) error {
	if s.running {
		return fmt.Errorf("headless: loop already running")
	}
	s.running = true
	s.exit = false
	defer func() { s.running = false }()

	h.Resumed(s)
	for !s.exit && len(s.queue) > 0 {
		step := s.queue[0]
		s.queue = s.queue[1:]
		if _, ok := s.windows[step.Window]; !ok {
			log.WithField("window", step.Window).Debugf("Dropping %v for unknown window", step.Event)
			continue
		}
		h.WindowEvent(s, step.Window, step.Event)
	}
	h.Suspended(s)

	for _, id := range s.Windows() {
		log.WithField("window", id).Warn("Window still open after the loop ended, destroying it")
		_ = s.windows[id].Destroy()
	}
	return nil
}

// CreateWindow creates a new window with the next free id.
func (s *System) CreateWindow(attrs wsi.Attributes) (wsi.Window, error) {
	n := s.created
	s.created++
	if n < len(s.CreateFaults) && s.CreateFaults[n] != nil {
		return nil, s.CreateFaults[n]
	}
	if s.windows == nil {
		s.windows = make(map[wsi.WindowID]*Window)
	}
	s.nextID++
	w := &Window{id: s.nextID, attrs: attrs, system: s}
	s.windows[w.id] = w
	log.WithField("window", w.id).Debugf("Created headless window \"%s\"", attrs.Title)
	return w, nil
}

func (s *System) Exit() {
	s.exit = true
}

// ExitRequested reports whether the handler called Exit during the last Run.
func (s *System) ExitRequested() bool {
	return s.exit
}

// Windows returns the ids of all open windows in ascending order.
func (s *System) Windows() []wsi.WindowID {
	ids := make([]wsi.WindowID, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Window is a headless window.
type Window struct {
	id     wsi.WindowID
	attrs  wsi.Attributes
	system *System
}

func (w *Window) ID() wsi.WindowID {
	return w.id
}

// Attributes returns the attributes the window was created with.
func (w *Window) Attributes() wsi.Attributes {
	return w.attrs
}

func (w *Window) InstanceExtensions() ([]string, error) {
	if w.system.Extensions != nil {
		return w.system.Extensions, nil
	}
	return DefaultExtensions, nil
}

// CreateVulkanSurface always fails, there is no native window to present to.
func (w *Window) CreateVulkanSurface(instance any) (unsafe.Pointer, error) {
	return nil, fmt.Errorf("headless window %d has no native surface", w.id)
}

func (w *Window) ProcAddr() unsafe.Pointer {
	return nil
}

// Destroy closes the window. Destroying a closed window does nothing.
func (w *Window) Destroy() error {
	if _, ok := w.system.windows[w.id]; !ok {
		return nil
	}
	delete(w.system.windows, w.id)
	log.WithField("window", w.id).Debug("Destroyed headless window")
	return nil
}

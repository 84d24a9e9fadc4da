// Package sdl implements the window system on SDL2. SDL must be driven from the main OS thread, so the caller
// locks it before calling Run.
package sdl

import (
	"fmt"
	"unsafe"

	"github.com/Saphs/vulkan-go-context/wsi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	defaultWidth  = 800
	defaultHeight = 600

	// how long one WaitEventTimeout call blocks before the exit flag is checked again
	pollTimeoutMs = 100
)

// System is the SDL window system.
type System struct {
	windows map[wsi.WindowID]*Window
	exit    bool
}

func New() *System {
	return &System{windows: make(map[wsi.WindowID]*Window)}
}

// Run initialises SDL and its Vulkan loader, drives h until it asks to exit or SDL quits and shuts SDL down again.
func (s *System) Run(h wsi.Handler) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "initialize SDL")
	}
	defer sdl.Quit()
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return errors.Wrap(err, "load Vulkan library through SDL")
	}
	defer sdl.VulkanUnloadLibrary()

	var version sdl.Version
	sdl.GetVersion(&version)
	log.Infof("Initialized SDL v%d.%d.%d", version.Major, version.Minor, version.Patch)

	s.exit = false
	h.Resumed(s)

EventLoop:
	for !s.exit {
		event := sdl.WaitEventTimeout(pollTimeoutMs)
		for ; event != nil; event = sdl.PollEvent() {
			if _, ok := event.(*sdl.QuitEvent); ok {
				log.Debug("SDL quit event received")
				break EventLoop
			}
			id, ev, ok := translate(event)
			if !ok {
				continue
			}
			if _, known := s.windows[id]; !known {
				continue
			}
			h.WindowEvent(s, id, ev)
			if s.exit {
				break EventLoop
			}
		}
	}
	log.Println("Event loop exited")
	h.Suspended(s)

	for id, w := range s.windows {
		log.WithField("window", id).Warn("Window still open after the loop ended, destroying it")
		if err := w.Destroy(); err != nil {
			log.WithField("window", id).Errorf("Failed to destroy window: %v", err)
		}
	}
	return nil
}

// CreateWindow opens a resizable Vulkan capable SDL window.
func (s *System) CreateWindow(attrs wsi.Attributes) (wsi.Window, error) {
	width, height := attrs.Width, attrs.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	win, err := sdl.CreateWindow(
		attrs.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE|sdl.WINDOW_VULKAN,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create SDL window for use with Vulkan")
	}
	raw, err := win.GetID()
	if err != nil {
		win.Destroy()
		return nil, errors.Wrap(err, "read SDL window id")
	}
	w := &Window{id: wsi.WindowID(raw), win: win, system: s}
	s.windows[w.id] = w
	log.WithField("window", w.id).Infof("Created SDL window for use with Vulkan. Title: \"%s\", Width: %d, Height: %d",
		attrs.Title, width, height)
	return w, nil
}

func (s *System) Exit() {
	s.exit = true
}

// Window wraps an SDL window.
type Window struct {
	id     wsi.WindowID
	win    *sdl.Window
	system *System
}

func (w *Window) ID() wsi.WindowID {
	return w.id
}

func (w *Window) InstanceExtensions() ([]string, error) {
	if w.win == nil {
		return nil, fmt.Errorf("window %d destroyed", w.id)
	}
	return w.win.VulkanGetInstanceExtensions(), nil
}

func (w *Window) CreateVulkanSurface(instance any) (unsafe.Pointer, error) {
	if w.win == nil {
		return nil, fmt.Errorf("window %d destroyed", w.id)
	}
	return w.win.VulkanCreateSurface(instance)
}

func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// Destroy closes the window. Destroying a closed window does nothing.
func (w *Window) Destroy() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Destroy()
	w.win = nil
	delete(w.system.windows, w.id)
	return err
}

// translate maps the SDL events the engine cares about onto window events.
func translate(event sdl.Event) (wsi.WindowID, wsi.Event, bool) {
	switch et := event.(type) {
	case *sdl.WindowEvent:
		id := wsi.WindowID(et.WindowID)
		switch et.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return id, wsi.CloseRequested{}, true
		case sdl.WINDOWEVENT_RESIZED:
			return id, wsi.Resized{Width: int(et.Data1), Height: int(et.Data2)}, true
		case sdl.WINDOWEVENT_FOCUS_GAINED:
			return id, wsi.Focused{Gained: true}, true
		case sdl.WINDOWEVENT_FOCUS_LOST:
			return id, wsi.Focused{Gained: false}, true
		}
	case *sdl.KeyboardEvent:
		if et.Type != sdl.KEYDOWN {
			return 0, nil, false
		}
		id := wsi.WindowID(et.WindowID)
		if et.Keysym.Sym == sdl.K_ESCAPE {
			return id, wsi.CloseRequested{}, true
		}
		return id, wsi.KeyPressed{Key: sdl.GetKeyName(et.Keysym.Sym)}, true
	}
	return 0, nil, false
}

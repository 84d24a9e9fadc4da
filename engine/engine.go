// Package engine keeps one device context per open window. The first window is the primary one: closing it
// ends the event loop, closing any other window only tears that window down.
package engine

import (
	"fmt"
	"sort"

	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/wsi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrBootstrap is returned when the primary window or its context cannot be created.
var ErrBootstrap = errors.New("engine bootstrap failed")

// ContextFactory creates the device context presenting to a window.
type ContextFactory func(win wsi.Window) (*device.Context, error)

// DeviceFactory returns a ContextFactory creating contexts on drv with cfg.
func DeviceFactory(drv gpu.Driver, cfg device.Config) ContextFactory {
	return func(win wsi.Window) (*device.Context, error) {
		return device.New(drv, win, cfg)
	}
}

// Config configures the windows an engine opens.
type Config struct {
	Primary wsi.Attributes
	// Secondary is opened after the primary window when OpenSecondary is set.
	Secondary     wsi.Attributes
	OpenSecondary bool
}

// Renderer is the per window state, for now just the device context.
type Renderer struct {
	window wsi.WindowID
	ctx    *device.Context
}

func (r *Renderer) Window() wsi.WindowID {
	return r.window
}

func (r *Renderer) Context() *device.Context {
	return r.ctx
}

// Engine is the registry of open windows and their renderers. Both maps always hold the same keys. It must
// only be used from the event loop goroutine.
type Engine struct {
	factory ContextFactory
	log     logrus.FieldLogger

	windows   map[wsi.WindowID]wsi.Window
	renderers map[wsi.WindowID]*Renderer
	primary   wsi.WindowID
}

// New creates the engine together with its primary window. Any failure matches ErrBootstrap.
func New(loop wsi.Loop, factory ContextFactory, cfg Config, log logrus.FieldLogger) (*Engine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		factory:   factory,
		log:       log,
		windows:   make(map[wsi.WindowID]wsi.Window),
		renderers: make(map[wsi.WindowID]*Renderer),
	}
	id, err := e.CreateWindow(loop, cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	e.primary = id
	e.log.WithField("window", id).Info("Primary window ready")
	return e, nil
}

// CreateWindow opens a window and creates its device context. If the context cannot be created the window is
// destroyed again and nothing is registered.
func (e *Engine) CreateWindow(loop wsi.Loop, attrs wsi.Attributes) (wsi.WindowID, error) {
	win, err := loop.CreateWindow(attrs)
	if err != nil {
		return 0, errors.Wrapf(err, "create window \"%s\"", attrs.Title)
	}
	id := win.ID()
	if _, taken := e.windows[id]; taken {
		_ = win.Destroy()
		return 0, errors.Errorf("window id %d already registered", id)
	}
	ctx, err := e.factory(win)
	if err != nil {
		if derr := win.Destroy(); derr != nil {
			e.log.WithField("window", id).Warnf("Failed to destroy window: %v", derr)
		}
		return 0, errors.Wrapf(err, "create device context for %s", id)
	}
	e.windows[id] = win
	e.renderers[id] = &Renderer{window: id, ctx: ctx}
	e.log.WithFields(logrus.Fields{"window": id, "ctx": ctx.ID()}).Debug("Registered window")
	return id, nil
}

// WindowEvent handles an event of a registered window.
func (e *Engine) WindowEvent(loop wsi.Loop, id wsi.WindowID, ev wsi.Event) {
	log := e.log.WithField("window", id)
	switch ev := ev.(type) {
	case wsi.CloseRequested:
		if id == e.primary {
			log.Info("Primary window closed, exiting")
			loop.Exit()
			return
		}
		e.closeWindow(id)
	case wsi.Resized:
		log.Debugf("Window resized to %dx%d", ev.Width, ev.Height)
	case wsi.Focused:
		log.Debugf("Window focus gained: %t", ev.Gained)
	case wsi.KeyPressed:
		log.Debugf("Key pressed: %s", ev.Key)
	default:
		log.Warnf("Unhandled window event %v", ev)
	}
}

// Primary returns the id of the primary window.
func (e *Engine) Primary() wsi.WindowID {
	return e.primary
}

// Windows returns the ids of all registered windows in ascending order.
func (e *Engine) Windows() []wsi.WindowID {
	return sortedIDs(e.windows)
}

// Renderers returns the ids of all registered renderers in ascending order.
func (e *Engine) Renderers() []wsi.WindowID {
	return sortedIDs(e.renderers)
}

// Renderer returns the renderer of a window.
func (e *Engine) Renderer(id wsi.WindowID) (*Renderer, bool) {
	r, ok := e.renderers[id]
	return r, ok
}

// Destroy closes every window, each after its device context.
func (e *Engine) Destroy() {
	for _, id := range e.Windows() {
		e.closeWindow(id)
	}
}

func (e *Engine) closeWindow(id wsi.WindowID) {
	if r, ok := e.renderers[id]; ok {
		r.ctx.Destroy()
		delete(e.renderers, id)
	}
	if w, ok := e.windows[id]; ok {
		if err := w.Destroy(); err != nil {
			e.log.WithField("window", id).Warnf("Failed to destroy window: %v", err)
		}
		delete(e.windows, id)
	}
	e.log.WithField("window", id).Debug("Closed window")
}

func sortedIDs[V any](m map[wsi.WindowID]V) []wsi.WindowID {
	ids := make([]wsi.WindowID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

package engine

import (
	"github.com/Saphs/vulkan-go-context/wsi"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of an App.
type State int

const (
	Uninitialized State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "uninitialized"
}

// App drives an Engine from a window system's event loop.
type App struct {
	factory ContextFactory
	cfg     Config
	log     logrus.FieldLogger

	state  State
	engine *Engine
	err    error
}

var _ wsi.Handler = (*App)(nil)

func NewApp(factory ContextFactory, cfg Config, log logrus.FieldLogger) *App {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &App{factory: factory, cfg: cfg, log: log}
}

// Resumed builds the engine. A bootstrap failure is kept in Err and ends the loop. A failing secondary window
// is logged and skipped.
func (a *App) Resumed(loop wsi.Loop) {
	if a.state == Running {
		return
	}
	eng, err := New(loop, a.factory, a.cfg, a.log)
	if err != nil {
		a.log.Errorf("Failed to start engine: %v", err)
		a.err = err
		loop.Exit()
		return
	}
	a.engine = eng
	a.state = Running

	if a.cfg.OpenSecondary {
		if id, err := eng.CreateWindow(loop, a.cfg.Secondary); err != nil {
			a.log.Warnf("Skipping secondary window: %v", err)
		} else {
			a.log.WithField("window", id).Info("Secondary window ready")
		}
	}
}

func (a *App) WindowEvent(loop wsi.Loop, id wsi.WindowID, ev wsi.Event) {
	if a.state != Running {
		return
	}
	a.engine.WindowEvent(loop, id, ev)
}

// Suspended destroys the engine and everything it holds.
func (a *App) Suspended(wsi.Loop) {
	if a.state != Running {
		return
	}
	a.engine.Destroy()
	a.engine = nil
	a.state = Uninitialized
}

func (a *App) State() State {
	return a.state
}

// Engine returns the running engine, or nil.
func (a *App) Engine() *Engine {
	return a.engine
}

// Err returns the bootstrap error, if any.
func (a *App) Err() error {
	return a.err
}

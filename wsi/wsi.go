// Package wsi is the window system boundary. A System runs an event loop and drives a Handler: Resumed once the
// loop is up, WindowEvent for every event of a window created through the Loop and Suspended before the loop
// returns. Windows double as surface sources for the gpu drivers.
package wsi

import (
	"fmt"

	"github.com/Saphs/vulkan-go-context/gpu"
)

// WindowID identifies a window. Ids are handed out by the window system and not reused while a window lives.
type WindowID uint32

func (id WindowID) String() string {
	return fmt.Sprintf("window#%d", uint32(id))
}

// Attributes configure a new window. Zero sizes use the window system's default.
type Attributes struct {
	Title  string
	Width  int
	Height int
}

// Window is a platform window that can present.
type Window interface {
	gpu.Window
	ID() WindowID
	Destroy() error
}

// Loop is the part of a running event loop a Handler may use.
type Loop interface {
	CreateWindow(attrs Attributes) (Window, error)
	// Exit asks the loop to stop after the current event.
	Exit()
}

// Handler receives the lifecycle and window events of a System. All calls happen on the loop goroutine.
type Handler interface {
	Resumed(loop Loop)
	WindowEvent(loop Loop, id WindowID, ev Event)
	Suspended(loop Loop)
}

// System runs an event loop until the handler asks it to exit or the platform quits.
type System interface {
	Run(h Handler) error
}

package wsi

import "fmt"

// Event is a window event. The set of variants is closed, switch over them exhaustively.
type Event interface {
	fmt.Stringer
	windowEvent()
}

// CloseRequested is sent when the user asks to close a window.
type CloseRequested struct{}

// Resized carries the new client size of a window.
type Resized struct {
	Width, Height int
}

// Focused reports that a window gained or lost input focus.
type Focused struct {
	Gained bool
}

// KeyPressed carries the name of a pressed key.
type KeyPressed struct {
	Key string
}

func (CloseRequested) windowEvent() {}
func (Resized) windowEvent()        {}
func (Focused) windowEvent()        {}
func (KeyPressed) windowEvent()     {}

func (CloseRequested) String() string { return "CloseRequested" }

func (e Resized) String() string { return fmt.Sprintf("Resized(%dx%d)", e.Width, e.Height) }

func (e Focused) String() string { return fmt.Sprintf("Focused(%t)", e.Gained) }

func (e KeyPressed) String() string { return fmt.Sprintf("KeyPressed(%s)", e.Key) }

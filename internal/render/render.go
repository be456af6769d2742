// Package render is the boundary to the visualization engine and the window
// that hosts it. The render loop only talks to these interfaces.
package render

// Visualizer draws frames from audio samples using a preset.
type Visualizer interface {
	// LoadPreset switches to the preset at an absolute path, or to nothing
	// for the idle preset. Failures leave the current preset in place.
	LoadPreset(path string) error
	// AddSamples queues interleaved stereo float32 samples for the next frame.
	AddSamples(samples []float32)
	SetSize(width, height int)
	RenderFrame()
}

// Window hosts the drawable surface and produces input events.
type Window interface {
	Show()
	Visible() bool
	SetFullscreen(enabled bool)
	Fullscreen() bool
	DrawableSize() (width, height int)
	// PollEvents drains pending events without blocking.
	PollEvents() []Event
	SwapBuffers()
}

// EventKind discriminates window events.
type EventKind int

const (
	EventClose EventKind = iota
	EventResize
	EventKey
)

// Event is one window notification.
type Event struct {
	Kind EventKind
	// Key is the translated key name for EventKey.
	Key string
	// Repeat marks auto-repeated key events.
	Repeat bool
}

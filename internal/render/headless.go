package render

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/audiolibrelab/platyrender/internal/protocol"
)

// maxQueuedSamples caps the sample queue at roughly two fragments of stereo
// audio; older samples are dropped first.
const maxQueuedSamples = 4096

// HeadlessVisualizer keeps the visualizer contract without drawing. It is
// what the renderer runs when no graphics stack is linked in.
type HeadlessVisualizer struct {
	mu      sync.Mutex
	preset  string
	samples []float32
	frames  uint64
	width   int
	height  int
}

// NewHeadlessVisualizer returns a visualizer sized width x height.
func NewHeadlessVisualizer(width, height int) *HeadlessVisualizer {
	return &HeadlessVisualizer{width: width, height: height}
}

func (v *HeadlessVisualizer) LoadPreset(path string) error {
	if path != protocol.IdlePreset {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("file not found: %s", path)
		}
		if info.IsDir() {
			return fmt.Errorf("not a preset file: %s", path)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("file not found: %s", path)
		}
		f.Close()
	}

	v.mu.Lock()
	v.preset = path
	v.mu.Unlock()
	slog.Debug("Preset loaded", "path", path)
	return nil
}

func (v *HeadlessVisualizer) AddSamples(samples []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.samples = append(v.samples, samples...)
	if over := len(v.samples) - maxQueuedSamples; over > 0 {
		v.samples = append(v.samples[:0], v.samples[over:]...)
	}
}

func (v *HeadlessVisualizer) SetSize(width, height int) {
	v.mu.Lock()
	v.width, v.height = width, height
	v.mu.Unlock()
}

// RenderFrame consumes the queued samples.
func (v *HeadlessVisualizer) RenderFrame() {
	v.mu.Lock()
	v.samples = v.samples[:0]
	v.frames++
	v.mu.Unlock()
}

// Preset returns the last successfully loaded preset path.
func (v *HeadlessVisualizer) Preset() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.preset
}

// Frames returns how many frames were rendered.
func (v *HeadlessVisualizer) Frames() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

// Queued returns the number of samples waiting for the next frame.
func (v *HeadlessVisualizer) Queued() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.samples)
}

// Size returns the current viewport.
func (v *HeadlessVisualizer) Size() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// HeadlessWindow tracks visibility and fullscreen state and delivers events
// injected from outside, such as a termination signal standing in for a
// close request.
type HeadlessWindow struct {
	mu         sync.Mutex
	visible    bool
	fullscreen bool
	width      int
	height     int
	events     []Event
}

// NewHeadlessWindow returns a hidden window.
func NewHeadlessWindow(width, height int) *HeadlessWindow {
	return &HeadlessWindow{width: width, height: height}
}

func (w *HeadlessWindow) Show() {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
}

func (w *HeadlessWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *HeadlessWindow) SetFullscreen(enabled bool) {
	w.mu.Lock()
	w.fullscreen = enabled
	w.mu.Unlock()
}

func (w *HeadlessWindow) Fullscreen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullscreen
}

func (w *HeadlessWindow) DrawableSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Resize changes the drawable size and queues a resize event.
func (w *HeadlessWindow) Resize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.events = append(w.events, Event{Kind: EventResize})
	w.mu.Unlock()
}

// Inject queues ev for the next PollEvents.
func (w *HeadlessWindow) Inject(ev Event) {
	w.mu.Lock()
	w.events = append(w.events, ev)
	w.mu.Unlock()
}

func (w *HeadlessWindow) PollEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	evs := w.events
	w.events = nil
	return evs
}

func (w *HeadlessWindow) SwapBuffers() {}

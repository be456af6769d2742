// Package events writes the renderer's out-of-band notifications. Each event
// is a netstring-framed JSON object so a supervising process can parse it out
// of the stderr stream.
package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/platyrender/internal/netstring"
)

// Source tags every event with the emitting process.
const Source = "PLATYPLATY"

// Type is the event discriminator.
type Type string

const (
	Disconnect Type = "DISCONNECT"
	AudioError Type = "AUDIO_ERROR"
	KeyPressed Type = "KEY_PRESSED"
	Quit       Type = "QUIT"
)

// Event is the wire shape of one notification.
type Event struct {
	Source string `json:"source"`
	Event  Type   `json:"event"`
	Reason string `json:"reason,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Emitter serializes events onto w. It is safe for concurrent use.
type Emitter struct {
	mu sync.Mutex
	w  *netstring.Writer
}

// NewEmitter writes to w, usually os.Stderr.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: netstring.NewWriter(w)}
}

// Emit writes ev. Failures are logged and otherwise ignored: losing a
// notification must never take the renderer down.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	ev.Source = Source
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode event", "event", ev.Event, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.w.WriteFrame(data); err != nil {
		slog.Debug("Failed to write event", "event", ev.Event, "error", err)
	}
}

func (e *Emitter) Disconnect(reason string) {
	e.Emit(Event{Event: Disconnect, Reason: reason})
}

func (e *Emitter) AudioError(reason string) {
	e.Emit(Event{Event: AudioError, Reason: reason})
}

func (e *Emitter) KeyPressed(key string) {
	e.Emit(Event{Event: KeyPressed, Key: key})
}

func (e *Emitter) Quit(reason string) {
	e.Emit(Event{Event: Quit, Reason: reason})
}

package events

import (
	"bytes"
	"sync"
	"testing"

	"github.com/audiolibrelab/platyrender/internal/netstring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	r := netstring.NewReader(buf)
	var out []string
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			break
		}
		out = append(out, string(frame))
	}
	return out
}

func TestEmitter_Shapes(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.Disconnect("missing trailing comma")
	e.AudioError("Audio capture read failed")
	e.KeyPressed("ctrl+q")
	e.Quit("window closed")

	frames := readAll(t, &buf)
	require.Len(t, frames, 4)
	assert.JSONEq(t, `{"source":"PLATYPLATY","event":"DISCONNECT","reason":"missing trailing comma"}`, frames[0])
	assert.JSONEq(t, `{"source":"PLATYPLATY","event":"AUDIO_ERROR","reason":"Audio capture read failed"}`, frames[1])
	assert.JSONEq(t, `{"source":"PLATYPLATY","event":"KEY_PRESSED","key":"ctrl+q"}`, frames[2])
	assert.JSONEq(t, `{"source":"PLATYPLATY","event":"QUIT","reason":"window closed"}`, frames[3])
}

func TestEmitter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.KeyPressed("a")
		}()
	}
	wg.Wait()

	assert.Len(t, readAll(t, &buf), 20)
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Disconnect("x") })
}

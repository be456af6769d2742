package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrNotStarted is returned by Stop on a capture that never started.
var ErrNotStarted = errors.New("capture not started")

// SampleSink receives interleaved float32 samples from the capture goroutine.
// Implementations must be safe for concurrent use with their other methods.
type SampleSink interface {
	AddSamples(samples []float32)
}

// Capture is a running audio source feeding a SampleSink. It never touches
// the command path; failures after Start arrive on Errors.
type Capture interface {
	// Start begins delivery to sink. It returns an error when the source
	// cannot be opened.
	Start(sink SampleSink) error

	// Errors delivers at most one error, when capture fails after Start.
	Errors() <-chan error

	Stop() error
}

// decodeF32 converts little-endian float32 PCM into dst, reusing its storage.
func decodeF32(dst []float32, pcm []byte) []float32 {
	n := len(pcm) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return dst
}

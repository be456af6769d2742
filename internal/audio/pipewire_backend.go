package audio

import (
	"github.com/audiolibrelab/platyrender/internal/config"
)

// PipeWireBackend implements the Backend interface for PipeWire
type PipeWireBackend struct {
	cfg config.AudioConfig
}

// NewCapture creates a pw-record based capture
func (p *PipeWireBackend) NewCapture(source string) Capture {
	return NewPipeWireCapture(source, p.cfg)
}

// ListSources returns the PipeWire nodes that can be recorded
func (p *PipeWireBackend) ListSources() ([]string, error) {
	return NewPipeWire().ListNodes()
}

// ValidateSource validates a PipeWire node name
func (p *PipeWireBackend) ValidateSource(source string) error {
	return NewPipeWire().ValidateNode(source)
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/platyrender/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeMalgo    BackendType = "malgo"
	BackendTypeAuto     BackendType = "auto"
)

// Backend creates captures for one audio system.
type Backend interface {
	// NewCapture prepares a capture from source. Nothing runs until Start.
	NewCapture(source string) Capture

	// ListSources returns the names NewCapture accepts.
	ListSources() ([]string, error)

	// ValidateSource reports whether source can be captured from.
	ValidateSource(source string) error

	GetType() BackendType
}

// NewBackend returns the backend selected by cfg.Backend.
func NewBackend(cfg config.AudioConfig) (Backend, error) {
	switch t := determineBackend(cfg); t {
	case BackendTypePipeWire:
		return &PipeWireBackend{cfg: cfg}, nil
	case BackendTypeMalgo:
		return &MalgoBackend{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", t)
	}
}

// determineBackend resolves "auto" to PipeWire when its tools are installed
// and to miniaudio otherwise.
func determineBackend(cfg config.AudioConfig) BackendType {
	switch strings.ToLower(cfg.Backend) {
	case "pipewire":
		return BackendTypePipeWire
	case "malgo":
		return BackendTypeMalgo
	case "", "auto":
		if pipeWireAvailable() {
			return BackendTypePipeWire
		}
		slog.Debug("pw-record not found, using miniaudio capture")
		return BackendTypeMalgo
	}
	return BackendType(cfg.Backend)
}

func pipeWireAvailable() bool {
	_, err := exec.LookPath(pwRecordBinary)
	return err == nil
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	backends := []BackendType{}
	if pipeWireAvailable() {
		backends = append(backends, BackendTypePipeWire)
	}
	return append(backends, BackendTypeMalgo)
}

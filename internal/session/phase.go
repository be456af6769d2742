// Package session tracks the two-phase initialization handshake that gates
// which commands a controller may issue.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/audiolibrelab/platyrender/internal/protocol"
)

// Phase is the coarse session state.
type Phase int

const (
	WaitingForConfig Phase = iota
	WaitingForInit
	Running
)

func (p Phase) String() string {
	switch p {
	case WaitingForConfig:
		return "WAITING_FOR_CONFIG"
	case WaitingForInit:
		return "WAITING_FOR_INIT"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNotAllowedBeforeInit = errors.New("command not allowed before INIT")
	ErrAudioSourceNotSet    = errors.New("audio source not set")
	ErrAudioSourceLocked    = errors.New("cannot change audio source after INIT")
	ErrAlreadyInitialized   = errors.New("already initialized")
	ErrEmptyAudioSource     = errors.New("audio source must not be empty")
)

// State is the process-wide session state. The phase only moves forward.
type State struct {
	mu          sync.RWMutex
	phase       Phase
	audioSource string
}

// NewState returns a state in WaitingForConfig.
func NewState() *State {
	return &State{phase: WaitingForConfig}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// AudioSource returns the recorded audio source, or "".
func (s *State) AudioSource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioSource
}

// Initialized reports whether INIT has succeeded.
func (s *State) Initialized() bool {
	return s.Phase() == Running
}

// Allow reports whether a command of type t may be executed in the current
// phase. A nil error means the command should be dispatched to the consumer.
func (s *State) Allow(t protocol.CommandType) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allow(s.phase, s.audioSource, t)
}

func allow(phase Phase, source string, t protocol.CommandType) error {
	switch phase {
	case WaitingForConfig, WaitingForInit:
		switch t {
		case protocol.CommandChangeAudioSource:
			return nil
		case protocol.CommandInit:
			if source == "" {
				return ErrAudioSourceNotSet
			}
			return nil
		default:
			return ErrNotAllowedBeforeInit
		}
	case Running:
		switch t {
		case protocol.CommandChangeAudioSource:
			return ErrAudioSourceLocked
		case protocol.CommandInit:
			return ErrAlreadyInitialized
		default:
			return nil
		}
	}
	return fmt.Errorf("unknown session phase %d", phase)
}

// SetAudioSource records source and moves WaitingForConfig to WaitingForInit.
func (s *State) SetAudioSource(source string) error {
	if source == "" {
		return ErrEmptyAudioSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Running {
		return ErrAudioSourceLocked
	}
	s.audioSource = source
	s.phase = WaitingForInit
	return nil
}

// Initialize moves WaitingForInit to Running.
func (s *State) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case Running:
		return ErrAlreadyInitialized
	case WaitingForConfig:
		return ErrAudioSourceNotSet
	}
	if s.audioSource == "" {
		return ErrAudioSourceNotSet
	}
	s.phase = Running
	return nil
}

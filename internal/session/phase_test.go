package session

import (
	"testing"

	"github.com/audiolibrelab/platyrender/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCommands = []protocol.CommandType{
	protocol.CommandChangeAudioSource,
	protocol.CommandInit,
	protocol.CommandLoadPreset,
	protocol.CommandShowWindow,
	protocol.CommandSetFullscreen,
	protocol.CommandQuit,
	protocol.CommandGetStatus,
}

func TestState_Initial(t *testing.T) {
	s := NewState()
	assert.Equal(t, WaitingForConfig, s.Phase())
	assert.Equal(t, "", s.AudioSource())
	assert.False(t, s.Initialized())
}

func TestState_AllowWaitingForConfig(t *testing.T) {
	s := NewState()

	for _, c := range allCommands {
		err := s.Allow(c)
		switch c {
		case protocol.CommandChangeAudioSource:
			assert.NoError(t, err, c)
		case protocol.CommandInit:
			assert.ErrorIs(t, err, ErrAudioSourceNotSet, c)
		default:
			assert.ErrorIs(t, err, ErrNotAllowedBeforeInit, c)
		}
	}
}

func TestState_AllowWaitingForInit(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetAudioSource("monitor"))
	assert.Equal(t, WaitingForInit, s.Phase())

	for _, c := range allCommands {
		err := s.Allow(c)
		switch c {
		case protocol.CommandChangeAudioSource, protocol.CommandInit:
			assert.NoError(t, err, c)
		default:
			assert.ErrorIs(t, err, ErrNotAllowedBeforeInit, c)
		}
	}
}

func TestState_AllowRunning(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetAudioSource("monitor"))
	require.NoError(t, s.Initialize())
	assert.True(t, s.Initialized())

	for _, c := range allCommands {
		err := s.Allow(c)
		switch c {
		case protocol.CommandChangeAudioSource:
			assert.ErrorIs(t, err, ErrAudioSourceLocked)
			assert.EqualError(t, err, "cannot change audio source after INIT")
		case protocol.CommandInit:
			assert.ErrorIs(t, err, ErrAlreadyInitialized)
		default:
			assert.NoError(t, err, c)
		}
	}
}

func TestState_ReRecordSourceBeforeInit(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetAudioSource("a"))
	require.NoError(t, s.SetAudioSource("b"))
	assert.Equal(t, "b", s.AudioSource())
	assert.Equal(t, WaitingForInit, s.Phase())
}

func TestState_NeverRegresses(t *testing.T) {
	s := NewState()
	assert.ErrorIs(t, s.Initialize(), ErrAudioSourceNotSet)
	assert.Equal(t, WaitingForConfig, s.Phase())

	assert.ErrorIs(t, s.SetAudioSource(""), ErrEmptyAudioSource)
	assert.Equal(t, WaitingForConfig, s.Phase())

	require.NoError(t, s.SetAudioSource("a"))
	require.NoError(t, s.Initialize())

	assert.ErrorIs(t, s.SetAudioSource("b"), ErrAudioSourceLocked)
	assert.ErrorIs(t, s.Initialize(), ErrAlreadyInitialized)
	assert.Equal(t, Running, s.Phase())
	assert.Equal(t, "a", s.AudioSource())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "WAITING_FOR_CONFIG", WaitingForConfig.String())
	assert.Equal(t, "WAITING_FOR_INIT", WaitingForInit.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "UNKNOWN", Phase(42).String())
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/platyrender/internal/audio"
	"github.com/audiolibrelab/platyrender/internal/events"
	"github.com/audiolibrelab/platyrender/internal/protocol"
	"github.com/audiolibrelab/platyrender/internal/render"
	"github.com/audiolibrelab/platyrender/internal/rendezvous"
	"github.com/audiolibrelab/platyrender/internal/session"
)

// Service represents the renderer side of the control protocol
type Service interface {
	// Handle executes one command and returns its response
	Handle(cmd protocol.Command) protocol.Response

	// Run drives the render loop until ctx ends or a quit is requested
	Run(ctx context.Context, cancel context.CancelFunc) error

	// Status reports the state GET STATUS returns
	Status() protocol.StatusData

	// GetLastError returns the last failure message, or ""
	GetLastError() string
}

// Options holds the render loop settings.
type Options struct {
	FrameInterval time.Duration
	// KeyRepeatInterval is the minimum gap between emitted auto-repeats of
	// one key.
	KeyRepeatInterval time.Duration
}

// DefaultOptions returns 60fps with a 100ms key repeat limit.
func DefaultOptions() Options {
	return Options{
		FrameInterval:     time.Second / 60,
		KeyRepeatInterval: 100 * time.Millisecond,
	}
}

// RenderService is the main service implementation
type RenderService struct {
	visualizer render.Visualizer
	window     render.Window
	backend    audio.Backend
	state      *session.State
	slot       *rendezvous.Slot
	events     *events.Emitter
	opts       Options

	mutex          sync.RWMutex
	capture        audio.Capture
	captureErrs    <-chan error
	audioConnected bool
	presetPath     string
	quitRequested  bool
	lastError      string

	keys *keyRateLimiter
}

var _ Service = (*RenderService)(nil)

// New creates a new render service. The visualizer doubles as the sample
// sink for audio capture.
func New(viz render.Visualizer, win render.Window, backend audio.Backend, state *session.State,
	slot *rendezvous.Slot, emitter *events.Emitter, opts Options) *RenderService {
	return &RenderService{
		visualizer: viz,
		window:     win,
		backend:    backend,
		state:      state,
		slot:       slot,
		events:     emitter,
		opts:       opts,
		keys:       newKeyRateLimiter(opts.KeyRepeatInterval),
	}
}

// Handle executes cmd. The session state is changed here and nowhere else.
func (s *RenderService) Handle(cmd protocol.Command) protocol.Response {
	slog.Debug("Service.Handle called", "command", cmd.Type)

	data, err := s.execute(cmd)
	if err != nil {
		slog.Debug("Command failed", "command", cmd.Type, "error", err)
		s.setLastError(err.Error())
		return protocol.NewFailure(cmd.ID, err.Error())
	}
	return protocol.NewSuccess(cmd.ID, data)
}

func (s *RenderService) execute(cmd protocol.Command) (any, error) {
	switch cmd.Type {
	case protocol.CommandChangeAudioSource:
		if err := s.state.SetAudioSource(cmd.AudioSource); err != nil {
			return nil, err
		}
		slog.Info("Audio source set", "source", cmd.AudioSource)
		return nil, nil

	case protocol.CommandInit:
		return nil, s.initialize()

	case protocol.CommandLoadPreset:
		return nil, s.loadPreset(cmd.PresetPath)

	case protocol.CommandShowWindow:
		s.window.Show()
		return nil, nil

	case protocol.CommandSetFullscreen:
		if !s.window.Visible() {
			return nil, fmt.Errorf("window not visible")
		}
		s.window.SetFullscreen(cmd.Fullscreen)
		return nil, nil

	case protocol.CommandQuit:
		s.mutex.Lock()
		s.quitRequested = true
		s.mutex.Unlock()
		return nil, nil

	case protocol.CommandGetStatus:
		return s.Status(), nil
	}
	return nil, fmt.Errorf("unknown command")
}

// initialize starts audio capture from the configured source and moves the
// session to running. A capture that cannot start leaves the phase alone.
func (s *RenderService) initialize() error {
	if s.state.Initialized() {
		return session.ErrAlreadyInitialized
	}
	source := s.state.AudioSource()
	if source == "" {
		return session.ErrAudioSourceNotSet
	}

	capture := s.backend.NewCapture(source)
	if err := capture.Start(s.visualizer); err != nil {
		return err
	}
	if err := s.state.Initialize(); err != nil {
		if stopErr := capture.Stop(); stopErr != nil {
			slog.Warn("Failed to stop audio capture", "error", stopErr)
		}
		return err
	}

	s.mutex.Lock()
	s.capture = capture
	s.captureErrs = capture.Errors()
	s.audioConnected = true
	s.mutex.Unlock()

	slog.Info("Renderer initialized", "source", source, "backend", s.backend.GetType())
	return nil
}

func (s *RenderService) loadPreset(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if path != protocol.IdlePreset && !filepath.IsAbs(path) {
		return fmt.Errorf("relative path not allowed: %s", path)
	}
	if err := s.visualizer.LoadPreset(path); err != nil {
		return err
	}

	s.mutex.Lock()
	s.presetPath = path
	s.mutex.Unlock()
	slog.Info("Preset loaded", "path", path)
	return nil
}

// Status returns the GET STATUS payload.
func (s *RenderService) Status() protocol.StatusData {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return protocol.StatusData{
		AudioSource:    s.state.AudioSource(),
		AudioConnected: s.audioConnected,
		PresetPath:     s.presetPath,
		Visible:        s.window.Visible(),
		Fullscreen:     s.window.Fullscreen(),
	}
}

// Run processes at most one command per frame, then window events, then
// renders. cancel is invoked after the response to a QUIT has been handed
// back, and when the window asks to close.
func (s *RenderService) Run(ctx context.Context, cancel context.CancelFunc) error {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()
	defer s.stopCapture()

	for {
		s.mutex.RLock()
		captureErrs := s.captureErrs
		s.mutex.RUnlock()

		select {
		case <-ctx.Done():
			return nil

		case <-s.slot.Pending():
			if s.processCommand() {
				cancel()
				return nil
			}

		case err := <-captureErrs:
			s.audioFailed(err)

		case <-ticker.C:
			if s.processCommand() {
				cancel()
				return nil
			}
			if s.processWindowEvents() {
				slog.Info("Window close requested")
				s.events.Quit("window closed")
				cancel()
				return nil
			}
			s.visualizer.RenderFrame()
			s.window.SwapBuffers()
		}
	}
}

// processCommand handles the pending command, if any, and reports whether
// it asked the renderer to quit.
func (s *RenderService) processCommand() bool {
	cmd, ok := s.slot.TryTake()
	if !ok {
		return false
	}
	resp := s.Handle(cmd)
	s.slot.Provide(resp)

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.quitRequested
}

// processWindowEvents drains window events and reports a close request.
func (s *RenderService) processWindowEvents() bool {
	closeRequested := false
	for _, ev := range s.window.PollEvents() {
		switch ev.Kind {
		case render.EventClose:
			closeRequested = true
		case render.EventResize:
			width, height := s.window.DrawableSize()
			s.visualizer.SetSize(width, height)
			slog.Debug("Window resized", "width", width, "height", height)
		case render.EventKey:
			if ev.Key != "" && s.keys.allow(ev.Key, ev.Repeat, time.Now()) {
				s.events.KeyPressed(ev.Key)
			}
		}
	}
	return closeRequested
}

func (s *RenderService) audioFailed(err error) {
	slog.Error("Audio capture failed", "error", err)
	s.mutex.Lock()
	s.audioConnected = false
	s.captureErrs = nil
	s.mutex.Unlock()
	s.setLastError(err.Error())
	s.events.AudioError(err.Error())
}

func (s *RenderService) stopCapture() {
	s.mutex.Lock()
	capture := s.capture
	s.capture = nil
	s.captureErrs = nil
	s.audioConnected = false
	s.mutex.Unlock()

	if capture == nil {
		return
	}
	if err := capture.Stop(); err != nil {
		slog.Warn("Failed to stop audio capture", "error", err)
	}
}

// GetLastError returns the last error message
func (s *RenderService) GetLastError() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastError
}

func (s *RenderService) setLastError(msg string) {
	s.mutex.Lock()
	s.lastError = msg
	s.mutex.Unlock()
}

package audio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/audiolibrelab/platyrender/internal/config"
	"github.com/gen2brain/malgo"
)

// MalgoBackend captures through miniaudio, for systems without PipeWire.
type MalgoBackend struct {
	cfg config.AudioConfig
}

func (m *MalgoBackend) NewCapture(source string) Capture {
	return &MalgoCapture{source: source, cfg: m.cfg, errs: make(chan error, 1)}
}

// ListSources returns the capture device names miniaudio reports.
func (m *MalgoBackend) ListSources() ([]string, error) {
	ctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}
	defer freeMalgoContext(ctx)

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	names := make([]string, 0, len(devices))
	for i := range devices {
		names = append(names, devices[i].Name())
	}
	return names, nil
}

func (m *MalgoBackend) ValidateSource(source string) error {
	if isDefaultSource(source) {
		return nil
	}
	names, err := m.ListSources()
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == source {
			return nil
		}
	}
	return fmt.Errorf("source not found: %s", source)
}

func (m *MalgoBackend) GetType() BackendType {
	return BackendTypeMalgo
}

func initMalgoContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return ctx, nil
}

func freeMalgoContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// MalgoCapture is a miniaudio capture device delivering float32 frames.
type MalgoCapture struct {
	source string
	cfg    config.AudioConfig
	errs   chan error

	mutex  sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	// stopping suppresses the stop callback for a requested Stop.
	stopping bool
}

// Start opens the device named by source; default sources use the system
// default capture device.
func (c *MalgoCapture) Start(sink SampleSink) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.device != nil {
		return fmt.Errorf("capture already started")
	}

	ctx, err := initMalgoContext()
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.cfg.Channels)
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.cfg.FragmentFrames)

	if !isDefaultSource(c.source) {
		devices, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeMalgoContext(ctx)
			return fmt.Errorf("failed to enumerate capture devices: %w", err)
		}
		found := false
		for i := range devices {
			if devices[i].Name() == c.source {
				deviceConfig.Capture.DeviceID = devices[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeMalgoContext(ctx)
			return fmt.Errorf("audio source %q could not be opened: no such capture device", c.source)
		}
	}

	var samples []float32
	onData := func(_, pcm []byte, _ uint32) {
		samples = decodeF32(samples, pcm)
		sink.AddSamples(samples)
	}
	onStop := func() {
		c.mutex.Lock()
		stopping := c.stopping
		c.mutex.Unlock()
		if stopping {
			return
		}
		select {
		case c.errs <- fmt.Errorf("audio capture read failed: device stopped"):
		default:
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
		Stop: onStop,
	})
	if err != nil {
		freeMalgoContext(ctx)
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeMalgoContext(ctx)
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	c.ctx = ctx
	c.device = device
	slog.Info("Audio capture started", "backend", BackendTypeMalgo, "source", c.source,
		"sample_rate", c.cfg.SampleRate, "channels", c.cfg.Channels)
	return nil
}

func (c *MalgoCapture) Errors() <-chan error {
	return c.errs
}

func (c *MalgoCapture) Stop() error {
	c.mutex.Lock()
	if c.device == nil {
		c.mutex.Unlock()
		return ErrNotStarted
	}
	c.stopping = true
	device, ctx := c.device, c.ctx
	c.device, c.ctx = nil, nil
	c.mutex.Unlock()

	// The stop callback takes the mutex, so the device is stopped unlocked.
	err := device.Stop()
	device.Uninit()
	freeMalgoContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop audio device: %w", err)
	}
	return nil
}

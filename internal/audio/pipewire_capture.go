package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/platyrender/internal/config"
)

const (
	pwRecordBinary = "pw-record"

	// startupGrace is how long pw-record must survive for Start to succeed.
	startupGrace = 200 * time.Millisecond
	stopTimeout  = 5 * time.Second
)

// PipeWireCapture streams raw float32 PCM from a pw-record child process.
type PipeWireCapture struct {
	source string
	cfg    config.AudioConfig
	newCmd func() *exec.Cmd

	mutex    sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	exitErr  error
	stopping atomic.Bool
	errs     chan error

	stderrMu  sync.Mutex
	stderrBuf strings.Builder
}

// NewPipeWireCapture creates a capture of source using cfg's format.
func NewPipeWireCapture(source string, cfg config.AudioConfig) *PipeWireCapture {
	c := &PipeWireCapture{
		source: source,
		cfg:    cfg,
		errs:   make(chan error, 1),
	}
	c.newCmd = func() *exec.Cmd {
		return exec.Command(pwRecordBinary, recordArgs(source, cfg.SampleRate, cfg.Channels)...)
	}
	return c
}

// Start launches pw-record and feeds sink until Stop or failure.
func (c *PipeWireCapture) Start(sink SampleSink) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("capture already started")
	}

	cmd := c.newCmd()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Debug("Starting pw-record", "command", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pw-record: %w", err)
	}

	done := make(chan struct{})
	c.cmd = cmd
	c.done = done

	go c.readOutput(stderr)
	readDone := make(chan error, 1)
	go func() {
		readDone <- c.readLoop(stdout, sink)
	}()
	go c.wait(cmd, readDone, done)

	select {
	case <-done:
		c.cmd = nil
		select {
		case <-c.errs:
		default:
		}
		return fmt.Errorf("audio source %q could not be opened: %v (output: %s)",
			c.source, c.exitErr, strings.TrimSpace(c.stderr()))
	case <-time.After(startupGrace):
	}

	slog.Info("Audio capture started", "backend", BackendTypePipeWire, "source", c.source,
		"sample_rate", c.cfg.SampleRate, "channels", c.cfg.Channels)
	return nil
}

func (c *PipeWireCapture) readLoop(stdout io.Reader, sink SampleSink) error {
	frameBytes := c.cfg.Channels * 4
	fragment := c.cfg.FragmentFrames * frameBytes
	if fragment <= 0 {
		fragment = 4096
	}
	buf := make([]byte, fragment)

	var samples []float32
	for {
		n, err := io.ReadFull(stdout, buf)
		if whole := n - n%4; whole > 0 {
			samples = decodeF32(samples, buf[:whole])
			sink.AddSamples(samples)
		}
		if err != nil {
			return err
		}
	}
}

// wait reaps the process once its output is drained.
func (c *PipeWireCapture) wait(cmd *exec.Cmd, readDone <-chan error, done chan struct{}) {
	readErr := <-readDone
	waitErr := cmd.Wait()

	err := waitErr
	if err == nil && readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		err = readErr
	}
	if err == nil {
		err = errors.New("stream ended")
	}
	c.exitErr = err

	if !c.stopping.Load() {
		slog.Debug("pw-record exited", "error", err, "stderr", c.stderr())
		c.errs <- fmt.Errorf("audio capture read failed: %w", err)
	}
	close(done)
}

// readOutput reads from a pipe and buffers output
func (c *PipeWireCapture) readOutput(pipe io.ReadCloser) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		c.stderrMu.Lock()
		c.stderrBuf.WriteString(line + "\n")
		c.stderrMu.Unlock()
		slog.Debug("pw-record output", "line", line)
	}
	pipe.Close()
}

func (c *PipeWireCapture) stderr() string {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	return c.stderrBuf.String()
}

// Errors delivers the failure of a running capture.
func (c *PipeWireCapture) Errors() <-chan error {
	return c.errs
}

// Stop interrupts pw-record and waits for it to exit
func (c *PipeWireCapture) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd == nil {
		return ErrNotStarted
	}
	c.stopping.Store(true)

	if c.cmd.Process != nil {
		slog.Debug("Sending SIGINT to pw-record")
		if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt pw-record, killing", "error", err)
			c.cmd.Process.Kill()
		}
	}

	select {
	case <-c.done:
	case <-time.After(stopTimeout):
		slog.Warn("pw-record did not exit within timeout, force killing")
		c.cmd.Process.Kill()
		<-c.done
	}
	c.cmd = nil
	slog.Debug("Audio capture stopped", "source", c.source)
	return nil
}

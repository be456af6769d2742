package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/audiolibrelab/platyrender/internal/audio"
	"github.com/audiolibrelab/platyrender/internal/events"
	"github.com/audiolibrelab/platyrender/internal/ipc"
	"github.com/audiolibrelab/platyrender/internal/render"
	"github.com/audiolibrelab/platyrender/internal/rendezvous"
	"github.com/audiolibrelab/platyrender/internal/server"
	"github.com/audiolibrelab/platyrender/internal/service"
	"github.com/audiolibrelab/platyrender/internal/session"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the renderer and wait for a controller",
	Long: `Bind the control socket and run the render loop. A single controller
may connect; it must send CHANGE AUDIO SOURCE and INIT before anything else.

The renderer exits on QUIT, on SIGINT/SIGTERM, and, unless
renderer.exit_on_disconnect is false, when the controller of an initialized
session disconnects.

"SOCKET READY" is printed on stdout once the socket accepts connections.
Stderr carries only netstring-framed JSON events. Log lines go to log.file,
or to stderr when -v is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logOut, closeLog, err := serveLogOutput(cfg.Log.File, verboseLevel, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()
		setupLogging(logOut, verboseLevel, cfg.Log.Level)

		socketFlag, _ := cmd.Flags().GetString("socket")
		socketPath, err := resolveSocketPath(socketFlag)
		if err != nil {
			return err
		}

		backend, err := audio.NewBackend(cfg.Audio)
		if err != nil {
			return fmt.Errorf("failed to create audio backend: %w", err)
		}

		ln, err := ipc.Listen(socketPath)
		if err != nil {
			return fmt.Errorf("failed to create socket: %w", err)
		}
		defer ln.Close()

		return serve(cmd.Context(), ln, backend, os.Stdout, os.Stderr)
	},
}

// serveLogOutput picks where serve's log lines go. stderr is the event
// stream and only gets log lines when verbose output was asked for.
func serveLogOutput(file string, verbose int, stderr io.Writer) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch {
	case file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, f.Close, nil
	case verbose > 0:
		return stderr, nop, nil
	default:
		return io.Discard, nop, nil
	}
}

// serve wires the controller loop and the render loop together and runs
// them until either one ends the process. Events are written to stderr and
// the readiness line to stdout.
func serve(parent context.Context, ln *ipc.Listener, backend audio.Backend, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	state := session.NewState()
	slot := rendezvous.New()
	emitter := events.NewEmitter(stderr)
	viz := render.NewHeadlessVisualizer(cfg.Renderer.Width, cfg.Renderer.Height)
	win := render.NewHeadlessWindow(cfg.Renderer.Width, cfg.Renderer.Height)

	// A termination signal reaches the render loop as a window close request
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			slog.Info("Received signal, shutting down", "signal", sig)
			win.Inject(render.Event{Kind: render.EventClose})
		case <-ctx.Done():
		}
	}()

	srv := server.New(ln, slot, state, emitter, server.Options{
		PollInterval:     cfg.Socket.PollInterval,
		ResponseTimeout:  cfg.Socket.ResponseTimeout,
		ExitOnDisconnect: cfg.Renderer.ExitOnDisconnect,
	})
	svc := service.New(viz, win, backend, state, slot, emitter, service.Options{
		FrameInterval:     cfg.FrameInterval(),
		KeyRepeatInterval: service.DefaultOptions().KeyRepeatInterval,
	})

	slog.Info("Platyrender starting", "socket", ln.Path(), "backend", backend.GetType(),
		"frame_rate", cfg.Renderer.FrameRate)

	// Nothing has been accepted yet
	if _, err := fmt.Fprintln(stdout, "SOCKET READY"); err != nil {
		return fmt.Errorf("failed to signal readiness: %w", err)
	}

	var (
		wg        sync.WaitGroup
		serveErr  error
		renderErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		serveErr = srv.Serve(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		renderErr = svc.Run(ctx, cancel)
	}()
	wg.Wait()

	if errors.Is(serveErr, server.ErrSessionEnded) {
		slog.Info("Controller left an initialized session, exiting")
		serveErr = nil
	}
	if err := errors.Join(serveErr, renderErr); err != nil {
		return err
	}
	slog.Info("Platyrender stopped")
	return nil
}

func init() {
	serveCmd.Flags().String("socket", "", "socket path (overrides socket.path)")
}

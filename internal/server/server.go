package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/platyrender/internal/events"
	"github.com/audiolibrelab/platyrender/internal/ipc"
	"github.com/audiolibrelab/platyrender/internal/protocol"
	"github.com/audiolibrelab/platyrender/internal/rendezvous"
	"github.com/audiolibrelab/platyrender/internal/session"
	"github.com/google/uuid"
)

// ErrSessionEnded is returned by Serve when the client of an initialized
// session goes away and Options.ExitOnDisconnect is set.
var ErrSessionEnded = errors.New("client disconnected after INIT")

// Options tunes the controller loop.
type Options struct {
	// PollInterval bounds every readiness wait, and therefore how long a
	// cancelled context can go unnoticed.
	PollInterval time.Duration
	// ResponseTimeout is how long a command may sit with the render loop
	// before the client is treated as served by a stalled consumer.
	ResponseTimeout time.Duration
	// ExitOnDisconnect ends Serve once an initialized session loses its client.
	ExitOnDisconnect bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		PollInterval:     100 * time.Millisecond,
		ResponseTimeout:  2 * time.Second,
		ExitOnDisconnect: true,
	}
}

// Server accepts one controller at a time on the socket and feeds its
// commands to the render loop through the rendezvous slot.
type Server struct {
	ln     *ipc.Listener
	slot   *rendezvous.Slot
	state  *session.State
	events *events.Emitter
	opts   Options
}

// New builds a controller over an already bound listener.
func New(ln *ipc.Listener, slot *rendezvous.Slot, state *session.State, emitter *events.Emitter, opts Options) *Server {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = def.ResponseTimeout
	}
	return &Server{
		ln:     ln,
		slot:   slot,
		state:  state,
		events: emitter,
		opts:   opts,
	}
}

// Serve runs the accept loop until ctx is cancelled, which returns nil. It
// returns an error only when the listener itself becomes unusable, or
// ErrSessionEnded per Options.ExitOnDisconnect.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("Waiting for controller", "socket", s.ln.Path())

	for {
		ready, err := ipc.Wait(ctx, s.opts.PollInterval, s.ln.Fd())
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listener wait failed: %w", err)
		}
		if !ready[0].Readable {
			continue
		}

		uc, err := s.ln.Accept(s.opts.PollInterval)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			slog.Warn("Accept failed", "error", err)
			continue
		}

		conn, err := ipc.NewConn(uc, s.opts.PollInterval)
		if err != nil {
			uc.Close()
			slog.Warn("Failed to set up client", "error", err)
			continue
		}

		disconnected := s.handleClient(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if disconnected && s.opts.ExitOnDisconnect && s.state.Initialized() {
			return ErrSessionEnded
		}
	}
}

// handleClient serves conn until it goes away or ctx is cancelled. It
// reports whether the client disconnected, as opposed to shutdown.
func (s *Server) handleClient(ctx context.Context, conn *ipc.Conn) bool {
	log := slog.With("conn_id", uuid.NewString())
	log.Info("Controller connected")
	defer conn.Close()

	reason, disconnected := s.clientLoop(ctx, conn, log)
	if !disconnected {
		log.Info("Closing controller connection for shutdown")
		return false
	}

	log.Info("Controller disconnected", "reason", reason)
	s.events.Disconnect(reason)
	return true
}

func (s *Server) clientLoop(ctx context.Context, conn *ipc.Conn, log *slog.Logger) (string, bool) {
	for {
		ready, err := ipc.Wait(ctx, s.opts.PollInterval, s.ln.Fd(), conn.Fd())
		if ctx.Err() != nil {
			return "", false
		}
		if err != nil {
			log.Error("Client wait failed", "error", err)
			return "poll failed", true
		}

		if ready[0].Readable {
			s.rejectSecondClient(log)
		}
		if ready[1].Hangup {
			reason := s.drain(ctx, conn, log)
			return reason, ctx.Err() == nil
		}
		if ready[1].Readable {
			if reason, closed := s.processReadable(ctx, conn, log); closed {
				return reason, ctx.Err() == nil
			}
		}
	}
}

func (s *Server) rejectSecondClient(log *slog.Logger) {
	second, err := s.ln.Accept(s.opts.PollInterval)
	if err != nil {
		return
	}
	second.Close()
	log.Info("Rejected second controller")
}

func (s *Server) disconnectReason() string {
	if s.state.Initialized() {
		return "client disconnected"
	}
	return "client disconnected before INIT"
}

// processReadable handles every complete frame the read made available.
func (s *Server) processReadable(ctx context.Context, conn *ipc.Conn, log *slog.Logger) (string, bool) {
	payload, ok, err := conn.Receive()
	for {
		if err != nil {
			return s.receiveFailed(conn, err, log), true
		}
		if !ok {
			return "", false
		}
		if reason, closed := s.dispatch(ctx, conn, payload, log); closed {
			return reason, true
		}
		if ctx.Err() != nil {
			return "", true
		}
		payload, ok, err = conn.Next()
	}
}

// drain answers everything a peer wrote before hanging up, however many
// reads that takes, then reports why the connection ended.
func (s *Server) drain(ctx context.Context, conn *ipc.Conn, log *slog.Logger) string {
	for {
		if reason, closed := s.processReadable(ctx, conn, log); closed {
			return reason
		}
		// Only a partial frame is buffered
		n, err := conn.Fill()
		if err != nil {
			return s.receiveFailed(conn, err, log)
		}
		if n == 0 {
			return s.disconnectReason()
		}
	}
}

func (s *Server) receiveFailed(conn *ipc.Conn, err error, log *slog.Logger) string {
	var fe *ipc.FramingError
	switch {
	case errors.As(err, &fe):
		log.Warn("Framing error, closing connection", "reason", fe.Reason)
		s.send(conn, protocol.NewFailure(nil, fe.Error()), log)
		return fe.Reason
	case errors.Is(err, io.EOF):
		return s.disconnectReason()
	default:
		log.Warn("Read failed", "error", err)
		return "read failed"
	}
}

// dispatch answers one payload. It reports whether the connection must close.
func (s *Server) dispatch(ctx context.Context, conn *ipc.Conn, payload []byte, log *slog.Logger) (string, bool) {
	resp, ok := s.respond(ctx, payload, log)
	if !ok {
		if ctx.Err() != nil {
			return "", true
		}
		return "response timeout", true
	}
	if !s.send(conn, resp, log) {
		return "write failed", true
	}
	return "", false
}

func (s *Server) respond(ctx context.Context, payload []byte, log *slog.Logger) (protocol.Response, bool) {
	cmd, err := protocol.ParseCommand(payload)
	if err != nil {
		log.Debug("Rejected malformed command", "error", err)
		return protocol.NewFailure(cmd.ID, err.Error()), true
	}

	if err := s.state.Allow(cmd.Type); err != nil {
		log.Debug("Rejected command for phase", "command", cmd.Type, "phase", s.state.Phase(), "error", err)
		return protocol.NewFailure(cmd.ID, err.Error()), true
	}

	log.Debug("Dispatching command", "command", cmd.Type, "id", *cmd.ID)
	resp, err := s.slot.PutAndAwait(ctx, cmd, s.opts.ResponseTimeout)
	if err != nil {
		if errors.Is(err, rendezvous.ErrTimeout) {
			log.Warn("Render loop did not answer in time", "command", cmd.Type, "timeout", s.opts.ResponseTimeout)
		}
		return protocol.Response{}, false
	}
	return resp, true
}

func (s *Server) send(conn *ipc.Conn, resp protocol.Response, log *slog.Logger) bool {
	data, err := protocol.SerializeResponse(resp)
	if err != nil {
		log.Error("Failed to encode response", "error", err)
		return false
	}
	if err := conn.Send(data); err != nil {
		log.Warn("Failed to send response", "error", err)
		return false
	}
	return true
}

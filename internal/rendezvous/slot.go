// Package rendezvous hands one command at a time from the connection loop
// to the render loop and carries the matching response back.
package rendezvous

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/audiolibrelab/platyrender/internal/protocol"
)

// ErrTimeout is returned by PutAndAwait when no response arrives in time.
var ErrTimeout = errors.New("rendezvous: timed out waiting for response")

// Slot holds at most one pending command. Every deposit gets its own reply
// mailbox, so a response can only reach the call that deposited the command
// it answers.
type Slot struct {
	mu sync.Mutex

	pending   *protocol.Command
	pendingCh chan protocol.Response

	// inflight is the mailbox of the command the consumer has taken but not
	// yet answered.
	inflight chan protocol.Response

	notify chan struct{}
}

// New returns an empty slot.
func New() *Slot {
	return &Slot{notify: make(chan struct{}, 1)}
}

// Pending is signalled whenever a command is deposited. Consumers that would
// rather block than poll can select on it and then call TryTake.
func (s *Slot) Pending() <-chan struct{} {
	return s.notify
}

// PutAndAwait deposits cmd, replacing anything still pending, and waits up to
// timeout for the response. If the wait ends without a response and the
// consumer never took the command, the command is withdrawn. ctx cancellation
// ends the wait early with ctx.Err().
func (s *Slot) PutAndAwait(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Response, error) {
	reply := make(chan protocol.Response, 1)

	s.mu.Lock()
	c := cmd
	s.pending = &c
	s.pendingCh = reply
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case resp := <-reply:
		return resp, nil
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.withdraw(reply)

	// A response may have landed between the wake-up and the withdrawal.
	select {
	case resp := <-reply:
		return resp, nil
	default:
	}
	return protocol.Response{}, err
}

func (s *Slot) withdraw(reply chan protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCh == reply {
		s.pending = nil
		s.pendingCh = nil
	}
	if s.inflight == reply {
		s.inflight = nil
	}
}

// TryTake removes and returns the pending command without blocking.
func (s *Slot) TryTake() (protocol.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return protocol.Command{}, false
	}
	cmd := *s.pending
	s.inflight = s.pendingCh
	s.pending = nil
	s.pendingCh = nil
	return cmd, true
}

// Provide delivers the response for the most recently taken command. With
// no command in flight it has no effect.
func (s *Slot) Provide(resp protocol.Response) {
	s.mu.Lock()
	reply := s.inflight
	s.inflight = nil
	s.mu.Unlock()

	if reply == nil {
		return
	}
	select {
	case reply <- resp:
	default:
	}
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Readiness is what Wait observed on one descriptor.
type Readiness struct {
	Readable bool
	// Hangup covers POLLHUP, POLLERR and POLLNVAL, and on Linux a peer that
	// shut down its write side (POLLRDHUP).
	Hangup bool
}

// Wait blocks until one of fds is readable or hung up, or timeout elapses.
// The returned slice is parallel to fds. An interrupted wait returns no
// readiness and no error, so callers just go round again. A cancelled ctx
// is reported before waiting; cancellation during the wait is noticed on
// the next call.
func Wait(ctx context.Context, timeout time.Duration, fds ...int) ([]Readiness, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | pollRDHUP}
	}

	out := make([]Readiness, len(fds))
	n, err := unix.Poll(pfds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return out, nil
		}
		return nil, fmt.Errorf("poll failed: %w", err)
	}
	if n == 0 {
		return out, nil
	}

	for i, p := range pfds {
		out[i] = Readiness{
			Readable: p.Revents&unix.POLLIN != 0,
			Hangup:   p.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL|pollRDHUP) != 0,
		}
	}
	return out, nil
}

package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/audiolibrelab/platyrender/internal/netstring"
)

const (
	readChunk    = 4096
	writeTimeout = time.Second
)

// FramingError poisons a connection. It is returned by every Receive after
// the first invalid frame.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "framing error: " + e.Reason
}

// ErrPoisoned matches any *FramingError via errors.Is.
var ErrPoisoned = errors.New("connection poisoned by framing error")

func (e *FramingError) Is(target error) bool {
	return target == ErrPoisoned
}

// Conn is one accepted client with its accumulation buffer.
type Conn struct {
	c           *net.UnixConn
	fd          int
	readTimeout time.Duration

	buf   []byte
	chunk [readChunk]byte

	framingErr *FramingError
}

// NewConn wraps c. readTimeout bounds a read that finds no data.
func NewConn(c *net.UnixConn, readTimeout time.Duration) (*Conn, error) {
	fd, err := rawFd(c)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c, fd: fd, readTimeout: readTimeout}, nil
}

// Fd returns the descriptor to pass to Wait.
func (c *Conn) Fd() int {
	return c.fd
}

// Send frames payload and writes it in full.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > netstring.MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds maximum %d", len(payload), netstring.MaxPayload)
	}
	if err := c.c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.c.Write(netstring.Encode(payload)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Receive returns the next payload. It first decodes from the buffer and
// only reads from the socket when the buffer holds no complete frame.
//
// ok is false with a nil error when more bytes are needed. A read of zero
// bytes yields io.EOF. Once a frame is invalid every call returns the same
// *FramingError without touching the socket.
func (c *Conn) Receive() (payload []byte, ok bool, err error) {
	payload, ok, err = c.Next()
	if ok || err != nil {
		return payload, ok, err
	}
	if _, err := c.Fill(); err != nil {
		return nil, false, err
	}
	return c.Next()
}

// Next decodes one frame from already buffered bytes.
func (c *Conn) Next() ([]byte, bool, error) {
	if c.framingErr != nil {
		return nil, false, c.framingErr
	}

	res := netstring.Decode(c.buf)
	switch res.Status {
	case netstring.Complete:
		payload := append([]byte(nil), res.Payload...)
		c.buf = append(c.buf[:0], c.buf[res.Consumed:]...)
		return payload, true, nil
	case netstring.Invalid:
		c.framingErr = &FramingError{Reason: res.Reason}
		return nil, false, c.framingErr
	default:
		return nil, false, nil
	}
}

// Fill performs one read into the buffer and returns the number of bytes
// added. A read that times out is not an error; the caller simply has
// nothing new to decode.
func (c *Conn) Fill() (int, error) {
	if c.framingErr != nil {
		return 0, c.framingErr
	}
	if err := c.c.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, err
	}
	n, err := c.c.Read(c.chunk[:])
	if n > 0 {
		c.buf = append(c.buf, c.chunk[:n]...)
	}
	switch {
	case err == nil && n == 0:
		return 0, io.EOF
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	case n > 0 && errors.Is(err, io.EOF):
		return n, nil
	default:
		return n, err
	}
}

// FramingError reports the reason the connection was poisoned, if it was.
func (c *Conn) FramingError() (string, bool) {
	if c.framingErr == nil {
		return "", false
	}
	return c.framingErr.Reason, true
}

// Buffered returns the number of undecoded bytes held.
func (c *Conn) Buffered() int {
	return len(c.buf)
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.c.Close()
}

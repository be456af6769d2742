package ipc

import (
	"fmt"
	"net"
	"time"

	"github.com/audiolibrelab/platyrender/internal/netstring"
)

// Client is the controller end of the socket. It is used by the send
// command and by tests.
type Client struct {
	conn    net.Conn
	r       *netstring.Reader
	w       *netstring.Writer
	timeout time.Duration
}

// Dial connects to the renderer at path. timeout bounds the dial and every
// later request.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return &Client{
		conn:    conn,
		r:       netstring.NewReader(conn),
		w:       netstring.NewWriter(conn),
		timeout: timeout,
	}, nil
}

// Request sends one payload and waits for the next response payload.
func (c *Client) Request(payload []byte) ([]byte, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := c.w.WriteFrame(payload); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}
	resp, err := c.r.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("no response: %w", err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

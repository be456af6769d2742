// Package netstring implements the length-prefixed framing used on the
// control socket and on the stderr event channel: "<len>:<payload>,".
package netstring

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	// MaxLengthDigits is the longest length prefix accepted.
	MaxLengthDigits = 5
	// MaxPayload is the largest payload accepted, in bytes.
	MaxPayload = 65536
)

// Status classifies the outcome of Decode.
type Status int

const (
	// Incomplete means the buffer holds a valid prefix of a frame; wait for more bytes.
	Incomplete Status = iota
	// Complete means a whole frame was found at the start of the buffer.
	Complete
	// Invalid means the buffer can never become a valid frame.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Result is returned by Decode. Payload aliases the input buffer.
type Result struct {
	Status   Status
	Payload  []byte
	Consumed int
	Reason   string
}

// Encode frames payload.
func Encode(payload []byte) []byte {
	prefix := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(prefix)+len(payload)+2)
	out = append(out, prefix...)
	out = append(out, ':')
	out = append(out, payload...)
	return append(out, ',')
}

// Decode looks for one frame at the start of buf.
func Decode(buf []byte) Result {
	digits := 0
	for digits < len(buf) && isDigit(buf[digits]) {
		digits++
	}

	if digits == len(buf) {
		if digits > MaxLengthDigits {
			return invalid("length prefix too long")
		}
		return Result{Status: Incomplete}
	}
	if digits == 0 {
		return invalid("length prefix missing")
	}
	if digits > MaxLengthDigits {
		return invalid("length prefix too long")
	}
	if buf[digits] != ':' {
		return invalid("expected colon")
	}
	if digits > 1 && buf[0] == '0' {
		return invalid("leading zeros not allowed")
	}

	length := 0
	for _, c := range buf[:digits] {
		length = length*10 + int(c-'0')
	}
	if length > MaxPayload {
		return invalid("payload exceeds maximum")
	}

	start := digits + 1
	end := start + length
	if len(buf) < end+1 {
		return Result{Status: Incomplete}
	}
	if buf[end] != ',' {
		return invalid("missing trailing comma")
	}

	return Result{
		Status:   Complete,
		Payload:  buf[start:end],
		Consumed: end + 1,
	}
}

func invalid(reason string) Result {
	return Result{Status: Invalid, Reason: reason}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Error reports an invalid frame on a stream.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid netstring: " + e.Reason
}

// ErrTruncated is returned by Reader when the stream ends inside a frame.
var ErrTruncated = errors.New("netstring: stream ended mid-frame")

// Reader pulls frames off a byte stream. It is the blocking counterpart of
// Decode, for clients that own their connection.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame returns the next payload. It returns io.EOF only at a frame boundary.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		res := Decode(r.buf)
		switch res.Status {
		case Complete:
			payload := append([]byte(nil), res.Payload...)
			r.buf = append(r.buf[:0], r.buf[res.Consumed:]...)
			return payload, nil
		case Invalid:
			return nil, &Error{Reason: res.Reason}
		}

		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(r.buf) > 0 {
				return nil, ErrTruncated
			}
			return nil, err
		}
		r.buf = append(r.buf, b)
	}
}

// Writer frames each Write call.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes payload as one frame.
func (w *Writer) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("netstring: payload of %d bytes exceeds maximum %d", len(payload), MaxPayload)
	}
	_, err := w.w.Write(Encode(payload))
	return err
}

package netstring

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "0:,", string(Encode(nil)))
	assert.Equal(t, "3:abc,", string(Encode([]byte("abc"))))
	assert.Equal(t, "12:hello world!,", string(Encode([]byte("hello world!"))))
}

func TestDecode_RoundTrip(t *testing.T) {
	for n := 0; n <= 300; n++ {
		payload := bytes.Repeat([]byte{'x'}, n)
		frame := Encode(payload)

		res := Decode(frame)
		require.Equal(t, Complete, res.Status, "length %d", n)
		assert.Equal(t, payload, res.Payload)
		assert.Equal(t, len(frame), res.Consumed)
	}
}

func TestDecode_MaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, MaxPayload)
	res := Decode(Encode(payload))
	require.Equal(t, Complete, res.Status)
	assert.Len(t, res.Payload, MaxPayload)

	res = Decode([]byte("65537:"))
	assert.Equal(t, Invalid, res.Status)
	assert.Equal(t, "payload exceeds maximum", res.Reason)
}

func TestDecode_Cases(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		status   Status
		payload  string
		consumed int
		reason   string
	}{
		{name: "complete", input: "3:abc,", status: Complete, payload: "abc", consumed: 6},
		{name: "complete with trailing bytes", input: "3:abc,2:de,", status: Complete, payload: "abc", consumed: 6},
		{name: "empty payload", input: "0:,", status: Complete, payload: "", consumed: 3},
		{name: "empty buffer", input: "", status: Incomplete},
		{name: "digits only", input: "12", status: Incomplete},
		{name: "short payload", input: "5:abc,", status: Incomplete},
		{name: "missing comma byte", input: "3:abc", status: Incomplete},
		{name: "leading zero", input: "01:x,", status: Invalid, reason: "leading zeros not allowed"},
		{name: "no digits", input: ":abc,", status: Invalid, reason: "length prefix missing"},
		{name: "letter first", input: "abc", status: Invalid, reason: "length prefix missing"},
		{name: "prefix too long", input: "123456:", status: Invalid, reason: "length prefix too long"},
		{name: "prefix too long unterminated", input: "123456", status: Invalid, reason: "length prefix too long"},
		{name: "bad separator", input: "3;abc,", status: Invalid, reason: "expected colon"},
		{name: "bad terminator", input: "3:abcd", status: Invalid, reason: "missing trailing comma"},
		{name: "oversized", input: "99999:", status: Invalid, reason: "payload exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode([]byte(tt.input))
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.status == Complete {
				assert.Equal(t, tt.payload, string(res.Payload))
				assert.Equal(t, tt.consumed, res.Consumed)
			}
		})
	}
}

func TestDecode_StreamingReassembly(t *testing.T) {
	frame := Encode([]byte(`{"command":"GET STATUS","id":7}`))

	for split := 1; split < len(frame); split++ {
		var buf []byte
		completions := 0

		buf = append(buf, frame[:split]...)
		if Decode(buf).Status == Complete {
			completions++
		}
		require.Equal(t, 0, completions, "split at %d completed early", split)
		require.Equal(t, Incomplete, Decode(buf).Status)

		buf = append(buf, frame[split:]...)
		res := Decode(buf)
		require.Equal(t, Complete, res.Status, "split at %d", split)
		assert.Equal(t, len(frame), res.Consumed)
	}
}

func TestReader_ReadFrame(t *testing.T) {
	stream := string(Encode([]byte("one"))) + string(Encode([]byte("two")))
	r := NewReader(strings.NewReader(stream))

	p, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "one", string(p))

	p, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "two", string(p))

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Truncated(t *testing.T) {
	r := NewReader(strings.NewReader("5:ab"))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReader_Invalid(t *testing.T) {
	r := NewReader(strings.NewReader("01:x,"))
	_, err := r.ReadFrame()

	var nerr *Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "leading zeros not allowed", nerr.Reason)
}

func TestWriter_WriteFrame(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	require.NoError(t, w.WriteFrame([]byte("hi")))
	assert.Equal(t, "2:hi,", out.String())

	err := w.WriteFrame(make([]byte, MaxPayload+1))
	assert.Error(t, err)
}

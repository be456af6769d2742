package ipc

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketDir keeps paths well under the sun_path limit.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pr")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func listen(t *testing.T) *Listener {
	t.Helper()
	l, err := Listen(filepath.Join(socketDir(t), "r.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// pair returns a server-side Conn and the raw client end.
func pair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	l := listen(t)

	client, err := net.Dial("unix", l.Path())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	uc, err := l.Accept(time.Second)
	require.NoError(t, err)
	conn, err := NewConn(uc, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, client
}

func TestListen_PermissionsAndCleanup(t *testing.T) {
	path := filepath.Join(socketDir(t), "r.sock")
	l, err := Listen(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.NotEqual(t, 0, info.Mode()&os.ModeSocket)

	require.NoError(t, l.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, l.Close())
}

func TestListen_AlreadyRunning(t *testing.T) {
	l := listen(t)
	_, err := Listen(l.Path())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	path := filepath.Join(socketDir(t), "r.sock")

	old, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	old.SetUnlinkOnClose(false)
	require.NoError(t, old.Close())
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file should remain")

	l, err := Listen(path)
	require.NoError(t, err)
	defer l.Close()
}

func TestListen_RefusesRegularFile(t *testing.T) {
	path := filepath.Join(socketDir(t), "r.sock")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := Listen(path)
	assert.ErrorContains(t, err, "not a socket")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestConn_ReceiveCompleteFrames(t *testing.T) {
	conn, client := pair(t)

	_, err := client.Write([]byte("5:hello,3:abc,"))
	require.NoError(t, err)

	payload, ok, err := conn.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(payload))

	payload, ok, err = conn.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(payload))

	_, ok, err = conn.Next()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, conn.Buffered())
}

func TestConn_ReceiveAcrossReads(t *testing.T) {
	conn, client := pair(t)

	_, err := client.Write([]byte("5:he"))
	require.NoError(t, err)
	_, ok, err := conn.Receive()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, conn.Buffered())

	_, err = client.Write([]byte("llo,"))
	require.NoError(t, err)
	payload, ok, err := conn.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(payload))
}

func TestConn_NoDataIsNotAnError(t *testing.T) {
	conn, _ := pair(t)
	_, ok, err := conn.Receive()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestConn_FramingErrorIsSticky(t *testing.T) {
	conn, client := pair(t)

	_, err := client.Write([]byte("01:x,"))
	require.NoError(t, err)

	_, ok, err := conn.Receive()
	assert.False(t, ok)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "leading zeros not allowed", fe.Reason)
	assert.ErrorIs(t, err, ErrPoisoned)

	// Valid bytes afterwards are never decoded.
	_, err = client.Write([]byte("1:a,"))
	require.NoError(t, err)
	_, ok, err = conn.Receive()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrPoisoned)

	reason, poisoned := conn.FramingError()
	assert.True(t, poisoned)
	assert.Equal(t, "leading zeros not allowed", reason)
}

func TestConn_EOF(t *testing.T) {
	conn, client := pair(t)
	require.NoError(t, client.Close())

	_, ok, err := conn.Receive()
	assert.False(t, ok)
	assert.ErrorIs(t, err, io.EOF)
	_, poisoned := conn.FramingError()
	assert.False(t, poisoned)
}

func TestConn_Send(t *testing.T) {
	conn, client := pair(t)

	require.NoError(t, conn.Send([]byte(`{"id":1}`)))
	buf := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, `8:{"id":1},`, string(buf[:n]))

	assert.Error(t, conn.Send(make([]byte, 65537)))
}

func TestWait(t *testing.T) {
	l := listen(t)

	start := time.Now()
	ready, err := Wait(context.Background(), 20*time.Millisecond, l.Fd())
	require.NoError(t, err)
	assert.False(t, ready[0].Readable)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	client, err := net.Dial("unix", l.Path())
	require.NoError(t, err)
	defer client.Close()

	ready, err = Wait(context.Background(), time.Second, l.Fd())
	require.NoError(t, err)
	assert.True(t, ready[0].Readable)

	uc, err := l.Accept(time.Second)
	require.NoError(t, err)
	conn, err := NewConn(uc, 10*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, client.Close())
	ready, err = Wait(context.Background(), time.Second, l.Fd(), conn.Fd())
	require.NoError(t, err)
	assert.False(t, ready[0].Readable)
	assert.True(t, ready[1].Hangup || ready[1].Readable)
}

func TestWait_Cancelled(t *testing.T) {
	l := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wait(ctx, time.Second, l.Fd())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait_PeerShutdownWrite(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("write shutdown is only reported on Linux")
	}
	conn, client := pair(t)

	_, err := client.Write([]byte("5:hello,"))
	require.NoError(t, err)
	require.NoError(t, client.(*net.UnixConn).CloseWrite())

	ready, err := Wait(context.Background(), time.Second, conn.Fd())
	require.NoError(t, err)
	assert.True(t, ready[0].Hangup)
	assert.True(t, ready[0].Readable)

	n, err := conn.Fill()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 8, conn.Buffered())

	n, err = conn.Fill()
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	payload, ok, err := conn.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(payload))
}

func TestDefaultSocketPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xdg)
	path, err := DefaultSocketPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "platyplaty.sock"), path)

	tmp := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(xdg, "missing"))
	t.Setenv("TEMPDIR", "")
	t.Setenv("TMPDIR", tmp)
	path, err = DefaultSocketPath()
	require.NoError(t, err)
	assert.Equal(t, tmp, filepath.Dir(path))
	assert.Regexp(t, `^platyplaty-\d+\.sock$`, filepath.Base(path))
}

func TestClient_Request(t *testing.T) {
	l := listen(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		uc, err := l.Accept(time.Second)
		if err != nil {
			return
		}
		conn, err := NewConn(uc, 50*time.Millisecond)
		if err != nil {
			return
		}
		defer conn.Close()
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			payload, ok, err := conn.Receive()
			if err != nil {
				return
			}
			if ok {
				_ = conn.Send(append([]byte("echo:"), payload...))
				return
			}
		}
	}()

	client, err := Dial(l.Path(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Request([]byte(`{"command":"GET STATUS","id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `echo:{"command":"GET STATUS","id":1}`, string(resp))
	<-done
}

func TestDial_NoListener(t *testing.T) {
	_, err := Dial(filepath.Join(socketDir(t), "missing.sock"), 100*time.Millisecond)
	assert.Error(t, err)
}

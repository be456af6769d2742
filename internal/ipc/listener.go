// Package ipc owns the renderer's Unix domain socket: the listener, the
// per-client connection and the readiness wait used to multiplex them.
package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Listen when another process is accepting
// on the socket path.
var ErrAlreadyRunning = errors.New("renderer already running")

const probeTimeout = time.Second

// Listener accepts clients on a Unix socket bound with a backlog of one.
type Listener struct {
	ln   *net.UnixListener
	fd   int
	path string

	closeOnce sync.Once
}

// Listen binds path. A live socket at path fails with ErrAlreadyRunning; a
// stale one is removed first. The socket file is made owner-only.
func Listen(path string) (*Listener, error) {
	if path == "" {
		return nil, fmt.Errorf("socket path is empty")
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	f := os.NewFile(uintptr(fd), path)
	fl, err := net.FileListener(f)
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to wrap listener: %w", err)
	}
	ln, ok := fl.(*net.UnixListener)
	if !ok {
		fl.Close()
		os.Remove(path)
		return nil, fmt.Errorf("unexpected listener type %T", fl)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	lfd, err := rawFd(ln)
	if err != nil {
		ln.Close()
		os.Remove(path)
		return nil, err
	}

	slog.Debug("Socket listening", "socket", path)
	return &Listener{ln: ln, fd: lfd, path: path}, nil
}

// removeStale clears a leftover socket file from a process that died
// without cleaning up.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s is in use", ErrAlreadyRunning, path)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("failed to probe %s: %w", path, err)
	}

	slog.Debug("Removing stale socket", "socket", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Path returns the bound path.
func (l *Listener) Path() string {
	return l.path
}

// Fd returns the descriptor to pass to Wait.
func (l *Listener) Fd() int {
	return l.fd
}

// Accept returns the next client. Call it after Wait reports the listener
// readable; the deadline only bounds a spurious wake-up.
func (l *Listener) Accept(deadline time.Duration) (*net.UnixConn, error) {
	if err := l.ln.SetDeadline(time.Now().Add(deadline)); err != nil {
		return nil, err
	}
	return l.ln.AcceptUnix()
}

// Close stops listening and removes the socket file.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}

// DefaultSocketPath picks the first usable location:
// $XDG_RUNTIME_DIR/platyplaty.sock, then platyplaty-<uid>.sock under
// $TEMPDIR, $TMPDIR and /tmp.
func DefaultSocketPath() (string, error) {
	name := fmt.Sprintf("platyplaty-%d.sock", os.Getuid())

	type candidate struct{ dir, file string }
	var candidates []candidate
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		candidates = append(candidates, candidate{dir, "platyplaty.sock"})
	}
	for _, env := range []string{"TEMPDIR", "TMPDIR"} {
		if dir := os.Getenv(env); dir != "" {
			candidates = append(candidates, candidate{dir, name})
		}
	}
	candidates = append(candidates, candidate{"/tmp", name})

	checked := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if info, err := os.Stat(c.dir); err == nil && info.IsDir() {
			return filepath.Join(c.dir, c.file), nil
		}
		checked = append(checked, c.dir)
	}
	return "", fmt.Errorf("no valid socket directory found, checked: %v", checked)
}

func rawFd(sc syscall.Conn) (int, error) {
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("failed to access descriptor: %w", err)
	}
	fd := -1
	if err := rc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, fmt.Errorf("failed to access descriptor: %w", err)
	}
	return fd, nil
}

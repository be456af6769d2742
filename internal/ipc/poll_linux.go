package ipc

import "golang.org/x/sys/unix"

const pollRDHUP = unix.POLLRDHUP

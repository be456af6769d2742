//go:build !linux

package ipc

const pollRDHUP = 0

//go:build unix && !linux

package process

import "golang.org/x/sys/unix"

const (
	cmdSetLock = unix.F_SETLK
	cmdGetLock = unix.F_GETLK
)

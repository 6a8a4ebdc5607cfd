//go:build linux

package process

import "golang.org/x/sys/unix"

// Open file description locks conflict with every other open of the file,
// including ones made by the same process, so PrimaryAlive also observes a lock
// held elsewhere in the calling process.
const (
	cmdSetLock = unix.F_OFD_SETLK
	cmdGetLock = unix.F_OFD_GETLK
)

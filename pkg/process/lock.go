//go:build unix

package process

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// PrimaryLock is the primary process's exclusive lock on the runtime config file
type PrimaryLock struct {
	file *os.File
}

// Lock takes a non-blocking exclusive record lock on path, creating the file if
// needed. It fails with ErrCodeAlreadyExists if another holder exists.
func Lock(path string) (*PrimaryLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to create lock directory", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to open runtime config "+path, err)
	}

	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: io.SeekStart}
	if err := unix.FcntlFlock(f.Fd(), cmdSetLock, &lk); err != nil {
		f.Close()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return nil, types.WrapError(types.ErrCodeAlreadyExists, "primary process already running", err)
		}
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to lock runtime config "+path, err)
	}

	return &PrimaryLock{file: f}, nil
}

// Release drops the lock and closes the file
func (l *PrimaryLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// PrimaryAlive probes the lock on the runtime config file without blocking.
// It returns true if the file exists and some other holder has it locked.
func PrimaryAlive(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: io.SeekStart}
	if err := unix.FcntlFlock(f.Fd(), cmdGetLock, &lk); err != nil {
		return false
	}
	return lk.Type != unix.F_UNLCK
}

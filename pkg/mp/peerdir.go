package mp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// maxSocketPath is the longest path a Unix socket address can hold
var maxSocketPath = len(unix.RawSockaddrUnix{}.Path) - 1

// peerDirectory maps process labels to socket paths under one prefix
type peerDirectory struct {
	prefix string
	dir    string
	filter string
}

func newPeerDirectory(prefix string) (*peerDirectory, error) {
	if prefix == "" {
		return nil, types.NewError(types.ErrCodeInvalid, "socket prefix cannot be empty")
	}
	abs, err := filepath.Abs(prefix)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "failed to resolve socket prefix", err)
	}
	base := filepath.Base(abs)
	if _, err := filepath.Match(base+"_*", base); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "socket prefix is not a valid file name pattern", err)
	}
	return &peerDirectory{
		prefix: abs,
		dir:    filepath.Dir(abs),
		filter: base + "_*",
	}, nil
}

// secondaryLabel builds the per-process label of a secondary socket
func secondaryLabel(pid int, ticks uint64) string {
	return fmt.Sprintf("%d_%x", pid, ticks)
}

// socketPath returns the primary path for an empty label
func (d *peerDirectory) socketPath(label string) string {
	if label == "" {
		return d.prefix
	}
	return d.prefix + "_" + label
}

func (d *peerDirectory) primaryPath() string {
	return d.prefix
}

// matches reports whether a file name in dir belongs to a secondary
func (d *peerDirectory) matches(name string) bool {
	ok, _ := filepath.Match(d.filter, name)
	return ok
}

// lock takes the exclusive advisory lock on the directory. Every process
// holds it while it binds, and the primary while it enumerates peers.
func (d *peerDirectory) lock() (*dirLock, error) {
	f, err := os.Open(d.dir)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to open socket directory "+d.dir, err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to lock socket directory "+d.dir, err)
	}
	return &dirLock{dir: d, f: f}, nil
}

type dirLock struct {
	dir *peerDirectory
	f   *os.File
}

// peers lists the secondary socket paths present in the directory, sorted
func (l *dirLock) peers() ([]string, error) {
	if _, err := l.f.Seek(0, 0); err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to rewind socket directory", err)
	}
	names, err := l.f.Readdirnames(-1)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to read socket directory", err)
	}

	var paths []string
	for _, name := range names {
		if l.dir.matches(name) {
			paths = append(paths, filepath.Join(l.dir.dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// removeStale unlinks every secondary socket file, returning how many went away
func (l *dirLock) removeStale() (int, error) {
	paths, err := l.peers()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, types.WrapError(types.ErrCodeLocalIO, "failed to remove stale socket", err)
		}
		removed++
	}
	return removed, nil
}

func (l *dirLock) unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/billm/baaaht/mpchan/internal/config"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

const (
	socketName = "mp_socket"
	configName = "config"
)

// Paths is the filesystem layout of one runtime
type Paths struct {
	RuntimeDir   string
	SocketPrefix string
	ConfigPath   string
}

// ResolvePaths computes the runtime layout for cfg. A non-empty socketPrefix
// replaces the derived socket prefix.
func ResolvePaths(cfg config.ProcessConfig, socketPrefix string) Paths {
	dir := filepath.Join(cfg.RuntimeDir, cfg.FilePrefix)
	p := Paths{
		RuntimeDir:   dir,
		SocketPrefix: filepath.Join(dir, socketName),
		ConfigPath:   filepath.Join(dir, configName),
	}
	if socketPrefix != "" {
		p.SocketPrefix = filepath.Clean(socketPrefix)
	}
	return p
}

// Runtime is the process-wide view of the shared runtime
type Runtime struct {
	role    types.ProcessRole
	paths   Paths
	lock    *PrimaryLock
	started atomic.Bool
	closeMu sync.Mutex
	closed  bool
}

// NewRuntime creates a runtime with a fixed role and socket prefix, without
// touching the filesystem. Used when the caller manages the layout itself.
func NewRuntime(role types.ProcessRole, socketPrefix string) *Runtime {
	prefix := filepath.Clean(socketPrefix)
	return &Runtime{
		role: role,
		paths: Paths{
			RuntimeDir:   filepath.Dir(prefix),
			SocketPrefix: prefix,
			ConfigPath:   filepath.Join(filepath.Dir(prefix), configName),
		},
	}
}

// Setup creates the runtime directory, resolves the process role and, for the
// primary, takes the lock on the runtime config file.
func Setup(cfg config.ProcessConfig, socketPrefix string) (*Runtime, error) {
	role, err := types.ParseProcessRole(cfg.Type)
	if err != nil {
		return nil, err
	}

	paths := ResolvePaths(cfg, socketPrefix)
	if err := os.MkdirAll(paths.RuntimeDir, 0700); err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to create runtime directory", err)
	}
	if err := os.MkdirAll(filepath.Dir(paths.SocketPrefix), 0700); err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to create socket directory", err)
	}

	role = DetectRole(role, paths.ConfigPath)

	rt := &Runtime{role: role, paths: paths}
	if role.IsPrimary() {
		lock, err := Lock(paths.ConfigPath)
		if err != nil {
			return nil, err
		}
		rt.lock = lock
	}
	return rt, nil
}

// DetectRole resolves RoleAuto: a process is secondary if a primary already holds
// the lock on configPath, primary otherwise.
func DetectRole(role types.ProcessRole, configPath string) types.ProcessRole {
	if role != types.RoleAuto {
		return role
	}
	if PrimaryAlive(configPath) {
		return types.RoleSecondary
	}
	return types.RolePrimary
}

// Role returns the resolved process role
func (r *Runtime) Role() types.ProcessRole {
	return r.role
}

// SocketPrefix returns the primary socket path; secondary sockets extend it
func (r *Runtime) SocketPrefix() string {
	return r.paths.SocketPrefix
}

// Paths returns the runtime layout
func (r *Runtime) Paths() Paths {
	return r.paths
}

// StartupComplete reports whether MarkStartupComplete has been called
func (r *Runtime) StartupComplete() bool {
	return r.started.Load()
}

// MarkStartupComplete records that this process finished its initialization.
// Until then, requests for unregistered actions are answered with an ignore reply.
func (r *Runtime) MarkStartupComplete() {
	r.started.Store(true)
}

// Close releases the primary lock, if held
func (r *Runtime) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.lock != nil {
		return r.lock.Release()
	}
	return nil
}

// String returns a string representation of the runtime
func (r *Runtime) String() string {
	return fmt.Sprintf("Runtime{Role: %s, SocketPrefix: %s, StartupComplete: %v}",
		r.role, r.paths.SocketPrefix, r.StartupComplete())
}

var (
	tickBase = uint64(time.Now().UnixNano())
	tickZero = time.Now()
	lastTick atomic.Uint64
)

// MonotonicTicks returns a nanosecond-resolution tick count that is strictly
// increasing across calls within this process.
func MonotonicTicks() uint64 {
	for {
		now := tickBase + uint64(time.Since(tickZero))
		prev := lastTick.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastTick.CompareAndSwap(prev, now) {
			return now
		}
	}
}

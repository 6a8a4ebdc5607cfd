package mp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

// PeerEventType is the kind of change observed on a peer socket
type PeerEventType int

const (
	// PeerJoined means a peer bound its socket
	PeerJoined PeerEventType = iota
	// PeerLeft means a peer socket file was removed
	PeerLeft
)

// String returns the string representation of the event type
func (t PeerEventType) String() string {
	switch t {
	case PeerJoined:
		return "joined"
	case PeerLeft:
		return "left"
	default:
		return fmt.Sprintf("PeerEventType(%d)", int(t))
	}
}

// PeerEvent reports a peer socket appearing or disappearing
type PeerEvent struct {
	Type PeerEventType
	Path string
}

// PeerWatcher follows the socket directory and reports the peers this
// process can talk to as they come and go
type PeerWatcher struct {
	dir       *peerDirectory
	primary   bool
	self      string
	fsWatcher *fsnotify.Watcher
	events    chan PeerEvent
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// WatchPeers starts a PeerWatcher for this channel. The primary observes
// secondaries; a secondary observes the primary.
func (c *Channel) WatchPeers() (*PeerWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to create file system watcher", err)
	}
	if err := fsWatcher.Add(c.dir.dir); err != nil {
		fsWatcher.Close()
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to watch socket directory", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &PeerWatcher{
		dir:       c.dir,
		primary:   c.primary,
		self:      c.Path(),
		fsWatcher: fsWatcher,
		events:    make(chan PeerEvent, 64),
		logger:    c.logger.With("component", "mp_peer_watcher"),
		ctx:       ctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.watchLoop()
	return w, nil
}

// Events returns the event stream, closed once the watcher stops
func (w *PeerWatcher) Events() <-chan PeerEvent {
	return w.events
}

// Close stops the watcher
func (w *PeerWatcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

// relevant reports whether path is a peer socket of this process
func (w *PeerWatcher) relevant(path string) bool {
	if path == w.self {
		return false
	}
	if !w.primary {
		return path == w.dir.primaryPath()
	}
	return filepath.Dir(path) == w.dir.dir && w.dir.matches(filepath.Base(path))
}

func (w *PeerWatcher) watchLoop() {
	defer w.wg.Done()
	defer close(w.events)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}

			var ev PeerEvent
			switch {
			case event.Has(fsnotify.Create):
				ev = PeerEvent{Type: PeerJoined, Path: event.Name}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				ev = PeerEvent{Type: PeerLeft, Path: event.Name}
			default:
				continue
			}

			w.logger.Debug("Peer changed", "event", ev.Type.String(), "peer", ev.Path)
			select {
			case w.events <- ev:
			case <-w.ctx.Done():
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Peer watcher error", "error", err)
		}
	}
}

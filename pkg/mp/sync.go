package mp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// syncKey identifies an outstanding request: at most one per destination
// and action name
type syncKey struct {
	dst  string
	name string
}

type syncResult struct {
	kind kind
	msg  *Message
	err  error
}

type syncRequest struct {
	key  syncKey
	done chan syncResult
}

// syncMatcher pairs incoming replies with the requests waiting for them
type syncMatcher struct {
	mu      sync.Mutex
	pending map[syncKey]*syncRequest
	closed  bool
}

func newSyncMatcher() *syncMatcher {
	return &syncMatcher{pending: make(map[syncKey]*syncRequest)}
}

// add registers a waiter for key, failing if one is already pending
func (m *syncMatcher) add(key syncKey) (*syncRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, types.NewError(types.ErrCodeUnavailable, "channel is closed")
	}
	if _, exists := m.pending[key]; exists {
		return nil, types.NewError(types.ErrCodeAlreadyExists,
			"request "+key.name+" to "+key.dst+" is already pending")
	}
	req := &syncRequest{key: key, done: make(chan syncResult, 1)}
	m.pending[key] = req
	return req, nil
}

// remove drops req if it is still registered
func (m *syncMatcher) remove(req *syncRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[req.key] != req {
		return false
	}
	delete(m.pending, req.key)
	return true
}

// deliver hands a REPLY or IGNORE to the waiter for (sender, msg.Name). It
// returns false when nobody is waiting, leaving msg to the caller.
func (m *syncMatcher) deliver(sender string, k kind, msg *Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := syncKey{dst: sender, name: msg.Name}
	req, ok := m.pending[key]
	if !ok {
		return false
	}
	delete(m.pending, key)
	req.done <- syncResult{kind: k, msg: msg}
	return true
}

// wait blocks until req resolves, the deadline passes or ctx ends
func (m *syncMatcher) wait(ctx context.Context, req *syncRequest, deadline time.Time) (syncResult, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res := <-req.done:
		return res, res.err
	case <-timer.C:
	case <-ctx.Done():
	}

	if !m.remove(req) {
		// resolved between the wakeup and the removal
		res := <-req.done
		return res, res.err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return syncResult{}, types.WrapError(types.ErrCodeCanceled, "request canceled", err)
	}
	return syncResult{}, types.NewError(types.ErrCodeTimeout, "no reply for "+req.key.name+" before deadline")
}

func (m *syncMatcher) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// close fails every pending request and rejects new ones
func (m *syncMatcher) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for key, req := range m.pending {
		delete(m.pending, key)
		req.done <- syncResult{err: types.NewError(types.ErrCodeUnavailable, "channel closed while waiting for reply")}
	}
}

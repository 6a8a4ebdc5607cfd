package mp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/billm/baaaht/mpchan/internal/config"
	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/process"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

// Runtime is the process state a channel depends on
type Runtime interface {
	Role() types.ProcessRole
	SocketPrefix() string
	StartupComplete() bool
}

type channelState int

const (
	stateCreated channelState = iota
	stateRunning
	stateClosed
)

// Channel is this process's endpoint on the multi-process channel
type Channel struct {
	mu      sync.RWMutex
	cfg     config.ChannelConfig
	rt      Runtime
	primary bool
	dir     *peerDirectory
	tr      *transport
	actions *actionRegistry
	matcher *syncMatcher
	metrics *Metrics
	logger  *logger.Logger
	state   channelState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a channel for rt. Actions may be registered right away; no
// socket exists until Init.
func New(cfg config.ChannelConfig, rt Runtime, log *logger.Logger) (*Channel, error) {
	if rt == nil {
		return nil, types.NewError(types.ErrCodeInvalid, "runtime cannot be nil")
	}
	if rt.Role() == types.RoleAuto {
		return nil, types.NewError(types.ErrCodeInvalid, "process role must be resolved before creating a channel")
	}
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}
	if cfg.SendTimeout < 0 {
		cfg.SendTimeout = 0
	}

	dir, err := newPeerDirectory(rt.SocketPrefix())
	if err != nil {
		return nil, err
	}

	return &Channel{
		cfg:     cfg,
		rt:      rt,
		primary: rt.Role().IsPrimary(),
		dir:     dir,
		actions: newActionRegistry(),
		matcher: newSyncMatcher(),
		metrics: NewMetrics(nil),
		logger:  log.With("component", "mp_channel", "role", rt.Role().String()),
	}, nil
}

// Init binds this process's socket and starts the listener. The primary
// first removes secondary sockets left over from a previous run. Any failure
// leaves the channel unusable.
func (c *Channel) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return types.NewError(types.ErrCodeAlreadyExists, "channel already initialized")
	case stateClosed:
		return types.NewError(types.ErrCodeUnavailable, "channel is closed")
	}
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.ErrCodeCanceled, "init canceled", err)
	}

	label := ""
	if !c.primary {
		label = secondaryLabel(os.Getpid(), process.MonotonicTicks())
	}
	path := c.dir.socketPath(label)

	lock, err := c.dir.lock()
	if err != nil {
		return err
	}
	defer lock.unlock()

	if c.primary {
		n, err := lock.removeStale()
		if err != nil {
			return err
		}
		if n > 0 {
			c.logger.Info("Removed stale secondary sockets", "count", n)
		}
	}

	tr, err := listenTransport(c.dir, path, c.primary, c.cfg.SendTimeout, c.logger.With("socket_path", path), c.metrics)
	if err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.tr = tr
	c.cancel = cancel
	c.state = stateRunning

	c.wg.Add(1)
	go pprof.Do(listenCtx, pprof.Labels("component", "mp_listener", "socket", path), func(ctx context.Context) {
		c.listen(ctx, tr)
	})

	c.logger.Info("Channel initialized",
		"socket_path", path,
		"request_timeout", c.cfg.RequestTimeout.String(),
		"send_timeout", c.cfg.SendTimeout.String())
	return nil
}

func (c *Channel) transport() (*transport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.state {
	case stateCreated:
		return nil, types.NewError(types.ErrCodeUnavailable, "channel is not initialized")
	case stateClosed:
		return nil, types.NewError(types.ErrCodeUnavailable, "channel is closed")
	}
	return c.tr, nil
}

// RegisterAction registers action under name
func (c *Channel) RegisterAction(name string, action Action) error {
	if c.closed() {
		return types.NewError(types.ErrCodeUnavailable, "channel is closed")
	}
	if err := c.actions.register(name, action); err != nil {
		return err
	}
	c.logger.Debug("Action registered", "name", name)
	return nil
}

// UnregisterAction removes the action registered under name, if any
func (c *Channel) UnregisterAction(name string) error {
	if err := c.actions.unregister(name); err != nil {
		return err
	}
	c.logger.Debug("Action unregistered", "name", name)
	return nil
}

// Send delivers msg as a PLAIN message to every peer. Peers that cannot be
// reached are skipped; other per-peer failures are aggregated.
func (c *Channel) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	tr, err := c.transport()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.ErrCodeCanceled, "send canceled", err)
	}

	unreachable, err := tr.send(kindPlain, msg, "")
	if unreachable > 0 {
		c.logger.Debug("Message not delivered to every peer", "name", msg.Name, "unreachable", unreachable)
	}
	return err
}

// Request sends msg as a REQUEST and waits for the replies. A secondary asks
// the primary; the primary asks every secondary in turn. All peers share one
// deadline, timeout from now or the configured request timeout when timeout
// is not positive, bounded by ctx.
//
// The returned Reply is valid even when err is not nil and holds every reply
// collected; the caller owns its messages.
func (c *Channel) Request(ctx context.Context, msg *Message, timeout time.Duration) (*Reply, error) {
	start := time.Now()
	defer func() {
		c.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	if err := msg.validate(); err != nil {
		return nil, err
	}
	tr, err := c.transport()
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	reply := &Reply{}
	if !c.primary {
		err := c.requestOne(ctx, tr, c.dir.primaryPath(), msg, reply, deadline)
		return reply, err
	}

	lock, err := c.dir.lock()
	if err != nil {
		return reply, err
	}
	defer lock.unlock()

	peers, err := lock.peers()
	if err != nil {
		return reply, err
	}

	var errs []error
	for _, p := range peers {
		if err := c.requestOne(ctx, tr, p, msg, reply, deadline); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return reply, types.WrapError(types.ErrCodePartialFailure, fanoutFailure(len(errs), len(peers)), errors.Join(errs...))
	}
	return reply, nil
}

// requestOne runs one request/reply exchange with dst, accounting the
// outcome into reply
func (c *Channel) requestOne(ctx context.Context, tr *transport, dst string, msg *Message, reply *Reply,
	deadline time.Time) error {
	req, err := c.matcher.add(syncKey{dst: dst, name: msg.Name})
	if err != nil {
		c.metrics.Requests.WithLabelValues(resultError).Inc()
		return err
	}
	c.metrics.PendingRequests.Inc()
	defer c.metrics.PendingRequests.Dec()

	if err := tr.sendUnicast(dst, kindRequest, msg, c.primary); err != nil {
		c.matcher.remove(req)
		if types.IsErrCode(err, types.ErrCodePeerUnreachable) {
			reply.Unreachable++
			c.metrics.Requests.WithLabelValues(resultUnreachable).Inc()
			return nil
		}
		c.metrics.Requests.WithLabelValues(resultError).Inc()
		return err
	}
	reply.NbSent++

	res, err := c.matcher.wait(ctx, req, deadline)
	if err != nil {
		if types.IsErrCode(err, types.ErrCodeTimeout) {
			c.logger.Warn("Request timed out", "name", msg.Name, "peer", dst)
			c.metrics.Requests.WithLabelValues(resultTimeout).Inc()
		} else {
			c.metrics.Requests.WithLabelValues(resultError).Inc()
		}
		return err
	}

	if res.kind == kindIgnore {
		reply.NbSent--
		res.msg.Close()
		c.metrics.Requests.WithLabelValues(resultIgnored).Inc()
		return nil
	}
	reply.Msgs = append(reply.Msgs, res.msg)
	reply.NbReceived++
	c.metrics.Requests.WithLabelValues(resultOK).Inc()
	return nil
}

// Reply answers a request received from peer. The reply is matched on
// msg.Name, which must equal the request's name.
func (c *Channel) Reply(ctx context.Context, msg *Message, peer string) error {
	if peer == "" {
		return types.NewError(types.ErrCodeInvalid, "reply requires a peer")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	tr, err := c.transport()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.ErrCodeCanceled, "reply canceled", err)
	}

	_, err = tr.send(kindReply, msg, peer)
	return err
}

// Peers lists the sockets a broadcast from this process would reach: every
// secondary for the primary, the primary for a secondary
func (c *Channel) Peers() ([]string, error) {
	if !c.primary {
		if _, err := os.Stat(c.dir.primaryPath()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, types.WrapError(types.ErrCodeLocalIO, "failed to stat primary socket", err)
		}
		return []string{c.dir.primaryPath()}, nil
	}

	lock, err := c.dir.lock()
	if err != nil {
		return nil, err
	}
	defer lock.unlock()
	return lock.peers()
}

// Path returns the bound socket path, empty before Init
func (c *Channel) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tr == nil {
		return ""
	}
	return c.tr.path
}

// Role returns the process role of the channel
func (c *Channel) Role() types.ProcessRole {
	return c.rt.Role()
}

// Metrics returns the channel's collectors
func (c *Channel) Metrics() *Metrics {
	return c.metrics
}

func (c *Channel) closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateClosed
}

// Close stops the listener, fails pending requests and removes the socket.
// Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	running := c.state == stateRunning
	c.state = stateClosed
	tr := c.tr
	c.mu.Unlock()

	c.matcher.close()
	if !running {
		return nil
	}

	c.cancel()
	err := tr.close()
	c.wg.Wait()

	if err != nil {
		return types.WrapError(types.ErrCodeLocalIO, "failed to close socket", err)
	}
	c.logger.Info("Channel closed", "socket_path", tr.path)
	return nil
}

// Stats returns channel statistics
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		Path:            c.Path(),
		Role:            c.rt.Role().String(),
		Actions:         c.actions.len(),
		PendingRequests: c.matcher.len(),
	}
}

// String returns a string representation of the channel
func (c *Channel) String() string {
	return c.Stats().String()
}

// ChannelStats represents channel statistics
type ChannelStats struct {
	Path            string `json:"path"`
	Role            string `json:"role"`
	Actions         int    `json:"actions"`
	PendingRequests int    `json:"pending_requests"`
}

// String returns a string representation of the stats
func (s ChannelStats) String() string {
	return fmt.Sprintf("Channel{Path: %s, Role: %s, Actions: %d, Pending: %d}",
		s.Path, s.Role, s.Actions, s.PendingRequests)
}

// global channel instance
var (
	globalMu      sync.RWMutex
	globalChannel *Channel
)

// InitGlobal creates and initializes the process-wide channel
func InitGlobal(ctx context.Context, cfg config.ChannelConfig, rt Runtime, log *logger.Logger) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalChannel != nil {
		return types.NewError(types.ErrCodeAlreadyExists, "global channel already initialized")
	}
	ch, err := New(cfg, rt, log)
	if err != nil {
		return err
	}
	if err := ch.Init(ctx); err != nil {
		return err
	}
	globalChannel = ch
	return nil
}

// Global returns the process-wide channel, nil before InitGlobal
func Global() *Channel {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalChannel
}

// SetGlobal sets the process-wide channel
func SetGlobal(ch *Channel) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalChannel = ch
}

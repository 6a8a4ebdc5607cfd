package mp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

const (
	sendBackoffMin = 50 * time.Microsecond
	sendBackoffMax = 5 * time.Millisecond
)

// transport owns the bound datagram socket of this process
type transport struct {
	conn        *net.UnixConn
	raw         syscall.RawConn
	path        string
	primary     bool
	dir         *peerDirectory
	sendTimeout time.Duration
	logger      *logger.Logger
	metrics     *Metrics
}

// listenTransport binds path, removing any socket file a previous process left
// behind. The caller holds the directory lock.
func listenTransport(dir *peerDirectory, path string, primary bool, sendTimeout time.Duration,
	log *logger.Logger, m *Metrics) (*transport, error) {
	if len(path) > maxSocketPath {
		return nil, types.NewError(types.ErrCodeLocalIO, "socket path too long: "+path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to remove existing socket file", err)
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to bind socket "+path, err)
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		os.Remove(path)
		return nil, types.WrapError(types.ErrCodeLocalIO, "failed to access socket", err)
	}

	return &transport{
		conn:        conn,
		raw:         raw,
		path:        path,
		primary:     primary,
		dir:         dir,
		sendTimeout: sendTimeout,
		logger:      log,
		metrics:     m,
	}, nil
}

// sendUnicast transmits one envelope to dst. A returned error carries
// ErrCodePeerUnreachable when dst is gone or not draining its queue, and
// ErrCodeLocalIO for everything else. listed marks dst as found in the peer
// directory, so a missing socket file means the peer exited.
func (t *transport) sendUnicast(dst string, k kind, msg *Message, listed bool) error {
	record, oob, err := encodeRecord(k, msg)
	if err != nil {
		return err
	}

	sa := &unix.SockaddrUnix{Name: dst}
	deadline := time.Now().Add(t.sendTimeout)
	backoff := sendBackoffMin

	for {
		var sendErr error
		ctlErr := t.raw.Write(func(fd uintptr) bool {
			for {
				sendErr = unix.Sendmsg(int(fd), record, oob, sa, 0)
				if sendErr != unix.EINTR {
					return true
				}
			}
		})
		runtime.KeepAlive(msg)

		if ctlErr != nil {
			t.metrics.SendFailures.WithLabelValues(failureLocal).Inc()
			return types.WrapError(types.ErrCodeLocalIO, "socket is closed", ctlErr)
		}
		if sendErr == nil {
			t.metrics.MessagesSent.WithLabelValues(k.String()).Inc()
			return nil
		}
		if queueFull(sendErr) && time.Now().Before(deadline) {
			time.Sleep(backoff)
			backoff = min(backoff*2, sendBackoffMax)
			continue
		}
		return t.classify(dst, sendErr, listed)
	}
}

func queueFull(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOBUFS)
}

func (t *transport) classify(dst string, err error, listed bool) error {
	switch {
	case errors.Is(err, unix.ENOENT) && listed:
		t.logger.Warn("Peer socket disappeared", "peer", dst)
		t.metrics.SendFailures.WithLabelValues(failurePeer).Inc()
		return types.WrapError(types.ErrCodePeerUnreachable, "peer is gone", err)
	case errors.Is(err, unix.ECONNREFUSED) && t.primary:
		t.logger.Warn("Peer socket refused connection, removing it", "peer", dst)
		if rerr := os.Remove(dst); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			t.logger.Warn("Failed to remove stale socket", "peer", dst, "error", rerr)
		}
		t.metrics.SendFailures.WithLabelValues(failurePeer).Inc()
		return types.WrapError(types.ErrCodePeerUnreachable, "peer is gone", err)
	case queueFull(err):
		t.logger.Warn("Peer cannot receive message", "peer", dst, "error", err)
		t.metrics.SendFailures.WithLabelValues(failurePeer).Inc()
		return types.WrapError(types.ErrCodePeerUnreachable, "peer queue is full", err)
	default:
		t.logger.Error("Failed to send message", "peer", dst, "error", err)
		t.metrics.SendFailures.WithLabelValues(failureLocal).Inc()
		return types.WrapError(types.ErrCodeLocalIO, "send failed", err)
	}
}

// send delivers to peer, or without one, to every peer this process can
// reach: the primary broadcasts to all secondaries under the directory lock,
// a secondary sends to the primary. Unreachable peers are counted, not
// returned as errors.
func (t *transport) send(k kind, msg *Message, peer string) (unreachable int, err error) {
	if peer == "" && !t.primary {
		peer = t.dir.primaryPath()
	}
	if peer != "" {
		err := t.sendUnicast(peer, k, msg, false)
		if types.IsErrCode(err, types.ErrCodePeerUnreachable) {
			return 1, nil
		}
		return 0, err
	}

	lock, err := t.dir.lock()
	if err != nil {
		return 0, err
	}
	defer lock.unlock()

	peers, err := lock.peers()
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, p := range peers {
		err := t.sendUnicast(p, k, msg, true)
		switch {
		case err == nil:
		case types.IsErrCode(err, types.ErrCodePeerUnreachable):
			unreachable++
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return unreachable, types.WrapError(types.ErrCodePartialFailure,
			fanoutFailure(len(errs), len(peers)), errors.Join(errs...))
	}
	return unreachable, nil
}

// receive blocks until one datagram arrives and decodes it. The sender is the
// bound path of the sending socket.
func (t *transport) receive(record, oob []byte) (envelope, string, error) {
	for {
		n, oobn, flags, addr, err := t.conn.ReadMsgUnix(record, oob)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return envelope{}, "", err
		}

		sender := ""
		if addr != nil {
			sender = addr.Name
		}
		env, err := decodeRecord(record[:n], oob[:oobn], flags)
		if err != nil {
			return envelope{}, sender, err
		}
		t.metrics.MessagesReceived.WithLabelValues(env.kind.String()).Inc()
		return env, sender, nil
	}
}

// close stops the socket and removes its file
func (t *transport) close() error {
	err := t.conn.Close()
	if rerr := os.Remove(t.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}

func fanoutFailure(failed, total int) string {
	return fmt.Sprintf("failed to reach %d of %d peers", failed, total)
}

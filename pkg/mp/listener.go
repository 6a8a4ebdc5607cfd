package mp

import (
	"context"
	"errors"
	"net"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// listen receives and dispatches messages until the socket is closed.
// Handlers run on this goroutine, one at a time.
func (c *Channel) listen(ctx context.Context, tr *transport) {
	defer c.wg.Done()

	record := make([]byte, recordSize)
	oob := make([]byte, oobSize)

	for {
		env, sender, err := tr.receive(record, oob)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				c.logger.Debug("Listener stopped")
				return
			}
			if types.IsErrCode(err, types.ErrCodeProtocol) {
				c.logger.Warn("Dropping malformed message", "peer", sender, "error", err)
				c.metrics.MessagesDropped.WithLabelValues(dropProtocol).Inc()
				continue
			}
			c.logger.Error("Failed to receive message", "error", err)
			continue
		}
		c.dispatch(ctx, tr, env, sender)
	}
}

func (c *Channel) dispatch(ctx context.Context, tr *transport, env envelope, sender string) {
	msg := env.msg
	c.logger.Debug("Message received", "kind", env.kind.String(), "name", msg.Name, "peer", sender)

	if env.kind == kindReply || env.kind == kindIgnore {
		if !c.matcher.deliver(sender, env.kind, msg) {
			c.logger.Warn("Dropping reply with no pending request", "name", msg.Name, "peer", sender)
			c.metrics.MessagesDropped.WithLabelValues(dropUnmatched).Inc()
			msg.Close()
		}
		return
	}

	action, ok := c.actions.lookup(msg.Name)
	if !ok {
		msg.Close()
		if env.kind == kindRequest && !c.rt.StartupComplete() {
			c.ignore(tr, msg.Name, sender)
			return
		}
		c.logger.Error("Cannot find action", "name", msg.Name, "peer", sender)
		c.metrics.MessagesDropped.WithLabelValues(dropNoAction).Inc()
		return
	}

	if err := action.HandleMessage(ctx, msg, sender); err != nil {
		c.logger.Error("Action failed", "name", msg.Name, "peer", sender, "error", err)
		c.metrics.HandlerErrors.Inc()
	}
}

// ignore tells a requester this process is still starting up
func (c *Channel) ignore(tr *transport, name, sender string) {
	if sender == "" {
		c.logger.Warn("Cannot answer request from unbound socket", "name", name)
		return
	}
	c.logger.Debug("Ignoring request during startup", "name", name, "peer", sender)
	if _, err := tr.send(kindIgnore, &Message{Name: name}, sender); err != nil {
		c.logger.Error("Failed to send ignore reply", "name", name, "peer", sender, "error", err)
	}
}

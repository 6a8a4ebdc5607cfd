package main

import (
	"context"
	"fmt"
	"os"

	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/mp"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

// Built-in daemon actions
const (
	actionPing = "ping"
	actionInfo = "info"
	actionFD   = "fd"
	actionLog  = "log"
)

// registerBuiltins installs the daemon actions on ch
func registerBuiltins(ch *mp.Channel, log *logger.Logger) error {
	actions := map[string]mp.Action{
		actionPing: pingAction(ch),
		actionInfo: infoAction(ch),
		actionFD:   fdAction(ch),
		actionLog:  logAction(log),
	}
	for name, action := range actions {
		if err := ch.RegisterAction(name, action); err != nil {
			return err
		}
	}
	return nil
}

// pingAction answers with "pong" and the request param
func pingAction(ch *mp.Channel) mp.Action {
	return mp.ActionFunc(func(ctx context.Context, msg *mp.Message, peer string) error {
		defer msg.Close()
		param := append([]byte("pong"), msg.Param...)
		if len(param) > mp.MaxParamLen {
			param = param[:mp.MaxParamLen]
		}
		return ch.Reply(ctx, &mp.Message{Name: msg.Name, Param: param}, peer)
	})
}

// infoAction describes this process
func infoAction(ch *mp.Channel) mp.Action {
	return mp.ActionFunc(func(ctx context.Context, msg *mp.Message, peer string) error {
		defer msg.Close()
		info := fmt.Sprintf("pid=%d role=%s socket=%s", os.Getpid(), ch.Role(), ch.Path())
		if len(info) > mp.MaxParamLen {
			info = info[:mp.MaxParamLen]
		}
		return ch.Reply(ctx, &mp.Message{Name: msg.Name, Param: []byte(info)}, peer)
	})
}

// fdAction replies with the read end of a pipe holding a greeting, so the
// requester can prove the descriptor crossed the process boundary
func fdAction(ch *mp.Channel) mp.Action {
	return mp.ActionFunc(func(ctx context.Context, msg *mp.Message, peer string) error {
		defer msg.Close()

		r, w, err := os.Pipe()
		if err != nil {
			return types.WrapError(types.ErrCodeLocalIO, "failed to create pipe", err)
		}
		defer r.Close()

		_, err = fmt.Fprintf(w, "hello from pid %d", os.Getpid())
		w.Close()
		if err != nil {
			return types.WrapError(types.ErrCodeLocalIO, "failed to write greeting", err)
		}
		return ch.Reply(ctx, &mp.Message{Name: msg.Name, Files: []*os.File{r}}, peer)
	})
}

// logAction records PLAIN messages
func logAction(log *logger.Logger) mp.Action {
	return mp.ActionFunc(func(ctx context.Context, msg *mp.Message, peer string) error {
		defer msg.Close()
		log.Info("Message received", "peer", peer, "param", string(msg.Param), "files", len(msg.Files))
		return nil
	})
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/mpchan/pkg/mp"
	"github.com/billm/baaaht/mpchan/pkg/process"
)

var readFDs bool

var sendCmd = &cobra.Command{
	Use:   "send NAME [PARAM]",
	Short: "Send a plain message",
	Long: `send delivers one message to the channel. A secondary (the default for
this command) sends it to the primary; a primary broadcasts it to every
secondary.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var requestCmd = &cobra.Command{
	Use:   "request NAME [PARAM]",
	Short: "Send a request and print the replies",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRequest,
}

// buildMessage turns command arguments into a message
func buildMessage(args []string) *mp.Message {
	msg := &mp.Message{Name: args[0]}
	if len(args) > 1 {
		msg.Param = []byte(args[1])
	}
	return msg
}

// withClient runs fn on an initialized channel and tears it down afterwards
func withClient(cmd *cobra.Command, fn func(ctx context.Context, ch *mp.Channel) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, rt, ch, err := openChannel(cmd, "secondary")
	if err != nil {
		return err
	}

	shutdown := process.NewShutdownManager(process.DefaultShutdownTimeout, rootLog)
	shutdown.AddHook("runtime", func(ctx context.Context) error { return rt.Close() })
	defer shutdown.Shutdown(context.Background(), "command finished")

	if err := ch.Init(ctx); err != nil {
		return err
	}
	shutdown.AddHook("channel", func(ctx context.Context) error { return ch.Close() })
	rt.MarkStartupComplete()

	return fn(ctx, ch)
}

func runSend(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, ch *mp.Channel) error {
		msg := buildMessage(args)
		if err := ch.Send(ctx, msg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg)
		return nil
	})
}

func runRequest(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, ch *mp.Channel) error {
		start := time.Now()
		reply, err := ch.Request(ctx, buildMessage(args), requestTimeout)
		if reply != nil {
			defer reply.Close()
			printReply(cmd.OutOrStdout(), reply, time.Since(start))
		}
		return err
	})
}

// printReply writes the reply summary and each message. With --read-fds the
// content behind each received descriptor is printed too.
func printReply(out io.Writer, reply *mp.Reply, elapsed time.Duration) {
	fmt.Fprintf(out, "sent=%d received=%d unreachable=%d elapsed=%s\n",
		reply.NbSent, reply.NbReceived, reply.Unreachable, elapsed.Round(time.Microsecond))

	for i, msg := range reply.Msgs {
		fmt.Fprintf(out, "[%d] name=%s param=%q files=%d\n", i, msg.Name, msg.Param, len(msg.Files))
		if !readFDs {
			continue
		}
		for j, f := range msg.Files {
			data, err := io.ReadAll(io.LimitReader(f, 4096))
			if err != nil {
				fmt.Fprintf(out, "    fd[%d]: read error: %v\n", j, err)
				continue
			}
			fmt.Fprintf(out, "    fd[%d]: %q\n", j, data)
		}
	}
}

func init() {
	requestCmd.Flags().BoolVar(&readFDs, "read-fds", false,
		"Read and print the content of received file descriptors")
}

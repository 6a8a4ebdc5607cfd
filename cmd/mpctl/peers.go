package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/mpchan/pkg/mp"
	"github.com/billm/baaaht/mpchan/pkg/process"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

var watchPeers bool

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the processes attached to the channel",
	Args:  cobra.NoArgs,
	RunE:  runPeers,
}

var aliveCmd = &cobra.Command{
	Use:   "alive",
	Short: "Exit with status 0 if a primary process is running",
	Args:  cobra.NoArgs,
	RunE:  runAlive,
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	if err := initLogger(cfg.Logging); err != nil {
		return err
	}

	paths := process.ResolvePaths(cfg.Process, cfg.Channel.SocketPrefix)
	out := cmd.OutOrStdout()

	// a primary view enumerates every secondary without binding a socket
	view, err := mp.New(cfg.Channel, process.NewRuntime(types.RolePrimary, paths.SocketPrefix), rootLog)
	if err != nil {
		return err
	}

	state := "stopped"
	if process.PrimaryAlive(paths.ConfigPath) {
		state = "running"
	}
	fmt.Fprintf(out, "primary %s %s\n", paths.SocketPrefix, state)

	peers, err := view.Peers()
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Fprintf(out, "secondary %s\n", p)
	}

	if !watchPeers {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := view.WatchPeers()
	if err != nil {
		return err
	}
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", ev.Type, ev.Path)
		}
	}
}

func runAlive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}

	paths := process.ResolvePaths(cfg.Process, cfg.Channel.SocketPrefix)
	if !process.PrimaryAlive(paths.ConfigPath) {
		return types.NewError(types.ErrCodeNotFound, "no primary process at "+paths.RuntimeDir)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "primary process is running")
	return nil
}

// Package mp implements a multi-process communication channel between one
// primary process and any number of secondary processes on the same host.
//
// Every process binds a Unix datagram socket under a shared prefix. The
// primary binds the prefix itself, secondaries bind prefix_<pid>_<ticks>.
// Messages are fixed-size records carrying an action name, a small opaque
// parameter and up to MaxFDs file descriptors passed with SCM_RIGHTS.
//
// The Channel provides:
//
//   - Named action registration, dispatched from a background listener
//   - Fire-and-forget Send (the primary broadcasts, a secondary sends to the primary)
//   - Synchronous Request with a deadline, aggregated into a Reply
//   - Reply to a specific peer from inside an action handler
//   - Peer discovery by socket file name, with an fsnotify based PeerWatcher
//
// Example usage:
//
//	rt, err := process.Setup(cfg.Process, cfg.Channel.SocketPrefix)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ch, err := mp.New(cfg.Channel, rt, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ch.RegisterAction("ping", mp.ActionFunc(func(ctx context.Context, msg *mp.Message, peer string) error {
//	    return ch.Reply(ctx, &mp.Message{Name: msg.Name, Param: []byte("pong")}, peer)
//	}))
//
//	if err := ch.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	rt.MarkStartupComplete()
//
//	reply, err := ch.Request(ctx, &mp.Message{Name: "ping"}, time.Second)
package mp

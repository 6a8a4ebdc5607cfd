package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/billm/baaaht/mpchan/internal/config"
	"github.com/billm/baaaht/mpchan/pkg/mp"
	"github.com/billm/baaaht/mpchan/pkg/process"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a channel process until interrupted",
	Long: `daemon joins the channel as the primary or as a secondary process and
serves the built-in actions: ping, info, fd (replies with a pipe descriptor)
and log (records plain messages).`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, rt, ch, err := openChannel(cmd, "")
	if err != nil {
		return err
	}

	shutdown := process.NewShutdownManager(process.DefaultShutdownTimeout, rootLog)
	shutdown.AddHook("runtime", func(ctx context.Context) error {
		return rt.Close()
	})

	if err := registerBuiltins(ch, rootLog); err != nil {
		shutdown.Shutdown(ctx, "setup failed")
		return err
	}
	if err := ch.Init(ctx); err != nil {
		shutdown.Shutdown(ctx, "channel init failed")
		return err
	}
	shutdown.AddHook("channel", func(ctx context.Context) error {
		return ch.Close()
	})

	if cfg.Metrics.Enabled {
		srv, err := startMetricsServer(cfg.Metrics, ch)
		if err != nil {
			shutdown.Shutdown(ctx, "metrics setup failed")
			return err
		}
		shutdown.AddHook("metrics", srv.Shutdown)
	}

	rt.MarkStartupComplete()
	rootLog.Info("Channel process running",
		"version", version,
		"role", rt.Role().String(),
		"socket_path", ch.Path())

	return shutdown.WaitForSignal(ctx)
}

// startMetricsServer exposes the channel metrics over HTTP
func startMetricsServer(cfg config.MetricsConfig, ch *mp.Channel) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := ch.Metrics().Register(reg); err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		path = config.DefaultMetricsPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLog.Error("Metrics server failed", "error", err)
		}
	}()

	rootLog.Info("Metrics server started", "address", cfg.Address, "path", path)
	return srv, nil
}

func init() {
	daemonCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address (enables metrics)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atsora/pomamo-engine-sub026/internal/logger"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/rpc"
	"github.com/atsora/pomamo-engine-sub026/internal/watch"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// serveMetrics starts the Prometheus endpoint when listen is set. The
// returned function stops it.
func serveMetrics(listen string, reg *prometheus.Registry) func() {
	if listen == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", listen).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("listen", listen).Msg("metrics endpoint started")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// #region serve

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Listen string `default:":50061" help:"gRPC listen address"`
}

func (c *ServeCmd) Run(root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := open(ctx, root, true, true)
	if err != nil {
		return err
	}
	defer e.Close()

	lis, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.Listen, err)
	}
	stopMetrics := serveMetrics(root.cfg.Metrics.Listen, e.registry)
	defer stopMetrics()

	srv := rpc.NewServer(e.orch, logger.WithComponent("rpc"))
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()
	logger.Info().Str("listen", lis.Addr().String()).Msg("gRPC server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		srv.GracefulStop()
		return nil
	case err := <-errc:
		return fmt.Errorf("grpc serve: %w", err)
	}
}

// #endregion serve

// #region watch

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Interval       time.Duration `default:"1m" help:"Resolution interval"`
	Period         string        `default:"None" help:"Period flags computed for each machine"`
	NotRunningOnly bool          `help:"Only compute a period start when the machine is not running"`
	NATSURL        string        `name:"nats-url" env:"POMAMO_NATS_URL" help:"Publish every state on this NATS server"`
	Subject        string        `default:"pomamo.reasonslots.current" help:"NATS subject prefix"`
}

func (c *WatchCmd) Run(root *CLI) error {
	period, ok := resolver.ParsePeriodFlags(c.Period)
	if !ok {
		return fmt.Errorf("unknown period %q", c.Period)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := open(ctx, root, false, true)
	if err != nil {
		return err
	}
	defer e.Close()

	var pub watch.Publisher
	if c.NATSURL != "" {
		nc, err := watch.NewNATSPublisher(c.NATSURL, logger.WithComponent("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		pub = nc
	}

	stopMetrics := serveMetrics(root.cfg.Metrics.Listen, e.registry)
	defer stopMetrics()

	w := watch.New(e.orch, pub, watch.Options{
		Interval:       c.Interval,
		Subject:        c.Subject,
		Period:         period,
		NotRunningOnly: c.NotRunningOnly,
		Logger:         logger.WithComponent("watch"),
	})
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// #endregion watch

package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yourusername/minichain/internal/config"
	"github.com/yourusername/minichain/internal/grpc"
	"github.com/yourusername/minichain/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chain over gRPC until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptContext()
			defer stop()
			return a.serve(ctx, mine)
		},
	}

	flags := cmd.Flags()
	flags.String(config.KeyRPCListen, a.v.GetString(config.KeyRPCListen), "gRPC listen address")
	flags.String(config.KeyMetricsListen, "", "Prometheus listen address, empty disables metrics")
	flags.BoolVar(&mine, "mine", false, "mine blocks in the background from startup")
	for _, key := range []string{config.KeyRPCListen, config.KeyMetricsListen} {
		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}
	return cmd
}

// serve runs the node until ctx is done
func (a *app) serve(ctx context.Context, mine bool) error {
	var m *metrics.Metrics
	if a.cfg.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		var err error
		if m, err = metrics.New(registry); err != nil {
			return err
		}
		httpServer, _, err := metrics.Listen(a.cfg.MetricsListen, registry)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	bc, err := a.openChain(m)
	if err != nil {
		return err
	}
	defer bc.Close()
	if err := a.saveMinerKey(bc.Store()); err != nil {
		return err
	}

	server := grpc.NewServer(bc, a.cfg.Miner)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(a.cfg.RPCListen)
	}()

	if mine {
		if _, err := server.StartMining(ctx, wrapperspb.String("")); err != nil {
			server.Stop()
			return err
		}
	}

	log.Infof("Node serving chain at height %d, rewards to %s", bc.Height(), a.cfg.Miner)
	select {
	case err := <-errCh:
		server.Stop()
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down")
	server.Stop()
	if err := <-errCh; err != nil {
		return errors.Wrap(err, "server stopped with error")
	}
	return nil
}

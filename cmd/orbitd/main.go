// Command orbitd aggregates per-BPM X/Y/TMIT measurements into correlated
// orbit snapshots and republishes them as a single tabular value.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/epicsorbit/orbitagg/internal/aggregator"
	"github.com/epicsorbit/orbitagg/internal/bootstrap"
	"github.com/epicsorbit/orbitagg/internal/config"
	"github.com/epicsorbit/orbitagg/internal/logging"
	"github.com/epicsorbit/orbitagg/internal/metrics"
	"github.com/epicsorbit/orbitagg/internal/publish"
	"github.com/epicsorbit/orbitagg/internal/snapshot"
	"github.com/epicsorbit/orbitagg/internal/transport"
	"github.com/epicsorbit/orbitagg/internal/transport/fake"
	"github.com/epicsorbit/orbitagg/internal/transport/memory"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Defaults()

	cmd := &cobra.Command{
		Use:   "orbitd [model-pv] [edef] [output-pv]",
		Short: "Correlate per-BPM X/Y/TMIT measurements into published orbit snapshots",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Fake {
				if len(args) != 3 {
					return fmt.Errorf("model-pv, edef, and output-pv are required unless --fake is set")
				}
				cfg.ModelPV, cfg.EdefSuffix, cfg.OutputPV = args[0], args[1], args[2]
			} else {
				if len(args) != 1 {
					return fmt.Errorf("--fake takes exactly one argument: output-pv")
				}
				cfg.OutputPV = args[0]
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.Flags(), &cfg)

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel)
	rec := metrics.New()

	var (
		sub    transport.Subscriber
		loader transport.DescriptorLoader
	)
	if cfg.Fake {
		sub = fake.NewGenerator()
		loader = fake.Descriptor{Count: cfg.FakeBPMCount}
	} else {
		// cfg.EdefSuffix selects the event-definition buffer a real
		// channel-access/PVAccess subscription would attach to; it has no
		// meaning against the synthetic --fake transport, so it is only
		// ever consumed once a real transport exists.
		log.Info("edef suffix requested", map[string]any{"edef": cfg.EdefSuffix})
		return fmt.Errorf("config: only --fake mode is wired in this build; a real channel-access/PVAccess transport is out of scope")
	}

	lattice, err := bootstrap.Load(ctx, loader, cfg.ModelPV)
	if err != nil {
		return fmt.Errorf("loading BPM lattice: %w", err)
	}
	log.Info("BPM lattice loaded", map[string]any{"count": len(lattice.Names)})

	aggCfg := cfg.AggregatorConfig()
	aggCfg.Logger = log
	aggCfg.Metrics = rec

	orbit := aggregator.New(lattice.Names, lattice.Zs, aggCfg)
	defer orbit.Close()

	pub := memory.New()
	orbit.AddReceiver(publish.New(pub, cfg.OutputPV))

	for i, name := range lattice.Names {
		for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
			src := orbit.Source(i, j)
			channel := name + axisChannelSuffix(j)
			handle, err := sub.Subscribe(ctx, channel, transport.Callback{
				OnConnect:    src.OnConnect,
				OnDisconnect: src.OnDisconnect,
				OnSample:     src.Push,
			})
			if err != nil {
				return fmt.Errorf("subscribing to %s: %w", channel, err)
			}
			defer handle.Unsubscribe()
		}
	}

	log.Info("waiting for sources to connect", map[string]any{"timeout": cfg.ConnectTimeout.String()})
	if !orbit.WaitForConnection(cfg.ConnectTimeout) {
		return fmt.Errorf("timed out after %s waiting for all sources to connect", cfg.ConnectTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.HandleFunc("/orbit/latest", func(w http.ResponseWriter, r *http.Request) {
		v, ok := pub.Latest()
		if !ok {
			http.Error(w, "no orbit published yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Info("http server listening", map[string]any{"addr": cfg.MetricsAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", err, nil)
		}
	}()
	defer srv.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down", nil)
	return nil
}

func axisChannelSuffix(axis snapshot.Axis) string {
	switch axis {
	case snapshot.AxisX:
		return ":X"
	case snapshot.AxisY:
		return ":Y"
	default:
		return ":TMIT"
	}
}

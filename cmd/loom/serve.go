package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/middleware"
	"github.com/weftworks/loom/observability"
	"github.com/weftworks/loom/retention"
	"github.com/weftworks/loom/stream"
	"github.com/weftworks/loom/worker"
)

var (
	serveAgents      int
	serveSpecialties []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration daemon",
	Long: `Run the loom daemon: it opens the configured store, spawns the agent
pool, resumes interrupted workflows, serves the WebSocket event relay,
and sweeps old checkpoints on schedule.

Examples:
  # Serve with defaults (in-memory store, 4 general agents)
  loom serve

  # Serve with a config file and a specialized pool
  loom serve -c loom.yaml --agents 8 --specialty database --specialty frontend`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveAgents, "agents", 4, "number of general-purpose agents to spawn")
	serveCmd.Flags().StringArrayVar(&serveSpecialties, "specialty", nil, "spawn one agent per given specialty (repeatable)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	pool := worker.NewPool(worker.WithLogger(logger))
	for range serveAgents {
		pool.Spawn("")
	}
	for _, specialty := range serveSpecialties {
		pool.Spawn(specialty)
	}

	// Fan recorded events out to metrics, the live relay, and NATS when
	// configured. All sinks are best-effort; the log is authoritative.
	broker := stream.NewBroker(stream.WithLogger(logger))
	buses := event.MultiBus{observability.Metrics(), broker}
	if cfg.NATS.URL != "" {
		nc, connErr := nats.Connect(cfg.NATS.URL, nats.Name("loom"))
		if connErr != nil {
			return fmt.Errorf("connect nats: %w", connErr)
		}
		defer nc.Close()
		buses = append(buses, event.NewNATSBus(nc,
			event.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			event.WithNATSLogger(logger),
		))
	}

	exec := middleware.Chain(shellExecutor(logger),
		middleware.Recover(logger),
		middleware.Logging(logger),
		middleware.Tracing(),
	)

	coord, err := coordinator.New(st, pool, exec,
		coordinator.WithConfig(cfg.Core()),
		coordinator.WithLogger(logger),
		coordinator.WithBus(buses),
	)
	if err != nil {
		return err
	}

	if cfg.Retention.Schedule != "" {
		sweeper, retErr := retention.New(st, cfg.Retention.Schedule,
			retention.WithKeep(cfg.Retention.Keep),
			retention.WithLogger(logger),
		)
		if retErr != nil {
			return retErr
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop(context.Background()) //nolint:errcheck // shutdown path
	}

	var relaySrv *http.Server
	if cfg.Server.Addr != "" {
		relaySrv = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           stream.NewRelay(broker, stream.WithRelayLogger(logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("event relay listening", "addr", cfg.Server.Addr)
			if err := relaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("relay server stopped", "error", err.Error())
			}
		}()
	}

	// Pick up workflows a previous process left running.
	if err := coord.ResumeAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("resume interrupted workflows", "error", err.Error())
	}

	logger.Info("loom daemon ready",
		"store", cfg.Store.Driver,
		"agents", serveAgents+len(serveSpecialties),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if relaySrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := relaySrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("relay shutdown", "error", err.Error())
		}
	}
	if err := broker.Shutdown(context.Background()); err != nil {
		logger.Warn("broker shutdown", "error", err.Error())
	}
	return nil
}

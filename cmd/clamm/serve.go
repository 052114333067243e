package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defistate/clamm-go/config"
	"github.com/defistate/clamm-go/differ"
	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/scenario"
	"github.com/defistate/clamm-go/streams/jsonrpc/server"
)

// eventLogger logs every pool event at debug level.
type eventLogger struct {
	logger *zapLogger
}

func (l eventLogger) Emit(e events.Event) {
	h := e.EventHeader()
	l.logger.Debug("pool event", "kind", e.Kind(), "pool", h.Pool.Hex(), "seq", h.Seq)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := newZapLogger(zl)

	if cfg.Scenario == "" {
		return errors.New("scenario is required")
	}
	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: registry,
		Logger:   logger.With("component", "differ"),
	})
	if err != nil {
		return err
	}
	publisher, err := server.NewPublisher(server.Config{
		Differ:     stateDiffer,
		Logger:     logger.With("component", "publisher"),
		BufferSize: uint(cfg.BufferSize),
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	rpcServer, err := server.NewRPCServer(publisher)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/", rpcServer.WebsocketHandler([]string{"*"}))
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	var runner *scenario.Runner
	runner, err = scenario.NewRunner(sc, scenario.Options{
		Logger:   logger.With("component", "scenario"),
		Registry: registry,
		Events:   eventLogger{logger: logger.With("component", "events")},
		ChainID:  cfg.ChainID,
		OnStep: func(ctx context.Context, res scenario.StepResult) error {
			state := runner.State()
			if err := publisher.Publish(state); err != nil {
				return fmt.Errorf("publish block %d: %w", state.Block.Number, err)
			}
			logger.Info("block published",
				"block", state.Block.Number,
				"step", res.Index,
				"op", res.Op,
				"subscribers", publisher.Subscribers(),
			)
			return wait(ctx, cfg.BlockInterval)
		},
	})
	if err != nil {
		return err
	}
	if err := publisher.Publish(runner.State()); err != nil {
		return err
	}

	zl.Info("serving",
		zap.String("listen", cfg.Listen),
		zap.String("metrics", cfg.MetricsPath),
		zap.String("scenario", sc.Name),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Duration("block_interval", cfg.BlockInterval),
	)

	if _, err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zl.Info("scenario finished, serving final state")

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

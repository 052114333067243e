package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defistate/clamm-go/config"
	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/scenario"
	"github.com/defistate/clamm-go/storage"
	"github.com/defistate/clamm-go/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return errors.New("scenario is required")
	}
	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	decimals0, _ := cmd.Flags().GetInt32("decimals0")
	decimals1, _ := cmd.Flags().GetInt32("decimals1")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var writers []storage.Writer
	if cfg.EventsOut != "" {
		writers = append(writers, storage.NewJsonlStorage(cfg.EventsOut))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		writers = append(writers, store)
	}

	runner, err := scenario.NewRunner(sc, scenario.Options{
		Logger:   newZapLogger(logger).With("component", "scenario"),
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}

	logger.Info("simulation start",
		zap.String("scenario", cfg.Scenario),
		zap.String("name", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.Int("writers", len(writers)),
	)

	results, runErr := runner.Run(ctx)

	out := cmd.OutOrStdout()
	printSteps(out, results, decimals0, decimals1)
	if err := printPool(out, runner.Pool(), decimals0, decimals1); err != nil {
		return err
	}

	evs := runner.Events()
	if err := writeEvents(ctx, writers, evs); err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	logger.Info("simulation done",
		zap.Int("steps_run", len(results)),
		zap.Int("steps_failed", failed),
		zap.Int("events", len(evs)),
	)
	return runErr
}

func writeEvents(ctx context.Context, writers []storage.Writer, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	for _, w := range writers {
		if err := w.WriteEvents(ctx, evs); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
	}
	return nil
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/defistate/clamm-go/config"
)

const defaultDecimals = 18

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clamm",
		Short:        "Concentrated-liquidity pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and print the resulting pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML file")
	simulateCmd.Flags().String("events-out", "", "append emitted events to this JSONL file")
	simulateCmd.Flags().String("pg-dsn", "", "write emitted events to Postgres")
	simulateCmd.Flags().Int32("decimals0", defaultDecimals, "token0 decimals for display")
	simulateCmd.Flags().Int32("decimals1", defaultDecimals, "token1 decimals for display")

	root.AddCommand(simulateCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a scenario step by step and stream pool states",
		RunE:  runServe,
	}

	serveCmd.Flags().String("scenario", "", "scenario YAML file")
	serveCmd.Flags().String("listen", config.DefaultListen, "websocket and metrics listen address")
	serveCmd.Flags().String("metrics-path", config.DefaultMetricsPath, "metrics HTTP path")
	serveCmd.Flags().Uint64("chain-id", config.DefaultChainID, "chain id stamped on published states")
	serveCmd.Flags().Duration("block-interval", config.DefaultBlockInterval, "delay between steps")
	serveCmd.Flags().Int("buffer-size", config.DefaultBufferSize, "events queued per subscriber")

	root.AddCommand(serveCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a state stream and log every state",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("url", config.DefaultURL, "state stream websocket URL")
	watchCmd.Flags().Int("buffer-size", config.DefaultBufferSize, "states buffered before the consumer")
	watchCmd.Flags().StringSlice("pool", nil, "only log these pool addresses (comma-separated)")
	watchCmd.Flags().Int32("decimals0", defaultDecimals, "token0 decimals for display")
	watchCmd.Flags().Int32("decimals1", defaultDecimals, "token1 decimals for display")

	root.AddCommand(watchCmd)

	return root
}

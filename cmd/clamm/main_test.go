package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clamm-go/config"
)

func subcommand(t *testing.T, name string) *cobra.Command {
	t.Helper()
	cmd, _, err := newRootCmd().Find([]string{name})
	require.NoError(t, err)
	require.Equal(t, name, cmd.Name())
	return cmd
}

// Unset flags must load to the value their --help text advertises.
func TestFlagDefaultsMatchConfig(t *testing.T) {
	serve := subcommand(t, "serve")
	require.NoError(t, serve.ParseFlags(nil))
	cfg, err := config.Load("", serve.Flags())
	require.NoError(t, err)

	interval, err := serve.Flags().GetDuration("block-interval")
	require.NoError(t, err)
	assert.Equal(t, interval, cfg.BlockInterval)
	assert.Equal(t, config.DefaultBlockInterval, cfg.BlockInterval)

	listen, _ := serve.Flags().GetString("listen")
	assert.Equal(t, listen, cfg.Listen)
	metricsPath, _ := serve.Flags().GetString("metrics-path")
	assert.Equal(t, metricsPath, cfg.MetricsPath)
	chainID, _ := serve.Flags().GetUint64("chain-id")
	assert.Equal(t, chainID, cfg.ChainID)
	bufferSize, _ := serve.Flags().GetInt("buffer-size")
	assert.Equal(t, bufferSize, cfg.BufferSize)

	watch := subcommand(t, "watch")
	require.NoError(t, watch.ParseFlags(nil))
	cfg, err = config.Load("", watch.Flags())
	require.NoError(t, err)

	url, _ := watch.Flags().GetString("url")
	assert.Equal(t, url, cfg.URL)
	bufferSize, _ = watch.Flags().GetInt("buffer-size")
	assert.Equal(t, bufferSize, cfg.BufferSize)
}

func TestServeBlockIntervalFlag(t *testing.T) {
	serve := subcommand(t, "serve")
	require.NoError(t, serve.ParseFlags([]string{"--block-interval=0s"}))
	cfg, err := config.Load("", serve.Flags())
	require.NoError(t, err)
	assert.Zero(t, cfg.BlockInterval)
}

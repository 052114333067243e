package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defistate/clamm-go/config"
	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
	"github.com/defistate/clamm-go/protocols/clamm/indexer"
	"github.com/defistate/clamm-go/protocols/clamm/quoter"
	"github.com/defistate/clamm-go/streams/jsonrpc/client"
)

func runWatch(cmd *cobra.Command, _ []string) error {
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

	decimals0, _ := cmd.Flags().GetInt32("decimals0")
	decimals1, _ := cmd.Flags().GetInt32("decimals1")
	filter, err := parsePools(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.NewClient(ctx, client.Config{
		URL:        cfg.URL,
		Logger:     newZapLogger(logger).With("component", "jsonrpc-client"),
		BufferSize: uint(cfg.BufferSize),
	})
	if err != nil {
		return err
	}

	logger.Info("watching", zap.String("url", cfg.URL))
	for {
		select {
		case state := <-c.State():
			logState(logger, state, filter, decimals0, decimals1)
		case err, ok := <-c.Err():
			if ok && err != nil {
				logger.Error("client stopped", zap.Error(err))
				return err
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func parsePools(cmd *cobra.Command) ([]common.Address, error) {
	raw, _ := cmd.Flags().GetStringSlice("pool")
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid pool address %q", s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// watchedPools returns the pools named in filter, or every pool when filter is empty.
func watchedPools(state *engine.State, filter []common.Address) []clamm.Pool {
	if len(filter) == 0 {
		return state.Pools
	}
	idx := indexer.New(state.Pools)
	out := make([]clamm.Pool, 0, len(filter))
	for _, addr := range filter {
		if p, ok := idx.ByAddress(addr); ok {
			out = append(out, p)
		}
	}
	return out
}

func logState(logger *zap.Logger, state *engine.State, filter []common.Address, decimals0, decimals1 int32) {
	logger.Info("state",
		zap.Uint64("chain_id", state.ChainID),
		zap.Uint64("block", state.Block.Number),
		zap.Uint64("block_timestamp", state.Block.Timestamp),
		zap.Int("pools", len(state.Pools)),
	)
	for _, p := range watchedPools(state, filter) {
		fields := []zap.Field{
			zap.String("pool", p.Address.Hex()),
			zap.Int64("tick", p.Tick),
			zap.Stringer("liquidity", p.Liquidity),
			zap.Int("ticks", len(p.Ticks)),
		}
		if price, err := quoter.SpotPrice(p.Token0, decimals0, decimals1, p); err == nil {
			fields = append(fields, zap.String("price", price.StringFixed(8)))
		}
		logger.Info("pool", fields...)
	}
}

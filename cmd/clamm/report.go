package main

import (
	"fmt"
	"io"
	"math/big"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/defistate/clamm-go/protocols/clamm/pool"
	"github.com/defistate/clamm-go/protocols/clamm/quoter"
	"github.com/defistate/clamm-go/scenario"
)

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	red   = "\033[31m"
	green = "\033[32m"
	cyan  = "\033[36m"
)

func header(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+bold+cyan+":: "+title+" ::"+reset)
}

// units renders a raw token amount with the given decimals.
func units(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "-"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

func printSteps(w io.Writer, results []scenario.StepResult, decimals0, decimals1 int32) {
	header(w, "Steps")
	tw := tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintln(tw, "#\tOp\tTime\tAmount0\tAmount1\tResult\t")
	for _, res := range results {
		status := green + "ok" + reset
		if res.Err != nil {
			status = fmt.Sprintf("%s%s: %v%s", red, res.Class, res.Err, reset)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t\n",
			res.Index, res.Op, res.BlockTimestamp,
			units(res.Amount0, decimals0), units(res.Amount1, decimals1), status)
	}
	tw.Flush()
}

func printPool(w io.Writer, p *pool.Pool, decimals0, decimals1 int32) error {
	header(w, "Pool "+p.Address().Hex())
	if !p.Initialized() {
		fmt.Fprintln(w, "not initialized")
		return nil
	}

	view := p.Snapshot()
	price, err := quoter.SpotPrice(p.Token0(), decimals0, decimals1, view)
	if err != nil {
		return err
	}
	slot0 := p.Slot0()
	protocol0, protocol1 := p.ProtocolFees()

	tw := tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintf(tw, "Fee\t%d\t\n", p.Fee())
	fmt.Fprintf(tw, "Tick\t%d\t\n", slot0.Tick)
	fmt.Fprintf(tw, "Price (token1 per token0)\t%s\t\n", price.StringFixed(8))
	fmt.Fprintf(tw, "SqrtPriceX96\t%s\t\n", slot0.SqrtPriceX96)
	fmt.Fprintf(tw, "Liquidity\t%s\t\n", p.Liquidity())
	fmt.Fprintf(tw, "FeeGrowthGlobal0X128\t%s\t\n", p.FeeGrowthGlobal0X128())
	fmt.Fprintf(tw, "FeeGrowthGlobal1X128\t%s\t\n", p.FeeGrowthGlobal1X128())
	fmt.Fprintf(tw, "ProtocolFees\t%s / %s\t\n", units(protocol0, decimals0), units(protocol1, decimals1))
	fmt.Fprintf(tw, "Observations\t%d of %d\t\n", slot0.ObservationCardinality, slot0.ObservationCardinalityNext)
	tw.Flush()

	header(w, "Ticks")
	tw = tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintln(tw, "Tick\tLiquidityGross\tLiquidityNet\t")
	for _, t := range view.Ticks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", t.Index, t.LiquidityGross, t.LiquidityNet)
	}
	tw.Flush()

	positions := p.Positions()
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Owner != positions[j].Owner {
			return positions[i].Owner.Cmp(positions[j].Owner) < 0
		}
		if positions[i].TickLower != positions[j].TickLower {
			return positions[i].TickLower < positions[j].TickLower
		}
		return positions[i].TickUpper < positions[j].TickUpper
	})

	header(w, "Positions")
	tw = tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintln(tw, "Owner\tRange\tLiquidity\tOwed0\tOwed1\t")
	for _, pos := range positions {
		fmt.Fprintf(tw, "%s\t[%d, %d)\t%s\t%s\t%s\t\n",
			pos.Owner.Hex(), pos.TickLower, pos.TickUpper, pos.Liquidity,
			units(pos.TokensOwed0, decimals0), units(pos.TokensOwed1, decimals1))
	}
	tw.Flush()
	return nil
}

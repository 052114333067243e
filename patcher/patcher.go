// Package patcher rebuilds states from a previous state and a diff.
package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/clamm-go/differ"
	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
)

var (
	ErrBlockMismatch = errors.New("patcher: diff does not start at the state's block")
	ErrChainMismatch = errors.New("patcher: diff is for another chain")
)

// Patch returns the state that diff produces from oldState. oldState is not modified and shares no
// pool data with the result.
func Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Block.Number != diff.FromBlock {
		return nil, fmt.Errorf("%w: state=%d, diff=%d", ErrBlockMismatch, oldState.Block.Number, diff.FromBlock)
	}
	if oldState.ChainID != diff.ChainID {
		return nil, fmt.Errorf("%w: state=%d, diff=%d", ErrChainMismatch, oldState.ChainID, diff.ChainID)
	}

	pools, err := clamm.Patcher(oldState.Pools, diff.Pools)
	if err != nil {
		return nil, fmt.Errorf("patcher: %w", err)
	}

	return &engine.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Schema:    oldState.Schema,
		Block:     diff.ToBlock,
		Pools:     pools,
	}, nil
}

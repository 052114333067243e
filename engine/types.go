// Package engine defines the state snapshot streamed to subscribers.
package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm"
)

// Schema names the decode contract of State.Pools.
const Schema = "clamm/pool@v1"

// BlockSummary identifies the block a state was taken at.
type BlockSummary struct {
	Number     uint64 `json:"number"`
	Timestamp  uint64 `json:"timestamp"`
	ReceivedAt int64  `json:"receivedAt"` // Unix nanoseconds when the engine started processing the block.
}

// State is the main data structure broadcast to subscribers. Pools are ordered by address.
type State struct {
	ChainID   uint64       `json:"chainId"`
	Timestamp uint64       `json:"timestamp"`
	Schema    string       `json:"schema"`
	Block     BlockSummary `json:"block"`
	Pools     []clamm.Pool `json:"pools"`
}

// Pool returns the view of the pool at addr.
func (s *State) Pool(addr common.Address) (clamm.Pool, bool) {
	for _, p := range s.Pools {
		if p.Address == addr {
			return p, true
		}
	}
	return clamm.Pool{}, false
}

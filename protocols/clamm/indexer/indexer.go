// Package indexer gives keyed access to the pools of a state.
package indexer

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm"
)

type pair struct {
	token0, token1 common.Address
}

func newPair(a, b common.Address) pair {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return pair{a, b}
}

// Index is a read-only lookup over a set of pools. It shares pool data with the input slice, so
// the pools must not be modified while the index is in use.
type Index struct {
	byAddress map[common.Address]clamm.Pool
	byPair    map[pair][]clamm.Pool
	all       []clamm.Pool
}

// New indexes pools by address and by token pair.
func New(pools []clamm.Pool) *Index {
	idx := &Index{
		byAddress: make(map[common.Address]clamm.Pool, len(pools)),
		byPair:    make(map[pair][]clamm.Pool),
		all:       pools,
	}
	for _, p := range pools {
		idx.byAddress[p.Address] = p
		k := newPair(p.Token0, p.Token1)
		idx.byPair[k] = append(idx.byPair[k], p)
	}
	for _, ps := range idx.byPair {
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].Fee != ps[j].Fee {
				return ps[i].Fee < ps[j].Fee
			}
			return bytes.Compare(ps[i].Address.Bytes(), ps[j].Address.Bytes()) < 0
		})
	}
	return idx
}

// ByAddress returns the pool at addr.
func (idx *Index) ByAddress(addr common.Address) (clamm.Pool, bool) {
	p, ok := idx.byAddress[addr]
	return p, ok
}

// ByPair returns the pools trading a against b in either order, cheapest fee tier first.
func (idx *Index) ByPair(a, b common.Address) []clamm.Pool {
	ps := idx.byPair[newPair(a, b)]
	out := make([]clamm.Pool, len(ps))
	copy(out, ps)
	return out
}

// All returns a copy of the indexed slice.
func (idx *Index) All() []clamm.Pool {
	out := make([]clamm.Pool, len(idx.all))
	copy(out, idx.all)
	return out
}

// Len returns the number of distinct pool addresses.
func (idx *Index) Len() int { return len(idx.byAddress) }

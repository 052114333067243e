// Package ledger is an in-memory token balance book with nested snapshots.
//
// Every balance change is journaled so a snapshot can be reverted exactly, the same way
// an EVM state database undoes a failed call frame.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNegativeAmount      = errors.New("ledger: negative amount")
	ErrInvalidSnapshot     = errors.New("ledger: invalid snapshot id")
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

// balanceChange records the previous balance of an account.
type balanceChange struct {
	key  balanceKey
	prev *big.Int
}

type revision struct {
	id           int
	journalIndex int
}

// Ledger tracks balances per (token, account). It is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*big.Int

	journal        []balanceChange
	validRevisions []revision
	nextRevisionID int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*big.Int)}
}

// BalanceOf returns a copy of the balance of account in token.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[balanceKey{token, account}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount of token to account out of thin air.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{token, to}
	l.set(k, new(big.Int).Add(l.get(k), amount))
	return nil
}

// Transfer moves amount of token from one account to another.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey, toKey := balanceKey{token, from}, balanceKey{token, to}
	fromBalance := l.get(fromKey)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, token.Hex(), amount)
	}
	l.set(fromKey, new(big.Int).Sub(fromBalance, amount))
	l.set(toKey, new(big.Int).Add(l.get(toKey), amount))
	return nil
}

func (l *Ledger) get(k balanceKey) *big.Int {
	if b, ok := l.balances[k]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) set(k balanceKey, v *big.Int) {
	if len(l.validRevisions) > 0 {
		var prev *big.Int
		if b, ok := l.balances[k]; ok {
			prev = b
		}
		l.journal = append(l.journal, balanceChange{key: k, prev: prev})
	}
	l.balances[k] = v
}

// Snapshot returns an identifier for the current balances.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextRevisionID
	l.nextRevisionID++
	l.validRevisions = append(l.validRevisions, revision{id, len(l.journal)})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken. Snapshots taken after
// it become invalid.
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.findRevision(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	snapshot := l.validRevisions[idx].journalIndex

	for i := len(l.journal) - 1; i >= snapshot; i-- {
		change := l.journal[i]
		if change.prev == nil {
			delete(l.balances, change.key)
		} else {
			l.balances[change.key] = change.prev
		}
	}
	l.journal = l.journal[:snapshot]
	l.validRevisions = l.validRevisions[:idx]
	l.compact()
	return nil
}

// DiscardSnapshot keeps the changes made since the snapshot and releases it, together with any
// snapshot taken after it.
func (l *Ledger) DiscardSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.findRevision(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	l.validRevisions = l.validRevisions[:idx]
	l.compact()
	return nil
}

func (l *Ledger) findRevision(id int) (int, bool) {
	idx := sort.Search(len(l.validRevisions), func(i int) bool {
		return l.validRevisions[i].id >= id
	})
	if idx == len(l.validRevisions) || l.validRevisions[idx].id != id {
		return 0, false
	}
	return idx, true
}

// compact drops the journal once no snapshot can refer to it.
func (l *Ledger) compact() {
	if len(l.validRevisions) == 0 {
		l.journal = l.journal[:0]
	}
}

// Accounts returns every account holding a non-zero balance of token.
func (l *Ledger) Accounts(token common.Address) []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []common.Address
	for k, b := range l.balances {
		if k.token == token && b.Sign() > 0 {
			out = append(out, k.account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

package differ

import (
	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/protocols/clamm"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff summarizes the changes from FromBlock to ToBlock.
type StateDiff struct {
	ChainID   uint64              `json:"chainId"`
	Timestamp uint64              `json:"timestamp"`
	FromBlock uint64              `json:"fromBlock"`
	ToBlock   engine.BlockSummary `json:"toBlock"`
	Pools     clamm.SystemDiff    `json:"pools"`
}

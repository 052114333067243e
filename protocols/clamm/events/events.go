// Package events defines the records a pool emits after each committed operation.
package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names an event type. It is stable and used as a storage discriminator.
type Kind string

const (
	KindInitialize                         Kind = "initialize"
	KindMint                               Kind = "mint"
	KindBurn                               Kind = "burn"
	KindCollect                            Kind = "collect"
	KindSwap                               Kind = "swap"
	KindFlash                              Kind = "flash"
	KindIncreaseObservationCardinalityNext Kind = "increaseObservationCardinalityNext"
	KindSetFeeProtocol                     Kind = "setFeeProtocol"
	KindCollectProtocol                    Kind = "collectProtocol"
)

// Header is common to every event. Seq increases by one per event emitted by a pool.
type Header struct {
	Pool           common.Address `json:"pool"`
	Seq            uint64         `json:"seq"`
	BlockTimestamp uint32         `json:"blockTimestamp"`
}

// EventHeader returns the header.
func (h Header) EventHeader() Header { return h }

// Event is implemented by all event types.
type Event interface {
	EventHeader() Header
	Kind() Kind
}

type Initialize struct {
	Header
	SqrtPriceX96 *big.Int `json:"sqrtPriceX96"`
	Tick         int32    `json:"tick"`
}

type Mint struct {
	Header
	Sender    common.Address `json:"sender"`
	Owner     common.Address `json:"owner"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Amount    *big.Int       `json:"amount"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

type Burn struct {
	Header
	Owner     common.Address `json:"owner"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Amount    *big.Int       `json:"amount"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

type Collect struct {
	Header
	Owner     common.Address `json:"owner"`
	Recipient common.Address `json:"recipient"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

// Swap carries signed pool deltas: positive amounts were received by the pool.
type Swap struct {
	Header
	Sender       common.Address `json:"sender"`
	Recipient    common.Address `json:"recipient"`
	Amount0      *big.Int       `json:"amount0"`
	Amount1      *big.Int       `json:"amount1"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Liquidity    *big.Int       `json:"liquidity"`
	Tick         int32          `json:"tick"`
}

type Flash struct {
	Header
	Sender    common.Address `json:"sender"`
	Recipient common.Address `json:"recipient"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
	Paid0     *big.Int       `json:"paid0"`
	Paid1     *big.Int       `json:"paid1"`
}

type IncreaseObservationCardinalityNext struct {
	Header
	Old uint16 `json:"observationCardinalityNextOld"`
	New uint16 `json:"observationCardinalityNextNew"`
}

type SetFeeProtocol struct {
	Header
	FeeProtocol0Old uint8 `json:"feeProtocol0Old"`
	FeeProtocol1Old uint8 `json:"feeProtocol1Old"`
	FeeProtocol0New uint8 `json:"feeProtocol0New"`
	FeeProtocol1New uint8 `json:"feeProtocol1New"`
}

type CollectProtocol struct {
	Header
	Sender    common.Address `json:"sender"`
	Recipient common.Address `json:"recipient"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

func (Initialize) Kind() Kind                         { return KindInitialize }
func (Mint) Kind() Kind                               { return KindMint }
func (Burn) Kind() Kind                               { return KindBurn }
func (Collect) Kind() Kind                            { return KindCollect }
func (Swap) Kind() Kind                               { return KindSwap }
func (Flash) Kind() Kind                              { return KindFlash }
func (IncreaseObservationCardinalityNext) Kind() Kind { return KindIncreaseObservationCardinalityNext }
func (SetFeeProtocol) Kind() Kind                     { return KindSetFeeProtocol }
func (CollectProtocol) Kind() Kind                    { return KindCollectProtocol }

// Sink receives events. Emit is called synchronously after an operation commits and must not
// call back into the emitting pool.
type Sink interface {
	Emit(Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Recorder is an in-memory Sink, safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Drain returns the recorded events and clears the recorder.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Package storage persists pool events.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clamm-go/protocols/clamm/events"
)

// Writer defines a sink for batches of events.
type Writer interface {
	WriteEvents(ctx context.Context, evs []events.Event) error
}

// Record is the stored form of an event. Pool and Seq identify it.
type Record struct {
	Pool           common.Address  `json:"pool"`
	Seq            uint64          `json:"seq"`
	Kind           events.Kind     `json:"kind"`
	BlockTimestamp uint32          `json:"blockTimestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// NewRecord encodes ev.
func NewRecord(ev events.Event) (Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}
	h := ev.EventHeader()
	return Record{
		Pool:           h.Pool,
		Seq:            h.Seq,
		Kind:           ev.Kind(),
		BlockTimestamp: h.BlockTimestamp,
		Payload:        payload,
	}, nil
}

// Records encodes a batch, failing on the first event that cannot be encoded.
func Records(evs []events.Event) ([]Record, error) {
	out := make([]Record, 0, len(evs))
	for _, ev := range evs {
		r, err := NewRecord(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

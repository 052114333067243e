// Package client consumes the state stream published by streams/jsonrpc/server and rebuilds
// the full state locally by applying each diff to the last state it saw.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/clamm-go/differ"
	"github.com/defistate/clamm-go/engine"
	"github.com/defistate/clamm-go/patcher"
	"github.com/defistate/clamm-go/streams/jsonrpc/server"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to a previous state without modifying it.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// StatePatcher defaults to patcher.Patch.
	StatePatcher StatePatcherFunc
}

func (c *Config) validate() error {
	switch {
	case c.URL == "":
		return errors.New("config: URL is required")
	case c.BufferSize == 0:
		return errors.New("config: BufferSize must be greater than 0")
	case c.Logger == nil:
		return errors.New("config: Logger is required")
	}
	return nil
}

// envelope is the decoding side of server.SubscriptionEvent.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamProcessor turns raw subscription events into states. It holds the last state so that
// diffs can be applied, and does no networking.
type StreamProcessor struct {
	patch  StatePatcherFunc
	last   *engine.State
	out    chan *engine.State
	logger Logger
}

func NewStreamProcessor(logger Logger, bufferSize uint, statePatcher StatePatcherFunc) *StreamProcessor {
	if statePatcher == nil {
		statePatcher = patcher.Patch
	}
	return &StreamProcessor{
		patch:  statePatcher,
		out:    make(chan *engine.State, bufferSize),
		logger: logger,
	}
}

// State returns the channel new states are delivered on.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.out
}

// ProcessMessage decodes one subscription event and, if it yields a new state, delivers it.
// A diff that does not start at the last known block is dropped with a warning.
func (sp *StreamProcessor) ProcessMessage(raw json.RawMessage) error {
	received := time.Now()

	var ev envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("unmarshal subscription event: %w", err)
	}

	var (
		next *engine.State
		err  error
	)
	switch ev.Type {
	case server.EventFull:
		next, err = sp.full(ev.Payload)
	case server.EventDiff:
		next, err = sp.diff(ev.Payload)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err != nil || next == nil {
		return err
	}

	sp.logger.Debug("State processed",
		"type", ev.Type,
		"block", next.Block.Number,
		"pools", len(next.Pools),
		"latency_transport_ms", transportLatency(ev.SentAt, received).Milliseconds(),
		"latency_proc_ms", time.Since(received).Milliseconds(),
	)
	sp.last = next
	sp.out <- next
	return nil
}

func (sp *StreamProcessor) full(payload json.RawMessage) (*engine.State, error) {
	state := new(engine.State)
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, fmt.Errorf("unmarshal full state: %w", err)
	}
	if state.Schema != "" && state.Schema != engine.Schema {
		return nil, fmt.Errorf("unsupported schema %q", state.Schema)
	}
	return state, nil
}

func (sp *StreamProcessor) diff(payload json.RawMessage) (*engine.State, error) {
	d := new(differ.StateDiff)
	if err := json.Unmarshal(payload, d); err != nil {
		return nil, fmt.Errorf("unmarshal diff: %w", err)
	}
	if sp.last == nil {
		return nil, fmt.Errorf("diff %d->%d arrived before any full state", d.FromBlock, d.ToBlock.Number)
	}
	if d.FromBlock != sp.last.Block.Number {
		sp.logger.Warn("Dropping diff that does not extend the last known block",
			"last_known_block", sp.last.Block.Number,
			"diff_from_block", d.FromBlock,
			"diff_to_block", d.ToBlock.Number,
		)
		return nil, nil
	}

	next, err := sp.patch(sp.last, d)
	if err != nil {
		return nil, fmt.Errorf("patch state: %w", err)
	}
	return next, nil
}

func transportLatency(sentAt int64, received time.Time) time.Duration {
	if sentAt <= 0 {
		return 0
	}
	return received.Sub(time.Unix(0, sentAt))
}

// backoff doubles from min up to max between reconnect attempts.
type backoff struct {
	min, max, cur time.Duration
}

func (b *backoff) reset() { b.cur = b.min }

// wait sleeps for the current delay, then grows it. It reports false if ctx ended first.
func (b *backoff) wait(ctx context.Context) bool {
	t := time.NewTimer(b.cur)
	defer t.Stop()
	b.cur = min(b.cur*2, b.max)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Client keeps a subscription open, reconnecting with backoff, and feeds a StreamProcessor.
type Client struct {
	url       string
	processor *StreamProcessor
	retry     backoff
	errCh     chan error
	logger    Logger
}

// NewClient starts a client that runs until ctx is done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		url:       cfg.URL,
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher),
		retry:     backoff{min: time.Second, max: 30 * time.Second},
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	c.retry.reset()
	go c.loop(ctx)
	return c, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.errCh)

	for ctx.Err() == nil {
		err := c.session(ctx)
		if ctx.Err() != nil {
			break
		}
		c.logger.Error("Stream session ended, will reconnect", "url", c.url, "error", err, "delay", c.retry.cur)
		if !c.retry.wait(ctx) {
			break
		}
	}
	c.logger.Info("Client context canceled, shutting down.")
}

// session dials, subscribes and processes messages until the subscription or ctx ends.
func (c *Client) session(ctx context.Context) error {
	c.logger.Info("Connecting to state stream", "url", c.url)
	conn, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	messages := make(chan json.RawMessage)
	sub, err := conn.Subscribe(ctx, server.RpcNamespace, messages, server.StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Subscribed to state stream")
	c.retry.reset()
	for {
		select {
		case msg := <-messages:
			if err := c.processor.ProcessMessage(msg); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

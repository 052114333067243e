// Package server publishes engine states over a JSON-RPC websocket subscription. Each subscriber
// receives the latest full state, then one diff per published state.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/clamm-go/differ"
	"github.com/defistate/clamm-go/engine"
)

const (
	// RpcNamespace is the namespace under which the publisher is registered.
	RpcNamespace                  = "clamm"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	EventFull = "full"
	EventDiff = "diff"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Differ computes the diff between consecutive states.
type Differ interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// SubscriptionEvent is the wrapper object sent to subscribers.
type SubscriptionEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

// Config holds the configuration for the publisher.
type Config struct {
	Differ Differ
	Logger Logger
	// BufferSize is the number of events queued per subscriber. A subscriber that falls further
	// behind is dropped and must resubscribe.
	BufferSize uint
}

func (c *Config) validate() error {
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

type subscriber struct {
	events chan *SubscriptionEvent
}

// Publisher fans states out to subscribers.
type Publisher struct {
	differ     Differ
	logger     Logger
	bufferSize uint

	mu     sync.Mutex
	last   *engine.State
	subs   map[rpc.ID]*subscriber
	closed bool
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		differ:     cfg.Differ,
		logger:     cfg.Logger,
		bufferSize: cfg.BufferSize,
		subs:       make(map[rpc.ID]*subscriber),
	}, nil
}

// Publish makes state the latest state and sends its diff from the previous one to every
// subscriber. States must be published in block order.
func (p *Publisher) Publish(state *engine.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && len(p.subs) > 0 {
		diff, err := p.differ.Diff(p.last, state)
		if err != nil {
			return err
		}
		p.broadcast(EventDiff, diff)
	}
	p.last = state
	return nil
}

// Subscribers returns the number of active subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close drops every subscriber.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs {
		close(sub.events)
		delete(p.subs, id)
	}
	p.closed = true
}

// broadcast must be called with mu held.
func (p *Publisher) broadcast(kind string, payload any) {
	ev := &SubscriptionEvent{Type: kind, Payload: payload, SentAt: time.Now().UnixNano()}
	for id, sub := range p.subs {
		select {
		case sub.events <- ev:
		default:
			p.logger.Warn("Subscriber fell behind, dropping it", "id", id)
			close(sub.events)
			delete(p.subs, id)
		}
	}
}

func (p *Publisher) add(id rpc.ID) (*subscriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("publisher closed")
	}

	sub := &subscriber{events: make(chan *SubscriptionEvent, p.bufferSize)}
	if p.last != nil {
		sub.events <- &SubscriptionEvent{Type: EventFull, Payload: p.last, SentAt: time.Now().UnixNano()}
	}
	p.subs[id] = sub
	return sub, nil
}

func (p *Publisher) remove(id rpc.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		close(sub.events)
		delete(p.subs, id)
	}
}

// api is the RPC receiver; its exported methods become clamm_* endpoints.
type api struct {
	p *Publisher
}

// SubscribeStateStream streams the latest full state followed by diffs.
func (a *api) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	sub, err := a.p.add(rpcSub.ID)
	if err != nil {
		return nil, err
	}
	a.p.logger.Info("Subscriber connected", "id", rpcSub.ID)

	go func() {
		defer a.p.remove(rpcSub.ID)
		for {
			select {
			case ev, ok := <-sub.events:
				if !ok {
					return
				}
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					a.p.logger.Warn("Error notifying subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				a.p.logger.Info("Subscriber disconnected", "id", rpcSub.ID)
				return
			}
		}
	}()
	return rpcSub, nil
}

// NewRPCServer returns an RPC server exposing p under RpcNamespace. Serve it over websockets with
// server.WebsocketHandler.
func NewRPCServer(p *Publisher) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, &api{p: p}); err != nil {
		return nil, err
	}
	return server, nil
}

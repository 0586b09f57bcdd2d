package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nhdewitt/telemon/internal/protocol"
	"github.com/nhdewitt/telemon/internal/snapshot"
)

// SnapshotBuilder produces one fresh snapshot per call.
type SnapshotBuilder interface {
	Build(ctx context.Context) (protocol.Snapshot, error)
}

// Fanout selects who receives the snapshot built for a request_update.
type Fanout string

const (
	// FanoutRequester answers only the subscriber that asked.
	FanoutRequester Fanout = "requester"
	// FanoutAll publishes the on-demand snapshot to every subscriber.
	FanoutAll Fanout = "all"
)

func ParseFanout(s string) (Fanout, error) {
	switch Fanout(s) {
	case "", FanoutRequester:
		return FanoutRequester, nil
	case FanoutAll:
		return FanoutAll, nil
	default:
		return "", fmt.Errorf("unknown fan-out %q (want %q or %q)", s, FanoutRequester, FanoutAll)
	}
}

const DefaultInterval = time.Second

type Config struct {
	Interval time.Duration
	// HeartbeatInterval disables heartbeats when zero.
	HeartbeatInterval time.Duration
	OnDemandFanout    Fanout
	SnapshotOnConnect bool
}

// Broadcaster owns the subscriber registry and delivers snapshots on a
// fixed cadence, on request, and on connect.
type Broadcaster struct {
	cfg      Config
	builder  SnapshotBuilder
	registry *Registry

	newTicker   func(time.Duration) Ticker
	now         func() time.Time
	lastSuccess atomic.Pointer[time.Time]
}

func New(builder SnapshotBuilder, cfg Config) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OnDemandFanout == "" {
		cfg.OnDemandFanout = FanoutRequester
	}
	return &Broadcaster{
		cfg:       cfg,
		builder:   builder,
		registry:  NewRegistry(),
		newTicker: newRealTicker,
		now:       time.Now,
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broadcaster) Subscribers() int {
	return b.registry.Len()
}

// Run publishes an update every Interval until ctx is cancelled. A failed
// sample is logged and skipped.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := b.newTicker(b.cfg.Interval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if b.cfg.HeartbeatInterval > 0 {
		hb := b.newTicker(b.cfg.HeartbeatInterval)
		defer hb.Stop()
		heartbeat = hb.C()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			b.tick(ctx)
		case <-heartbeat:
			b.sendHeartbeat()
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic recovered in cadence tick: %v", r)
		}
	}()

	snap, err := b.build(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("cadence sample failed: %v", err)
		}
		return
	}

	b.publish(protocol.UpdateMessage(snap))
}

func (b *Broadcaster) sendHeartbeat() {
	b.publish(protocol.Message{
		Event: protocol.EventHeartbeat,
		Data: protocol.Heartbeat{
			Timestamp:   b.now(),
			LastSuccess: b.lastSuccess.Load(),
		},
	})
}

func (b *Broadcaster) build(ctx context.Context) (protocol.Snapshot, error) {
	snap, err := b.builder.Build(ctx)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	ts := b.now()
	b.lastSuccess.Store(&ts)
	return snap, nil
}

func (b *Broadcaster) publish(msg protocol.Message) {
	for _, err := range b.registry.ForEachSend(msg) {
		if errors.Is(err, ErrClosed) {
			b.registry.Remove(err.SubscriberID)
		}
		log.Printf("broadcast %s: %v", msg.Event, err)
	}
}

// HandleConnect acknowledges a new subscriber and, when SnapshotOnConnect
// is set, sends it one immediate update. The subscriber joins the registry
// only afterwards, so nothing from the cadence can overtake these.
func (b *Broadcaster) HandleConnect(ctx context.Context, sub Subscriber) {
	log.Printf("subscriber %s connected", sub.ID())

	if err := sub.Send(protocol.AckMessage()); err != nil {
		log.Printf("ack to %s: %v", sub.ID(), err)
	}

	if b.cfg.SnapshotOnConnect {
		b.answer(ctx, sub)
	}

	b.registry.Add(sub)
}

// HandleRequestUpdate builds one snapshot for sub's request_update. A failed
// build is reported to sub as an error signal.
func (b *Broadcaster) HandleRequestUpdate(ctx context.Context, sub Subscriber) {
	if b.cfg.OnDemandFanout == FanoutAll {
		snap, err := b.build(ctx)
		if err != nil {
			b.sendError(sub, err)
			return
		}
		b.publish(protocol.UpdateMessage(snap))
		return
	}

	b.answer(ctx, sub)
}

func (b *Broadcaster) HandleDisconnect(sub Subscriber) {
	if b.registry.Remove(sub.ID()) {
		log.Printf("subscriber %s disconnected", sub.ID())
	}
}

// HandleMessage dispatches one inbound frame from sub.
func (b *Broadcaster) HandleMessage(ctx context.Context, sub Subscriber, data []byte) {
	var msg protocol.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.send(sub, protocol.ErrorMessage("invalid message", ""))
		return
	}

	switch msg.Event {
	case protocol.EventRequestUpdate:
		b.HandleRequestUpdate(ctx, sub)
	default:
		b.send(sub, protocol.ErrorMessage("unknown event: "+string(msg.Event), ""))
	}
}

// answer sends a fresh update, or the build error, to sub alone.
func (b *Broadcaster) answer(ctx context.Context, sub Subscriber) {
	snap, err := b.build(ctx)
	if err != nil {
		b.sendError(sub, err)
		return
	}
	b.send(sub, protocol.UpdateMessage(snap))
}

func (b *Broadcaster) sendError(sub Subscriber, err error) {
	log.Printf("on-demand sample for %s failed: %v", sub.ID(), err)
	stage, _ := snapshot.StageOf(err)
	b.send(sub, protocol.ErrorMessage(err.Error(), string(stage)))
}

func (b *Broadcaster) send(sub Subscriber, msg protocol.Message) {
	if err := sub.Send(msg); err != nil {
		log.Printf("%s to %s: %v", msg.Event, sub.ID(), err)
	}
}

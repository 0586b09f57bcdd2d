package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhdewitt/telemon/internal/protocol"
)

type fakeSub struct {
	id  string
	err error

	mu   sync.Mutex
	msgs []protocol.Message
	got  chan protocol.Message
}

func newFakeSub(id string) *fakeSub {
	return &fakeSub{id: id, got: make(chan protocol.Message, 100)}
}

func (s *fakeSub) ID() string { return s.id }

func (s *fakeSub) Send(msg protocol.Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	select {
	case s.got <- msg:
	default:
	}
	return nil
}

func (s *fakeSub) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

func (s *fakeSub) events() []protocol.Event {
	var out []protocol.Event
	for _, m := range s.messages() {
		out = append(out, m.Event)
	}
	return out
}

func (s *fakeSub) count(ev protocol.Event) int {
	n := 0
	for _, e := range s.events() {
		if e == ev {
			n++
		}
	}
	return n
}

// waitFor blocks until sub has received a message with the given event.
func (s *fakeSub) waitFor(t *testing.T, ev protocol.Event) protocol.Message {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case msg := <-s.got:
			if msg.Event == ev {
				return msg
			}
		case <-timeout:
			t.Fatalf("%s: timed out waiting for %s (have %v)", s.id, ev, s.events())
		}
	}
}

// scriptedBuilder answers call n with script(n). Calls are numbered from 1.
type scriptedBuilder struct {
	script func(n int) (protocol.Snapshot, error)
	calls  atomic.Int32
	called chan int
}

func newScriptedBuilder(script func(n int) (protocol.Snapshot, error)) *scriptedBuilder {
	return &scriptedBuilder{script: script, called: make(chan int, 100)}
}

func okBuilder() *scriptedBuilder {
	return newScriptedBuilder(func(n int) (protocol.Snapshot, error) {
		return protocol.Snapshot{CPUPerCore: []float64{float64(n)}}, nil
	})
}

func (b *scriptedBuilder) Build(ctx context.Context) (protocol.Snapshot, error) {
	n := int(b.calls.Add(1))
	defer func() {
		select {
		case b.called <- n:
		default:
		}
	}()
	return b.script(n)
}

func (b *scriptedBuilder) waitCalls(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case got := <-b.called:
			if got >= n {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for build call %d (have %d)", n, b.calls.Load())
		}
	}
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("timed out delivering tick")
	}
}

type harness struct {
	b         *Broadcaster
	builder   *scriptedBuilder
	cadence   *manualTicker
	heartbeat *manualTicker
	cancel    context.CancelFunc
	done      chan struct{}
}

// newHarness starts Run with hand-driven tickers. The cadence ticker is
// created for cfg.Interval and the heartbeat ticker for
// cfg.HeartbeatInterval.
func newHarness(t *testing.T, builder *scriptedBuilder, cfg Config) *harness {
	t.Helper()

	h := &harness{
		builder:   builder,
		cadence:   &manualTicker{ch: make(chan time.Time)},
		heartbeat: &manualTicker{ch: make(chan time.Time)},
		done:      make(chan struct{}),
	}
	h.b = New(builder, cfg)

	var created atomic.Int32
	h.b.newTicker = func(time.Duration) Ticker {
		if created.Add(1) == 1 {
			return h.cadence
		}
		return h.heartbeat
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		h.b.Run(ctx)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhdewitt/telemon/internal/protocol"
)

func TestConfig_WebSocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:5000", "ws://localhost:5000/ws", false},
		{"https://mon.example.com", "wss://mon.example.com/ws", false},
		{"http://host:5000/telemon/", "ws://host:5000/telemon/ws", false},
		{"ws://host:1", "ws://host:1/ws", false},
		{"ftp://host", "", true},
		{"localhost:5000", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := Config{BaseURL: tt.base}.WebSocketURL()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("WebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()

	if rc.MaxAttempts != 0 {
		t.Errorf("MaxAttempts: got %d, want 0 (forever)", rc.MaxAttempts)
	}
	if rc.InitialDelay != 1*time.Second {
		t.Errorf("InitialDelay: got %v, want 1s", rc.InitialDelay)
	}
	if rc.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay: got %v, want 30s", rc.MaxDelay)
	}
	if rc.Multiplier != 2.0 {
		t.Errorf("Multiplier: got %f, want 2.0", rc.Multiplier)
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	rc := RetryConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{5, 10 * time.Second},
	}

	for _, tt := range tests {
		got := rc.Delay(tt.attempt)
		if got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestFetchStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/static" {
			t.Errorf("path = %s, want /api/static", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_disk":5000,"total_memory":1000}`))
	}))
	defer srv.Close()

	got, err := New(Config{BaseURL: srv.URL + "/"}).FetchStatic(context.Background())
	if err != nil {
		t.Fatalf("FetchStatic() error: %v", err)
	}
	want := protocol.StaticTotals{TotalDisk: 5000, TotalMemory: 1000}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFetchStatic_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "500"},
		{"bad json", http.StatusOK, `not json`, "decode totals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).FetchStatic(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		check   func(t *testing.T, ev any)
		wantErr bool
	}{
		{
			name:  "update",
			frame: `{"event":"update","data":{"cpu_per_core":[1.5],"memory":{"used":1,"available":2,"percent":3},"processes":[],"disk":{}}}`,
			check: func(t *testing.T, ev any) {
				s, ok := ev.(protocol.Snapshot)
				if !ok {
					t.Fatalf("got %T, want protocol.Snapshot", ev)
				}
				if len(s.CPUPerCore) != 1 || s.CPUPerCore[0] != 1.5 {
					t.Errorf("CPUPerCore = %v", s.CPUPerCore)
				}
			},
		},
		{
			name:  "connection success",
			frame: `{"event":"connection_success","data":{"message":"Connection successful"}}`,
			check: func(t *testing.T, ev any) {
				if ev != (protocol.ConnectionAck{Message: protocol.ConnectionMessage}) {
					t.Errorf("got %#v", ev)
				}
			},
		},
		{
			name:  "error",
			frame: `{"event":"error","data":{"message":"denied","stage":"disk"}}`,
			check: func(t *testing.T, ev any) {
				if ev != (protocol.ErrorPayload{Message: "denied", Stage: "disk"}) {
					t.Errorf("got %#v", ev)
				}
			},
		},
		{
			name:  "heartbeat",
			frame: `{"event":"heartbeat","data":{"timestamp":"2024-01-02T03:04:05Z"}}`,
			check: func(t *testing.T, ev any) {
				hb, ok := ev.(protocol.Heartbeat)
				if !ok {
					t.Fatalf("got %T, want protocol.Heartbeat", ev)
				}
				if hb.LastSuccess != nil {
					t.Error("LastSuccess should be nil")
				}
			},
		},
		{
			name:  "unknown event ignored",
			frame: `{"event":"something_else"}`,
			check: func(t *testing.T, ev any) {
				if ev != nil {
					t.Errorf("got %#v, want nil", ev)
				}
			},
		},
		{name: "invalid json", frame: `{`, wantErr: true},
		{name: "bad payload", frame: `{"event":"update","data":"nope"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

// fakeServer speaks the server side of the channel. Every connection gets
// an ack; each request_update is answered with an update. The first
// dropFirst connections are closed right after the ack.
type fakeServer struct {
	*httptest.Server
	conns     atomic.Int32
	requests  atomic.Int32
	dropFirst int32
}

func newFakeServer(t *testing.T, dropFirst int32) *fakeServer {
	t.Helper()

	fs := &fakeServer{dropFirst: dropFirst}
	upgrader := websocket.Upgrader{}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := fs.conns.Add(1)
		if err := conn.WriteJSON(protocol.AckMessage()); err != nil {
			return
		}
		if n <= fs.dropFirst {
			return
		}

		for {
			var msg protocol.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event != protocol.EventRequestUpdate {
				continue
			}
			fs.requests.Add(1)
			snap := protocol.Snapshot{
				CPUPerCore: []float64{12.5},
				Processes:  []protocol.ProcessInfo{},
			}
			if err := conn.WriteJSON(protocol.UpdateMessage(snap)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func collect() (Handler, <-chan any) {
	ch := make(chan any, 64)
	return func(ev any) {
		select {
		case ch <- ev:
		default:
		}
	}, ch
}

func waitEvent[T any](t *testing.T, ch <-chan any) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func runClient(t *testing.T, c *Client, handle Handler) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, handle)
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func TestClient_Run(t *testing.T) {
	srv := newFakeServer(t, 0)

	c := New(Config{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond})
	handle, events := collect()
	cancel, done := runClient(t, c, handle)

	ack := waitEvent[protocol.ConnectionAck](t, events)
	if ack.Message != protocol.ConnectionMessage {
		t.Errorf("ack message = %q", ack.Message)
	}

	snap := waitEvent[protocol.Snapshot](t, events)
	if len(snap.CPUPerCore) != 1 || snap.CPUPerCore[0] != 12.5 {
		t.Errorf("CPUPerCore = %v", snap.CPUPerCore)
	}
	if srv.requests.Load() == 0 {
		t.Error("server saw no request_update")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_Run_NoPolling(t *testing.T) {
	srv := newFakeServer(t, 0)

	c := New(Config{BaseURL: srv.URL})
	handle, events := collect()
	runClient(t, c, handle)

	waitEvent[protocol.ConnectionAck](t, events)
	time.Sleep(50 * time.Millisecond)
	if n := srv.requests.Load(); n != 0 {
		t.Errorf("server saw %d request_update with polling disabled", n)
	}
}

func TestClient_Run_Reconnects(t *testing.T) {
	srv := newFakeServer(t, 1)

	c := New(Config{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond})
	c.RetryConfig = RetryConfig{InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	handle, events := collect()
	runClient(t, c, handle)

	disc := waitEvent[Disconnected](t, events)
	if disc.Err == nil {
		t.Error("Disconnected.Err should carry the session error")
	}
	if disc.Retry != time.Millisecond {
		t.Errorf("Retry = %v, want first backoff of 1ms", disc.Retry)
	}

	waitEvent[protocol.Snapshot](t, events)
	if n := srv.conns.Load(); n < 2 {
		t.Errorf("connections = %d, want at least 2", n)
	}
}

func TestClient_Run_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	c.RetryConfig = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	var disconnects atomic.Int32
	err := c.Run(context.Background(), func(ev any) {
		if _, ok := ev.(Disconnected); ok {
			disconnects.Add(1)
		}
	})
	if err == nil {
		t.Fatal("expected error once attempts are exhausted")
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Errorf("error = %q", err)
	}
	if n := disconnects.Load(); n != 2 {
		t.Errorf("Disconnected events = %d, want 2", n)
	}
}

func TestClient_Run_InvalidURL(t *testing.T) {
	err := New(Config{BaseURL: "ftp://nowhere"}).Run(context.Background(), func(any) {})
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestClient_Run_CanceledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	c.RetryConfig = RetryConfig{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Run(ctx, func(ev any) {
		if _, ok := ev.(Disconnected); ok {
			cancel()
		}
	})
	if err != nil {
		t.Errorf("Run() = %v, want nil on cancel", err)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Error("context should be canceled")
	}
}

func TestRequestUpdateFrame(t *testing.T) {
	data, err := json.Marshal(protocol.Message{Event: protocol.EventRequestUpdate})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"event":"request_update"}` {
		t.Errorf("request frame = %s", data)
	}
}

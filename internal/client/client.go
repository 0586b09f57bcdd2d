package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhdewitt/telemon/internal/protocol"
)

// Config holds the runtime configuration
type Config struct {
	BaseURL      string
	PollInterval time.Duration
}

// WebSocketURL maps BaseURL onto the /ws endpoint, switching http to ws
// and https to wss.
func (c Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", c.BaseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

type RetryConfig struct {
	// MaxAttempts of zero retries forever.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (rc RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	delay := float64(rc.InitialDelay)
	for range attempt {
		delay *= rc.Multiplier
	}

	if time.Duration(delay) > rc.MaxDelay {
		return rc.MaxDelay
	}
	return time.Duration(delay)
}

// Disconnected is delivered when a session ends and the client is about to
// reconnect after Retry.
type Disconnected struct {
	Err   error
	Retry time.Duration
}

// Handler receives one decoded server event: protocol.ConnectionAck,
// protocol.Snapshot, protocol.ErrorPayload, protocol.Heartbeat or
// Disconnected. It is called from the client's own goroutines and must not
// block for long.
type Handler func(ev any)

// Client consumes the telemetry channel of one telemon server.
type Client struct {
	Config      Config
	HTTP        *http.Client
	Dialer      *websocket.Dialer
	RetryConfig RetryConfig
}

func New(cfg Config) *Client {
	return &Client{
		Config:      cfg,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		Dialer:      websocket.DefaultDialer,
		RetryConfig: DefaultRetryConfig(),
	}
}

// FetchStatic queries GET /api/static.
func (c *Client) FetchStatic(ctx context.Context) (protocol.StaticTotals, error) {
	var totals protocol.StaticTotals

	endpoint := strings.TrimSuffix(c.Config.BaseURL, "/") + "/api/static"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return totals, fmt.Errorf("request creation failed: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return totals, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return totals, fmt.Errorf("server rejected with status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&totals); err != nil {
		return totals, fmt.Errorf("decode totals: %w", err)
	}
	return totals, nil
}

// Run keeps a session open until ctx is canceled, reconnecting with
// backoff. The attempt counter resets once a session has connected. Run
// returns nil on cancellation and an error only when MaxAttempts is
// exhausted.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	wsURL, err := c.Config.WebSocketURL()
	if err != nil {
		return err
	}

	attempt := 0
	for {
		connected, err := c.session(ctx, wsURL, handle)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		attempt++

		if c.RetryConfig.MaxAttempts > 0 && attempt >= c.RetryConfig.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := c.RetryConfig.Delay(attempt - 1)
		handle(Disconnected{Err: err, Retry: delay})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection. It reads events on a separate goroutine
// while this one owns all writes.
func (c *Client) session(ctx context.Context, wsURL string, handle Handler) (bool, error) {
	conn, _, err := c.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	readErr := make(chan error, 1)
	go func() {
		readErr <- readEvents(conn, handle)
	}()

	var poll <-chan time.Time
	if c.Config.PollInterval > 0 {
		t := time.NewTicker(c.Config.PollInterval)
		defer t.Stop()
		poll = t.C
	}

	request := protocol.Message{Event: protocol.EventRequestUpdate}
	for {
		select {
		case err := <-readErr:
			return true, err
		case <-poll:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(request); err != nil {
				conn.Close()
				<-readErr
				return true, fmt.Errorf("request update: %w", err)
			}
		}
	}
}

func readEvents(conn *websocket.Conn, handle Handler) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := decodeEvent(data)
		if err != nil {
			log.Printf("client: %v", err)
			continue
		}
		if ev != nil {
			handle(ev)
		}
	}
}

// decodeEvent turns one text frame into a typed event. Unknown events
// decode to nil.
func decodeEvent(data []byte) (any, error) {
	var raw protocol.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	var (
		ev  any
		err error
	)
	switch raw.Event {
	case protocol.EventUpdate:
		var s protocol.Snapshot
		err = json.Unmarshal(raw.Data, &s)
		ev = s
	case protocol.EventConnectionSuccess:
		var a protocol.ConnectionAck
		err = json.Unmarshal(raw.Data, &a)
		ev = a
	case protocol.EventError:
		var p protocol.ErrorPayload
		err = json.Unmarshal(raw.Data, &p)
		ev = p
	case protocol.EventHeartbeat:
		var h protocol.Heartbeat
		err = json.Unmarshal(raw.Data, &h)
		ev = h
	default:
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", raw.Event, err)
	}
	return ev, nil
}

package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhdewitt/telemon/internal/broadcast"
	"github.com/nhdewitt/telemon/internal/protocol"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultSendBuffer   = 16
)

type Config struct {
	Bind string
	Port int
	// AllowedOrigins is checked against the Origin header of WebSocket
	// upgrades and echoed in Access-Control-Allow-Origin. "*" allows any.
	AllowedOrigins []string
	PingInterval   time.Duration
	// SendBuffer is the per-subscriber outgoing queue length.
	SendBuffer int
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Hub is the event responder behind /ws.
type Hub interface {
	HandleConnect(ctx context.Context, sub broadcast.Subscriber)
	HandleMessage(ctx context.Context, sub broadcast.Subscriber, data []byte)
	HandleDisconnect(sub broadcast.Subscriber)
	Subscribers() int
}

// Totaler serves GET /api/static.
type Totaler interface {
	Totals(ctx context.Context) (protocol.StaticTotals, error)
}

type Server struct {
	Config Config
	Hub    Hub
	Totals Totaler
	Router *http.ServeMux

	upgrader websocket.Upgrader
}

func New(cfg Config, hub Hub, totals Totaler) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}

	s := &Server{
		Config: cfg,
		Hub:    hub,
		Totals: totals,
		Router: http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/static", s.handleStatic)
	s.Router.HandleFunc("/health", s.handleHealth)
	s.Router.HandleFunc("/ws", s.handleWebSocket)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// Open WebSocket connections are closed through their request context.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Config.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("telemon listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

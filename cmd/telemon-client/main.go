package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	xterm "github.com/charmbracelet/x/term"
	"golang.org/x/term"

	"github.com/nhdewitt/telemon/internal/client"
	"github.com/nhdewitt/telemon/internal/protocol"
)

func main() {
	server := flag.String("server", envOr("TELEMON_SERVER", "http://localhost:5000"), "telemon server base URL")
	poll := flag.Duration("poll", 1*time.Second, "request_update interval (0 disables polling)")
	top := flag.Int("top", client.DefaultTopProcesses, "number of processes to show")
	retries := flag.Int("retries", 0, "connection attempts before giving up (0 retries forever)")
	plain := flag.Bool("plain", false, "print one frame per update instead of the interactive view")
	flag.Parse()

	c := client.New(client.Config{BaseURL: *server, PollInterval: *poll})
	c.RetryConfig.MaxAttempts = *retries

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var totals *protocol.StaticTotals
	if t, err := c.FetchStatic(ctx); err != nil {
		log.Printf("static totals unavailable: %v", err)
	} else {
		totals = &t
	}

	interactive := !*plain && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		err := runInteractive(ctx, stop, c, client.NewModel(*server, totals, *top))
		if err != nil {
			log.Fatalf("client: %v", err)
		}
		return
	}

	frame := client.Frame{Server: *server, Totals: totals, Top: *top}
	// -plain on a terminal still sizes the bars to the window.
	if w, _, err := xterm.GetSize(os.Stdout.Fd()); err == nil {
		frame.Width = w
	}
	if err := runPlain(ctx, c, frame); err != nil {
		log.Fatalf("client: %v", err)
	}
}

// runInteractive drives the full-screen view. Quitting the view cancels the
// connection and the connection giving up quits the view.
func runInteractive(ctx context.Context, cancel context.CancelFunc, c *client.Client, m client.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	runErr := make(chan error, 1)
	go func() {
		err := c.Run(ctx, func(ev any) { p.Send(ev) })
		runErr <- err
		if err != nil {
			p.Quit()
		}
	}()

	_, err := p.Run()
	cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running view: %w", err)
	}
	return <-runErr
}

// runPlain prints a frame for every update. Used when stdout is not a
// terminal, so output can be piped or logged.
func runPlain(ctx context.Context, c *client.Client, frame client.Frame) error {
	return c.Run(ctx, func(ev any) {
		switch ev := ev.(type) {
		case protocol.ConnectionAck:
			log.Printf("connected to %s: %s", frame.Server, ev.Message)
		case protocol.Snapshot:
			frame.Snapshot = &ev
			frame.Status = ev.Timestamp.Format(time.RFC3339)
			fmt.Println(frame.Render())
			fmt.Println()
		case protocol.ErrorPayload:
			log.Printf("server error (stage %q): %s", ev.Stage, ev.Message)
		case client.Disconnected:
			log.Printf("disconnected: %v (retrying in %v)", ev.Err, ev.Retry)
		}
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

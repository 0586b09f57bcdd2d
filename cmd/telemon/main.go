package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhdewitt/telemon/internal/broadcast"
	"github.com/nhdewitt/telemon/internal/collector"
	"github.com/nhdewitt/telemon/internal/config"
	"github.com/nhdewitt/telemon/internal/server"
	"github.com/nhdewitt/telemon/internal/snapshot"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	host, err := collector.New(cfg.Collector)
	if err != nil {
		log.Fatalf("collector: %v", err)
	}

	hostname, _ := os.Hostname()
	builder := snapshot.New(host, snapshot.Options{
		DiskPath:          cfg.DiskPath,
		IncludeCPUAverage: cfg.IncludeCPUAverage,
		Timeout:           cfg.CollectTimeout,
		Hostname:          hostname,
	})

	fanout, _ := broadcast.ParseFanout(cfg.OnDemandFanout)
	hub := broadcast.New(builder, broadcast.Config{
		Interval:          cfg.Interval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		OnDemandFanout:    fanout,
		SnapshotOnConnect: cfg.SendSnapshotOnConnect,
	})

	srv := server.New(server.Config{
		Bind:           cfg.Bind,
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		SendBuffer:     cfg.SubscriberBuffer,
	}, hub, builder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("sampling with %s every %v (on-demand fan-out: %s)", cfg.Collector, cfg.Interval, fanout)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server exited: %v", err)
	}

	<-done
	log.Println("telemon stopped")
}

// loadConfig layers command-line flags over the file and environment.
// Only flags given explicitly override.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("telemon", flag.ContinueOnError)

	path := fs.String("config", envOr("TELEMON_CONFIG", "telemon.yaml"), "path to YAML config file")
	bind := fs.String("bind", "", "address to bind")
	port := fs.Int("port", 0, "port to listen on")
	interval := fs.Duration("interval", 0, "cadence between broadcast updates")
	kind := fs.String("collector", "", "metrics collector: gopsutil or procfs")
	fanout := fs.String("fanout", "", "request_update fan-out: requester or all")
	disk := fs.String("disk", "", "volume reported in disk stats")
	avg := fs.Bool("cpu-average", false, "include cpu_average in updates")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bind":
			cfg.Bind = *bind
		case "port":
			cfg.Port = *port
		case "interval":
			cfg.Interval = *interval
		case "collector":
			cfg.Collector = *kind
		case "fanout":
			cfg.OnDemandFanout = *fanout
		case "disk":
			cfg.DiskPath = *disk
		case "cpu-average":
			cfg.IncludeCPUAverage = *avg
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

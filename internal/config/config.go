package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nhdewitt/telemon/internal/broadcast"
	"github.com/nhdewitt/telemon/internal/collector"
)

// EnvPrefix prefixes every environment override, e.g. TELEMON_PORT.
const EnvPrefix = "TELEMON_"

// Config holds the server settings. Sources apply in order: defaults, the
// YAML file, environment (including .env), then command-line flags.
type Config struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`

	Interval       time.Duration `yaml:"interval"`
	CollectTimeout time.Duration `yaml:"collect_timeout"`
	Collector      string        `yaml:"collector"`
	DiskPath       string        `yaml:"disk_path"`

	IncludeCPUAverage     bool          `yaml:"include_cpu_average"`
	SendSnapshotOnConnect bool          `yaml:"send_snapshot_on_connect"`
	OnDemandFanout        string        `yaml:"on_demand_fanout"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`

	AllowedOrigins   []string      `yaml:"allowed_origins"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

func Default() *Config {
	return &Config{
		Port:                  5000,
		Interval:              time.Second,
		CollectTimeout:        3 * time.Second,
		Collector:             collector.KindGopsutil,
		DiskPath:              "/",
		SendSnapshotOnConnect: true,
		OnDemandFanout:        string(broadcast.FanoutRequester),
		AllowedOrigins:        []string{"*"},
		SubscriberBuffer:      16,
		PingInterval:          30 * time.Second,
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. A missing file is not an error. Variables from a .env file
// in the working directory are loaded first without overriding the real
// environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// applyEnv overrides fields from TELEMON_* variables. Durations accept Go
// syntax ("500ms") or a bare number of seconds.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	env := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env(key); ok {
			b, err := parseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("BIND", &c.Bind)
	integer("PORT", &c.Port)
	duration("INTERVAL", &c.Interval)
	duration("COLLECT_TIMEOUT", &c.CollectTimeout)
	str("COLLECTOR", &c.Collector)
	str("DISK_PATH", &c.DiskPath)
	boolean("INCLUDE_CPU_AVERAGE", &c.IncludeCPUAverage)
	boolean("SEND_SNAPSHOT_ON_CONNECT", &c.SendSnapshotOnConnect)
	str("ON_DEMAND_FANOUT", &c.OnDemandFanout)
	duration("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	integer("SUBSCRIBER_BUFFER", &c.SubscriberBuffer)
	duration("PING_INTERVAL", &c.PingInterval)

	if v, ok := env("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.CollectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("collect_timeout must be positive, got %v", c.CollectTimeout))
	}
	switch c.Collector {
	case collector.KindGopsutil, collector.KindProcFS:
	default:
		errs = append(errs, fmt.Errorf("unknown collector %q", c.Collector))
	}
	if c.DiskPath == "" {
		errs = append(errs, errors.New("disk_path must not be empty"))
	}
	if _, err := broadcast.ParseFanout(c.OnDemandFanout); err != nil {
		errs = append(errs, err)
	}
	if c.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("heartbeat_interval must not be negative, got %v", c.HeartbeatInterval))
	}
	// Room for the connection ack and the initial update.
	if c.SubscriberBuffer < 2 {
		errs = append(errs, fmt.Errorf("subscriber_buffer must be at least 2, got %d", c.SubscriberBuffer))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("ping_interval must be positive, got %v", c.PingInterval))
	}

	return errors.Join(errs...)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Mode string

const (
	ModeCohort  Mode = "cohort"
	ModeTraffic Mode = "traffic"
	ModePool    Mode = "pool"
)

type Workload string

const (
	WorkloadPing  Workload = "ping"
	WorkloadMixed Workload = "mixed"
)

type Config struct {
	Mode     Mode          `yaml:"mode"`
	Headless bool          `yaml:"headless"`
	Targets  []Target      `yaml:"targets"`
	Cohort   CohortConfig  `yaml:"cohort"`
	Traffic  TrafficConfig `yaml:"traffic"`
	Pool     PoolConfig    `yaml:"pool"`
	Probes   ProbeConfig   `yaml:"probes"`
	Monitor  MonitorConfig `yaml:"monitor"`
	Limits   []Limit       `yaml:"limits"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Server   ServerConfig  `yaml:"server"`
}

// Target is one addressable endpoint of the pool layer.
type Target struct {
	Name           string        `yaml:"name"`
	Host           string        `yaml:"host"`
	Port           uint16        `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// PgBouncer in transaction mode does not keep prepared statements, so
	// the simple protocol is the default.
	ExtendedProtocol bool `yaml:"extended_protocol"`
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

type CohortGroup struct {
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
	Count  int    `yaml:"count"`
}

type CohortConfig struct {
	Stagger        time.Duration `yaml:"stagger"`
	Hold           Range         `yaml:"hold"`
	OpInterval     Range         `yaml:"op_interval"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	Groups         []CohortGroup `yaml:"groups"`
}

type TrafficConfig struct {
	Targets            []string `yaml:"targets"`
	Interval           Range    `yaml:"interval"`
	StartDelay         Range    `yaml:"start_delay"`
	Hold               Range    `yaml:"hold"`
	OpInterval         Range    `yaml:"op_interval"`
	MaxActivePerTarget int      `yaml:"max_active_per_target"`
}

type PoolConfig struct {
	Target         string        `yaml:"target"`
	Clients        int           `yaml:"clients"`
	Session        Range         `yaml:"session"`
	OpInterval     Range         `yaml:"op_interval"`
	ReconnectDelay Range         `yaml:"reconnect_delay"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	Workload       Workload      `yaml:"workload"`
	Setup          bool          `yaml:"setup"`
}

type ProbeConfig struct {
	ExcludeAdmin bool     `yaml:"exclude_admin"`
	Targets      []Target `yaml:"targets"`
}

type MonitorConfig struct {
	Title           string        `yaml:"title"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
}

// Limit is a display-only pair shown next to the live table, typically
// the pool layer's configured caps.
type Limit struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MetricsConfig struct {
	StatsdAddr string `yaml:"statsd_addr"`
	Prefix     string `yaml:"prefix"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

const (
	defaultHost           = "localhost"
	defaultPort           = 6432
	defaultConnectTimeout = 5 * time.Second
)

func defaultConfig() *Config {
	return &Config{
		Mode: ModeCohort,
		Cohort: CohortConfig{
			Stagger:    200 * time.Millisecond,
			OpInterval: Range{Min: 500 * time.Millisecond, Max: 2 * time.Second},
		},
		Traffic: TrafficConfig{
			Interval:   Range{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
			StartDelay: Range{Min: 0, Max: 2 * time.Second},
			Hold:       Range{Min: 3 * time.Second, Max: 8 * time.Second},
			OpInterval: Range{Min: time.Second, Max: time.Second},
		},
		Pool: PoolConfig{
			Clients:        20,
			Session:        Range{Min: 3 * time.Second, Max: 10 * time.Second},
			OpInterval:     Range{Min: 100 * time.Millisecond, Max: 500 * time.Millisecond},
			ReconnectDelay: Range{Min: 500 * time.Millisecond, Max: 2 * time.Second},
			RetryDelay:     time.Second,
			Workload:       WorkloadMixed,
		},
		Probes: ProbeConfig{
			ExcludeAdmin: true,
		},
		Monitor: MonitorConfig{
			Title:           "PgBouncer Live Load",
			RefreshInterval: 250 * time.Millisecond,
			ProbeInterval:   500 * time.Millisecond,
			ProbeTimeout:    2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			File:  "liveload.log",
		},
		Metrics: MetricsConfig{
			Prefix: "liveload.",
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment.
func Default() *Config {
	cfg := defaultConfig()
	cfg.normalize()
	return cfg
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	fill := func(t *Target) {
		if t.Host == "" {
			t.Host = defaultHost
		}
		if t.Port == 0 {
			t.Port = defaultPort
		}
		if t.ConnectTimeout == 0 {
			t.ConnectTimeout = defaultConnectTimeout
		}
		if t.Name == "" {
			t.Name = strconv.Itoa(int(t.Port))
		}
	}
	for i := range c.Targets {
		fill(&c.Targets[i])
	}
	for i := range c.Probes.Targets {
		if c.Probes.Targets[i].Database == "" {
			c.Probes.Targets[i].Database = "pgbouncer"
		}
		fill(&c.Probes.Targets[i])
	}
	for i := range c.Cohort.Groups {
		if c.Cohort.Groups[i].Name == "" {
			c.Cohort.Groups[i].Name = c.Cohort.Groups[i].Target
			if t, ok := c.Target(c.Cohort.Groups[i].Target); ok && t.User != "" {
				c.Cohort.Groups[i].Name = t.User
			}
		}
	}
	if len(c.Traffic.Targets) == 0 {
		for _, t := range c.Targets {
			c.Traffic.Targets = append(c.Traffic.Targets, t.Name)
		}
	}
	if c.Pool.Target == "" && len(c.Targets) > 0 {
		c.Pool.Target = c.Targets[0].Name
	}
}

// Target looks a target up by name.
func (c *Config) Target(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Validate checks the sections the selected mode depends on.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Monitor.RefreshInterval <= 0 {
		bad("monitor.refresh_interval must be positive")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t.Name] {
			bad("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}
	if len(c.Probes.Targets) > 0 {
		if c.Monitor.ProbeInterval <= 0 {
			bad("monitor.probe_interval must be positive")
		}
		if c.Monitor.ProbeTimeout <= 0 {
			bad("monitor.probe_timeout must be positive")
		}
	}

	switch c.Mode {
	case ModeCohort:
		if len(c.Cohort.Groups) == 0 {
			bad("cohort.groups is empty")
		}
		for _, g := range c.Cohort.Groups {
			if !seen[g.Target] {
				bad("cohort group %q references unknown target %q", g.Name, g.Target)
			}
			if g.Count <= 0 {
				bad("cohort group %q count must be positive", g.Name)
			}
		}
		if c.Cohort.Stagger < 0 {
			bad("cohort.stagger must not be negative")
		}
		errs = appendRangeErr(errs, "cohort.hold", c.Cohort.Hold)
		if c.Cohort.OpInterval.Max <= 0 {
			bad("cohort.op_interval must be positive")
		}
		errs = appendRangeErr(errs, "cohort.op_interval", c.Cohort.OpInterval)
	case ModeTraffic:
		if len(c.Traffic.Targets) == 0 {
			bad("traffic.targets is empty")
		}
		for _, name := range c.Traffic.Targets {
			if !seen[name] {
				bad("traffic references unknown target %q", name)
			}
		}
		if c.Traffic.Interval.Max <= 0 {
			bad("traffic.interval must be positive")
		}
		if c.Traffic.Hold.IsZero() {
			bad("traffic.hold must be set")
		}
		if c.Traffic.MaxActivePerTarget < 0 {
			bad("traffic.max_active_per_target must not be negative")
		}
		errs = appendRangeErr(errs, "traffic.interval", c.Traffic.Interval)
		errs = appendRangeErr(errs, "traffic.start_delay", c.Traffic.StartDelay)
		errs = appendRangeErr(errs, "traffic.hold", c.Traffic.Hold)
		if c.Traffic.OpInterval.Max <= 0 {
			bad("traffic.op_interval must be positive")
		}
		errs = appendRangeErr(errs, "traffic.op_interval", c.Traffic.OpInterval)
	case ModePool:
		if !seen[c.Pool.Target] {
			bad("pool references unknown target %q", c.Pool.Target)
		}
		if c.Pool.Clients <= 0 {
			bad("pool.clients must be positive")
		}
		if c.Pool.Session.IsZero() {
			bad("pool.session must be set")
		}
		if c.Pool.Workload != WorkloadPing && c.Pool.Workload != WorkloadMixed {
			bad("pool.workload %q is not one of ping, mixed", c.Pool.Workload)
		}
		if c.Pool.RetryDelay < 0 {
			bad("pool.retry_delay must not be negative")
		}
		errs = appendRangeErr(errs, "pool.session", c.Pool.Session)
		if c.Pool.OpInterval.Max <= 0 {
			bad("pool.op_interval must be positive")
		}
		errs = appendRangeErr(errs, "pool.op_interval", c.Pool.OpInterval)
		errs = appendRangeErr(errs, "pool.reconnect_delay", c.Pool.ReconnectDelay)
	default:
		bad("unknown mode %q", c.Mode)
	}

	return errors.Join(errs...)
}

func appendRangeErr(errs []error, name string, r Range) []error {
	if err := r.validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err))
	}
	return errs
}

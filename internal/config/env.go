package config

import (
	"time"

	"github.com/vrischmann/envconfig"
)

// envOverrides are read from the process environment after the file.
// Zero values leave the file setting alone.
type envOverrides struct {
	Mode            string        `envconfig:"LIVELOAD_MODE,optional"`
	LogLevel        string        `envconfig:"LIVELOAD_LOG_LEVEL,optional"`
	LogFile         string        `envconfig:"LIVELOAD_LOG_FILE,optional"`
	RefreshInterval time.Duration `envconfig:"LIVELOAD_REFRESH_INTERVAL,optional"`
	ProbeInterval   time.Duration `envconfig:"LIVELOAD_PROBE_INTERVAL,optional"`
	ProbeTimeout    time.Duration `envconfig:"LIVELOAD_PROBE_TIMEOUT,optional"`
	StatsdAddr      string        `envconfig:"LIVELOAD_STATSD_ADDR,optional"`
	ListenAddr      string        `envconfig:"LIVELOAD_LISTEN_ADDR,optional"`
	Headless        bool          `envconfig:"LIVELOAD_HEADLESS,optional"`
}

func (c *Config) applyEnv() error {
	env := envOverrides{}
	if err := envconfig.Init(&env); err != nil {
		return err
	}

	if env.Mode != "" {
		c.Mode = Mode(env.Mode)
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LogFile != "" {
		c.Log.File = env.LogFile
	}
	if env.RefreshInterval > 0 {
		c.Monitor.RefreshInterval = env.RefreshInterval
	}
	if env.ProbeInterval > 0 {
		c.Monitor.ProbeInterval = env.ProbeInterval
	}
	if env.ProbeTimeout > 0 {
		c.Monitor.ProbeTimeout = env.ProbeTimeout
	}
	if env.StatsdAddr != "" {
		c.Metrics.StatsdAddr = env.StatsdAddr
	}
	if env.ListenAddr != "" {
		c.Server.Listen = env.ListenAddr
	}
	if env.Headless {
		c.Headless = true
	}
	return nil
}

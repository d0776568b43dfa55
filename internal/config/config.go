// Package config provides runtime configuration values for the service.
package config

import (
	"time"

	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
)

// Prefix namespaces every environment variable, e.g. MARKET_WEB_ADDR.
const Prefix = "MARKET"

// Relay holds knobs for the asynchronous event relay workers.
type Relay struct {
	OutBuffer               int           `conf:"default:128"`
	InitialWorkerCount      int           `conf:"default:1"`
	WorkerMin               int           `conf:"default:1"`
	WorkerMax               int           `conf:"default:4"`
	ScaleInterval           time.Duration `conf:"default:500ms"`
	ScaleUpBacklogPerWorker int           `conf:"default:100"`
	ScaleDownIdleTicks      int           `conf:"default:6"`
	QueueHighWatermark      int           `conf:"default:5000"`
	PublishAttempts         int           `conf:"default:3"`
	RetryBackoff            time.Duration `conf:"default:100ms"`
}

// Config holds configuration for the HTTP server, ledger storage, funds
// routing and event delivery.
type Config struct {
	conf.Version
	Web struct {
		Addr              string        `conf:"default::8080"`
		ReadHeaderTimeout time.Duration `conf:"default:5s"`
		ReadTimeout       time.Duration `conf:"default:10s"`
		WriteTimeout      time.Duration `conf:"default:30s"`
		IdleTimeout       time.Duration `conf:"default:60s"`
		ShutdownTimeout   time.Duration `conf:"default:15s"`
	}
	Market struct {
		Name        string `conf:"default:Blockchain Marketplace"`
		Overpayment string `conf:"default:refund"`
	}
	Store struct {
		Driver string `conf:"default:memory"`
		DSN    string `conf:"default:marketplace.db,noprint"`
	}
	Relay Relay
	NATS  struct {
		URL     string
		Subject string `conf:"default:marketplace.events"`
	}
	Redis struct {
		Addr    string
		Channel string `conf:"default:marketplace.events"`
	}
	Gateway struct {
		URL     string
		Timeout time.Duration `conf:"default:5s"`
	}
	Auth struct {
		JWTSecret string `conf:"noprint"`
	}
	Log struct {
		Mode string `conf:"default:production"`
	}
	Trace struct {
		Enabled     bool    `conf:"default:false"`
		ServiceName string  `conf:"default:marketplace-ledger"`
		SampleRatio float64 `conf:"default:1"`
	}
}

// ErrHelpWanted is returned by Load when --help or -h was passed.
var ErrHelpWanted = conf.ErrHelpWanted

// Load collects configuration from command line args and environment with
// defaults.
func Load(args []string) (Config, error) {
	var cfg Config
	if err := conf.Parse(args, Prefix, &cfg); err != nil {
		if err == conf.ErrHelpWanted {
			return cfg, err
		}
		return cfg, errors.Wrap(err, "parsing config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Usage renders the flag and environment help text.
func Usage(cfg *Config) (string, error) {
	return conf.Usage(Prefix, cfg)
}

// String renders the effective configuration with secrets omitted.
func String(cfg *Config) (string, error) {
	return conf.String(cfg)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Relay.WorkerMin < 1 || c.Relay.WorkerMax < c.Relay.WorkerMin {
		return errors.Errorf("invalid relay worker bounds min=%d max=%d", c.Relay.WorkerMin, c.Relay.WorkerMax)
	}
	if c.Relay.InitialWorkerCount < c.Relay.WorkerMin {
		c.Relay.InitialWorkerCount = c.Relay.WorkerMin
	}
	if c.Relay.InitialWorkerCount > c.Relay.WorkerMax {
		c.Relay.InitialWorkerCount = c.Relay.WorkerMax
	}
	if c.Relay.PublishAttempts < 1 {
		c.Relay.PublishAttempts = 1
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		return errors.Errorf("trace sample ratio %v out of range [0,1]", c.Trace.SampleRatio)
	}
	return nil
}

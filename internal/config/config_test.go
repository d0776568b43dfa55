package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Web.Addr != ":8080" {
		t.Fatalf("Web.Addr default: %q", c.Web.Addr)
	}
	if c.Web.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout default")
	}
	if c.Market.Name != "Blockchain Marketplace" {
		t.Fatalf("Market.Name default: %q", c.Market.Name)
	}
	if c.Market.Overpayment != "refund" {
		t.Fatalf("Market.Overpayment default: %q", c.Market.Overpayment)
	}
	if c.Store.Driver != "memory" {
		t.Fatalf("Store.Driver default: %q", c.Store.Driver)
	}
	if c.Relay.WorkerMin != 1 || c.Relay.WorkerMax != 4 {
		t.Fatalf("worker bounds default")
	}
	if c.Relay.ScaleInterval != 500*time.Millisecond {
		t.Fatalf("ScaleInterval default")
	}
	if c.Relay.QueueHighWatermark != 5000 {
		t.Fatalf("high watermark default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_WEB_ADDR", ":9090")
	t.Setenv("MARKET_WEB_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("MARKET_MARKET_OVERPAYMENT", "forward")
	t.Setenv("MARKET_STORE_DRIVER", "sqlite")
	t.Setenv("MARKET_RELAY_WORKER_MIN", "2")
	t.Setenv("MARKET_RELAY_WORKER_MAX", "3")
	t.Setenv("MARKET_RELAY_SCALE_INTERVAL", "250ms")
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Web.Addr != ":9090" {
		t.Fatalf("Web.Addr env")
	}
	if c.Web.ShutdownTimeout != 2*time.Second {
		t.Fatalf("ShutdownTimeout env")
	}
	if c.Market.Overpayment != "forward" || c.Store.Driver != "sqlite" {
		t.Fatalf("market/store env")
	}
	if c.Relay.WorkerMin != 2 || c.Relay.WorkerMax != 3 || c.Relay.InitialWorkerCount != 2 {
		t.Fatalf("workers env: %+v", c.Relay)
	}
	if c.Relay.ScaleInterval != 250*time.Millisecond {
		t.Fatalf("ScaleInterval env")
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("MARKET_WEB_ADDR", ":9090")
	c, err := Load([]string{"--web-addr", ":7070"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Web.Addr != ":7070" {
		t.Fatalf("flag should win over env, got %q", c.Web.Addr)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("MARKET_STORE_DRIVER", "mongo")
	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadRejectsInvertedWorkerBounds(t *testing.T) {
	t.Setenv("MARKET_RELAY_WORKER_MIN", "5")
	t.Setenv("MARKET_RELAY_WORKER_MAX", "2")
	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error for inverted worker bounds")
	}
}

func TestLoadHelpWanted(t *testing.T) {
	if _, err := Load([]string{"--help"}); err != ErrHelpWanted {
		t.Fatalf("expected ErrHelpWanted, got %v", err)
	}
}

func TestRelayRetryDefaults(t *testing.T) {
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Relay.PublishAttempts != 3 || c.Relay.RetryBackoff != 100*time.Millisecond {
		t.Fatalf("relay retry defaults: %d %v", c.Relay.PublishAttempts, c.Relay.RetryBackoff)
	}
	c, err = Load([]string{"--relay-publish-attempts=0"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Relay.PublishAttempts != 1 {
		t.Fatalf("attempts not clamped: %d", c.Relay.PublishAttempts)
	}
}

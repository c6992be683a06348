package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default breaker max locks in window",
			check:  func(c *Config) bool { return c.BreakerMaxLocksInWindow == 50 },
			expect: "50",
		},
		{
			name:   "default breaker window seconds",
			check:  func(c *Config) bool { return c.BreakerWindowSeconds == 300 },
			expect: "300",
		},
		{
			name:   "default breaker cooldown seconds",
			check:  func(c *Config) bool { return c.BreakerCooldownSeconds == 600 },
			expect: "600",
		},
		{
			name:   "default canary error rate threshold",
			check:  func(c *Config) bool { return c.CanaryErrorRateThreshold == 0.02 },
			expect: "0.02",
		},
		{
			name:   "default canary heartbeat loss threshold",
			check:  func(c *Config) bool { return c.CanaryHeartbeatLossThreshold == 0.05 },
			expect: "0.05",
		},
		{
			name:   "database url unset by default",
			check:  func(c *Config) bool { return c.DatabaseURL == "" },
			expect: "",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

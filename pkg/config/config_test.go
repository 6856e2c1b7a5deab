package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.Signaling.RequestsPerSecond = 10
	cfg.RateLimiting.Signaling.Burst = 10
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.Signaling.RequestsPerSecond = 0
	cfg.RateLimiting.Signaling.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "http max concurrent must be >= 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.MaxConcurrent = -1
			},
		},
		{
			name: "signaling burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Signaling.Burst = 0
			},
		},
		{
			name: "signaling url scheme",
			mutate: func(c *Config) {
				c.Signaling.URL = "http://localhost:8081/ws"
			},
		},
		{
			name: "pong timeout shorter than ping interval",
			mutate: func(c *Config) {
				c.Signaling.PongTimeout = time.Second
				c.Signaling.PingInterval = 2 * time.Second
			},
		},
		{
			name: "port range inverted",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
				c.WebRTC.PortRange.Max = 40000
			},
		},
		{
			name: "ice server without urls",
			mutate: func(c *Config) {
				c.WebRTC.ICEServers = []ICEServer{{Username: "u"}}
			},
		},
		{
			name: "ice server with http url",
			mutate: func(c *Config) {
				c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"http://stun.example.com"}}}
			},
		},
		{
			name: "tracing collector scheme",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.JaegerURL = "udp://jaeger:6831"
			},
		},
		{
			name: "tracing sample rate",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "redis pool size",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.PoolSize = 0
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	data := []byte(`
signaling:
  url: wss://conference.example.com/ws
  dial_attempts: 5
webrtc:
  port_range:
    min: 40000
    max: 40100
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RILLCONF_TOKEN", "join-token")
	t.Setenv("RILLCONF_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signaling.URL != "wss://conference.example.com/ws" {
		t.Errorf("unexpected signaling url %q", cfg.Signaling.URL)
	}
	if cfg.Signaling.DialAttempts != 5 {
		t.Errorf("expected 5 dial attempts, got %d", cfg.Signaling.DialAttempts)
	}
	if cfg.Signaling.Token != "join-token" {
		t.Errorf("expected token from env, got %q", cfg.Signaling.Token)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env log level to win, got %q", cfg.Logging.Level)
	}
	if cfg.Signaling.RequestTimeout != 15*time.Second {
		t.Errorf("expected default request timeout, got %v", cfg.Signaling.RequestTimeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8090" {
		t.Errorf("unexpected server address %q", cfg.Server.Address)
	}
}

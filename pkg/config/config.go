package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"rillconf/pkg/validation"

	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	// Server is the read-only inspection API.
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signaling struct {
		URL                 string        `yaml:"url"`
		Token               string        `yaml:"token"`
		DialTimeout         time.Duration `yaml:"dial_timeout"`
		RequestTimeout      time.Duration `yaml:"request_timeout"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
		DialAttempts        int           `yaml:"dial_attempts"`
	} `yaml:"signaling"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Address  string        `yaml:"address"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	// Auth protects the inspection API. An empty secret disables it.
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		// Signaling throttles requests this client sends to the server.
		Signaling struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"signaling"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Enabled {
		if c.Server.Address == "" {
			return fmt.Errorf("server.address must not be empty when server.enabled=true")
		}
		if c.Server.ReadTimeout <= 0 {
			return fmt.Errorf("server.read_timeout must be > 0")
		}
		if c.Server.WriteTimeout <= 0 {
			return fmt.Errorf("server.write_timeout must be > 0")
		}
		if c.Server.ShutdownTimeout <= 0 {
			return fmt.Errorf("server.shutdown_timeout must be > 0")
		}
	}

	// Signaling
	if err := validation.ValidateURL(c.Signaling.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("signaling.url: %w", err)
	}
	if c.Signaling.DialTimeout <= 0 {
		return fmt.Errorf("signaling.dial_timeout must be > 0")
	}
	if c.Signaling.RequestTimeout <= 0 {
		return fmt.Errorf("signaling.request_timeout must be > 0")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.PongTimeout <= c.Signaling.PingInterval {
		return fmt.Errorf("signaling.pong_timeout must be > ping_interval")
	}
	if c.Signaling.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("signaling.max_message_size_bytes must be >= 0")
	}
	if c.Signaling.DialAttempts <= 0 {
		return fmt.Errorf("signaling.dial_attempts must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
		for _, u := range s.URLs {
			if err := validation.ValidateICEURL(u); err != nil {
				return fmt.Errorf("webrtc.ice_servers[%d]: %w", i, err)
			}
		}
	}

	// Monitoring
	if c.Monitoring.HealthCheckInterval <= 0 {
		return fmt.Errorf("monitoring.health_check_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.TTL < 0 {
			return fmt.Errorf("redis.ttl must be >= 0")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if err := validation.ValidateURL(c.Tracing.JaegerURL, "http", "https"); err != nil {
			return fmt.Errorf("tracing.jaeger_url: %w", err)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Signaling.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.signaling.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Signaling.Burst <= 0 {
			return fmt.Errorf("rate_limiting.signaling.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Enabled = true
	cfg.Server.Address = ":8090"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signaling.URL = "ws://localhost:8081/ws"
	cfg.Signaling.DialTimeout = 10 * time.Second
	cfg.Signaling.RequestTimeout = 15 * time.Second
	cfg.Signaling.PingInterval = 25 * time.Second
	cfg.Signaling.PongTimeout = 60 * time.Second
	cfg.Signaling.MaxMessageSizeBytes = 1 << 20
	cfg.Signaling.DialAttempts = 3

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthCheckInterval = 15 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.TTL = 24 * time.Hour

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.Signaling.RequestsPerSecond = 20
	cfg.RateLimiting.Signaling.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("RILLCONF_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if u := os.Getenv("RILLCONF_SIGNALING_URL"); u != "" {
		c.Signaling.URL = u
	}
	if token := os.Getenv("RILLCONF_TOKEN"); token != "" {
		c.Signaling.Token = token
	}
	if level := os.Getenv("RILLCONF_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("RILLCONF_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("RILLCONF_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("RILLCONF_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}

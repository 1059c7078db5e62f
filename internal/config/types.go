// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// AppConfig is the fully resolved configuration. The yaml tags double as the
// file schema; unknown keys are rejected.
type AppConfig struct {
	Version  string `yaml:"-"`
	LogLevel string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Redis     RedisConfig     `yaml:"redis"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures HS256 bearer token verification.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`
}

type StoreConfig struct {
	// Backend is memory, sqlite or badger.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type PaymentsConfig struct {
	// Gateway is mock or stripe.
	Gateway         string        `yaml:"gateway"`
	StripeSecretKey string        `yaml:"stripe_secret_key"`
	StripeAPIURL    string        `yaml:"stripe_api_url"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	GatewayTimeout  time.Duration `yaml:"gateway_timeout"`
}

type RealtimeConfig struct {
	// Buffer is the per-subscriber queue depth before eviction.
	Buffer       int           `yaml:"buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RedisConfig enables cross-instance fan-out when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

// AMQPConfig enables status notifications to a topic exchange when URL is set.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	ExporterType string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

type RateLimitConfig struct {
	APIPerMinute      int     `yaml:"api_per_minute"`
	CheckoutPerMinute int     `yaml:"checkout_per_minute"`
	JoinRate          float64 `yaml:"join_rate"`
	JoinBurst         int     `yaml:"join_burst"`
}

type CatalogConfig struct {
	DefaultCurrency string         `yaml:"default_currency"`
	Services        []ServiceEntry `yaml:"services"`
}

// ServiceEntry is one bookable service; Price is a decimal string such as "49.90".
type ServiceEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	ProviderID string `yaml:"provider_id"`
	Price      string `yaml:"price"`
	Currency   string `yaml:"currency"`
}

// RedisEnabled reports whether cross-instance fan-out is configured.
func (c AppConfig) RedisEnabled() bool { return c.Redis.Addr != "" }

// AMQPEnabled reports whether notifications are published to a broker.
func (c AppConfig) AMQPEnabled() bool { return c.AMQP.URL != "" }

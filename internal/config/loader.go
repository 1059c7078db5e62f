// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader; configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envCSV(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseCSV(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: defaults, file (unknown keys rejected), env, validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when neither file nor ENV set a key.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MetricsEnabled:  true,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Leeway: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "data",
		},
		Payments: PaymentsConfig{
			Gateway:        "mock",
			SessionTTL:     30 * time.Minute,
			SweepInterval:  time.Minute,
			GatewayTimeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			Buffer:       16,
			WriteTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Channel:  "booksync:events",
			StateTTL: 24 * time.Hour,
		},
		AMQP: AMQPConfig{
			Exchange: "booksync.events",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "booksync",
			Environment:  "development",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		RateLimit: RateLimitConfig{
			APIPerMinute:      600,
			CheckoutPerMinute: 10,
			JoinRate:          100,
			JoinBurst:         200,
		},
		Catalog: CatalogConfig{
			DefaultCurrency: "EUR",
		},
	}
}

// loadFile decodes the YAML file over cfg. Unknown fields are fatal to
// prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	p := func(k string) string { return EnvPrefix + k }

	cfg.LogLevel = l.envString(p("LOG_LEVEL"), cfg.LogLevel)

	cfg.Server.ListenAddr = l.envString(p("LISTEN_ADDR"), cfg.Server.ListenAddr)
	cfg.Server.AllowedOrigins = l.envCSV(p("ALLOWED_ORIGINS"), cfg.Server.AllowedOrigins)
	cfg.Server.TrustedProxies = l.envCSV(p("TRUSTED_PROXIES"), cfg.Server.TrustedProxies)
	cfg.Server.MetricsEnabled = l.envBool(p("METRICS_ENABLED"), cfg.Server.MetricsEnabled)
	cfg.Server.ShutdownTimeout = l.envDuration(p("SHUTDOWN_TIMEOUT"), cfg.Server.ShutdownTimeout)

	cfg.Auth.JWTSecret = l.envString(p("JWT_SECRET"), cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = l.envString(p("JWT_ISSUER"), cfg.Auth.Issuer)
	cfg.Auth.Audience = l.envString(p("JWT_AUDIENCE"), cfg.Auth.Audience)
	cfg.Auth.Leeway = l.envDuration(p("JWT_LEEWAY"), cfg.Auth.Leeway)

	cfg.Store.Backend = l.envString(p("STORE_BACKEND"), cfg.Store.Backend)
	cfg.Store.Path = l.envString(p("STORE_PATH"), cfg.Store.Path)

	cfg.Payments.Gateway = l.envString(p("PAYMENT_GATEWAY"), cfg.Payments.Gateway)
	cfg.Payments.StripeSecretKey = l.envString(p("STRIPE_SECRET_KEY"), cfg.Payments.StripeSecretKey)
	cfg.Payments.StripeAPIURL = l.envString(p("STRIPE_API_URL"), cfg.Payments.StripeAPIURL)
	cfg.Payments.WebhookSecret = l.envString(p("WEBHOOK_SECRET"), cfg.Payments.WebhookSecret)
	cfg.Payments.SessionTTL = l.envDuration(p("SESSION_TTL"), cfg.Payments.SessionTTL)
	cfg.Payments.SweepInterval = l.envDuration(p("SWEEP_INTERVAL"), cfg.Payments.SweepInterval)
	cfg.Payments.GatewayTimeout = l.envDuration(p("GATEWAY_TIMEOUT"), cfg.Payments.GatewayTimeout)

	cfg.Realtime.Buffer = l.envInt(p("REALTIME_BUFFER"), cfg.Realtime.Buffer)
	cfg.Realtime.WriteTimeout = l.envDuration(p("REALTIME_WRITE_TIMEOUT"), cfg.Realtime.WriteTimeout)

	cfg.Redis.Addr = l.envString(p("REDIS_ADDR"), cfg.Redis.Addr)
	cfg.Redis.Password = l.envString(p("REDIS_PASSWORD"), cfg.Redis.Password)
	cfg.Redis.DB = l.envInt(p("REDIS_DB"), cfg.Redis.DB)
	cfg.Redis.Channel = l.envString(p("REDIS_CHANNEL"), cfg.Redis.Channel)
	cfg.Redis.StateTTL = l.envDuration(p("REDIS_STATE_TTL"), cfg.Redis.StateTTL)

	cfg.AMQP.URL = l.envString(p("AMQP_URL"), cfg.AMQP.URL)
	cfg.AMQP.Exchange = l.envString(p("AMQP_EXCHANGE"), cfg.AMQP.Exchange)

	cfg.Telemetry.Enabled = l.envBool(p("OTEL_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = l.envString(p("OTEL_SERVICE_NAME"), cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = l.envString(p("OTEL_ENVIRONMENT"), cfg.Telemetry.Environment)
	cfg.Telemetry.ExporterType = l.envString(p("OTEL_EXPORTER"), cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString(p("OTEL_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(p("OTEL_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)

	cfg.RateLimit.APIPerMinute = l.envInt(p("RATE_LIMIT_API"), cfg.RateLimit.APIPerMinute)
	cfg.RateLimit.CheckoutPerMinute = l.envInt(p("RATE_LIMIT_CHECKOUT"), cfg.RateLimit.CheckoutPerMinute)
	cfg.RateLimit.JoinRate = l.envFloat(p("RATE_LIMIT_JOIN"), cfg.RateLimit.JoinRate)
	cfg.RateLimit.JoinBurst = l.envInt(p("RATE_LIMIT_JOIN_BURST"), cfg.RateLimit.JoinBurst)

	cfg.Catalog.DefaultCurrency = l.envString(p("DEFAULT_CURRENCY"), cfg.Catalog.DefaultCurrency)
}

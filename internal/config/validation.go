// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/booksync/internal/validate"
)

const minJWTSecretBytes = 16

// Validate reports every invalid field at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Custom("LogLevel", cfg.LogLevel, func(any) error {
		_, err := zerolog.ParseLevel(cfg.LogLevel)
		return err
	})

	v.ListenAddr("Server.ListenAddr", cfg.Server.ListenAddr)
	for _, o := range cfg.Server.AllowedOrigins {
		v.URL("Server.AllowedOrigins", o, []string{"http", "https"})
	}
	for _, tp := range cfg.Server.TrustedProxies {
		v.Custom("Server.TrustedProxies", tp, func(any) error {
			if _, _, err := net.ParseCIDR(tp); err == nil || net.ParseIP(tp) != nil {
				return nil
			}
			return fmt.Errorf("must be a CIDR or IP address")
		})
	}
	v.DurationRange("Server.ShutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 0)

	v.MinLength("Auth.JWTSecret", cfg.Auth.JWTSecret, minJWTSecretBytes)
	v.DurationRange("Auth.Leeway", cfg.Auth.Leeway, 0, 5*time.Minute)

	v.OneOf("Store.Backend", cfg.Store.Backend, []string{"memory", "sqlite", "badger"})
	if cfg.Store.Backend != "memory" {
		v.NotEmpty("Store.Path", cfg.Store.Path)
	}

	v.OneOf("Payments.Gateway", cfg.Payments.Gateway, []string{"mock", "stripe"})
	v.NotEmpty("Payments.WebhookSecret", cfg.Payments.WebhookSecret)
	if cfg.Payments.Gateway == "stripe" {
		v.NotEmpty("Payments.StripeSecretKey", cfg.Payments.StripeSecretKey)
		// Stripe rejects expires_at outside this window.
		v.DurationRange("Payments.SessionTTL", cfg.Payments.SessionTTL, 30*time.Minute, 24*time.Hour)
		if cfg.Payments.StripeAPIURL != "" {
			v.URL("Payments.StripeAPIURL", cfg.Payments.StripeAPIURL, []string{"http", "https"})
		}
	} else {
		v.DurationRange("Payments.SessionTTL", cfg.Payments.SessionTTL, time.Second, 0)
	}
	v.DurationRange("Payments.SweepInterval", cfg.Payments.SweepInterval, 0, 0)
	v.DurationRange("Payments.GatewayTimeout", cfg.Payments.GatewayTimeout, time.Second, 0)

	v.Range("Realtime.Buffer", cfg.Realtime.Buffer, 1, 4096)
	v.DurationRange("Realtime.WriteTimeout", cfg.Realtime.WriteTimeout, 100*time.Millisecond, 0)

	if cfg.RedisEnabled() {
		v.NotEmpty("Redis.Channel", cfg.Redis.Channel)
		v.NonNegative("Redis.DB", cfg.Redis.DB)
		v.DurationRange("Redis.StateTTL", cfg.Redis.StateTTL, time.Minute, 0)
	}
	if cfg.AMQPEnabled() {
		v.URL("AMQP.URL", cfg.AMQP.URL, []string{"amqp", "amqps"})
		v.NotEmpty("AMQP.Exchange", cfg.AMQP.Exchange)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.ExporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.NonNegative("RateLimit.APIPerMinute", cfg.RateLimit.APIPerMinute)
	v.Positive("RateLimit.CheckoutPerMinute", cfg.RateLimit.CheckoutPerMinute)
	v.FloatRange("RateLimit.JoinRate", cfg.RateLimit.JoinRate, 0.1, 100000)
	v.Positive("RateLimit.JoinBurst", cfg.RateLimit.JoinBurst)

	v.NotEmpty("Catalog.DefaultCurrency", cfg.Catalog.DefaultCurrency)
	ids := make([]string, 0, len(cfg.Catalog.Services))
	for i, s := range cfg.Catalog.Services {
		field := fmt.Sprintf("Catalog.Services[%d]", i)
		v.NotEmpty(field+".ID", s.ID)
		v.NotEmpty(field+".ProviderID", s.ProviderID)
		v.NotEmpty(field+".Price", s.Price)
		ids = append(ids, s.ID)
	}
	v.Unique("Catalog.Services.ID", ids)

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

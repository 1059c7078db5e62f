// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/booksync/internal/api"
	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/catalog"
	"github.com/ManuGH/booksync/internal/config"
	"github.com/ManuGH/booksync/internal/daemon"
	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/payment"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/notify"
	"github.com/ManuGH/booksync/internal/payment/mockgw"
	"github.com/ManuGH/booksync/internal/payment/stripegw"
	"github.com/ManuGH/booksync/internal/platform/keymutex"
	"github.com/ManuGH/booksync/internal/ratelimit"
	"github.com/ManuGH/booksync/internal/realtime"
	"github.com/ManuGH/booksync/internal/realtime/ws"
	"github.com/ManuGH/booksync/internal/resilience"
	"github.com/ManuGH/booksync/internal/telemetry"
)

const (
	stripeMaxRetries = 2

	gatewayBreakerThreshold = 5
	gatewayBreakerReset     = 30 * time.Second
)

// paymentGateway is what both gateway implementations provide.
type paymentGateway interface {
	ports.Gateway
	ports.WebhookVerifier
}

type closer struct {
	name string
	fn   daemon.ShutdownHook
}

// runtime is everything the daemon runs, built from one AppConfig.
type runtime struct {
	handler http.Handler
	runners []daemon.Runner
	closers []closer
}

func (rt *runtime) addCloser(name string, fn daemon.ShutdownHook) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}

// closeAll releases resources when startup fails half way.
func (rt *runtime) closeAll(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].fn(ctx)
	}
}

// wire builds the runtime. On error everything opened so far is closed.
func wire(ctx context.Context, cfg config.AppConfig) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.closeAll(ctx)
		}
	}()
	logger := log.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.addCloser("telemetry", tp.Shutdown)

	st, err := store.OpenStateStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.addCloser("store", func(context.Context) error { return st.Close() })

	cat, err := catalog.NewStatic(catalogEntries(cfg.Catalog.Services), cfg.Catalog.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	gw, err := newGateway(cfg.Payments)
	if err != nil {
		return nil, err
	}

	ready := map[string]api.Checker{}

	// Realtime: a local hub, optionally bridged across instances through Redis.
	var (
		hub *realtime.Hub
		pub ports.Publisher
	)
	if cfg.RedisEnabled() {
		client, err := realtime.NewRedisClient(ctx, realtime.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		rt.addCloser("redis", func(context.Context) error { return client.Close() })

		cache := realtime.NewRedisStateCache(client, "", cfg.Redis.StateTTL)
		hub = realtime.NewHub(realtime.WithStateCache(cache))
		relay := realtime.NewRedisRelay(hub, client, cfg.Redis.Channel, cache)
		pub = relay
		rt.runners = append(rt.runners, daemon.Runner{
			Name: "redis-relay",
			Run:  func(ctx context.Context) error { return relay.Run(ctx, nil) },
		})
		ready["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		hub = realtime.NewHub()
		pub = hub
	}

	if cfg.AMQPEnabled() {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		rt.addCloser("amqp", func(context.Context) error { return amqpPub.Close() })
		pub = ports.MultiPublisher{pub, amqpPub}
		logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("amqp notifications enabled")
	}

	locks := keymutex.New()
	eng := engine.New(st, pub, cat, locks)
	breaker := resilience.NewCircuitBreaker("payment_gateway", gatewayBreakerThreshold, gatewayBreakerReset)
	worker := payment.NewWorker(st, resilience.NewGateway(gw, breaker), pub, locks)

	sweeper := &payment.Sweeper{Worker: worker, Interval: cfg.Payments.SweepInterval}
	rt.runners = append(rt.runners, daemon.Runner{
		Name: "session-sweeper",
		Run: func(ctx context.Context) error {
			sweeper.Run(ctx)
			return nil
		},
	})

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	wsHandler := ws.NewHandler(hub, eng, ws.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Buffer:         cfg.Realtime.Buffer,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		Limiter:        ratelimit.New(limiterConfig(cfg.RateLimit)),
	})

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	srv, err := api.New(api.Config{
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimit.APIPerMinute,
		TrustedProxies:     cfg.Server.TrustedProxies,
		CheckoutPerMinute:  cfg.RateLimit.CheckoutPerMinute,
		EnableMetrics:      cfg.Server.MetricsEnabled,
		TracingService:     tracing,
	}, api.Deps{
		Engine:   eng,
		Payments: worker,
		Verifier: verifier,
		Webhooks: gw,
		Realtime: wsHandler,
		Ready:    ready,
	})
	if err != nil {
		return nil, err
	}
	rt.handler = srv.Handler()
	return rt, nil
}

func newGateway(cfg config.PaymentsConfig) (paymentGateway, error) {
	switch cfg.Gateway {
	case "stripe":
		gw, err := stripegw.New(stripegw.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.WebhookSecret,
			APIURL:        cfg.StripeAPIURL,
			SessionTTL:    cfg.SessionTTL,
			Timeout:       cfg.GatewayTimeout,
			MaxRetries:    stripeMaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("init stripe gateway: %w", err)
		}
		return gw, nil
	case "mock":
		return mockgw.New(cfg.SessionTTL, cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway: %s", cfg.Gateway)
	}
}

func catalogEntries(services []config.ServiceEntry) []catalog.Entry {
	out := make([]catalog.Entry, 0, len(services))
	for _, s := range services {
		out = append(out, catalog.Entry{
			ID:         s.ID,
			Name:       s.Name,
			ProviderID: s.ProviderID,
			Price:      s.Price,
			Currency:   s.Currency,
		})
	}
	return out
}

func limiterConfig(cfg config.RateLimitConfig) ratelimit.Config {
	lc := ratelimit.DefaultConfig()
	lc.ActionRates["join"] = rate.Limit(cfg.JoinRate)
	lc.ActionBurst["join"] = cfg.JoinBurst
	return lc
}

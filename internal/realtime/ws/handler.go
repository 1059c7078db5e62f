// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ws exposes booking channels over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/store"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
	"github.com/ManuGH/booksync/internal/ratelimit"
	"github.com/ManuGH/booksync/internal/realtime"
)

const (
	defaultWriteTimeout = 10 * time.Second
	maxFrameBytes       = 4 << 10
	joinAction          = "join"
)

// BookingReader returns a booking the actor may view, or store.ErrNotFound.
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error)
}

// Config tunes the websocket handler.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. Empty accepts any origin
	// with the same host as the request.
	AllowedOrigins []string
	// Buffer is the per-connection event buffer.
	Buffer       int
	WriteTimeout time.Duration
	// Limiter throttles joins per actor. Nil disables throttling.
	Limiter *ratelimit.Limiter
}

// Handler upgrades authenticated requests and serves booking channels.
type Handler struct {
	hub      *realtime.Hub
	bookings BookingReader
	cfg      Config
}

func NewHandler(hub *realtime.Hub, bookings BookingReader, cfg Config) *Handler {
	if cfg.Buffer <= 0 {
		cfg.Buffer = realtime.DefaultBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Handler{hub: hub, bookings: bookings, cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	srv := websocket.Server{
		Handshake: h.handshake,
		Handler: func(conn *websocket.Conn) {
			h.serve(r.Context(), conn, p.Actor())
		},
	}
	srv.ServeHTTP(w, r)
}

func (h *Handler) handshake(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	if origin == nil {
		// Non-browser clients send no Origin.
		return nil
	}
	if !h.originAllowed(origin, r) {
		return fmt.Errorf("origin %q not allowed", origin.String())
	}
	cfg.Origin = origin
	return nil
}

func (h *Handler) originAllowed(origin *url.URL, r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return strings.EqualFold(origin.Host, r.Host)
	}
	o := strings.TrimRight(origin.Scheme+"://"+origin.Host, "/")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), o) {
			return true
		}
	}
	return false
}

// conn is one websocket connection. mu serializes writes and guards sent,
// the highest version delivered per joined booking.
type conn struct {
	ws     *websocket.Conn
	actor  model.Actor
	sub    *realtime.Subscriber
	logger zerolog.Logger

	writeTimeout time.Duration

	mu   sync.Mutex
	sent map[string]int64
}

func (h *Handler) serve(parent context.Context, wsc *websocket.Conn, actor model.Actor) {
	wsc.MaxPayloadBytes = maxFrameBytes
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	connID := uuid.NewString()
	ctx = log.ContextWithActorID(ctx, actor.ID)
	c := &conn{
		ws:           wsc,
		actor:        actor,
		sub:          realtime.NewSubscriber(connID, h.cfg.Buffer),
		logger:       log.WithComponentFromContext(ctx, "ws").With().Str(log.FieldConnID, connID).Logger(),
		writeTimeout: h.cfg.WriteTimeout,
		sent:         make(map[string]int64),
	}

	metrics.IncSubscribers()
	defer metrics.DecSubscribers()
	defer h.hub.LeaveAll(c.sub)
	c.logger.Debug().Str(log.FieldActorRole, string(actor.Role)).Msg("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.pump(ctx)
		// Unblock the reader if the pump stopped first.
		_ = wsc.Close()
	}()

	h.readLoop(ctx, c)
	cancel()
	_ = wsc.Close()
	<-done
	c.logger.Debug().Msg("websocket closed")
}

func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		var in Envelope
		if err := websocket.JSON.Receive(c.ws, &in); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch in.Type {
		case TypeJoinBooking, TypeLeaveBooking:
			var ref BookingRef
			if err := json.Unmarshal(in.Data, &ref); err != nil || ref.BookingID == "" {
				c.sendError(ErrorFrame{Code: CodeBadRequest, Detail: "booking_id is required"})
				continue
			}
			if in.Type == TypeJoinBooking {
				h.join(ctx, c, ref.BookingID)
			} else {
				h.leave(c, ref.BookingID)
			}
		default:
			c.sendError(ErrorFrame{Code: CodeBadRequest, Detail: fmt.Sprintf("unknown message type %q", in.Type)})
		}
	}
}

// join subscribes first and then reads the snapshot while holding the write
// lock, so no update older than the snapshot can be delivered after it.
func (h *Handler) join(ctx context.Context, c *conn, bookingID string) {
	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(c.actor.ID, joinAction) {
		c.sendError(ErrorFrame{Code: CodeRateLimited, BookingID: bookingID})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h.hub.Join(ctx, bookingID, c.sub)
	b, err := h.bookings.GetBooking(ctx, bookingID, c.actor)
	if err != nil {
		h.hub.Leave(bookingID, c.sub)
		delete(c.sent, bookingID)
		code := CodeInternal
		if errors.Is(err, store.ErrNotFound) {
			code = CodeNotFound
		} else {
			c.logger.Warn().Err(err).Str(log.FieldBookingID, bookingID).Msg("snapshot failed")
		}
		c.writeLocked(TypeError, ErrorFrame{Code: code, BookingID: bookingID})
		return
	}

	if err := c.writeLocked(TypeSnapshot, Snapshot{Booking: b}); err != nil {
		return
	}
	if b.Version > c.sent[bookingID] {
		c.sent[bookingID] = b.Version
	}
	c.logger.Debug().Str(log.FieldBookingID, bookingID).Int64(log.FieldVersion, b.Version).Msg("joined booking")
}

func (h *Handler) leave(c *conn, bookingID string) {
	h.hub.Leave(bookingID, c.sub)
	c.mu.Lock()
	delete(c.sent, bookingID)
	c.mu.Unlock()
}

// pump forwards hub events until the context ends or the hub evicts us.
func (c *conn) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sub.Evicted():
			c.logger.Warn().Msg("subscriber evicted, closing connection")
			c.sendError(ErrorFrame{Code: CodeEvicted, Detail: "fell behind; reconnect and re-join"})
			return
		case ev := <-c.sub.C():
			if err := c.deliver(ev); err != nil {
				return
			}
		}
	}
}

func (c *conn) deliver(ev model.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, joined := c.sent[ev.BookingID]
	if !joined || ev.Version <= last {
		return nil
	}
	if err := c.writeLocked(TypeStatusUpdate, ev); err != nil {
		return err
	}
	c.sent[ev.BookingID] = ev.Version
	return nil
}

func (c *conn) sendError(f ErrorFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.writeLocked(TypeError, f)
}

func (c *conn) writeLocked(typ string, v any) error {
	env, err := frame(typ, v)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := websocket.JSON.Send(c.ws, env); err != nil {
		c.logger.Debug().Err(err).Str("type", typ).Msg("websocket write failed")
		return err
	}
	return nil
}

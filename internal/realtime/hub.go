// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package realtime fans committed booking events out to connected parties.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/domain/booking/ports"
	"github.com/ManuGH/booksync/internal/log"
	"github.com/ManuGH/booksync/internal/metrics"
)

const (
	DefaultBuffer = 32
	dropLogEvery  = 100
	seedTimeout   = 2 * time.Second
)

var evictCount atomic.Uint64

// Subscriber is one connected party. It may join any number of channels.
type Subscriber struct {
	id      string
	ch      chan model.StatusEvent
	evicted chan struct{}
	once    sync.Once
}

func NewSubscriber(id string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscriber{
		id:      id,
		ch:      make(chan model.StatusEvent, buffer),
		evicted: make(chan struct{}),
	}
}

func (s *Subscriber) ID() string { return s.id }

// C delivers events for every joined channel.
func (s *Subscriber) C() <-chan model.StatusEvent { return s.ch }

// Evicted is closed when the hub drops the subscriber for falling behind.
// The owner must re-join and re-fetch state.
func (s *Subscriber) Evicted() <-chan struct{} { return s.evicted }

// StateCache shares the last published version of a channel across instances.
type StateCache interface {
	Last(ctx context.Context, bookingID string) (model.StatusEvent, bool)
	Put(ctx context.Context, ev model.StatusEvent)
}

// Hub holds per-booking channels. Publish never blocks: a subscriber whose
// buffer is full is evicted from every channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscriber]struct{}
	joined   map[*Subscriber]map[string]struct{}
	last     map[string]int64

	cache StateCache
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithStateCache seeds a channel's last version when it gains its first member.
func WithStateCache(c StateCache) HubOption {
	return func(h *Hub) { h.cache = c }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		channels: make(map[string]map[*Subscriber]struct{}),
		joined:   make(map[*Subscriber]map[string]struct{}),
		last:     make(map[string]int64),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Join adds sub to the booking channel. Joining twice is a no-op.
func (h *Hub) Join(ctx context.Context, bookingID string, sub *Subscriber) {
	select {
	case <-sub.evicted:
		return
	default:
	}

	var seed int64
	if h.cache != nil && !h.hasChannel(bookingID) {
		cctx, cancel := context.WithTimeout(ctx, seedTimeout)
		if ev, ok := h.cache.Last(cctx, bookingID); ok {
			seed = ev.Version
		}
		cancel()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[bookingID]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.channels[bookingID] = members
	}
	if seed > h.last[bookingID] {
		h.last[bookingID] = seed
	}
	members[sub] = struct{}{}
	if h.joined[sub] == nil {
		h.joined[sub] = make(map[string]struct{})
	}
	h.joined[sub][bookingID] = struct{}{}
}

func (h *Hub) hasChannel(bookingID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[bookingID]
	return ok
}

// Leave removes sub from one channel.
func (h *Hub) Leave(bookingID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(bookingID, sub)
}

// LeaveAll removes sub from every channel, typically on disconnect.
func (h *Hub) LeaveAll(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.joined[sub] {
		h.leaveLocked(id, sub)
	}
	delete(h.joined, sub)
}

func (h *Hub) leaveLocked(bookingID string, sub *Subscriber) {
	if members, ok := h.channels[bookingID]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.channels, bookingID)
			delete(h.last, bookingID)
		}
	}
	if set, ok := h.joined[sub]; ok {
		delete(set, bookingID)
		if len(set) == 0 {
			delete(h.joined, sub)
		}
	}
}

// Members reports how many subscribers joined bookingID.
func (h *Hub) Members(bookingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[bookingID])
}

// Publish delivers ev to the booking's channel. Versions at or below the
// last one seen on the channel are dropped as duplicates or reordering.
func (h *Hub) Publish(_ context.Context, ev model.StatusEvent) {
	h.mu.Lock()
	members, ok := h.channels[ev.BookingID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if ev.Version <= h.last[ev.BookingID] {
		h.mu.Unlock()
		metrics.IncBroadcastDropped("stale")
		return
	}
	h.last[ev.BookingID] = ev.Version

	delivered := 0
	var full []*Subscriber
	for sub := range members {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			full = append(full, sub)
		}
	}
	for _, sub := range full {
		h.evictLocked(sub)
	}
	h.mu.Unlock()

	metrics.IncBroadcast(delivered)
	for range full {
		metrics.IncBroadcastDropped("evicted")
		metrics.IncSubscriberEviction()
		if n := evictCount.Add(1); n%dropLogEvery == 1 {
			l := log.WithComponent("realtime")
			l.Warn().
				Str(log.FieldBookingID, ev.BookingID).
				Uint64("evicted_total", n).
				Msg("subscriber buffer full, evicted")
		}
	}
}

func (h *Hub) evictLocked(sub *Subscriber) {
	for id := range h.joined[sub] {
		h.leaveLocked(id, sub)
	}
	delete(h.joined, sub)
	sub.once.Do(func() { close(sub.evicted) })
}

var _ ports.Publisher = (*Hub)(nil)

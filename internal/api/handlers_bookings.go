// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuGH/booksync/internal/auth"
	"github.com/ManuGH/booksync/internal/domain/booking/engine"
	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/log"
)

// BookingView is a booking plus fields derived from both state axes.
type BookingView struct {
	*model.Booking
	ReviewEligible bool `json:"review_eligible"`
}

func viewOf(b *model.Booking) BookingView {
	if b.History == nil {
		b.History = []model.HistoryEntry{}
	}
	return BookingView{Booking: b, ReviewEligible: b.ReviewEligible()}
}

type createBookingRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type createBookingResponse struct {
	ID      string      `json:"id"`
	Booking BookingView `json:"booking"`
}

type updateStatusRequest struct {
	Status model.LifecycleStatus `json:"status"`
	// Version pins the snapshot the caller decided on; omitted means latest.
	Version *int64 `json:"version,omitempty"`
}

type listBookingsResponse struct {
	Bookings []BookingView `json:"bookings"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", engine.ErrInvalidInput, err)
	}
	return nil
}

func actorFrom(r *http.Request) model.Actor {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p.Actor()
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	b, err := s.deps.Engine.CreateBooking(r.Context(), actorFrom(r), engine.CreateRequest{
		ServiceID: req.ServiceID,
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/bookings/"+b.ID)
	writeJSON(w, http.StatusCreated, createBookingResponse{ID: b.ID, Booking: viewOf(b)})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var (
		statuses *[]string
		limit    *int
	)
	if err := bindQuery(r, "status", false, false, &statuses); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := bindQuery(r, "limit", true, false, &limit); err != nil {
		writeDomainError(w, r, err)
		return
	}

	q := engine.ListQuery{}
	if statuses != nil {
		for _, st := range *statuses {
			if st = strings.TrimSpace(st); st != "" {
				q.Statuses = append(q.Statuses, model.LifecycleStatus(st))
			}
		}
	}
	if limit != nil {
		if *limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
			return
		}
		q.Limit = *limit
	}

	list, err := s.deps.Engine.ListBookings(r.Context(), actorFrom(r), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := listBookingsResponse{Bookings: make([]BookingView, 0, len(list))}
	for _, b := range list {
		resp.Bookings = append(resp.Bookings, viewOf(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := bindPath(r, "id", &id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	b, err := s.deps.Engine.GetBooking(r.Context(), id, actorFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := bindPath(r, "id", &id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "status is required")
		return
	}
	var expected int64
	if req.Version != nil {
		if *req.Version < 1 {
			writeError(w, http.StatusBadRequest, "invalid_input", "version must be positive")
			return
		}
		expected = *req.Version
	}

	ctx := log.ContextWithBookingID(r.Context(), id)
	b, err := s.deps.Engine.RequestTransition(ctx, id, actorFrom(r), req.Status, expected)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

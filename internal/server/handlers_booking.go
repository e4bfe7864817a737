package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/receipt"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

const actionCancel = "CANCEL"

type createBookingRequest struct {
	SlotID string `json:"slotId"`
	Note   string `json:"note"`
}

type updateBookingRequest struct {
	Action string `json:"action"`
}

type slotsResponse struct {
	Date  string             `json:"date,omitempty"`
	Slots []*models.SlotView `json:"slots"`
}

type bookingsResponse struct {
	Bookings []*models.Booking `json:"bookings"`
}

// GET /booking/slots?date=YYYY-MM-DD
func (s *Server) handleSlotsForDate(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	date := r.URL.Query().Get("date")

	views, err := s.guard.SlotsForDate(r.Context(), id.UserID, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: views})
}

// POST /booking
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	if req.SlotID == "" {
		s.writeError(w, r, errors.ErrValidation.WithMessage("slotId is required"))
		return
	}

	id := auth.IdentityFrom(r.Context())
	b, err := s.guard.CreateBooking(r.Context(), id.UserID, req.SlotID, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

// PATCH /booking/{id} {"action":"CANCEL"}
func (s *Server) handleUpdateOwnBooking(w http.ResponseWriter, r *http.Request) {
	var req updateBookingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !strings.EqualFold(strings.TrimSpace(req.Action), actionCancel) {
		s.writeError(w, r, errors.ErrInvalidAction.WithContext(map[string]interface{}{
			"action":  req.Action,
			"allowed": []string{actionCancel},
		}))
		return
	}

	id := auth.IdentityFrom(r.Context())
	b, err := s.guard.CancelBooking(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

// GET /booking/mine
func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	bookings, err := s.guard.MyBookings(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bookingsResponse{Bookings: bookings})
}

// GET /booking/{id}/receipt?format=json|html
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	format, err := receipt.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, errors.ErrValidation.WithMessage("format must be json or html"))
		return
	}

	id := auth.IdentityFrom(r.Context())
	b, err := s.guard.GetBooking(r.Context(), chi.URLParam(r, "id"), id.UserID, id.IsAdmin())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loc, err := s.guard.Location(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := receipt.Render(format, receipt.New(b, loc, s.clock.Now()))
	if err != nil {
		s.writeError(w, r, errors.ErrInternal.WithError(err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == receipt.FormatHTML {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

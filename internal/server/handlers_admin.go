package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammedemad618/amir-sub000/internal/admin"
	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

type scheduleResponse struct {
	Template    *models.ScheduleTemplate `json:"template"`
	Created     int                      `json:"created"`
	HorizonDays int                      `json:"horizonDays"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type usersResponse struct {
	Users []*models.User `json:"users"`
}

// ---- slots ----

func (s *Server) handleAdminListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := s.admin.ListSlots(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, slotsResponse{Slots: views})
}

func (s *Server) handleAdminCreateSlot(w http.ResponseWriter, r *http.Request) {
	var in admin.SlotInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	slot, err := s.admin.CreateSlot(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, slot)
}

func (s *Server) handleAdminUpdateSlot(w http.ResponseWriter, r *http.Request) {
	var patch admin.SlotPatch
	if err := s.decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	slot, err := s.admin.UpdateSlot(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleAdminDeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteSlot(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- schedule ----

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.admin.GetSchedule(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	var tpl models.ScheduleTemplate
	if err := s.decodeJSON(w, r, &tpl); err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, created, err := s.admin.SaveSchedule(r.Context(), &tpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, scheduleResponse{
		Template:    saved,
		Created:     created,
		HorizonDays: s.admin.HorizonDays(),
	})
}

// ---- bookings ----

func (s *Server) handleAdminListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := s.bookingFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bookings, err := s.guard.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bookingsResponse{Bookings: bookings})
}

// bookingFilter reads status, from, to, userId, slotId, limit and offset.
// Dates are whole days in the schedule timezone; to is inclusive.
func (s *Server) bookingFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		UserID: q.Get("userId"),
		SlotID: q.Get("slotId"),
	}

	if v := q.Get("status"); v != "" {
		status, err := validation.ValidateStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	if q.Get("from") != "" || q.Get("to") != "" {
		loc, err := s.guard.Location(r.Context())
		if err != nil {
			return filter, err
		}
		if v := q.Get("from"); v != "" {
			day, err := validation.ValidateDate(v, loc)
			if err != nil {
				return filter, err
			}
			filter.From = &day
		}
		if v := q.Get("to"); v != "" {
			day, err := validation.ValidateDate(v, loc)
			if err != nil {
				return filter, err
			}
			_, end := schedule.DayBounds(day, loc)
			filter.To = &end
		}
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.ErrValidation.WithMessage(name + " must be a non-negative integer")
		}
		*dst = n
	}

	return filter, nil
}

func (s *Server) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := validation.ValidateStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.guard.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAdminDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- users ----

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.admin.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, usersResponse{Users: users})
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	role, err := validation.ValidateRole(req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	actor := auth.IdentityFrom(r.Context())
	user, err := s.admin.SetUserRole(r.Context(), actor.UserID, chi.URLParam(r, "id"), role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

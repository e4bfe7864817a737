package models

import (
	"time"
)

// Role is a closed set of user roles
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ScheduleTemplate is the singleton weekly rule slots are generated from.
// DaysOfWeek uses time.Weekday numbering (Sunday=0).
type ScheduleTemplate struct {
	DaysOfWeek   []int     `json:"daysOfWeek"`
	StartTime    string    `json:"startTime"`
	EndTime      string    `json:"endTime"`
	SlotMinutes  int       `json:"slotMinutes"`
	BreakMinutes int       `json:"breakMinutes"`
	Timezone     string    `json:"timezone"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasDay reports whether the template works on weekday
func (t *ScheduleTemplate) HasDay(weekday time.Weekday) bool {
	for _, d := range t.DaysOfWeek {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// Location loads the template timezone
func (t *ScheduleTemplate) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

// Slot is a concrete, dated reservation unit
type Slot struct {
	ID        string    `json:"id"`
	StartAt   time.Time `json:"startAt"`
	EndAt     time.Time `json:"endAt"`
	Capacity  int       `json:"capacity"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasStarted reports whether the slot start is not strictly after now
func (s *Slot) HasStarted(now time.Time) bool {
	return !s.StartAt.After(now)
}

// HasEnded reports whether the slot end is not strictly after now
func (s *Slot) HasEnded(now time.Time) bool {
	return !s.EndAt.After(now)
}

// Duration returns the slot length
func (s *Slot) Duration() time.Duration {
	return s.EndAt.Sub(s.StartAt)
}

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the booking counts against capacity
func (s BookingStatus) Active() bool {
	return s != StatusCancelled
}

// Booking is one user's reservation against one slot
type Booking struct {
	ID        string        `json:"id"`
	SlotID    string        `json:"slotId"`
	UserID    string        `json:"userId"`
	Status    BookingStatus `json:"status"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`

	// Joined on reads
	Slot      *Slot  `json:"slot,omitempty"`
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

// SlotView is a slot annotated for a particular caller
type SlotView struct {
	*Slot
	BookedCount     int           `json:"bookedCount"`
	Remaining       int           `json:"remaining"`
	MyBookingID     string        `json:"myBookingId,omitempty"`
	MyBookingStatus BookingStatus `json:"myBookingStatus,omitempty"`
}

// NewSlotView annotates slot with its derived booked count
func NewSlotView(slot *Slot, booked int) *SlotView {
	return &SlotView{
		Slot:        slot,
		BookedCount: booked,
		Remaining:   Remaining(slot.Capacity, booked),
	}
}

// Remaining returns the number of free seats, never negative
func Remaining(capacity, booked int) int {
	if booked >= capacity {
		return 0
	}
	return capacity - booked
}

// BookingFilter narrows admin booking listings
type BookingFilter struct {
	Status BookingStatus
	UserID string
	SlotID string
	From   *time.Time // slot start >= From
	To     *time.Time // slot start < To
	Limit  int
	Offset int
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate")
)

// UserRepository stores accounts
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

// TemplateRepository stores the singleton weekly schedule
type TemplateRepository interface {
	GetTemplate(ctx context.Context) (*models.ScheduleTemplate, error)
	SaveTemplate(ctx context.Context, tpl *models.ScheduleTemplate) error
}

// SlotRepository stores concrete slots
type SlotRepository interface {
	CreateSlot(ctx context.Context, slot *models.Slot) error
	// InsertSlotsSkipDuplicates inserts all slots in one statement, silently
	// skipping those whose start time already exists. Returns rows inserted.
	InsertSlotsSkipDuplicates(ctx context.Context, slots []*models.Slot) (int, error)
	// HasSlotsBetween reports whether any slot starts in [from, to).
	HasSlotsBetween(ctx context.Context, from, to time.Time) (bool, error)
	// ListSlots returns slots starting in [from, to) ordered by start.
	ListSlots(ctx context.Context, from, to time.Time, includeInactive bool) ([]*models.Slot, error)
	GetSlotByID(ctx context.Context, id string) (*models.Slot, error)
	UpdateSlot(ctx context.Context, slot *models.Slot) error
	DeleteSlot(ctx context.Context, id string) error
	// CountActiveBookings returns non-cancelled booking counts keyed by slot id.
	CountActiveBookings(ctx context.Context, slotIDs []string) (map[string]int, error)
}

// BookingRepository stores reservations
type BookingRepository interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	// FindActiveBooking returns the caller's non-cancelled booking on slot, or nil.
	FindActiveBooking(ctx context.Context, slotID, userID string) (*models.Booking, error)
	// HasActiveAppointment reports whether the user holds a non-cancelled
	// booking on any slot that has not ended at now.
	HasActiveAppointment(ctx context.Context, userID string, now time.Time) (bool, error)
	// InsertBookingIfCapacity inserts booking only while the slot is active and
	// below capacity, in a single statement. Returns false when nothing was inserted.
	InsertBookingIfCapacity(ctx context.Context, booking *models.Booking) (bool, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	// ListUpcomingBookings returns non-cancelled bookings on slots starting after now.
	ListUpcomingBookings(ctx context.Context, now time.Time) ([]*models.Booking, error)
}

// Storage combines all repositories
type Storage interface {
	UserRepository
	TemplateRepository
	SlotRepository
	BookingRepository
	Close() error
	Ping(ctx context.Context) error
}

package events

import (
	"context"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
)

// Routing keys
const (
	KeyBookingCreated       = "booking.created"
	KeyBookingCancelled     = "booking.cancelled"
	KeyBookingStatusChanged = "booking.status_changed"
	KeyBookingDeleted       = "booking.deleted"
	KeyScheduleMaterialized = "schedule.materialized"
)

// Publisher emits domain events
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// BookingEvent is the payload of booking.* events
type BookingEvent struct {
	BookingID  string               `json:"bookingId"`
	SlotID     string               `json:"slotId"`
	UserID     string               `json:"userId"`
	Status     models.BookingStatus `json:"status"`
	PrevStatus models.BookingStatus `json:"prevStatus,omitempty"`
	StartAt    time.Time            `json:"startAt"`
	EndAt      time.Time            `json:"endAt"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// NewBookingEvent builds the payload for b. b.Slot may be nil.
func NewBookingEvent(b *models.Booking, now time.Time) BookingEvent {
	ev := BookingEvent{
		BookingID:  b.ID,
		SlotID:     b.SlotID,
		UserID:     b.UserID,
		Status:     b.Status,
		OccurredAt: now.UTC(),
	}
	if b.Slot != nil {
		ev.StartAt = b.Slot.StartAt
		ev.EndAt = b.Slot.EndAt
	}
	return ev
}

// ScheduleEvent is the payload of schedule.materialized
type ScheduleEvent struct {
	HorizonDays int       `json:"horizonDays"`
	Created     int       `json:"created"`
	Timezone    string    `json:"timezone"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

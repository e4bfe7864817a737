package scheduler

import (
	"context"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
)

// ReminderScheduler plans appointment reminders
type ReminderScheduler interface {
	// Schedule plans a reminder for booking at notifyAt, replacing any earlier one
	Schedule(ctx context.Context, booking *models.Booking, notifyAt time.Time) error

	// Cancel drops the booking's pending reminder, if any
	Cancel(ctx context.Context, bookingID string) error

	Start(ctx context.Context) error
	Stop() error
}

// NotificationSender delivers booking notices
type NotificationSender interface {
	// NotifyBookingCreated tells the administrators about a new booking
	NotifyBookingCreated(ctx context.Context, booking *models.Booking) error

	// SendReminder announces an upcoming appointment
	SendReminder(ctx context.Context, booking *models.Booking) error
}

package booking

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/events"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/scheduler"
	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const (
	notifyTimeout    = 10 * time.Second
	slotBookingsPage = 500
)

// Store is the persistence the guard needs
type Store interface {
	storage.TemplateRepository
	storage.SlotRepository
	storage.BookingRepository
}

// Guard validates and commits bookings
type Guard struct {
	store          Store
	materializer   *schedule.Materializer
	clock          clock.Clock
	logger         *zap.Logger
	emitter        *events.Emitter
	reminders      scheduler.ReminderScheduler
	notifier       scheduler.NotificationSender
	reminderBefore time.Duration
	location       *time.Location
}

// Option configures a Guard
type Option func(*Guard)

// WithEmitter publishes booking events through e
func WithEmitter(e *events.Emitter) Option {
	return func(g *Guard) { g.emitter = e }
}

// WithReminders arms a reminder before each confirmed appointment
func WithReminders(r scheduler.ReminderScheduler, before time.Duration) Option {
	return func(g *Guard) {
		g.reminders = r
		g.reminderBefore = before
	}
}

// WithNotifier announces new bookings through n
func WithNotifier(n scheduler.NotificationSender) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithLocation sets the timezone used when no schedule template exists
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) { g.location = loc }
}

// NewGuard creates a guard
func NewGuard(store Store, m *schedule.Materializer, clk clock.Clock, log *zap.Logger, opts ...Option) *Guard {
	if clk == nil {
		clk = clock.Real{}
	}
	g := &Guard{
		store:        store,
		materializer: m,
		clock:        clk,
		logger:       logger.OrNop(log),
		location:     time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.emitter == nil {
		g.emitter = events.NewEmitter(nil, g.logger)
	}
	return g
}

func (g *Guard) reject(err *errors.AppError, fields ...zap.Field) error {
	metrics.RecordBookingRejected(err.Code)
	g.logger.Info("Booking rejected", append(fields, zap.String("reason", err.Code))...)
	return err
}

// CreateBooking commits a booking for userID on slotID. Checks run in a fixed
// order and the first failure is returned.
func (g *Guard) CreateBooking(ctx context.Context, userID, slotID, note string) (*models.Booking, error) {
	note, err := validation.ValidateNote(note)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("user_id", userID), zap.String("slot_id", slotID)}

	slot, err := g.store.GetSlotByID(ctx, slotID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, g.reject(errors.ErrSlotUnavailable.WithStatus(http.StatusNotFound), fields...)
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if !slot.IsActive {
		return nil, g.reject(errors.ErrSlotUnavailable, fields...)
	}

	now := g.clock.Now()
	if slot.HasStarted(now) {
		return nil, g.reject(errors.ErrSlotInPast, fields...)
	}

	existing, err := g.store.FindActiveBooking(ctx, slot.ID, userID)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if existing != nil {
		return nil, g.reject(errors.ErrDuplicateBooking.WithContext(map[string]interface{}{
			"booking_id": existing.ID,
		}), fields...)
	}

	active, err := g.store.HasActiveAppointment(ctx, userID, now)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if active {
		return nil, g.reject(errors.ErrActiveAppointment, fields...)
	}

	counts, err := g.store.CountActiveBookings(ctx, []string{slot.ID})
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if counts[slot.ID] >= slot.Capacity {
		return nil, g.reject(errors.ErrSlotFull, fields...)
	}

	b := &models.Booking{
		ID:     uuid.NewString(),
		SlotID: slot.ID,
		UserID: userID,
		Status: models.StatusConfirmed,
		Note:   note,
	}

	// capacity is re-checked inside the insert
	inserted, err := g.store.InsertBookingIfCapacity(ctx, b)
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return nil, g.reject(errors.ErrDuplicateBooking, fields...)
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if !inserted {
		return nil, g.reject(g.insertRefusal(ctx, slot.ID), fields...)
	}

	created, err := g.store.GetBookingByID(ctx, b.ID)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.BookingsCreated.Inc()
	g.logger.Info("Booking created", append(fields, zap.String("booking_id", created.ID))...)

	g.emitter.Emit(ctx, events.KeyBookingCreated, events.NewBookingEvent(created, now))
	g.armReminder(ctx, created)
	g.notifyCreated(ctx, created)

	return created, nil
}

// insertRefusal tells why the conditional insert wrote nothing: the slot went
// away or inactive since it was read, or the last seat was taken
func (g *Guard) insertRefusal(ctx context.Context, slotID string) *errors.AppError {
	slot, err := g.store.GetSlotByID(ctx, slotID)
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.ErrSlotUnavailable.WithStatus(http.StatusNotFound)
	case err == nil && !slot.IsActive:
		return errors.ErrSlotUnavailable
	}
	return errors.ErrSlotFull
}

// CancelBooking cancels the caller's own booking. Cancelling twice returns the
// booking unchanged; someone else's booking is reported as not found.
func (g *Guard) CancelBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	b, err := g.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if b.UserID != userID {
		return nil, errors.ErrBookingNotFound
	}
	if b.Status == models.StatusCancelled {
		return b, nil
	}

	updated, err := g.store.UpdateBookingStatus(ctx, b.ID, models.StatusCancelled)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.BookingsCancelled.Inc()
	g.logger.Info("Booking cancelled",
		zap.String("booking_id", updated.ID),
		zap.String("user_id", userID))

	g.dropReminder(ctx, updated.ID)
	ev := events.NewBookingEvent(updated, g.clock.Now())
	ev.PrevStatus = b.Status
	g.emitter.Emit(ctx, events.KeyBookingCancelled, ev)

	return updated, nil
}

// SetStatus lets an administrator move a booking to any status without
// re-running the booking checks
func (g *Guard) SetStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, errors.ErrInvalidStatus
	}

	b, err := g.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if b.Status == status {
		return b, nil
	}

	updated, err := g.store.UpdateBookingStatus(ctx, b.ID, status)
	if err != nil {
		// the per-slot uniqueness index still applies
		if stderrors.Is(err, storage.ErrDuplicate) {
			return nil, errors.ErrDuplicateBooking
		}
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.AdminStatusChanges.WithLabelValues(string(status)).Inc()
	g.logger.Info("Booking status changed",
		zap.String("booking_id", updated.ID),
		zap.String("from", string(b.Status)),
		zap.String("to", string(status)))

	if status == models.StatusCancelled {
		g.dropReminder(ctx, updated.ID)
	} else {
		g.armReminder(ctx, updated)
	}

	ev := events.NewBookingEvent(updated, g.clock.Now())
	ev.PrevStatus = b.Status
	g.emitter.Emit(ctx, events.KeyBookingStatusChanged, ev)

	return updated, nil
}

// Delete removes a booking outright
func (g *Guard) Delete(ctx context.Context, bookingID string) error {
	b, err := g.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.ErrBookingNotFound
		}
		return errors.ErrDatabase.WithError(err)
	}

	if err := g.store.DeleteBooking(ctx, b.ID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.ErrBookingNotFound
		}
		return errors.ErrDatabase.WithError(err)
	}

	g.logger.Info("Booking deleted", zap.String("booking_id", b.ID))
	g.dropReminder(ctx, b.ID)
	g.emitter.Emit(ctx, events.KeyBookingDeleted, events.NewBookingEvent(b, g.clock.Now()))
	return nil
}

// RestoreReminders re-arms reminders for every upcoming booking
func (g *Guard) RestoreReminders(ctx context.Context) (int, error) {
	if g.reminders == nil {
		return 0, nil
	}

	upcoming, err := g.store.ListUpcomingBookings(ctx, g.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, b := range upcoming {
		g.armReminder(ctx, b)
	}
	return len(upcoming), nil
}

// SlotBookings returns every booking on slotID, cancelled ones included
func (g *Guard) SlotBookings(ctx context.Context, slotID string) ([]*models.Booking, error) {
	var all []*models.Booking
	for offset := 0; ; offset += slotBookingsPage {
		page, err := g.store.ListBookings(ctx, models.BookingFilter{
			SlotID: slotID,
			Limit:  slotBookingsPage,
			Offset: offset,
		})
		if err != nil {
			return nil, errors.ErrDatabase.WithError(err)
		}
		all = append(all, page...)
		if len(page) < slotBookingsPage {
			return all, nil
		}
	}
}

// ResyncSlot re-arms the reminders of a slot's bookings after the slot was
// edited. Bookings of an inactive slot lose their reminder.
func (g *Guard) ResyncSlot(ctx context.Context, slotID string) error {
	if g.reminders == nil {
		return nil
	}
	bookings, err := g.SlotBookings(ctx, slotID)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		g.armReminder(ctx, b)
	}
	return nil
}

// ForgetBookings drops reminders and announces deletion for bookings removed
// together with their slot
func (g *Guard) ForgetBookings(ctx context.Context, bookings []*models.Booking) {
	now := g.clock.Now()
	for _, b := range bookings {
		g.dropReminder(ctx, b.ID)
		g.emitter.Emit(ctx, events.KeyBookingDeleted, events.NewBookingEvent(b, now))
	}
}

func (g *Guard) armReminder(ctx context.Context, b *models.Booking) {
	if g.reminders == nil {
		return
	}
	if b.Slot == nil || !b.Status.Active() || !b.Slot.IsActive || b.Slot.HasStarted(g.clock.Now()) {
		g.dropReminder(ctx, b.ID)
		return
	}
	notifyAt := b.Slot.StartAt.Add(-g.reminderBefore)
	if err := g.reminders.Schedule(ctx, b, notifyAt); err != nil {
		g.logger.Warn("Failed to schedule reminder", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (g *Guard) dropReminder(ctx context.Context, bookingID string) {
	if g.reminders == nil {
		return
	}
	if err := g.reminders.Cancel(ctx, bookingID); err != nil {
		g.logger.Warn("Failed to cancel reminder", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (g *Guard) notifyCreated(ctx context.Context, b *models.Booking) {
	if g.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := g.notifier.NotifyBookingCreated(ctx, b); err != nil {
			g.logger.Warn("Failed to send booking notice", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}()
}

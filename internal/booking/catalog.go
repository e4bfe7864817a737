package booking

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

const myBookingsLimit = 200

// Location returns the schedule template timezone, or the service default when
// no template has been saved yet
func (g *Guard) Location(ctx context.Context) (*time.Location, error) {
	tpl, err := g.store.GetTemplate(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return g.location, nil
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	loc, err := tpl.Location()
	if err != nil {
		g.logger.Warn("Stored template has an invalid timezone", zap.String("timezone", tpl.Timezone), zap.Error(err))
		return g.location, nil
	}
	return loc, nil
}

// SlotsForDate lists the active slots starting on date, annotated with seat
// counts and the caller's own booking. A date without slots is materialized
// from the template first.
func (g *Guard) SlotsForDate(ctx context.Context, userID, date string) ([]*models.SlotView, error) {
	loc, err := g.Location(ctx)
	if err != nil {
		return nil, err
	}

	day, err := validation.ValidateDate(date, loc)
	if err != nil {
		return nil, err
	}

	if g.materializer != nil {
		if _, err := g.materializer.EnsureDay(ctx, day); err != nil {
			return nil, errors.ErrDatabase.WithError(err)
		}
	}

	start, end := schedule.DayBounds(day, loc)
	slots, err := g.store.ListSlots(ctx, start, end, false)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	counts, err := g.store.CountActiveBookings(ctx, ids)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	mine := map[string]*models.Booking{}
	if userID != "" && len(slots) > 0 {
		own, err := g.store.ListBookings(ctx, models.BookingFilter{
			UserID: userID,
			From:   &start,
			To:     &end,
			Limit:  myBookingsLimit,
		})
		if err != nil {
			return nil, errors.ErrDatabase.WithError(err)
		}
		for _, b := range own {
			// an active booking wins over older cancelled ones
			if prev, ok := mine[b.SlotID]; ok && prev.Status.Active() {
				continue
			}
			mine[b.SlotID] = b
		}
	}

	views := make([]*models.SlotView, 0, len(slots))
	for _, s := range slots {
		v := models.NewSlotView(s, counts[s.ID])
		if b, ok := mine[s.ID]; ok {
			v.MyBookingID = b.ID
			v.MyBookingStatus = b.Status
		}
		views = append(views, v)
	}
	return views, nil
}

// MyBookings returns the caller's bookings, latest appointment first
func (g *Guard) MyBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	bookings, err := g.store.ListBookings(ctx, models.BookingFilter{
		UserID: userID,
		Limit:  myBookingsLimit,
	})
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

// ListBookings returns bookings for the admin view
func (g *Guard) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	bookings, err := g.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

// GetBooking returns a booking visible to the caller: its owner or an admin
func (g *Guard) GetBooking(ctx context.Context, bookingID, userID string, admin bool) (*models.Booking, error) {
	b, err := g.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	if !admin && b.UserID != userID {
		return nil, errors.ErrBookingNotFound
	}
	return b, nil
}

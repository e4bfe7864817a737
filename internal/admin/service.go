package admin

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/events"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

// Bookings is the booking side of slot administration: the timezone dates are
// read in, and the reminders and events that follow slot edits
type Bookings interface {
	Location(ctx context.Context) (*time.Location, error)
	SlotBookings(ctx context.Context, slotID string) ([]*models.Booking, error)
	ResyncSlot(ctx context.Context, slotID string) error
	ForgetBookings(ctx context.Context, bookings []*models.Booking)
}

// SlotInput creates a slot
type SlotInput struct {
	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
	Capacity *int      `json:"capacity"`
	IsActive *bool     `json:"isActive"`
}

// SlotPatch edits a slot; nil fields are left unchanged
type SlotPatch struct {
	StartAt  *time.Time `json:"startAt"`
	EndAt    *time.Time `json:"endAt"`
	Capacity *int       `json:"capacity"`
	IsActive *bool      `json:"isActive"`
}

// Service is the administrator back-office
type Service struct {
	store        storage.Storage
	materializer *schedule.Materializer
	bookings     Bookings
	emitter      *events.Emitter
	clock        clock.Clock
	logger       *zap.Logger
}

func NewService(store storage.Storage, m *schedule.Materializer, bookings Bookings, emitter *events.Emitter, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	log = logger.OrNop(log)
	if emitter == nil {
		emitter = events.NewEmitter(nil, log)
	}
	return &Service{
		store:        store,
		materializer: m,
		bookings:     bookings,
		emitter:      emitter,
		clock:        clk,
		logger:       log,
	}
}

// ListSlots returns slots starting in [from, to], inactive ones included.
// Dates are YYYY-MM-DD; from defaults to today and to to the end of the horizon.
func (s *Service) ListSlots(ctx context.Context, from, to string) ([]*models.SlotView, error) {
	loc, err := s.bookings.Location(ctx)
	if err != nil {
		return nil, err
	}

	start, _ := schedule.DayBounds(s.clock.Now(), loc)
	if from != "" {
		if start, err = validation.ValidateDate(from, loc); err != nil {
			return nil, err
		}
	}

	y, m, d := start.Date()
	end := time.Date(y, m, d+s.materializer.HorizonDays(), 0, 0, 0, 0, loc)
	if to != "" {
		day, err := validation.ValidateDate(to, loc)
		if err != nil {
			return nil, err
		}
		_, end = schedule.DayBounds(day, loc)
	}
	if err := validation.ValidateListRange(start, end); err != nil {
		return nil, err
	}

	slots, err := s.store.ListSlots(ctx, start, end, true)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	ids := make([]string, len(slots))
	for i, sl := range slots {
		ids[i] = sl.ID
	}
	counts, err := s.store.CountActiveBookings(ctx, ids)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	views := make([]*models.SlotView, 0, len(slots))
	for _, sl := range slots {
		views = append(views, models.NewSlotView(sl, counts[sl.ID]))
	}
	return views, nil
}

// CreateSlot adds a single slot by hand
func (s *Service) CreateSlot(ctx context.Context, in SlotInput) (*models.Slot, error) {
	slot := &models.Slot{
		ID:       uuid.NewString(),
		StartAt:  in.StartAt.UTC().Truncate(time.Second),
		EndAt:    in.EndAt.UTC().Truncate(time.Second),
		Capacity: schedule.DefaultCapacity,
		IsActive: true,
	}
	if in.Capacity != nil {
		slot.Capacity = *in.Capacity
	}
	if in.IsActive != nil {
		slot.IsActive = *in.IsActive
	}

	if err := validateSlot(slot); err != nil {
		return nil, err
	}

	if err := s.store.CreateSlot(ctx, slot); err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return nil, errors.ErrSlotExists
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.SlotsCreatedManually.Inc()
	s.logger.Info("Slot created",
		zap.String("slot_id", slot.ID),
		zap.Time("start_at", slot.StartAt),
		zap.Int("capacity", slot.Capacity))
	return slot, nil
}

// UpdateSlot edits times, capacity or the active flag. Existing bookings are kept
// even if the new capacity is below the booked count.
func (s *Service) UpdateSlot(ctx context.Context, id string, patch SlotPatch) (*models.Slot, error) {
	slot, err := s.store.GetSlotByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrSlotNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	if patch.StartAt != nil {
		slot.StartAt = patch.StartAt.UTC().Truncate(time.Second)
	}
	if patch.EndAt != nil {
		slot.EndAt = patch.EndAt.UTC().Truncate(time.Second)
	}
	if patch.Capacity != nil {
		slot.Capacity = *patch.Capacity
	}
	if patch.IsActive != nil {
		slot.IsActive = *patch.IsActive
	}

	if err := validateSlot(slot); err != nil {
		return nil, err
	}

	if err := s.store.UpdateSlot(ctx, slot); err != nil {
		switch {
		case stderrors.Is(err, storage.ErrDuplicate):
			return nil, errors.ErrSlotExists
		case stderrors.Is(err, storage.ErrNotFound):
			return nil, errors.ErrSlotNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	s.logger.Info("Slot updated", zap.String("slot_id", slot.ID), zap.Bool("active", slot.IsActive))

	// the slot is already saved; reminder drift is logged, not returned
	if err := s.bookings.ResyncSlot(ctx, slot.ID); err != nil {
		s.logger.Warn("Failed to resync reminders", zap.String("slot_id", slot.ID), zap.Error(err))
	}
	return slot, nil
}

// DeleteSlot removes a slot together with its bookings
func (s *Service) DeleteSlot(ctx context.Context, id string) error {
	bookings, err := s.bookings.SlotBookings(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteSlot(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.ErrSlotNotFound
		}
		return errors.ErrDatabase.WithError(err)
	}

	s.bookings.ForgetBookings(ctx, bookings)
	s.logger.Info("Slot deleted", zap.String("slot_id", id), zap.Int("bookings", len(bookings)))
	return nil
}

func validateSlot(slot *models.Slot) error {
	if err := validation.ValidateSlotRange(slot.StartAt, slot.EndAt); err != nil {
		return err
	}
	return validation.ValidateCapacity(slot.Capacity)
}

// HorizonDays is how many days ahead a schedule save materializes
func (s *Service) HorizonDays() int {
	return s.materializer.HorizonDays()
}

// GetSchedule returns the weekly template
func (s *Service) GetSchedule(ctx context.Context) (*models.ScheduleTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrScheduleNotConfigured
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return tpl, nil
}

// SaveSchedule replaces the template and materializes the rolling horizon.
// Days that already have slots keep them.
func (s *Service) SaveSchedule(ctx context.Context, tpl *models.ScheduleTemplate) (*models.ScheduleTemplate, int, error) {
	if err := validation.ValidateTemplate(tpl); err != nil {
		return nil, 0, err
	}

	if err := s.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, 0, errors.ErrDatabase.WithError(err)
	}

	created, err := s.materializer.MaterializeHorizon(ctx, tpl)
	if err != nil {
		s.logger.Error("Horizon materialization failed", zap.Int("created", created), zap.Error(err))
		return nil, created, errors.ErrDatabase.WithError(err)
	}

	s.logger.Info("Booking schedule saved",
		zap.Ints("days", tpl.DaysOfWeek),
		zap.String("start", tpl.StartTime),
		zap.String("end", tpl.EndTime),
		zap.Int("created", created))

	s.emitter.Emit(ctx, events.KeyScheduleMaterialized, events.ScheduleEvent{
		HorizonDays: s.materializer.HorizonDays(),
		Created:     created,
		Timezone:    tpl.Timezone,
		OccurredAt:  s.clock.Now().UTC(),
	})

	return tpl, created, nil
}

// ListUsers returns all accounts
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// SetUserRole changes a user's role. Administrators cannot demote themselves.
func (s *Service) SetUserRole(ctx context.Context, actorID, userID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, errors.ErrValidation.WithMessage("role must be user or admin")
	}
	if actorID == userID && role != models.RoleAdmin {
		return nil, errors.ErrValidation.WithMessage("administrators cannot remove their own admin role")
	}

	user, err := s.store.UpdateUserRole(ctx, userID, role)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	s.logger.Info("User role changed",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
		zap.String("by", actorID))
	return user, nil
}

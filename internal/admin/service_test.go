package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/booking"
	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/events"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/storage/sqlite"
	"github.com/mohammedemad618/amir-sub000/internal/testutil"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

// Sunday noon
var now = time.Date(2030, 1, 6, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	last any
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.last = payload
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

type recordingReminders struct {
	mu  sync.Mutex
	due map[string]time.Time
}

func (r *recordingReminders) Schedule(_ context.Context, b *models.Booking, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.due[b.ID] = at
	return nil
}

func (r *recordingReminders) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.due, id)
	return nil
}

func (r *recordingReminders) Start(context.Context) error { return nil }
func (r *recordingReminders) Stop() error                 { return nil }

func (r *recordingReminders) get(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.due[id]
	return at, ok
}

type fixture struct {
	svc       *Service
	store     *sqlite.SQLiteStorage
	guard     *booking.Guard
	pub       *recordingPublisher
	reminders *recordingReminders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.SetupTestDB(t)
	log := testutil.SetupTestLogger(t)
	clk := clock.NewFixed(now)
	pub := &recordingPublisher{}
	rem := &recordingReminders{due: map[string]time.Time{}}
	emitter := events.NewEmitter(pub, log)
	m := schedule.NewMaterializer(store, store, clk, log, 14)
	g := booking.NewGuard(store, m, clk, log,
		booking.WithEmitter(emitter),
		booking.WithReminders(rem, time.Hour))
	return &fixture{
		svc:       NewService(store, m, g, emitter, clk, log),
		store:     store,
		guard:     g,
		pub:       pub,
		reminders: rem,
	}
}

func setup(t *testing.T) (*Service, *sqlite.SQLiteStorage, *booking.Guard, *recordingPublisher) {
	f := newFixture(t)
	return f.svc, f.store, f.guard, f.pub
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestSaveSchedule_MaterializesHorizon(t *testing.T) {
	svc, store, _, pub := setup(t)
	ctx := context.Background()

	tpl := &models.ScheduleTemplate{
		DaysOfWeek:   []int{1, 3},
		StartTime:    "09:00",
		EndTime:      "10:00",
		SlotMinutes:  30,
		BreakMinutes: 0,
		Timezone:     "UTC",
	}
	_, created, err := svc.SaveSchedule(ctx, tpl)
	testutil.AssertNoError(t, err, "SaveSchedule")
	// two Mondays and two Wednesdays in 14 days from Sunday, 2 slots each
	if created != 8 {
		t.Errorf("created = %d, want 8", created)
	}

	got, err := svc.GetSchedule(ctx)
	testutil.AssertNoError(t, err, "GetSchedule")
	if got.StartTime != "09:00" || len(got.DaysOfWeek) != 2 {
		t.Errorf("GetSchedule() = %+v", got)
	}

	pub.mu.Lock()
	if len(pub.keys) != 1 || pub.keys[0] != events.KeyScheduleMaterialized {
		t.Errorf("published %v, want one %s", pub.keys, events.KeyScheduleMaterialized)
	}
	if ev, ok := pub.last.(events.ScheduleEvent); !ok || ev.Created != 8 {
		t.Errorf("event payload = %+v", pub.last)
	}
	pub.mu.Unlock()

	// saving again with a different length keeps the existing days
	tpl.SlotMinutes = 15
	_, created, err = svc.SaveSchedule(ctx, tpl)
	testutil.AssertNoError(t, err, "SaveSchedule again")
	if created != 0 {
		t.Errorf("second save created %d slots, want 0", created)
	}

	slots, err := store.ListSlots(ctx, now, now.AddDate(0, 0, 30), true)
	testutil.AssertNoError(t, err, "ListSlots")
	if len(slots) != 8 {
		t.Errorf("stored %d slots, want 8", len(slots))
	}
}

func TestSaveSchedule_Invalid(t *testing.T) {
	svc, _, _, pub := setup(t)

	_, _, err := svc.SaveSchedule(context.Background(), &models.ScheduleTemplate{
		DaysOfWeek:  []int{1},
		StartTime:   "10:00",
		EndTime:     "09:00",
		SlotMinutes: 30,
		Timezone:    "UTC",
	})
	testutil.AssertAppError(t, err, errors.ErrInvalidTemplate)

	if len(pub.keys) != 0 {
		t.Errorf("invalid template published %v", pub.keys)
	}
}

func TestGetSchedule_NotConfigured(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.GetSchedule(context.Background())
	testutil.AssertAppError(t, err, errors.ErrScheduleNotConfigured)
}

func TestSlotLifecycle(t *testing.T) {
	svc, _, g, _ := setup(t)
	ctx := context.Background()
	start := time.Date(2030, 1, 8, 14, 0, 0, 0, time.UTC)

	slot, err := svc.CreateSlot(ctx, SlotInput{StartAt: start, EndAt: start.Add(45 * time.Minute), Capacity: intPtr(3)})
	testutil.AssertNoError(t, err, "CreateSlot")
	if slot.Capacity != 3 || !slot.IsActive {
		t.Errorf("CreateSlot() = %+v", slot)
	}

	_, err = svc.CreateSlot(ctx, SlotInput{StartAt: start, EndAt: start.Add(30 * time.Minute)})
	testutil.AssertAppError(t, err, errors.ErrSlotExists)

	_, err = svc.CreateSlot(ctx, SlotInput{StartAt: start.Add(time.Hour), EndAt: start.Add(time.Hour)})
	testutil.AssertAppError(t, err, errors.ErrValidation)

	_, err = svc.CreateSlot(ctx, SlotInput{StartAt: start.Add(time.Hour), EndAt: start.Add(2 * time.Hour), Capacity: intPtr(0)})
	testutil.AssertAppError(t, err, errors.ErrValidation)

	updated, err := svc.UpdateSlot(ctx, slot.ID, SlotPatch{IsActive: boolPtr(false), Capacity: intPtr(5)})
	testutil.AssertNoError(t, err, "UpdateSlot")
	if updated.IsActive || updated.Capacity != 5 {
		t.Errorf("UpdateSlot() = %+v", updated)
	}

	views, err := svc.ListSlots(ctx, "2030-01-08", "2030-01-08")
	testutil.AssertNoError(t, err, "ListSlots")
	if len(views) != 1 || views[0].IsActive {
		t.Fatalf("admin list = %+v, want the inactive slot", views)
	}

	public, err := g.SlotsForDate(ctx, "", "2030-01-08")
	testutil.AssertNoError(t, err, "SlotsForDate")
	if len(public) != 0 {
		t.Errorf("inactive slot visible to users")
	}

	testutil.AssertNoError(t, svc.DeleteSlot(ctx, slot.ID), "DeleteSlot")
	testutil.AssertAppError(t, svc.DeleteSlot(ctx, slot.ID), errors.ErrSlotNotFound)

	_, err = svc.UpdateSlot(ctx, slot.ID, SlotPatch{Capacity: intPtr(2)})
	testutil.AssertAppError(t, err, errors.ErrSlotNotFound)
}

func TestUpdateSlot_CapacityBelowBooked(t *testing.T) {
	svc, store, g, _ := setup(t)
	ctx := context.Background()
	s := testutil.CreateSlot(t, store, time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC), 30*time.Minute, 2)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		u := testutil.CreateUser(t, store, email, models.RoleUser)
		_, err := g.CreateBooking(ctx, u.ID, s.ID, "")
		testutil.AssertNoError(t, err, "book")
	}

	_, err := svc.UpdateSlot(ctx, s.ID, SlotPatch{Capacity: intPtr(1)})
	testutil.AssertNoError(t, err, "shrink capacity")

	views, err := svc.ListSlots(ctx, "2030-01-07", "2030-01-07")
	testutil.AssertNoError(t, err, "ListSlots")
	if len(views) != 1 {
		t.Fatalf("got %d slots, want 1", len(views))
	}
	if views[0].BookedCount != 2 || views[0].Remaining != 0 {
		t.Errorf("booked=%d remaining=%d, want 2 and 0", views[0].BookedCount, views[0].Remaining)
	}
}

func TestListSlots_Range(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.ListSlots(ctx, "2030-01-10", "2030-01-01")
	testutil.AssertAppError(t, err, errors.ErrValidation)

	_, err = svc.ListSlots(ctx, "2030-01-01", "2030-12-31")
	testutil.AssertAppError(t, err, errors.ErrValidation)

	_, err = svc.ListSlots(ctx, "tomorrow", "")
	testutil.AssertAppError(t, err, errors.ErrInvalidDate)

	views, err := svc.ListSlots(ctx, "", "")
	testutil.AssertNoError(t, err, "default range")
	if len(views) != 0 {
		t.Errorf("got %d slots on an empty calendar", len(views))
	}
}

func TestSetUserRole(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, store, "admin@example.com", models.RoleAdmin)
	user := testutil.CreateUser(t, store, "user@example.com", models.RoleUser)

	promoted, err := svc.SetUserRole(ctx, admin.ID, user.ID, models.RoleAdmin)
	testutil.AssertNoError(t, err, "promote")
	if promoted.Role != models.RoleAdmin {
		t.Errorf("role = %s, want admin", promoted.Role)
	}

	_, err = svc.SetUserRole(ctx, admin.ID, admin.ID, models.RoleUser)
	testutil.AssertAppError(t, err, errors.ErrValidation)

	_, err = svc.SetUserRole(ctx, admin.ID, "missing", models.RoleUser)
	testutil.AssertAppError(t, err, errors.ErrUserNotFound)

	_, err = svc.SetUserRole(ctx, admin.ID, user.ID, models.Role("owner"))
	testutil.AssertAppError(t, err, errors.ErrValidation)

	users, err := svc.ListUsers(ctx)
	testutil.AssertNoError(t, err, "ListUsers")
	if len(users) != 2 {
		t.Errorf("ListUsers() = %d users, want 2", len(users))
	}
}

func TestSlotEdits_FollowReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
	s := testutil.CreateSlot(t, f.store, start, 30*time.Minute, 2)

	u := testutil.CreateUser(t, f.store, "user@example.com", models.RoleUser)
	b, err := f.guard.CreateBooking(ctx, u.ID, s.ID, "")
	testutil.AssertNoError(t, err, "book")
	if at, ok := f.reminders.get(b.ID); !ok || !at.Equal(start.Add(-time.Hour)) {
		t.Fatalf("initial reminder = %v %v, want %v", at, ok, start.Add(-time.Hour))
	}

	moved := start.Add(24 * time.Hour)
	movedEnd := moved.Add(30 * time.Minute)
	_, err = f.svc.UpdateSlot(ctx, s.ID, SlotPatch{StartAt: &moved, EndAt: &movedEnd})
	testutil.AssertNoError(t, err, "move slot")
	if at, ok := f.reminders.get(b.ID); !ok || !at.Equal(moved.Add(-time.Hour)) {
		t.Errorf("reminder after move = %v %v, want %v", at, ok, moved.Add(-time.Hour))
	}

	_, err = f.svc.UpdateSlot(ctx, s.ID, SlotPatch{IsActive: boolPtr(false)})
	testutil.AssertNoError(t, err, "deactivate")
	if _, ok := f.reminders.get(b.ID); ok {
		t.Error("inactive slot still has an armed reminder")
	}

	_, err = f.svc.UpdateSlot(ctx, s.ID, SlotPatch{IsActive: boolPtr(true)})
	testutil.AssertNoError(t, err, "reactivate")
	if _, ok := f.reminders.get(b.ID); !ok {
		t.Error("reactivated slot should re-arm the reminder")
	}

	testutil.AssertNoError(t, f.svc.DeleteSlot(ctx, s.ID), "delete slot")
	if _, ok := f.reminders.get(b.ID); ok {
		t.Error("booking removed with its slot still has an armed reminder")
	}
	if n := f.pub.count(events.KeyBookingDeleted); n != 1 {
		t.Errorf("%s published %d times, want 1", events.KeyBookingDeleted, n)
	}
}

func TestSlotTimes_StoredPrecision(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	start := time.Date(2030, 1, 8, 14, 0, 0, 123456789, time.UTC)

	slot, err := svc.CreateSlot(ctx, SlotInput{StartAt: start, EndAt: start.Add(30 * time.Minute)})
	testutil.AssertNoError(t, err, "CreateSlot")
	if slot.StartAt.Nanosecond() != 0 || slot.EndAt.Nanosecond() != 0 {
		t.Errorf("CreateSlot() returned sub-second times %v - %v", slot.StartAt, slot.EndAt)
	}

	newEnd := start.Add(45*time.Minute + 500*time.Millisecond)
	updated, err := svc.UpdateSlot(ctx, slot.ID, SlotPatch{EndAt: &newEnd})
	testutil.AssertNoError(t, err, "UpdateSlot")

	views, err := svc.ListSlots(ctx, "2030-01-08", "2030-01-08")
	testutil.AssertNoError(t, err, "ListSlots")
	if len(views) != 1 {
		t.Fatalf("got %d slots, want 1", len(views))
	}
	if !views[0].StartAt.Equal(updated.StartAt) || !views[0].EndAt.Equal(updated.EndAt) {
		t.Errorf("stored %v - %v, update returned %v - %v",
			views[0].StartAt, views[0].EndAt, updated.StartAt, updated.EndAt)
	}
}

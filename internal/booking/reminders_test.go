package booking

import (
	"context"
	"testing"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/notify"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/scheduler/memory"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/testutil"
)

// Booking lifecycle against the real in-memory reminder scheduler
func TestReminderLifecycle(t *testing.T) {
	store := testutil.SetupTestDB(t)
	log := testutil.SetupTestLogger(t)
	clk := clock.NewFixed(now)
	ctx := context.Background()

	reminders := memory.NewMemoryScheduler(notify.NewLogSender(log, time.UTC), log)
	testutil.AssertNoError(t, reminders.Start(ctx), "start scheduler")
	t.Cleanup(func() { reminders.Stop() })

	m := schedule.NewMaterializer(store, store, clk, log, 14)
	g := NewGuard(store, m, clk, log, WithReminders(reminders, time.Hour))

	user := testutil.CreateUser(t, store, "user@example.com", models.RoleUser)
	slot := testutil.CreateSlot(t, store, now.Add(48*time.Hour), 30*time.Minute, 1)

	b, err := g.CreateBooking(ctx, user.ID, slot.ID, "")
	testutil.AssertNoError(t, err, "create booking")
	if got := reminders.Pending(); got != 1 {
		t.Fatalf("pending reminders after booking = %d, want 1", got)
	}

	_, err = g.CancelBooking(ctx, user.ID, b.ID)
	testutil.AssertNoError(t, err, "cancel booking")
	if got := reminders.Pending(); got != 0 {
		t.Errorf("pending reminders after cancel = %d, want 0", got)
	}

	_, err = g.SetStatus(ctx, b.ID, models.StatusPending)
	testutil.AssertNoError(t, err, "reinstate booking")
	if got := reminders.Pending(); got != 1 {
		t.Errorf("pending reminders after reinstating = %d, want 1", got)
	}

	// a fresh scheduler is rebuilt from storage
	restarted := memory.NewMemoryScheduler(notify.NewLogSender(log, time.UTC), log)
	t.Cleanup(func() { restarted.Stop() })
	g2 := NewGuard(store, m, clk, log, WithReminders(restarted, time.Hour))
	n, err := g2.RestoreReminders(ctx)
	testutil.AssertNoError(t, err, "restore reminders")
	if n != 1 || restarted.Pending() != 1 {
		t.Errorf("restored %d reminders, %d pending; want 1 and 1", n, restarted.Pending())
	}

	testutil.AssertNoError(t, g2.Delete(ctx, b.ID), "delete booking")
	if got := restarted.Pending(); got != 0 {
		t.Errorf("pending reminders after delete = %d, want 0", got)
	}
}

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
)

type recordingSender struct {
	mu        sync.Mutex
	reminders []string
	fired     chan string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{fired: make(chan string, 10)}
}

func (r *recordingSender) NotifyBookingCreated(context.Context, *models.Booking) error {
	return nil
}

func (r *recordingSender) SendReminder(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	r.reminders = append(r.reminders, b.ID)
	r.mu.Unlock()
	r.fired <- b.ID
	return nil
}

func TestMemoryScheduler_FiresReminder(t *testing.T) {
	sender := newRecordingSender()
	s := NewMemoryScheduler(sender, nil)
	t.Cleanup(func() { s.Stop() })
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b := &models.Booking{ID: "b-1"}
	if err := s.Schedule(ctx, b, time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	select {
	case id := <-sender.fired:
		if id != "b-1" {
			t.Errorf("fired %s, want b-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}

	if n := s.Pending(); n != 0 {
		t.Errorf("Pending() = %d after firing, want 0", n)
	}
}

func TestMemoryScheduler_PastTimeFiresImmediately(t *testing.T) {
	sender := newRecordingSender()
	s := NewMemoryScheduler(sender, nil)
	t.Cleanup(func() { s.Stop() })

	if err := s.Schedule(context.Background(), &models.Booking{ID: "late"}, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	select {
	case <-sender.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue reminder did not fire")
	}
}

func TestMemoryScheduler_Cancel(t *testing.T) {
	sender := newRecordingSender()
	s := NewMemoryScheduler(sender, nil)
	t.Cleanup(func() { s.Stop() })
	ctx := context.Background()

	if err := s.Schedule(ctx, &models.Booking{ID: "b-1"}, time.Now().Add(50*time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := s.Cancel(ctx, "b-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if n := s.Pending(); n != 0 {
		t.Errorf("Pending() = %d after cancel, want 0", n)
	}

	select {
	case id := <-sender.fired:
		t.Errorf("cancelled reminder %s fired", id)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMemoryScheduler_RescheduleReplaces(t *testing.T) {
	sender := newRecordingSender()
	s := NewMemoryScheduler(sender, nil)
	t.Cleanup(func() { s.Stop() })
	ctx := context.Background()

	b := &models.Booking{ID: "b-1"}
	s.Schedule(ctx, b, time.Now().Add(time.Hour))
	s.Schedule(ctx, b, time.Now().Add(2*time.Hour))

	if n := s.Pending(); n != 1 {
		t.Errorf("Pending() = %d, want 1", n)
	}
}

func TestMemoryScheduler_Stop(t *testing.T) {
	s := NewMemoryScheduler(newRecordingSender(), nil)
	ctx := context.Background()

	s.Schedule(ctx, &models.Booking{ID: "b-1"}, time.Now().Add(time.Hour))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Schedule(ctx, &models.Booking{ID: "b-2"}, time.Now().Add(time.Hour)); err == nil {
		t.Error("Schedule() after Stop() should fail")
	}
	if err := s.Start(ctx); err == nil {
		t.Error("Start() after Stop() should fail")
	}
}

// A timer that went off just before being replaced or cancelled must neither
// send nor unregister its successor
func TestMemoryScheduler_StaleFire(t *testing.T) {
	sender := newRecordingSender()
	s := NewMemoryScheduler(sender, nil)
	t.Cleanup(func() { s.Stop() })
	ctx := context.Background()

	b := &models.Booking{ID: "b-1"}
	s.Schedule(ctx, b, time.Now().Add(time.Hour))
	s.mu.Lock()
	first := s.timers[b.ID].gen
	s.mu.Unlock()

	s.Schedule(ctx, b, time.Now().Add(2*time.Hour))
	s.fire(b, first)

	if n := s.Pending(); n != 1 {
		t.Fatalf("Pending() = %d after stale fire, want the replacement kept", n)
	}

	s.Cancel(ctx, b.ID)
	s.fire(b, first+1)

	if n := s.Pending(); n != 0 {
		t.Errorf("Pending() = %d after cancel, want 0", n)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.reminders) != 0 {
		t.Errorf("sent %v, want no reminders", sender.reminders)
	}
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/scheduler"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const sendTimeout = 10 * time.Second

// MemoryScheduler keeps reminder timers in process memory keyed by booking id.
// Pending reminders are lost on restart and rebuilt from storage at startup.
type MemoryScheduler struct {
	timers   map[string]*armed
	seq      uint64
	mu       sync.Mutex
	sender   scheduler.NotificationSender
	logger   *zap.Logger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool
	stopOnce sync.Once
}

// armed is a pending timer; gen tells a replaced timer from its successor
type armed struct {
	timer *time.Timer
	gen   uint64
}

var _ scheduler.ReminderScheduler = (*MemoryScheduler)(nil)

// NewMemoryScheduler creates a scheduler delivering through sender
func NewMemoryScheduler(sender scheduler.NotificationSender, log *zap.Logger) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryScheduler{
		timers: make(map[string]*armed),
		sender: sender,
		logger: logger.OrNop(log),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *MemoryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	return nil
}

// Schedule plans a reminder; a notifyAt in the past fires immediately
func (s *MemoryScheduler) Schedule(ctx context.Context, booking *models.Booking, notifyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	if prev, exists := s.timers[booking.ID]; exists {
		prev.timer.Stop()
		delete(s.timers, booking.ID)
	}

	delay := notifyAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.seq++
	gen := s.seq
	b := *booking
	s.timers[booking.ID] = &armed{
		timer: time.AfterFunc(delay, func() { s.fire(&b, gen) }),
		gen:   gen,
	}
	metrics.PendingReminders.Set(float64(len(s.timers)))

	s.logger.Debug("Reminder scheduled",
		zap.String("booking_id", booking.ID),
		zap.Time("notify_at", notifyAt))
	return nil
}

func (s *MemoryScheduler) Cancel(ctx context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, exists := s.timers[bookingID]; exists {
		a.timer.Stop()
		delete(s.timers, bookingID)
		metrics.PendingReminders.Set(float64(len(s.timers)))
	}
	return nil
}

func (s *MemoryScheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.stopped = true
		for id, a := range s.timers {
			a.timer.Stop()
			delete(s.timers, id)
		}
		metrics.PendingReminders.Set(0)
		s.cancel()
	})
	return nil
}

// fire delivers a reminder unless it was cancelled or replaced after its timer
// went off
func (s *MemoryScheduler) fire(booking *models.Booking, gen uint64) {
	s.mu.Lock()
	a, exists := s.timers[booking.ID]
	if s.stopped || !exists || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, booking.ID)
	metrics.PendingReminders.Set(float64(len(s.timers)))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()

	if err := s.sender.SendReminder(ctx, booking); err != nil {
		s.logger.Error("Failed to send reminder",
			zap.String("booking_id", booking.ID),
			zap.Error(err))
	}
}

// Pending returns the number of armed timers
func (s *MemoryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/validation"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const (
	DefaultHorizonDays = 14
	DefaultCapacity    = 1

	TriggerScheduleSave = "schedule_save"
	TriggerLazy         = "lazy"
	TriggerRefresh      = "refresh"
)

// Window is one generated [Start, End) interval
type Window struct {
	Start time.Time
	End   time.Time
}

// DayBounds returns [start, end) of the calendar day containing t in loc
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}

// Expand lays the template's working window over day. It returns nothing when
// the weekday is not a working day; a trailing remainder shorter than one slot
// is dropped.
func Expand(tpl *models.ScheduleTemplate, day time.Time) ([]Window, error) {
	loc, err := tpl.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid template timezone: %w", err)
	}
	if tpl.SlotMinutes <= 0 || tpl.BreakMinutes < 0 {
		return nil, fmt.Errorf("invalid slot geometry: slot=%d break=%d", tpl.SlotMinutes, tpl.BreakMinutes)
	}

	startMin, err := validation.ValidateTime(tpl.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := validation.ValidateTime(tpl.EndTime)
	if err != nil {
		return nil, err
	}

	day = day.In(loc)
	if !tpl.HasDay(day.Weekday()) {
		return nil, nil
	}

	y, m, d := day.Date()
	cursor := time.Date(y, m, d, 0, startMin, 0, 0, loc)
	boundary := time.Date(y, m, d, 0, endMin, 0, 0, loc)
	slot := time.Duration(tpl.SlotMinutes) * time.Minute
	gap := time.Duration(tpl.BreakMinutes) * time.Minute

	var windows []Window
	for {
		next := cursor.Add(slot)
		if next.After(boundary) {
			break
		}
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next.Add(gap)
	}
	return windows, nil
}

// Materializer turns the weekly template into stored slots
type Materializer struct {
	slots       storage.SlotRepository
	templates   storage.TemplateRepository
	clock       clock.Clock
	logger      *zap.Logger
	horizonDays int
}

// NewMaterializer creates a materializer; horizonDays <= 0 means the default 14
func NewMaterializer(slots storage.SlotRepository, templates storage.TemplateRepository, clk clock.Clock, log *zap.Logger, horizonDays int) *Materializer {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Materializer{
		slots:       slots,
		templates:   templates,
		clock:       clk,
		logger:      logger.OrNop(log),
		horizonDays: horizonDays,
	}
}

// HorizonDays returns the rolling window length
func (m *Materializer) HorizonDays() int {
	return m.horizonDays
}

// MaterializeDay creates the day's slots unless any slot already starts on that day
func (m *Materializer) MaterializeDay(ctx context.Context, tpl *models.ScheduleTemplate, day time.Time) (int, error) {
	return m.materializeDay(ctx, tpl, day, TriggerScheduleSave)
}

func (m *Materializer) materializeDay(ctx context.Context, tpl *models.ScheduleTemplate, day time.Time, trigger string) (int, error) {
	loc, err := tpl.Location()
	if err != nil {
		return 0, fmt.Errorf("invalid template timezone: %w", err)
	}

	windows, err := Expand(tpl, day)
	if err != nil {
		return 0, err
	}
	if len(windows) == 0 {
		return 0, nil
	}

	start, end := DayBounds(day, loc)
	exists, err := m.slots.HasSlotsBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing slots: %w", err)
	}
	if exists {
		metrics.DaysSkipped.Inc()
		m.logger.Debug("Day already materialized",
			zap.String("date", start.Format(validation.DateLayout)),
			zap.String("trigger", trigger))
		return 0, nil
	}

	slots := make([]*models.Slot, 0, len(windows))
	for _, w := range windows {
		slots = append(slots, &models.Slot{
			ID:       uuid.NewString(),
			StartAt:  w.Start.UTC(),
			EndAt:    w.End.UTC(),
			Capacity: DefaultCapacity,
			IsActive: true,
		})
	}

	created, err := m.slots.InsertSlotsSkipDuplicates(ctx, slots)
	if err != nil {
		return 0, fmt.Errorf("failed to insert slots: %w", err)
	}

	metrics.RecordMaterialized(trigger, created)
	m.logger.Info("Slots materialized",
		zap.String("date", start.Format(validation.DateLayout)),
		zap.String("trigger", trigger),
		zap.Int("generated", len(slots)),
		zap.Int("created", created))

	return created, nil
}

// MaterializeHorizon materializes every day of the rolling horizon starting today
// in the template timezone and returns the number of slots created
func (m *Materializer) MaterializeHorizon(ctx context.Context, tpl *models.ScheduleTemplate) (int, error) {
	return m.materializeHorizon(ctx, tpl, TriggerScheduleSave)
}

func (m *Materializer) materializeHorizon(ctx context.Context, tpl *models.ScheduleTemplate, trigger string) (int, error) {
	loc, err := tpl.Location()
	if err != nil {
		return 0, fmt.Errorf("invalid template timezone: %w", err)
	}

	today, _ := DayBounds(m.clock.Now(), loc)
	y, mo, d := today.Date()

	total := 0
	for i := 0; i < m.horizonDays; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		day := time.Date(y, mo, d+i, 0, 0, 0, 0, loc)
		n, err := m.materializeDay(ctx, tpl, day, trigger)
		if err != nil {
			return total, fmt.Errorf("materialize %s: %w", day.Format(validation.DateLayout), err)
		}
		total += n
	}
	return total, nil
}

// EnsureDay lazily backfills a date that has no slots yet. Past dates and a
// missing template are no-ops.
func (m *Materializer) EnsureDay(ctx context.Context, day time.Time) (int, error) {
	tpl, err := m.templates.GetTemplate(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load schedule template: %w", err)
	}

	loc, err := tpl.Location()
	if err != nil {
		return 0, fmt.Errorf("invalid template timezone: %w", err)
	}

	today, _ := DayBounds(m.clock.Now(), loc)
	target, _ := DayBounds(day, loc)
	if target.Before(today) {
		return 0, nil
	}

	return m.materializeDay(ctx, tpl, target, TriggerLazy)
}

// RefreshHorizon extends the rolling horizon from the stored template.
// Without a template it does nothing.
func (m *Materializer) RefreshHorizon(ctx context.Context) (int, error) {
	tpl, err := m.templates.GetTemplate(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load schedule template: %w", err)
	}
	return m.materializeHorizon(ctx, tpl, TriggerRefresh)
}

// Run refreshes the horizon every interval until ctx is done
func (m *Materializer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.RefreshHorizon(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("Horizon refresh failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				m.logger.Info("Horizon refreshed", zap.Int("created", n))
			}
		}
	}
}

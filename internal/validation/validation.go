package validation

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	maxNameLength    = 100
	maxNoteLength    = 500
	minPasswordLen   = 8
	maxPasswordLen   = 72 // bcrypt input limit
	maxSlotMinutes   = 480
	maxBreakMinutes  = 240
	maxSlotCapacity  = 1000
	maxSlotRangeDays = 92
)

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ValidateID checks that id is a UUID
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.ErrValidation.WithMessage("id is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", errors.ErrValidation.WithMessage("id is not a valid uuid").WithContext(map[string]interface{}{
			"id": id,
		})
	}
	return parsed.String(), nil
}

// ValidateDate parses YYYY-MM-DD as midnight in loc
func ValidateDate(dateStr string, loc *time.Location) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, errors.ErrInvalidDate.WithContext("date is required")
	}

	if !dateRegex.MatchString(dateStr) {
		return time.Time{}, errors.ErrInvalidDate.WithContext(map[string]interface{}{
			"date":   dateStr,
			"reason": "date must be in YYYY-MM-DD format",
		})
	}

	date, err := time.ParseInLocation(DateLayout, dateStr, loc)
	if err != nil {
		return time.Time{}, errors.ErrInvalidDate.WithError(err).WithContext(map[string]interface{}{
			"date": dateStr,
		})
	}

	return date, nil
}

// ValidateTime checks HH:MM and returns minutes since midnight
func ValidateTime(timeStr string) (int, error) {
	if timeStr == "" {
		return 0, errors.ErrInvalidTime.WithContext("time is required")
	}

	if !timeRegex.MatchString(timeStr) {
		return 0, errors.ErrInvalidTime.WithContext(map[string]interface{}{
			"time":   timeStr,
			"reason": "time must be in HH:MM format",
		})
	}

	parsed, err := time.Parse(TimeLayout, timeStr)
	if err != nil {
		return 0, errors.ErrInvalidTime.WithError(err).WithContext(map[string]interface{}{
			"time": timeStr,
		})
	}

	return parsed.Hour()*60 + parsed.Minute(), nil
}

// ValidateTemplate checks a weekly schedule template
func ValidateTemplate(tpl *models.ScheduleTemplate) error {
	if tpl == nil {
		return errors.ErrInvalidTemplate.WithContext("template is required")
	}

	if len(tpl.DaysOfWeek) == 0 {
		return errors.ErrInvalidTemplate.WithContext("at least one working day is required")
	}
	seen := make(map[int]bool, len(tpl.DaysOfWeek))
	for _, d := range tpl.DaysOfWeek {
		if d < 0 || d > 6 {
			return errors.ErrInvalidTemplate.WithContext(map[string]interface{}{
				"day":    d,
				"reason": "days of week must be between 0 (Sunday) and 6 (Saturday)",
			})
		}
		if seen[d] {
			return errors.ErrInvalidTemplate.WithContext(map[string]interface{}{
				"day":    d,
				"reason": "duplicate day of week",
			})
		}
		seen[d] = true
	}

	start, err := ValidateTime(tpl.StartTime)
	if err != nil {
		return err
	}
	end, err := ValidateTime(tpl.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return errors.ErrInvalidTemplate.WithContext(map[string]interface{}{
			"start_time": tpl.StartTime,
			"end_time":   tpl.EndTime,
			"reason":     "end time must be after start time",
		})
	}

	if tpl.SlotMinutes <= 0 || tpl.SlotMinutes > maxSlotMinutes {
		return errors.ErrInvalidTemplate.WithContext(map[string]interface{}{
			"slot_minutes": tpl.SlotMinutes,
			"reason":       "slot length must be between 1 and 480 minutes",
		})
	}
	if tpl.BreakMinutes < 0 || tpl.BreakMinutes > maxBreakMinutes {
		return errors.ErrInvalidTemplate.WithContext(map[string]interface{}{
			"break_minutes": tpl.BreakMinutes,
			"reason":        "break must be between 0 and 240 minutes",
		})
	}

	if tpl.Timezone == "" {
		return errors.ErrInvalidTemplate.WithContext("timezone is required")
	}
	if _, err := time.LoadLocation(tpl.Timezone); err != nil {
		return errors.ErrInvalidTemplate.WithError(err).WithContext(map[string]interface{}{
			"timezone": tpl.Timezone,
		})
	}

	return nil
}

// ValidateSlotRange checks an explicit slot interval
func ValidateSlotRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errors.ErrValidation.WithMessage("startAt and endAt are required")
	}
	if !end.After(start) {
		return errors.ErrValidation.WithMessage("endAt must be after startAt").WithContext(map[string]interface{}{
			"start_at": start,
			"end_at":   end,
		})
	}
	if end.Sub(start) > maxSlotMinutes*time.Minute {
		return errors.ErrValidation.WithMessage("slot is too long (maximum 8 hours)")
	}
	return nil
}

// ValidateCapacity checks a slot capacity
func ValidateCapacity(capacity int) error {
	if capacity < 1 || capacity > maxSlotCapacity {
		return errors.ErrValidation.WithMessage("capacity must be between 1 and 1000").WithContext(map[string]interface{}{
			"capacity": capacity,
		})
	}
	return nil
}

// ValidateListRange checks an admin listing window
func ValidateListRange(from, to time.Time) error {
	if !to.After(from) {
		return errors.ErrValidation.WithMessage("to must be after from")
	}
	if to.Sub(from) > maxSlotRangeDays*24*time.Hour {
		return errors.ErrValidation.WithMessage("range is too wide (maximum 92 days)")
	}
	return nil
}

// ValidateEmail normalizes and checks an email address
func ValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.ErrValidation.WithMessage("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.ErrValidation.WithMessage("email is not valid").WithContext(map[string]interface{}{
			"email": email,
		})
	}
	return email, nil
}

// ValidatePassword checks password length
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.ErrValidation.WithMessage("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return errors.ErrValidation.WithMessage("password is too long (maximum 72 bytes)")
	}
	return nil
}

// ValidateName checks a display name
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ErrValidation.WithMessage("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errors.ErrValidation.WithMessage("name is too long (maximum 100 characters)")
	}
	return name, nil
}

// ValidateNote trims an optional booking note
func ValidateNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return "", errors.ErrValidation.WithMessage("note is too long (maximum 500 characters)")
	}
	return note, nil
}

// ValidateStatus checks a booking status
func ValidateStatus(status string) (models.BookingStatus, error) {
	s := models.BookingStatus(strings.ToLower(strings.TrimSpace(status)))
	if !s.Valid() {
		return "", errors.ErrInvalidStatus.WithContext(map[string]interface{}{
			"status": status,
		})
	}
	return s, nil
}

// ValidateRole checks a user role
func ValidateRole(role string) (models.Role, error) {
	r := models.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return "", errors.ErrValidation.WithMessage("role must be user or admin")
	}
	return r, nil
}

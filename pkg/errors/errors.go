package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is an error that carries a stable code, a user-facing message and
// the HTTP status it maps to.
type AppError struct {
	Code    string      `json:"code"`
	Message string      `json:"error"`
	Status  int         `json:"-"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to see the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext returns a copy carrying ctx
func (e *AppError) WithContext(ctx interface{}) *AppError {
	c := *e
	c.Context = ctx
	return &c
}

// WithError returns a copy wrapping err
func (e *AppError) WithError(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy with a different user-facing message
func (e *AppError) WithMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

// WithStatus returns a copy mapped to a different HTTP status
func (e *AppError) WithStatus(status int) *AppError {
	c := *e
	c.Status = status
	return &c
}

// HTTPStatus returns the status to respond with, 500 when unset.
func (e *AppError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Predefined errors
var (
	// Validation
	ErrValidation = &AppError{
		Code:    "VALIDATION_FAILED",
		Message: "invalid request",
		Status:  http.StatusBadRequest,
	}

	ErrInvalidDate = &AppError{
		Code:    "INVALID_DATE",
		Message: "invalid date, expected YYYY-MM-DD",
		Status:  http.StatusBadRequest,
	}

	ErrInvalidTime = &AppError{
		Code:    "INVALID_TIME",
		Message: "invalid time, expected HH:MM",
		Status:  http.StatusBadRequest,
	}

	ErrInvalidTemplate = &AppError{
		Code:    "INVALID_SCHEDULE",
		Message: "invalid booking schedule",
		Status:  http.StatusBadRequest,
	}

	ErrInvalidStatus = &AppError{
		Code:    "INVALID_STATUS",
		Message: "invalid booking status",
		Status:  http.StatusBadRequest,
	}

	ErrInvalidAction = &AppError{
		Code:    "INVALID_ACTION",
		Message: "unsupported action",
		Status:  http.StatusBadRequest,
	}

	// Authentication and authorization
	ErrUnauthorized = &AppError{
		Code:    "UNAUTHORIZED",
		Message: "authentication required",
		Status:  http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:    "FORBIDDEN",
		Message: "insufficient permissions",
		Status:  http.StatusForbidden,
	}

	ErrEmailTaken = &AppError{
		Code:    "EMAIL_TAKEN",
		Message: "email is already registered",
		Status:  http.StatusConflict,
	}

	ErrRateLimited = &AppError{
		Code:    "RATE_LIMITED",
		Message: "too many attempts, try again later",
		Status:  http.StatusTooManyRequests,
	}

	// Not found
	ErrUserNotFound = &AppError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
		Status:  http.StatusNotFound,
	}

	ErrSlotNotFound = &AppError{
		Code:    "SLOT_NOT_FOUND",
		Message: "slot not found",
		Status:  http.StatusNotFound,
	}

	ErrBookingNotFound = &AppError{
		Code:    "BOOKING_NOT_FOUND",
		Message: "booking not found",
		Status:  http.StatusNotFound,
	}

	ErrScheduleNotConfigured = &AppError{
		Code:    "SCHEDULE_NOT_CONFIGURED",
		Message: "booking schedule is not configured",
		Status:  http.StatusNotFound,
	}

	// Booking rejections, in validation order
	ErrSlotUnavailable = &AppError{
		Code:    "SLOT_UNAVAILABLE",
		Message: "slot unavailable",
		Status:  http.StatusConflict,
	}

	ErrSlotInPast = &AppError{
		Code:    "SLOT_IN_PAST",
		Message: "cannot book a past slot",
		Status:  http.StatusBadRequest,
	}

	ErrDuplicateBooking = &AppError{
		Code:    "DUPLICATE_BOOKING",
		Message: "duplicate booking for this slot",
		Status:  http.StatusConflict,
	}

	ErrActiveAppointment = &AppError{
		Code:    "ACTIVE_APPOINTMENT_EXISTS",
		Message: "user already has an active appointment",
		Status:  http.StatusConflict,
	}

	ErrSlotFull = &AppError{
		Code:    "SLOT_FULL",
		Message: "slot full",
		Status:  http.StatusConflict,
	}

	ErrSlotExists = &AppError{
		Code:    "SLOT_EXISTS",
		Message: "a slot already starts at this time",
		Status:  http.StatusConflict,
	}

	// System
	ErrInternal = &AppError{
		Code:    "INTERNAL",
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrDatabase = &AppError{
		Code:    "DATABASE",
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
	}
)

// New creates an AppError
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Wrap wraps err into an internal AppError
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// As extracts an AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is is a shortcut for the standard library errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/storage/sqlite"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

// SetupTestDB creates an in-memory SQLite database closed at test end
func SetupTestDB(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	storage, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

// SetupTestLogger returns a logger writing through t.Log
func SetupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// TestContext returns a context for tests
func TestContext() context.Context {
	return context.Background()
}

// AssertNoError fails the test immediately on err
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertAppError checks that err carries target's code
func AssertAppError(t *testing.T, err error, target *errors.AppError) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", target.Code)
	}
	appErr, ok := errors.As(err)
	if !ok {
		t.Fatalf("expected %s, got non-app error %v", target.Code, err)
	}
	if appErr.Code != target.Code {
		t.Fatalf("expected %s, got %s (%v)", target.Code, appErr.Code, err)
	}
}

// CreateUser stores a user with the given email and role
func CreateUser(t *testing.T, store *sqlite.SQLiteStorage, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "User " + email,
		PasswordHash: "x",
		Role:         role,
	}
	AssertNoError(t, store.CreateUser(TestContext(), u), "create user")
	return u
}

// CreateSlot stores an active slot of the given length and capacity
func CreateSlot(t *testing.T, store *sqlite.SQLiteStorage, start time.Time, length time.Duration, capacity int) *models.Slot {
	t.Helper()
	s := &models.Slot{
		ID:       uuid.NewString(),
		StartAt:  start.UTC(),
		EndAt:    start.Add(length).UTC(),
		Capacity: capacity,
		IsActive: true,
	}
	AssertNoError(t, store.CreateSlot(TestContext(), s), "create slot")
	return s
}

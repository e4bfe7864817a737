package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements storage.Storage on top of SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// New opens (or creates) the database at dbPath and runs migrations
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// migrate creates the schema
func (s *SQLiteStorage) migrate() error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA foreign_keys=ON`,
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'admin')),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_template (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			days_of_week TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			slot_minutes INTEGER NOT NULL CHECK (slot_minutes > 0),
			break_minutes INTEGER NOT NULL CHECK (break_minutes >= 0),
			timezone TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			id TEXT PRIMARY KEY,
			start_at INTEGER NOT NULL UNIQUE,
			end_at INTEGER NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 1 CHECK (capacity > 0),
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (end_at > start_at)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			slot_id TEXT NOT NULL REFERENCES slots(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled')),
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_start_at ON slots(start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot_status ON bookings(slot_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_status ON bookings(user_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot_user
			ON bookings(slot_id, user_id) WHERE status <> 'cancelled'`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// record tracks a database operation in metrics
func record(operation, table string, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		status = "error"
	}
	metrics.RecordDatabaseOperation(operation, table, status)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// ---- users ----

const userColumns = `id, email, name, password_hash, role, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u         models.User
		role      string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return &u, nil
}

// CreateUser inserts a user; a taken email yields storage.ErrDuplicate
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role),
		toUnix(user.CreatedAt), toUnix(user.UpdatedAt),
	)
	record("insert", "users", err)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID returns a user by id
func (s *SQLiteStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = storage.ErrNotFound
	}
	record("select", "users", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by (lower-cased) email
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = storage.ErrNotFound
	}
	record("select", "users", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users, newest first
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, email`)
	record("select", "users", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role
func (s *SQLiteStorage) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), toUnix(time.Now()), id,
	)
	record("update", "users", err)
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// ---- schedule template ----

// GetTemplate returns the schedule template or storage.ErrNotFound
func (s *SQLiteStorage) GetTemplate(ctx context.Context) (*models.ScheduleTemplate, error) {
	var (
		tpl       models.ScheduleTemplate
		days      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT days_of_week, start_time, end_time, slot_minutes, break_minutes, timezone, updated_at
		 FROM schedule_template WHERE id = 1`,
	).Scan(&days, &tpl.StartTime, &tpl.EndTime, &tpl.SlotMinutes, &tpl.BreakMinutes, &tpl.Timezone, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = storage.ErrNotFound
	}
	record("select", "schedule_template", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get schedule template: %w", err)
	}

	if err := json.Unmarshal([]byte(days), &tpl.DaysOfWeek); err != nil {
		return nil, fmt.Errorf("failed to decode days of week: %w", err)
	}
	tpl.UpdatedAt = fromUnix(updatedAt)
	return &tpl, nil
}

// SaveTemplate replaces the schedule template (last write wins)
func (s *SQLiteStorage) SaveTemplate(ctx context.Context, tpl *models.ScheduleTemplate) error {
	days, err := json.Marshal(tpl.DaysOfWeek)
	if err != nil {
		return fmt.Errorf("failed to encode days of week: %w", err)
	}
	tpl.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_template (id, days_of_week, start_time, end_time, slot_minutes, break_minutes, timezone, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			days_of_week  = excluded.days_of_week,
			start_time    = excluded.start_time,
			end_time      = excluded.end_time,
			slot_minutes  = excluded.slot_minutes,
			break_minutes = excluded.break_minutes,
			timezone      = excluded.timezone,
			updated_at    = excluded.updated_at`,
		string(days), tpl.StartTime, tpl.EndTime, tpl.SlotMinutes, tpl.BreakMinutes, tpl.Timezone, toUnix(tpl.UpdatedAt),
	)
	record("upsert", "schedule_template", err)
	if err != nil {
		return fmt.Errorf("failed to save schedule template: %w", err)
	}
	return nil
}

// ---- slots ----

const slotColumns = `id, start_at, end_at, capacity, is_active, created_at, updated_at`

func scanSlot(row scanner) (*models.Slot, error) {
	var (
		slot                 models.Slot
		startAt, endAt       int64
		active               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&slot.ID, &startAt, &endAt, &slot.Capacity, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	slot.StartAt = fromUnix(startAt)
	slot.EndAt = fromUnix(endAt)
	slot.IsActive = active != 0
	slot.CreatedAt = fromUnix(createdAt)
	slot.UpdatedAt = fromUnix(updatedAt)
	return &slot, nil
}

func stampSlot(slot *models.Slot) {
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
}

// CreateSlot inserts a single slot; an existing start time yields storage.ErrDuplicate
func (s *SQLiteStorage) CreateSlot(ctx context.Context, slot *models.Slot) error {
	stampSlot(slot)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (`+slotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, toUnix(slot.StartAt), toUnix(slot.EndAt), slot.Capacity, boolToInt(slot.IsActive),
		toUnix(slot.CreatedAt), toUnix(slot.UpdatedAt),
	)
	record("insert", "slots", err)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

// InsertSlotsSkipDuplicates bulk-inserts slots with INSERT OR IGNORE
func (s *SQLiteStorage) InsertSlotsSkipDuplicates(ctx context.Context, slots []*models.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(slots)*7)
	)
	sb.WriteString(`INSERT OR IGNORE INTO slots (` + slotColumns + `) VALUES `)
	for i, slot := range slots {
		stampSlot(slot)
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			slot.ID, toUnix(slot.StartAt), toUnix(slot.EndAt), slot.Capacity, boolToInt(slot.IsActive),
			toUnix(slot.CreatedAt), toUnix(slot.UpdatedAt),
		)
	}

	res, err := s.db.ExecContext(ctx, sb.String(), args...)
	record("bulk_insert", "slots", err)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert slots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

// HasSlotsBetween reports whether any slot starts in [from, to)
func (s *SQLiteStorage) HasSlotsBetween(ctx context.Context, from, to time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM slots WHERE start_at >= ? AND start_at < ?)`,
		toUnix(from), toUnix(to),
	).Scan(&exists)
	record("select", "slots", err)
	if err != nil {
		return false, fmt.Errorf("failed to check slots: %w", err)
	}
	return exists == 1, nil
}

// ListSlots returns slots starting in [from, to) ordered by start time
func (s *SQLiteStorage) ListSlots(ctx context.Context, from, to time.Time, includeInactive bool) ([]*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE start_at >= ? AND start_at < ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY start_at`

	rows, err := s.db.QueryContext(ctx, query, toUnix(from), toUnix(to))
	record("select", "slots", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// GetSlotByID returns a slot by id
func (s *SQLiteStorage) GetSlotByID(ctx context.Context, id string) (*models.Slot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = storage.ErrNotFound
	}
	record("select", "slots", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// UpdateSlot writes times, capacity and the active flag
func (s *SQLiteStorage) UpdateSlot(ctx context.Context, slot *models.Slot) error {
	slot.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE slots SET start_at = ?, end_at = ?, capacity = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		toUnix(slot.StartAt), toUnix(slot.EndAt), slot.Capacity, boolToInt(slot.IsActive), toUnix(slot.UpdatedAt), slot.ID,
	)
	record("update", "slots", err)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSlot removes a slot and, by cascade, its bookings
func (s *SQLiteStorage) DeleteSlot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	record("delete", "slots", err)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountActiveBookings returns non-cancelled booking counts per slot
func (s *SQLiteStorage) CountActiveBookings(ctx context.Context, slotIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(slotIDs))
	if len(slotIDs) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(slotIDs)), ", ")
	args := make([]any, len(slotIDs))
	for i, id := range slotIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot_id, COUNT(*) FROM bookings
		 WHERE status <> 'cancelled' AND slot_id IN (`+placeholders+`)
		 GROUP BY slot_id`,
		args...,
	)
	record("select", "bookings", err)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan booking count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ---- bookings ----

const bookingSelect = `SELECT
	b.id, b.slot_id, b.user_id, b.status, b.note, b.created_at, b.updated_at,
	s.id, s.start_at, s.end_at, s.capacity, s.is_active, s.created_at, s.updated_at,
	u.name, u.email
FROM bookings b
JOIN slots s ON s.id = b.slot_id
JOIN users u ON u.id = b.user_id`

func scanBooking(row scanner) (*models.Booking, error) {
	var (
		b                            models.Booking
		slot                         models.Slot
		status                       string
		createdAt, updatedAt         int64
		startAt, endAt               int64
		active                       int
		slotCreatedAt, slotUpdatedAt int64
	)
	err := row.Scan(
		&b.ID, &b.SlotID, &b.UserID, &status, &b.Note, &createdAt, &updatedAt,
		&slot.ID, &startAt, &endAt, &slot.Capacity, &active, &slotCreatedAt, &slotUpdatedAt,
		&b.UserName, &b.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	slot.StartAt = fromUnix(startAt)
	slot.EndAt = fromUnix(endAt)
	slot.IsActive = active != 0
	slot.CreatedAt = fromUnix(slotCreatedAt)
	slot.UpdatedAt = fromUnix(slotUpdatedAt)
	b.Slot = &slot
	return &b, nil
}

func (s *SQLiteStorage) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	record("select", "bookings", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetBookingByID returns a booking with its slot
func (s *SQLiteStorage) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = storage.ErrNotFound
	}
	record("select", "bookings", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// FindActiveBooking returns the user's non-cancelled booking on slot, or nil
func (s *SQLiteStorage) FindActiveBooking(ctx context.Context, slotID, userID string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		bookingSelect+` WHERE b.slot_id = ? AND b.user_id = ? AND b.status <> 'cancelled'`,
		slotID, userID,
	)
	b, err := scanBooking(row)
	record("select", "bookings", err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

// HasActiveAppointment reports whether the user holds a non-cancelled booking
// on a slot that has not ended at now
func (s *SQLiteStorage) HasActiveAppointment(ctx context.Context, userID string, now time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM bookings b
			JOIN slots s ON s.id = b.slot_id
			WHERE b.user_id = ? AND b.status <> 'cancelled' AND s.end_at > ?
		)`,
		userID, toUnix(now),
	).Scan(&exists)
	record("select", "bookings", err)
	if err != nil {
		return false, fmt.Errorf("failed to check active appointment: %w", err)
	}
	return exists == 1, nil
}

// InsertBookingIfCapacity inserts the booking only if the slot is active and its
// non-cancelled count is below capacity, evaluated inside the INSERT itself
func (s *SQLiteStorage) InsertBookingIfCapacity(ctx context.Context, booking *models.Booking) (bool, error) {
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, slot_id, user_id, status, note, created_at, updated_at)
		 SELECT ?, s.id, ?, ?, ?, ?, ?
		 FROM slots s
		 WHERE s.id = ? AND s.is_active = 1
		   AND (SELECT COUNT(*) FROM bookings b WHERE b.slot_id = s.id AND b.status <> 'cancelled') < s.capacity`,
		booking.ID, booking.UserID, string(booking.Status), booking.Note, toUnix(now), toUnix(now),
		booking.SlotID,
	)
	record("insert", "bookings", err)
	if err != nil {
		if isUniqueViolation(err) {
			return false, storage.ErrDuplicate
		}
		return false, fmt.Errorf("failed to insert booking: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

// UpdateBookingStatus sets a booking's status and returns the updated row
func (s *SQLiteStorage) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toUnix(time.Now()), id,
	)
	record("update", "bookings", err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetBookingByID(ctx, id)
}

// DeleteBooking removes a booking
func (s *SQLiteStorage) DeleteBooking(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	record("delete", "bookings", err)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListBookings returns bookings matching filter, latest slot first
func (s *SQLiteStorage) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "b.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		conds = append(conds, "b.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SlotID != "" {
		conds = append(conds, "b.slot_id = ?")
		args = append(args, filter.SlotID)
	}
	if filter.From != nil {
		conds = append(conds, "s.start_at >= ?")
		args = append(args, toUnix(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "s.start_at < ?")
		args = append(args, toUnix(*filter.To))
	}

	query := bookingSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.start_at DESC, b.created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	return s.queryBookings(ctx, query, args...)
}

// ListUpcomingBookings returns non-cancelled bookings on slots starting after now
func (s *SQLiteStorage) ListUpcomingBookings(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	return s.queryBookings(ctx,
		bookingSelect+` WHERE b.status <> 'cancelled' AND s.start_at > ? ORDER BY s.start_at`,
		toUnix(now),
	)
}

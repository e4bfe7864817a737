package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mohammedemad618/amir-sub000/internal/admin"
	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/booking"
	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/config"
	"github.com/mohammedemad618/amir-sub000/internal/middleware"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/internal/testutil"
)

// Sunday noon before the Monday the schedule opens
var now = time.Date(2030, 1, 6, 12, 0, 0, 0, time.UTC)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, authLimit int) *testServer {
	t.Helper()
	store := testutil.SetupTestDB(t)
	log := testutil.SetupTestLogger(t)
	clk := clock.NewFixed(now)

	cfg := &config.Config{}
	cfg.Server.Port = "0"
	cfg.Server.MaxBodyBytes = 1 << 16
	cfg.Auth.CookieName = "token"

	tokens := auth.NewTokenManager("test-secret-0123456789", time.Hour)
	authSvc := auth.NewService(store, tokens, log)
	_, err := authSvc.EnsureAdmin(testutil.TestContext(), adminEmail, adminPassword)
	testutil.AssertNoError(t, err, "EnsureAdmin")

	m := schedule.NewMaterializer(store, store, clk, log, 14)
	guard := booking.NewGuard(store, m, clk, log)

	windows := middleware.NewMemoryWindowStore(time.Minute)
	t.Cleanup(windows.Close)

	srv := New(Options{
		Config:      cfg,
		Logger:      log,
		Store:       store,
		Auth:        authSvc,
		Tokens:      tokens,
		Guard:       guard,
		Admin:       admin.NewService(store, m, guard, nil, clk, log),
		AuthLimiter: middleware.NewFixedWindowLimiter("auth", windows, authLimit, time.Minute, log),
		Clock:       clk,
		Version:     "test",
	})
	return &testServer{handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	if code == "" {
		return
	}
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	if body.Code != code {
		t.Fatalf("code = %q, want %q", body.Code, code)
	}
	if body.Error == "" {
		t.Error("error message is empty")
	}
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	expect(t, rec, http.StatusOK, "")
	var sess sessionResponse
	decode(t, rec, &sess)
	return sess.Token
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": "user-password",
	})
	expect(t, rec, http.StatusCreated, "")
	if c := rec.Result().Cookies(); len(c) == 0 || c[0].Name != "token" || !c[0].HttpOnly {
		t.Errorf("register did not set an HttpOnly session cookie: %v", c)
	}
	var sess sessionResponse
	decode(t, rec, &sess)
	if sess.User == nil || sess.User.Role != models.RoleUser {
		t.Fatalf("registered user = %+v", sess.User)
	}
	return sess.Token
}

func mondayTemplate() map[string]interface{} {
	return map[string]interface{}{
		"daysOfWeek":   []int{1},
		"startTime":    "09:00",
		"endTime":      "10:10",
		"slotMinutes":  30,
		"breakMinutes": 5,
		"timezone":     "UTC",
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	expect(t, rec, http.StatusOK, "")

	var body HealthResponse
	decode(t, rec, &body)
	if body.Checks["database"] != "healthy" {
		t.Errorf("database check = %q", body.Checks["database"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestAuthAndPermissions(t *testing.T) {
	ts := newTestServer(t, 100)

	expect(t, ts.do(t, http.MethodGet, "/booking/slots?date=2030-01-07", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")

	userToken := ts.register(t, "user@example.com")
	expect(t, ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "USER@example.com", "name": "Again", "password": "user-password",
	}), http.StatusConflict, "EMAIL_TAKEN")

	expect(t, ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong-password",
	}), http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rec := ts.do(t, http.MethodGet, "/auth/me", userToken, nil)
	expect(t, rec, http.StatusOK, "")
	var me models.User
	decode(t, rec, &me)
	if me.Email != "user@example.com" {
		t.Errorf("me = %+v", me)
	}

	expect(t, ts.do(t, http.MethodPut, "/admin/booking-schedule", userToken, mondayTemplate()), http.StatusForbidden, "FORBIDDEN")
	expect(t, ts.do(t, http.MethodGet, "/admin/users", userToken, nil), http.StatusForbidden, "FORBIDDEN")

	adminToken := ts.login(t, adminEmail, adminPassword)
	rec = ts.do(t, http.MethodGet, "/admin/users", adminToken, nil)
	expect(t, rec, http.StatusOK, "")
	var users usersResponse
	decode(t, rec, &users)
	if len(users.Users) != 2 {
		t.Fatalf("got %d users, want 2", len(users.Users))
	}

	// promotion takes effect on the next request with the same token
	expect(t, ts.do(t, http.MethodPatch, "/admin/users/"+me.ID, adminToken, map[string]string{"role": "admin"}), http.StatusOK, "")
	expect(t, ts.do(t, http.MethodGet, "/admin/users", userToken, nil), http.StatusOK, "")

	rec = ts.do(t, http.MethodPost, "/auth/logout", userToken, nil)
	expect(t, rec, http.StatusNoContent, "")
	if c := rec.Result().Cookies(); len(c) == 0 || c[0].MaxAge >= 0 {
		t.Errorf("logout did not expire the cookie: %v", c)
	}
}

func TestBookingFlow(t *testing.T) {
	ts := newTestServer(t, 100)
	adminToken := ts.login(t, adminEmail, adminPassword)
	userToken := ts.register(t, "user@example.com")

	rec := ts.do(t, http.MethodGet, "/admin/booking-schedule", adminToken, nil)
	expect(t, rec, http.StatusNotFound, "SCHEDULE_NOT_CONFIGURED")

	rec = ts.do(t, http.MethodPut, "/admin/booking-schedule", adminToken, mondayTemplate())
	expect(t, rec, http.StatusOK, "")
	var saved scheduleResponse
	decode(t, rec, &saved)
	// two Mondays fall inside the 14 day horizon
	if saved.Created != 4 || saved.HorizonDays != 14 {
		t.Errorf("save schedule = created %d horizon %d, want 4 and 14", saved.Created, saved.HorizonDays)
	}

	rec = ts.do(t, http.MethodGet, "/booking/slots?date=2030-01-07", userToken, nil)
	expect(t, rec, http.StatusOK, "")
	var slots slotsResponse
	decode(t, rec, &slots)
	if len(slots.Slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots.Slots))
	}

	expect(t, ts.do(t, http.MethodGet, "/booking/slots?date=07-01-2030", userToken, nil), http.StatusBadRequest, "INVALID_DATE")

	rec = ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{"slotId": slots.Slots[0].ID, "note": "  first visit "})
	expect(t, rec, http.StatusCreated, "")
	var b models.Booking
	decode(t, rec, &b)
	if b.Status != models.StatusConfirmed || b.Note != "first visit" {
		t.Errorf("created booking = %+v", b)
	}

	expect(t, ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{"slotId": slots.Slots[0].ID}),
		http.StatusConflict, "DUPLICATE_BOOKING")
	expect(t, ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{"slotId": slots.Slots[1].ID}),
		http.StatusConflict, "ACTIVE_APPOINTMENT_EXISTS")
	expect(t, ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{"slotId": uuid.NewString()}),
		http.StatusNotFound, "SLOT_UNAVAILABLE")
	expect(t, ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{}),
		http.StatusBadRequest, "VALIDATION_FAILED")

	rec = ts.do(t, http.MethodGet, "/booking/"+b.ID+"/receipt?format=html", userToken, nil)
	expect(t, rec, http.StatusOK, "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("receipt content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `dir="rtl"`) {
		t.Error("html receipt is not right-to-left")
	}
	expect(t, ts.do(t, http.MethodGet, "/booking/"+b.ID+"/receipt?format=pdf", userToken, nil), http.StatusBadRequest, "VALIDATION_FAILED")

	otherToken := ts.register(t, "other@example.com")
	expect(t, ts.do(t, http.MethodGet, "/booking/"+b.ID+"/receipt", otherToken, nil), http.StatusNotFound, "BOOKING_NOT_FOUND")
	expect(t, ts.do(t, http.MethodPatch, "/booking/"+b.ID, otherToken, map[string]string{"action": "CANCEL"}),
		http.StatusNotFound, "BOOKING_NOT_FOUND")
	expect(t, ts.do(t, http.MethodGet, "/booking/"+b.ID+"/receipt", adminToken, nil), http.StatusOK, "")

	expect(t, ts.do(t, http.MethodPatch, "/booking/"+b.ID, userToken, map[string]string{"action": "REFUND"}),
		http.StatusBadRequest, "INVALID_ACTION")

	rec = ts.do(t, http.MethodPatch, "/booking/"+b.ID, userToken, map[string]string{"action": "CANCEL"})
	expect(t, rec, http.StatusOK, "")
	decode(t, rec, &b)
	if b.Status != models.StatusCancelled {
		t.Errorf("status after cancel = %s", b.Status)
	}

	// the freed seat can be taken again
	expect(t, ts.do(t, http.MethodPost, "/booking", otherToken, map[string]string{"slotId": slots.Slots[0].ID}), http.StatusCreated, "")

	rec = ts.do(t, http.MethodGet, "/booking/mine", userToken, nil)
	expect(t, rec, http.StatusOK, "")
	var mine bookingsResponse
	decode(t, rec, &mine)
	if len(mine.Bookings) != 1 {
		t.Errorf("mine = %d bookings, want 1", len(mine.Bookings))
	}

	rec = ts.do(t, http.MethodGet, "/admin/bookings?status=cancelled&from=2030-01-07&to=2030-01-07", adminToken, nil)
	expect(t, rec, http.StatusOK, "")
	var listed bookingsResponse
	decode(t, rec, &listed)
	if len(listed.Bookings) != 1 || listed.Bookings[0].ID != b.ID {
		t.Errorf("admin cancelled list = %+v", listed.Bookings)
	}

	expect(t, ts.do(t, http.MethodGet, "/admin/bookings?status=lost", adminToken, nil), http.StatusBadRequest, "INVALID_STATUS")

	// an admin override skips the booking checks
	expect(t, ts.do(t, http.MethodPatch, "/admin/bookings/"+b.ID, adminToken, map[string]string{"status": "pending"}), http.StatusOK, "")
	expect(t, ts.do(t, http.MethodDelete, "/admin/bookings/"+b.ID, adminToken, nil), http.StatusNoContent, "")
	expect(t, ts.do(t, http.MethodDelete, "/admin/bookings/"+b.ID, adminToken, nil), http.StatusNotFound, "BOOKING_NOT_FOUND")
}

func TestAdminSlots(t *testing.T) {
	ts := newTestServer(t, 100)
	adminToken := ts.login(t, adminEmail, adminPassword)
	userToken := ts.register(t, "user@example.com")

	start := time.Date(2030, 1, 8, 14, 0, 0, 0, time.UTC)
	rec := ts.do(t, http.MethodPost, "/admin/slots", adminToken, map[string]interface{}{
		"startAt":  start,
		"endAt":    start.Add(time.Hour),
		"capacity": 2,
	})
	expect(t, rec, http.StatusCreated, "")
	var slot models.Slot
	decode(t, rec, &slot)

	expect(t, ts.do(t, http.MethodPost, "/admin/slots", adminToken, map[string]interface{}{
		"startAt": start,
		"endAt":   start.Add(30 * time.Minute),
	}), http.StatusConflict, "SLOT_EXISTS")

	expect(t, ts.do(t, http.MethodPatch, "/admin/slots/"+slot.ID, adminToken, map[string]interface{}{"isActive": false}), http.StatusOK, "")

	rec = ts.do(t, http.MethodGet, "/admin/slots?from=2030-01-08&to=2030-01-08", adminToken, nil)
	expect(t, rec, http.StatusOK, "")
	var listed slotsResponse
	decode(t, rec, &listed)
	if len(listed.Slots) != 1 || listed.Slots[0].IsActive {
		t.Fatalf("admin slots = %+v", listed.Slots)
	}

	expect(t, ts.do(t, http.MethodPost, "/booking", userToken, map[string]string{"slotId": slot.ID}), http.StatusConflict, "SLOT_UNAVAILABLE")

	expect(t, ts.do(t, http.MethodDelete, "/admin/slots/"+slot.ID, adminToken, nil), http.StatusNoContent, "")
	expect(t, ts.do(t, http.MethodDelete, "/admin/slots/"+slot.ID, adminToken, nil), http.StatusNotFound, "SLOT_NOT_FOUND")
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	creds := map[string]string{"email": adminEmail, "password": "wrong-password"}

	for i := 0; i < 2; i++ {
		expect(t, ts.do(t, http.MethodPost, "/auth/login", "", creds), http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	rec := ts.do(t, http.MethodPost, "/auth/login", "", creds)
	expect(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// other routes are unaffected
	expect(t, ts.do(t, http.MethodGet, "/health", "", nil), http.StatusOK, "")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, 100)
	expect(t, ts.do(t, http.MethodGet, "/nope", "", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set while cookies are not secure")
	}
}

func TestGracefulShutdown(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Auth.CookieName = "token"

	srv := New(Options{
		Config: cfg,
		Logger: testutil.SetupTestLogger(t),
		Store:  testutil.SetupTestDB(t),
		Tokens: auth.NewTokenManager("test-secret-0123456789", time.Hour),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

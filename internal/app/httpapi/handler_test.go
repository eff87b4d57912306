package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/IslandManSwevo/island-rides-api/internal/app"
	"github.com/IslandManSwevo/island-rides-api/internal/config"
)

// day formats a date offset days from now, keeping bookings in the future.
func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "handler-test-secret",
			TokenTTL:  time.Hour,
			Issuer:    "island-rides-test",
		},
		RateLimit:  config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		LoginGuard: config.LoginGuardConfig{MaxFailures: 5, DecayWindow: time.Minute},
	}
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(testConfig(), app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return New(application, nil)
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(data)
}

func do(t *testing.T, handler http.Handler, method, url, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, marshal(t, body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
}

// signup registers a user and returns its token and id.
func signup(t *testing.T, handler http.Handler, email, role string) (string, string) {
	t.Helper()
	rec := do(t, handler, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":      email,
		"password":   "s3cret-password",
		"first_name": "Test",
		"last_name":  "User",
		"role":       role,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, rec, &resp)
	return resp.Token, resp.User.ID
}

func listVehicle(t *testing.T, handler http.Handler, ownerToken string) string {
	t.Helper()
	rec := do(t, handler, http.MethodPost, "/api/vehicles", ownerToken, map[string]any{
		"make":          "Toyota",
		"model":         "RAV4",
		"year":          2022,
		"vehicle_type":  "car",
		"island":        "Exuma",
		"price_per_day": 95.0,
		"photo_urls":    []string{"https://img.example.com/rav4.jpg"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create vehicle: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v struct {
		ID string `json:"id"`
	}
	decode(t, rec, &v)
	return v.ID
}

func TestBookingLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	ownerToken, _ := signup(t, handler, "owner@example.com", "owner")
	renterToken, _ := signup(t, handler, "renter@example.com", "renter")
	vehicleID := listVehicle(t, handler, ownerToken)

	// Renter finds the vehicle.
	rec := do(t, handler, http.MethodGet,
		fmt.Sprintf("/api/vehicles?island=Exuma&start=%s&end=%s", day(10), day(12)), renterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var found []struct {
		ID string `json:"id"`
	}
	decode(t, rec, &found)
	if len(found) != 1 || found[0].ID != vehicleID {
		t.Fatalf("search should return the listed vehicle, got %+v", found)
	}

	// Renter books it.
	rec = do(t, handler, http.MethodPost, "/api/bookings", renterToken, map[string]any{
		"vehicle_id": vehicleID,
		"start_date": day(10),
		"end_date":   day(12),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b struct {
		ID          string  `json:"id"`
		Status      string  `json:"status"`
		TotalAmount float64 `json:"total_amount"`
	}
	decode(t, rec, &b)
	if b.Status != "pending" {
		t.Fatalf("new booking status = %q, want pending", b.Status)
	}
	if b.TotalAmount != 190 {
		t.Fatalf("total amount = %v, want 190", b.TotalAmount)
	}

	// Overlapping request conflicts.
	rec = do(t, handler, http.MethodPost, "/api/bookings", renterToken, map[string]any{
		"vehicle_id": vehicleID,
		"start_date": day(11),
		"end_date":   day(13),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping booking: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	// Back-to-back is fine.
	rec = do(t, handler, http.MethodPost, "/api/bookings", renterToken, map[string]any{
		"vehicle_id": vehicleID,
		"start_date": day(12),
		"end_date":   day(14),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("back-to-back booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Renter cannot confirm their own booking.
	rec = do(t, handler, http.MethodPatch, "/api/bookings/"+b.ID+"/status", renterToken, map[string]any{"status": "confirmed"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("renter confirm: expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	// Owner confirms.
	rec = do(t, handler, http.MethodPatch, "/api/bookings/"+b.ID+"/status", ownerToken, map[string]any{"status": "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Confirm again is rejected.
	rec = do(t, handler, http.MethodPatch, "/api/bookings/"+b.ID+"/status", ownerToken, map[string]any{"status": "confirmed"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double confirm: expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	// Renter sees the confirmation notification.
	rec = do(t, handler, http.MethodGet, "/api/notifications", renterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", rec.Code)
	}
	var notes []struct {
		Type string `json:"type"`
	}
	decode(t, rec, &notes)
	hasConfirmed := false
	for _, n := range notes {
		if n.Type == "booking_confirmed" {
			hasConfirmed = true
		}
	}
	if !hasConfirmed {
		t.Fatalf("expected a booking_confirmed notification, got %+v", notes)
	}

	// Owner dashboard reflects the confirmed booking.
	rec = do(t, handler, http.MethodGet, "/api/owner/dashboard", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	var summary struct {
		Vehicles     []json.RawMessage `json:"vehicles"`
		GrossRevenue float64           `json:"gross_revenue"`
	}
	decode(t, rec, &summary)
	if len(summary.Vehicles) != 1 {
		t.Fatalf("dashboard vehicles = %d, want 1", len(summary.Vehicles))
	}
	if summary.GrossRevenue != 190 {
		t.Fatalf("dashboard revenue = %v, want 190", summary.GrossRevenue)
	}
}

func TestChatOverREST(t *testing.T) {
	handler := newTestHandler(t)

	ownerToken, ownerID := signup(t, handler, "owner@example.com", "owner")
	renterToken, _ := signup(t, handler, "renter@example.com", "renter")
	vehicleID := listVehicle(t, handler, ownerToken)

	rec := do(t, handler, http.MethodPost, "/api/conversations", renterToken, map[string]any{"vehicle_id": vehicleID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open conversation: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var conv struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	decode(t, rec, &conv)
	if conv.OwnerID != ownerID {
		t.Fatalf("conversation owner = %q, want %q", conv.OwnerID, ownerID)
	}

	// Opening again returns the same conversation.
	rec = do(t, handler, http.MethodPost, "/api/conversations", renterToken, map[string]any{"vehicle_id": vehicleID})
	var again struct {
		ID string `json:"id"`
	}
	decode(t, rec, &again)
	if again.ID != conv.ID {
		t.Fatalf("reopening created a second conversation: %q vs %q", again.ID, conv.ID)
	}

	rec = do(t, handler, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", renterToken,
		map[string]any{"body": "is this available next week?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Owner sees one unread conversation.
	rec = do(t, handler, http.MethodGet, "/api/conversations", ownerToken, nil)
	var convs []struct {
		ID     string `json:"id"`
		Unread int    `json:"unread"`
	}
	decode(t, rec, &convs)
	if len(convs) != 1 || convs[0].Unread != 1 {
		t.Fatalf("owner conversations = %+v, want one with unread=1", convs)
	}

	// Reading the messages clears the unread count.
	rec = do(t, handler, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodGet, "/api/conversations", ownerToken, nil)
	decode(t, rec, &convs)
	if convs[0].Unread != 0 {
		t.Fatalf("unread after read = %d, want 0", convs[0].Unread)
	}

	// A third user cannot read the conversation.
	strangerToken, _ := signup(t, handler, "stranger@example.com", "renter")
	rec = do(t, handler, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", strangerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger read: expected 403, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	handler := newTestHandler(t)

	rec := do(t, handler, http.MethodGet, "/api/bookings", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "renter@example.com", "renter")

	rec := do(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "renter@example.com",
		"password": "s3cret-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)

	me := do(t, handler, http.MethodGet, "/api/auth/me", resp.Token, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}
	var u struct {
		Email        string `json:"email"`
		PasswordHash string `json:"password_hash"`
	}
	decode(t, me, &u)
	if u.Email != "renter@example.com" {
		t.Fatalf("me email = %q", u.Email)
	}
	if u.PasswordHash != "" {
		t.Fatal("password hash must never be serialized")
	}
}

func TestLoginLockout(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "renter@example.com", "renter")

	for i := 0; i < 5; i++ {
		rec := do(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{
			"email":    "renter@example.com",
			"password": "wrong-password",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	// Even the right password is now throttled.
	rec := do(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "renter@example.com",
		"password": "s3cret-password",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked login: expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("locked login should set Retry-After")
	}
}

func TestRegisterValidation(t *testing.T) {
	handler := newTestHandler(t)

	tests := []struct {
		name    string
		payload map[string]any
		want    int
	}{
		{
			name:    "missing email",
			payload: map[string]any{"password": "s3cret-password", "role": "renter"},
			want:    http.StatusBadRequest,
		},
		{
			name:    "short password",
			payload: map[string]any{"email": "a@b.com", "password": "short", "role": "renter"},
			want:    http.StatusBadRequest,
		},
		{
			name:    "admin role rejected",
			payload: map[string]any{"email": "a@b.com", "password": "s3cret-password", "role": "admin"},
			want:    http.StatusBadRequest,
		},
		{
			name:    "unknown field",
			payload: map[string]any{"email": "a@b.com", "password": "s3cret-password", "role": "renter", "is_admin": true},
			want:    http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, "/api/auth/register", "", tt.payload)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	// Duplicate email conflicts.
	signup(t, handler, "dup@example.com", "renter")
	rec := do(t, handler, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "dup@example.com",
		"password": "s3cret-password",
		"role":     "renter",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", rec.Code)
	}
}

func TestVehicleOwnership(t *testing.T) {
	handler := newTestHandler(t)

	ownerToken, _ := signup(t, handler, "owner@example.com", "owner")
	otherToken, _ := signup(t, handler, "other@example.com", "owner")
	vehicleID := listVehicle(t, handler, ownerToken)

	rec := do(t, handler, http.MethodDelete, "/api/vehicles/"+vehicleID, otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodDelete, "/api/vehicles/"+vehicleID, ownerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/api/vehicles/"+vehicleID, ownerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted vehicle: expected 404, got %d", rec.Code)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	ownerToken, _ := signup(t, handler, "owner@example.com", "owner")
	renterToken, _ := signup(t, handler, "renter@example.com", "renter")
	vehicleID := listVehicle(t, handler, ownerToken)

	rec := do(t, handler, http.MethodPost, "/api/bookings", renterToken, map[string]any{
		"vehicle_id": vehicleID,
		"start_date": day(10),
		"end_date":   day(12),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: %d", rec.Code)
	}

	check := func(start, end string, want bool) {
		t.Helper()
		url := fmt.Sprintf("/api/vehicles/%s/availability?start=%s&end=%s", vehicleID, start, end)
		rec := do(t, handler, http.MethodGet, url, renterToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("availability: expected 200, got %d", rec.Code)
		}
		var resp struct {
			Available bool `json:"available"`
		}
		decode(t, rec, &resp)
		if resp.Available != want {
			t.Fatalf("available(%s, %s) = %v, want %v", start, end, resp.Available, want)
		}
	}

	check(day(10), day(12), false)
	check(day(11), day(13), false)
	check(day(12), day(14), true) // back-to-back
	check(day(1), day(5), true)
}

func TestOwnerRoleRequired(t *testing.T) {
	handler := newTestHandler(t)

	renterToken, _ := signup(t, handler, "renter@example.com", "renter")

	rec := do(t, handler, http.MethodPost, "/api/vehicles", renterToken, map[string]any{
		"make":          "Honda",
		"model":         "Fit",
		"year":          2021,
		"vehicle_type":  "car",
		"island":        "Nassau",
		"price_per_day": 60.0,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("renter listing a vehicle: expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, url := range []string{"/api/owner/vehicles", "/api/owner/bookings", "/api/owner/dashboard"} {
		rec := do(t, handler, http.MethodGet, url, renterToken, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("GET %s as renter: expected 403, got %d", url, rec.Code)
		}
	}

	// The owner role still passes.
	ownerToken, _ := signup(t, handler, "owner@example.com", "owner")
	listVehicle(t, handler, ownerToken)
	if rec := do(t, handler, http.MethodGet, "/api/owner/dashboard", ownerToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("GET /api/owner/dashboard as owner: expected 200, got %d", rec.Code)
	}
}

func TestVehicleBookingHistory(t *testing.T) {
	handler := newTestHandler(t)

	ownerToken, _ := signup(t, handler, "owner@example.com", "owner")
	renterToken, _ := signup(t, handler, "renter@example.com", "renter")
	vehicleID := listVehicle(t, handler, ownerToken)

	rec := do(t, handler, http.MethodPost, "/api/bookings", renterToken, map[string]any{
		"vehicle_id": vehicleID,
		"start_date": day(5),
		"end_date":   day(7),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/api/vehicles/"+vehicleID+"/bookings", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("vehicle bookings as owner: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var history []struct {
		VehicleID string `json:"vehicle_id"`
	}
	decode(t, rec, &history)
	if len(history) != 1 || history[0].VehicleID != vehicleID {
		t.Fatalf("expected 1 booking for %s, got %+v", vehicleID, history)
	}

	// Only the owner of the listing may read its history.
	rec = do(t, handler, http.MethodGet, "/api/vehicles/"+vehicleID+"/bookings", renterToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("vehicle bookings as renter: expected 403, got %d", rec.Code)
	}
}

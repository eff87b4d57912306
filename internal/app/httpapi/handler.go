// Package httpapi exposes the REST surface of the rental marketplace.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/IslandManSwevo/island-rides-api/internal/app"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/metrics"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/bookings"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/users"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/vehicles"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/internal/middleware"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

const (
	dateLayout = "2006-01-02"

	limiterCleanupInterval = 10 * time.Minute
	limiterMaxIdle         = time.Hour
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// New returns the fully assembled HTTP handler: routing, authentication,
// rate limiting, CORS, request logging and metrics instrumentation.
func New(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}
	router := h.routes()

	cfg := application.Config
	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), log, []string{
		"/healthz",
		"/metrics",
		"/api/auth/register",
		"/api/auth/login",
	})
	limiter := middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, log)
	// The limiter lives as long as the handler, so its cleanup loop does too.
	limiter.StartCleanup(limiterCleanupInterval, limiterMaxIdle, make(chan struct{}))

	var wrapped http.Handler = router
	wrapped = limiter.Handler(wrapped)
	wrapped = auth.Handler(wrapped)
	wrapped = metrics.InstrumentHandler(routePattern(router), wrapped)
	wrapped = middleware.RequestLogging(log)(wrapped)
	wrapped = middleware.CORS(cfg.CORS.AllowedOrigins)(wrapped)
	return wrapped
}

// routePattern resolves the mux path template for a request so metrics are
// labelled per route rather than per URL.
func routePattern(router *mux.Router) func(*http.Request) string {
	return func(r *http.Request) string {
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				return tpl
			}
		}
		return "unmatched"
	}
}

func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/ws/chat", h.app.Hub).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)

	api.HandleFunc("/vehicles", h.searchVehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles", h.createVehicle).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{id}", h.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", h.updateVehicle).Methods(http.MethodPut)
	api.HandleFunc("/vehicles/{id}", h.deleteVehicle).Methods(http.MethodDelete)
	api.HandleFunc("/vehicles/{id}/availability", h.vehicleAvailability).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/bookings", h.vehicleBookings).Methods(http.MethodGet)

	api.HandleFunc("/bookings", h.createBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", h.listBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", h.getBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/status", h.transitionBooking).Methods(http.MethodPatch)

	api.HandleFunc("/conversations", h.openConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.sendMessage).Methods(http.MethodPost)

	api.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)

	api.HandleFunc("/owner/vehicles", h.ownerVehicles).Methods(http.MethodGet)
	api.HandleFunc("/owner/bookings", h.ownerBookings).Methods(http.MethodGet)
	api.HandleFunc("/owner/dashboard", h.ownerDashboard).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- auth ----

type authResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Register(r.Context(), payload.Email, payload.Password,
		payload.FirstName, payload.LastName, user.Role(payload.Role))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: u})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password, middleware.ClientIP(r))
	if err != nil {
		if errors.Is(err, users.ErrLoginLocked) {
			metrics.RecordLoginLockout()
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ---- vehicles ----

type vehiclePayload struct {
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        int      `json:"year"`
	VehicleType string   `json:"vehicle_type"`
	Island      string   `json:"island"`
	Description string   `json:"description"`
	PricePerDay float64  `json:"price_per_day"`
	PhotoURLs   []string `json:"photo_urls"`
	Available   *bool    `json:"available"`
}

func (p vehiclePayload) toVehicle() vehicle.Vehicle {
	v := vehicle.Vehicle{
		Make:        p.Make,
		Model:       p.Model,
		Year:        p.Year,
		VehicleType: p.VehicleType,
		Island:      p.Island,
		Description: p.Description,
		PricePerDay: p.PricePerDay,
		PhotoURLs:   p.PhotoURLs,
		Available:   true,
	}
	if p.Available != nil {
		v.Available = *p.Available
	}
	return v
}

func (h *handler) searchVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := vehicle.SearchFilter{
		Island:      q.Get("island"),
		VehicleType: q.Get("vehicle_type"),
	}
	if raw := q.Get("min_price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid min_price"))
			return
		}
		filter.MinPrice = p
	}
	if raw := q.Get("max_price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid max_price"))
			return
		}
		filter.MaxPrice = p
	}
	if q.Get("start") != "" || q.Get("end") != "" {
		start, end, err := parseDateRange(q.Get("start"), q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Start, filter.End = start, end
	}

	result, err := h.app.Vehicles.Search(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requireOwner rejects callers whose token does not carry the owner or
// admin role.
func (h *handler) requireOwner(w http.ResponseWriter, r *http.Request) bool {
	switch user.Role(middleware.GetUserRole(r.Context())) {
	case user.RoleOwner, user.RoleAdmin:
		return true
	default:
		writeError(w, http.StatusForbidden, errOwnerRole)
		return false
	}
}

var errOwnerRole = errors.New("owner role required")

func (h *handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	var payload vehiclePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := h.app.Vehicles.Create(r.Context(), middleware.GetUserID(r.Context()), payload.toVehicle())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.Vehicles.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	var payload vehiclePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v := payload.toVehicle()
	v.ID = mux.Vars(r)["id"]
	updated, err := h.app.Vehicles.Update(r.Context(), middleware.GetUserID(r.Context()), v)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Vehicles.Delete(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) vehicleAvailability(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	available, err := h.app.Vehicles.Available(r.Context(), mux.Vars(r)["id"], start, end)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// vehicleBookings lists the booking history of one listing for its owner.
func (h *handler) vehicleBookings(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Bookings.ListForVehicle(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- bookings ----

func (h *handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VehicleID string `json:"vehicle_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, end, err := parseDateRange(payload.StartDate, payload.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	b, err := h.app.Bookings.Create(r.Context(), middleware.GetUserID(r.Context()), payload.VehicleID, start, end)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *handler) listBookings(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Bookings.ListForRenter(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.app.Bookings.Get(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) transitionBooking(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to := booking.Status(payload.Status)
	if !to.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("unknown booking status"))
		return
	}

	b, err := h.app.Bookings.Transition(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---- chat ----

func (h *handler) openConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VehicleID string `json:"vehicle_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conv, err := h.app.Chat.Open(r.Context(), middleware.GetUserID(r.Context()), payload.VehicleID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Chat.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	msgs, err := h.app.Chat.Messages(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.app.Chat.Send(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], payload.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ---- notifications ----

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Notifications.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkRead(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ---- owner ----

func (h *handler) ownerVehicles(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	result, err := h.app.Vehicles.ListByOwner(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) ownerBookings(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	result, err := h.app.Bookings.ListForOwner(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) ownerDashboard(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}
	summary, err := h.app.Dashboard.Summarize(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ---- helpers ----

// parseDateRange parses day-granularity YYYY-MM-DD bounds. Both must be set.
func parseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, errors.New("start and end dates are required")
	}
	start, err := time.ParseInLocation(dateLayout, startRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date, expected YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, endRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date, expected YYYY-MM-DD")
	}
	return start, end, nil
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, errors.New("not found"))
	case errors.Is(err, storage.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, bookings.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, bookings.ErrBadTransition):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, bookings.ErrNotParticipant),
		errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, vehicles.ErrNotOwner):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, users.ErrLoginLocked):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

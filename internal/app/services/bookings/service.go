package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/metrics"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// ErrConflict is returned when the requested interval overlaps an existing
// pending or confirmed booking for the same vehicle.
var ErrConflict = errors.New("vehicle already booked for the requested dates")

// ErrBadTransition is returned for a disallowed status change.
var ErrBadTransition = errors.New("invalid booking status transition")

// ErrNotParticipant is returned when a user acts on a booking they are not
// part of.
var ErrNotParticipant = errors.New("booking does not involve this user")

// Notifier delivers booking lifecycle notifications. Nil disables them.
type Notifier interface {
	Notify(ctx context.Context, userID string, t notification.Type, title, body string) error
}

// Service manages booking creation and lifecycle.
type Service struct {
	store    storage.BookingStore
	vehicles storage.VehicleStore
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a booking service.
func New(store storage.BookingStore, vehicles storage.VehicleStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("bookings")
	}
	return &Service{store: store, vehicles: vehicles, log: log, now: time.Now}
}

// AttachNotifier wires booking lifecycle notifications.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// Create books a vehicle over [start, end). Dates are truncated to UTC days.
// The request is rejected when the interval overlaps any blocking booking.
func (s *Service) Create(ctx context.Context, renterID, vehicleID string, start, end time.Time) (booking.Booking, error) {
	start = day(start)
	end = day(end)

	if !start.Before(end) {
		return booking.Booking{}, fmt.Errorf("end date must be after start date")
	}
	today := day(s.now().UTC())
	if start.Before(today) {
		return booking.Booking{}, fmt.Errorf("start date must not be in the past")
	}

	v, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("vehicle lookup failed: %w", err)
	}
	if !v.Available {
		return booking.Booking{}, fmt.Errorf("vehicle is not available for booking")
	}
	if v.OwnerID == renterID {
		return booking.Booking{}, fmt.Errorf("owners cannot book their own vehicle")
	}

	blocking, err := s.store.ListBlockingBookings(ctx, vehicleID, start, end)
	if err != nil {
		return booking.Booking{}, err
	}
	if len(blocking) > 0 {
		metrics.RecordBookingConflict()
		return booking.Booking{}, ErrConflict
	}

	days := int(end.Sub(start).Hours() / 24)
	created, err := s.store.CreateBooking(ctx, booking.Booking{
		VehicleID:   vehicleID,
		RenterID:    renterID,
		StartDate:   start,
		EndDate:     end,
		Status:      booking.StatusPending,
		TotalAmount: float64(days) * v.PricePerDay,
	})
	if err != nil {
		if errors.Is(err, storage.ErrBookingConflict) {
			metrics.RecordBookingConflict()
			return booking.Booking{}, ErrConflict
		}
		return booking.Booking{}, err
	}

	metrics.RecordBooking(string(created.Status))
	s.log.WithField("booking_id", created.ID).
		WithField("vehicle_id", vehicleID).
		WithField("renter_id", renterID).
		Info("booking created")

	s.notify(ctx, v.OwnerID, notification.TypeBookingRequested, "New booking request",
		fmt.Sprintf("%s %s requested %s to %s", v.Make, v.Model, start.Format("2006-01-02"), end.Format("2006-01-02")))

	return created, nil
}

// Transition moves a booking to a new status, enforcing both the lifecycle
// rules and who may perform each change: owners confirm, renters and owners
// may cancel, owners complete.
func (s *Service) Transition(ctx context.Context, actorID, bookingID string, to booking.Status) (booking.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return booking.Booking{}, err
	}

	v, err := s.vehicles.GetVehicle(ctx, b.VehicleID)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("vehicle lookup failed: %w", err)
	}

	isRenter := actorID == b.RenterID
	isOwner := actorID == v.OwnerID
	if !isRenter && !isOwner {
		return booking.Booking{}, ErrNotParticipant
	}

	switch to {
	case booking.StatusConfirmed, booking.StatusCompleted:
		if !isOwner {
			return booking.Booking{}, fmt.Errorf("only the owner may set status %s", to)
		}
	case booking.StatusCancelled:
		// Either side may cancel.
	default:
		return booking.Booking{}, ErrBadTransition
	}

	if !booking.CanTransition(b.Status, to) {
		return booking.Booking{}, ErrBadTransition
	}

	b.Status = to
	updated, err := s.store.UpdateBooking(ctx, b)
	if err != nil {
		return booking.Booking{}, err
	}

	metrics.RecordBooking(string(to))
	s.log.WithField("booking_id", b.ID).
		WithField("status", string(to)).
		Info("booking status changed")

	switch to {
	case booking.StatusConfirmed:
		s.notify(ctx, b.RenterID, notification.TypeBookingConfirmed, "Booking confirmed",
			fmt.Sprintf("Your booking of %s %s is confirmed", v.Make, v.Model))
	case booking.StatusCancelled:
		recipient := b.RenterID
		if isRenter {
			recipient = v.OwnerID
		}
		s.notify(ctx, recipient, notification.TypeBookingCancelled, "Booking cancelled",
			fmt.Sprintf("Booking of %s %s was cancelled", v.Make, v.Model))
	}

	return updated, nil
}

// Get returns a booking, restricted to its participants.
func (s *Service) Get(ctx context.Context, actorID, bookingID string) (booking.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	if b.RenterID != actorID {
		v, err := s.vehicles.GetVehicle(ctx, b.VehicleID)
		if err != nil || v.OwnerID != actorID {
			return booking.Booking{}, ErrNotParticipant
		}
	}
	return b, nil
}

// ListForRenter returns the renter's bookings.
func (s *Service) ListForRenter(ctx context.Context, renterID string) ([]booking.Booking, error) {
	return s.store.ListBookingsByRenter(ctx, renterID)
}

// ListForOwner returns bookings against the owner's vehicles.
func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]booking.Booking, error) {
	return s.store.ListBookingsByOwner(ctx, ownerID)
}

// ListForVehicle returns every booking against one vehicle, restricted to
// its owner.
func (s *Service) ListForVehicle(ctx context.Context, ownerID, vehicleID string) ([]booking.Booking, error) {
	v, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.OwnerID != ownerID {
		return nil, ErrNotParticipant
	}
	return s.store.ListBookingsByVehicle(ctx, vehicleID)
}

// ExpireStalePending cancels pending bookings created before the cutoff and
// returns how many were expired.
func (s *Service) ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.ListStalePendingBookings(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, b := range stale {
		b.Status = booking.StatusCancelled
		if _, err := s.store.UpdateBooking(ctx, b); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("expire stale booking failed")
			continue
		}
		metrics.RecordBooking(string(booking.StatusCancelled))
		s.notify(ctx, b.RenterID, notification.TypeBookingCancelled, "Booking expired",
			"Your booking request expired before the owner confirmed it")
		expired++
	}
	return expired, nil
}

func (s *Service) notify(ctx context.Context, userID string, t notification.Type, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, t, title, body); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("booking notification failed")
	}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

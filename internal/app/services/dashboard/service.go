package dashboard

import (
	"context"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// Summary aggregates an owner's fleet and booking activity.
type Summary struct {
	Vehicles        []vehicle.Vehicle `json:"vehicles"`
	PendingBookings []booking.Booking `json:"pending_bookings"`
	ActiveBookings  []booking.Booking `json:"active_bookings"`
	GrossRevenue    float64           `json:"gross_revenue"`
	CompletedTrips  int               `json:"completed_trips"`
}

// Service computes the owner dashboard.
type Service struct {
	vehicles storage.VehicleStore
	bookings storage.BookingStore
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a dashboard service.
func New(vehicles storage.VehicleStore, bookings storage.BookingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dashboard")
	}
	return &Service{vehicles: vehicles, bookings: bookings, log: log, now: time.Now}
}

// Summarize builds the owner's dashboard. Revenue counts confirmed and
// completed bookings; active bookings are confirmed ones whose interval
// covers today.
func (s *Service) Summarize(ctx context.Context, ownerID string) (Summary, error) {
	fleet, err := s.vehicles.ListVehicles(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}

	all, err := s.bookings.ListBookingsByOwner(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Vehicles: fleet}
	today := s.now().UTC()
	for _, b := range all {
		switch b.Status {
		case booking.StatusPending:
			summary.PendingBookings = append(summary.PendingBookings, b)
		case booking.StatusConfirmed:
			summary.GrossRevenue += b.TotalAmount
			if !b.StartDate.After(today) && today.Before(b.EndDate) {
				summary.ActiveBookings = append(summary.ActiveBookings, b)
			}
		case booking.StatusCompleted:
			summary.GrossRevenue += b.TotalAmount
			summary.CompletedTrips++
		}
	}
	return summary, nil
}

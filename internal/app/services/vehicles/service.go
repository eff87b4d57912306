package vehicles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// ErrNotOwner is returned when a user modifies a listing they do not own.
var ErrNotOwner = errors.New("vehicle does not belong to this owner")

var vehicleTypes = map[string]bool{
	"car":       true,
	"scooter":   true,
	"golf-cart": true,
	"boat":      true,
}

// Service manages vehicle listings and search.
type Service struct {
	store    storage.VehicleStore
	bookings storage.BookingStore
	log      *logger.Logger
}

// New constructs a vehicle service.
func New(store storage.VehicleStore, bookings storage.BookingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("vehicles")
	}
	return &Service{store: store, bookings: bookings, log: log}
}

// Create validates and persists a new listing for the owner.
func (s *Service) Create(ctx context.Context, ownerID string, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	v.OwnerID = ownerID
	if err := s.validate(&v); err != nil {
		return vehicle.Vehicle{}, err
	}
	v.Available = true

	created, err := s.store.CreateVehicle(ctx, v)
	if err != nil {
		return vehicle.Vehicle{}, err
	}
	s.log.WithField("vehicle_id", created.ID).
		WithField("owner_id", ownerID).
		Info("vehicle listed")
	return created, nil
}

// Update applies changes to a listing after checking ownership.
func (s *Service) Update(ctx context.Context, ownerID string, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	existing, err := s.store.GetVehicle(ctx, v.ID)
	if err != nil {
		return vehicle.Vehicle{}, err
	}
	if existing.OwnerID != ownerID {
		return vehicle.Vehicle{}, ErrNotOwner
	}
	if err := s.validate(&v); err != nil {
		return vehicle.Vehicle{}, err
	}
	return s.store.UpdateVehicle(ctx, v)
}

// Delete removes a listing after checking ownership.
func (s *Service) Delete(ctx context.Context, ownerID, vehicleID string) error {
	existing, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return ErrNotOwner
	}
	return s.store.DeleteVehicle(ctx, vehicleID)
}

// Get returns a single listing.
func (s *Service) Get(ctx context.Context, id string) (vehicle.Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

// ListByOwner returns the owner's listings.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]vehicle.Vehicle, error) {
	return s.store.ListVehicles(ctx, ownerID)
}

// Search returns available listings matching the filter.
func (s *Service) Search(ctx context.Context, filter vehicle.SearchFilter) ([]vehicle.Vehicle, error) {
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return nil, fmt.Errorf("price filters must not be negative")
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, fmt.Errorf("min price exceeds max price")
	}
	if filter.Start.IsZero() != filter.End.IsZero() {
		return nil, fmt.Errorf("availability window requires both start and end")
	}
	if !filter.Start.IsZero() && !filter.Start.Before(filter.End) {
		return nil, fmt.Errorf("availability window end must be after start")
	}
	return s.store.SearchVehicles(ctx, filter)
}

// Available reports whether the vehicle is free over [start, end).
func (s *Service) Available(ctx context.Context, vehicleID string, start, end time.Time) (bool, error) {
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	if !v.Available {
		return false, nil
	}
	if !start.Before(end) {
		return false, fmt.Errorf("end must be after start")
	}
	blocking, err := s.bookings.ListBlockingBookings(ctx, vehicleID, start, end)
	if err != nil {
		return false, err
	}
	return len(blocking) == 0, nil
}

func (s *Service) validate(v *vehicle.Vehicle) error {
	v.Make = strings.TrimSpace(v.Make)
	v.Model = strings.TrimSpace(v.Model)
	v.Island = strings.TrimSpace(v.Island)
	v.VehicleType = strings.ToLower(strings.TrimSpace(v.VehicleType))

	if v.Make == "" || v.Model == "" {
		return fmt.Errorf("make and model are required")
	}
	if v.Island == "" {
		return fmt.Errorf("island is required")
	}
	if v.VehicleType == "" {
		v.VehicleType = "car"
	}
	if !vehicleTypes[v.VehicleType] {
		return fmt.Errorf("unsupported vehicle type %q", v.VehicleType)
	}
	if v.PricePerDay <= 0 {
		return fmt.Errorf("price per day must be positive")
	}
	return nil
}

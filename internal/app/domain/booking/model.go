package booking

import "time"

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Booking reserves a vehicle over the half-open interval [StartDate, EndDate).
type Booking struct {
	ID          string    `json:"id"`
	VehicleID   string    `json:"vehicle_id"`
	RenterID    string    `json:"renter_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      Status    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Blocking reports whether the booking holds its date interval. Cancelled and
// completed bookings release the interval.
func (b Booking) Blocking() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// bookings (one ends the day another starts) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

package storage

import "errors"

// ErrDuplicateEmail is returned when a user registration collides with an
// existing email address.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrBookingConflict is returned when the store itself rejects a booking
// whose interval overlaps a blocking booking, closing the window between
// the service-level check and the insert.
var ErrBookingConflict = errors.New("booking interval overlaps an existing booking")

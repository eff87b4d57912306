package storage

import (
	"context"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
)

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// VehicleStore persists vehicle listings.
type VehicleStore interface {
	CreateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error)
	UpdateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (vehicle.Vehicle, error)
	ListVehicles(ctx context.Context, ownerID string) ([]vehicle.Vehicle, error)
	SearchVehicles(ctx context.Context, filter vehicle.SearchFilter) ([]vehicle.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
}

// BookingStore persists bookings and answers interval queries.
type BookingStore interface {
	CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error)
	UpdateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error)
	GetBooking(ctx context.Context, id string) (booking.Booking, error)
	ListBookingsByRenter(ctx context.Context, renterID string) ([]booking.Booking, error)
	ListBookingsByVehicle(ctx context.Context, vehicleID string) ([]booking.Booking, error)
	ListBookingsByOwner(ctx context.Context, ownerID string) ([]booking.Booking, error)
	// ListBlockingBookings returns pending and confirmed bookings for the
	// vehicle that overlap [start, end).
	ListBlockingBookings(ctx context.Context, vehicleID string, start, end time.Time) ([]booking.Booking, error)
	// ListStalePendingBookings returns pending bookings created before the cutoff.
	ListStalePendingBookings(ctx context.Context, cutoff time.Time) ([]booking.Booking, error)
}

// ChatStore persists conversations and messages.
type ChatStore interface {
	CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	FindConversation(ctx context.Context, vehicleID, renterID string) (chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)

	CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) error
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
}

// NotificationStore persists notification records.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (notification.Notification, error)
	// PurgeReadNotifications removes read notifications created before the cutoff
	// and returns how many were removed.
	PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int, error)
}

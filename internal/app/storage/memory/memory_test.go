package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
)

func day(offset int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestUserStore(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, user.User{Email: "  Ann@Example.COM ", Role: user.RoleRenter})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Email != "ann@example.com" {
		t.Fatalf("created = %+v", created)
	}

	if _, err := store.CreateUser(ctx, user.User{Email: "ann@example.com"}); !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateEmail", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "ANN@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Fatalf("get by email = %+v, %v", byEmail, err)
	}

	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing user err = %v, want sql.ErrNoRows", err)
	}
}

func TestBookingStoreBlockingQueries(t *testing.T) {
	store := New()
	ctx := context.Background()

	v, err := store.CreateVehicle(ctx, vehicle.Vehicle{
		OwnerID: "owner", Make: "Toyota", Model: "RAV4",
		VehicleType: "car", Island: "Nassau", PricePerDay: 85, Available: true,
	})
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	seed := []booking.Booking{
		{VehicleID: v.ID, RenterID: "r1", Status: booking.StatusPending, StartDate: day(0), EndDate: day(3)},
		{VehicleID: v.ID, RenterID: "r2", Status: booking.StatusConfirmed, StartDate: day(5), EndDate: day(8)},
		{VehicleID: v.ID, RenterID: "r3", Status: booking.StatusCancelled, StartDate: day(10), EndDate: day(13)},
		{VehicleID: v.ID, RenterID: "r4", Status: booking.StatusCompleted, StartDate: day(15), EndDate: day(18)},
	}
	for _, b := range seed {
		if _, err := store.CreateBooking(ctx, b); err != nil {
			t.Fatalf("create booking: %v", err)
		}
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"overlaps pending", day(2), day(4), 1},
		{"overlaps confirmed", day(4), day(6), 1},
		{"overlaps cancelled only", day(10), day(13), 0},
		{"overlaps completed only", day(15), day(18), 0},
		{"touches boundary", day(3), day(5), 0},
		{"spans everything", day(-5), day(20), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListBlockingBookings(ctx, v.ID, tt.start, tt.end)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBookingStoreOwnerListing(t *testing.T) {
	store := New()
	ctx := context.Background()

	mine, err := store.CreateVehicle(ctx, vehicle.Vehicle{OwnerID: "me", Make: "a", Model: "b", VehicleType: "car", Island: "Nassau", PricePerDay: 1, Available: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	theirs, err := store.CreateVehicle(ctx, vehicle.Vehicle{OwnerID: "them", Make: "a", Model: "b", VehicleType: "car", Island: "Nassau", PricePerDay: 1, Available: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.CreateBooking(ctx, booking.Booking{VehicleID: mine.ID, RenterID: "r1", Status: booking.StatusPending, StartDate: day(0), EndDate: day(1)}); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if _, err := store.CreateBooking(ctx, booking.Booking{VehicleID: theirs.ID, RenterID: "r1", Status: booking.StatusPending, StartDate: day(0), EndDate: day(1)}); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	got, err := store.ListBookingsByOwner(ctx, "me")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].VehicleID != mine.ID {
		t.Fatalf("owner bookings = %+v", got)
	}

	byRenter, err := store.ListBookingsByRenter(ctx, "r1")
	if err != nil {
		t.Fatalf("list renter: %v", err)
	}
	if len(byRenter) != 2 {
		t.Fatalf("renter bookings = %d, want 2", len(byRenter))
	}
}

func TestStalePendingSelection(t *testing.T) {
	store := New()
	ctx := context.Background()

	pending, err := store.CreateBooking(ctx, booking.Booking{VehicleID: "v", RenterID: "r", Status: booking.StatusPending, StartDate: day(0), EndDate: day(1)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateBooking(ctx, booking.Booking{VehicleID: "v", RenterID: "r", Status: booking.StatusConfirmed, StartDate: day(2), EndDate: day(3)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.ListStalePendingBookings(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Fatalf("stale = %+v, want only the pending booking", got)
	}

	got, err = store.ListStalePendingBookings(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("stale before cutoff = %+v, want none", got)
	}
}

func TestConversationsAndMessages(t *testing.T) {
	store := New()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, chat.Conversation{VehicleID: "v1", RenterID: "renter", OwnerID: "owner"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	found, err := store.FindConversation(ctx, "v1", "renter")
	if err != nil || found.ID != conv.ID {
		t.Fatalf("find = %+v, %v", found, err)
	}
	if _, err := store.FindConversation(ctx, "v1", "other"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("find miss err = %v, want sql.ErrNoRows", err)
	}

	for _, body := range []string{"first", "second"} {
		if _, err := store.CreateMessage(ctx, chat.Message{ConversationID: conv.ID, SenderID: "renter", Body: body}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	msgs, err := store.ListMessages(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" {
		t.Fatalf("messages = %+v", msgs)
	}

	unread, err := store.CountUnread(ctx, conv.ID, "owner")
	if err != nil || unread != 2 {
		t.Fatalf("unread = %d, %v; want 2", unread, err)
	}

	if err := store.MarkMessagesRead(ctx, conv.ID, "owner", time.Now().UTC()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err = store.CountUnread(ctx, conv.ID, "owner")
	if err != nil || unread != 0 {
		t.Fatalf("unread after mark = %d, %v; want 0", unread, err)
	}
}

func TestNotificationStore(t *testing.T) {
	store := New()
	ctx := context.Background()

	n, err := store.CreateNotification(ctx, notification.Notification{
		UserID: "u1", Type: notification.TypeBookingRequested, Title: "t", Body: "b",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := store.ListNotifications(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}

	read, err := store.MarkNotificationRead(ctx, n.ID, "u1")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !read.Read {
		t.Fatal("notification should be marked read")
	}

	// Wrong user cannot mark it.
	if _, err := store.MarkNotificationRead(ctx, n.ID, "u2"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign mark err = %v, want sql.ErrNoRows", err)
	}

	purged, err := store.PurgeReadNotifications(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil || purged != 1 {
		t.Fatalf("purged = %d, %v; want 1", purged, err)
	}
	list, err = store.ListNotifications(ctx, "u1")
	if err != nil || len(list) != 0 {
		t.Fatalf("list after purge = %+v", list)
	}
}

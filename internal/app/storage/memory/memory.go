package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	users         map[string]user.User
	usersByEmail  map[string]string
	vehicles      map[string]vehicle.Vehicle
	bookings      map[string]booking.Booking
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	notifications map[string]notification.Notification
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.VehicleStore = (*Store)(nil)
var _ storage.BookingStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]user.User),
		usersByEmail:  make(map[string]string),
		vehicles:      make(map[string]vehicle.Vehicle),
		bookings:      make(map[string]booking.Booking),
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		notifications: make(map[string]notification.Notification),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, storage.ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	return s.users[id], nil
}

// --- VehicleStore -----------------------------------------------------------

func (s *Store) CreateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.vehicles[v.ID] = v
	return v, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.vehicles[v.ID]
	if !ok {
		return vehicle.Vehicle{}, sql.ErrNoRows
	}
	v.OwnerID = existing.OwnerID
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	s.vehicles[v.ID] = v
	return v, nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (vehicle.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return vehicle.Vehicle{}, sql.ErrNoRows
	}
	return v, nil
}

func (s *Store) ListVehicles(ctx context.Context, ownerID string) ([]vehicle.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []vehicle.Vehicle
	for _, v := range s.vehicles {
		if ownerID == "" || v.OwnerID == ownerID {
			result = append(result, v)
		}
	}
	sortVehicles(result)
	return result, nil
}

func (s *Store) SearchVehicles(ctx context.Context, filter vehicle.SearchFilter) ([]vehicle.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []vehicle.Vehicle
	for _, v := range s.vehicles {
		if !v.Available {
			continue
		}
		if filter.Island != "" && !strings.EqualFold(v.Island, filter.Island) {
			continue
		}
		if filter.VehicleType != "" && !strings.EqualFold(v.VehicleType, filter.VehicleType) {
			continue
		}
		if filter.MinPrice > 0 && v.PricePerDay < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && v.PricePerDay > filter.MaxPrice {
			continue
		}
		if !filter.Start.IsZero() && !filter.End.IsZero() && s.hasBlockingLocked(v.ID, filter.Start, filter.End) {
			continue
		}
		result = append(result, v)
	}
	sortVehicles(result)
	return result, nil
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.vehicles, id)
	return nil
}

func sortVehicles(list []vehicle.Vehicle) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// --- BookingStore -----------------------------------------------------------

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.bookings[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bookings[b.ID]
	if !ok {
		return booking.Booking{}, sql.ErrNoRows
	}
	b.VehicleID = existing.VehicleID
	b.RenterID = existing.RenterID
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.bookings[b.ID] = b
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, sql.ErrNoRows
	}
	return b, nil
}

func (s *Store) ListBookingsByRenter(ctx context.Context, renterID string) ([]booking.Booking, error) {
	return s.listBookings(func(b booking.Booking) bool { return b.RenterID == renterID })
}

func (s *Store) ListBookingsByVehicle(ctx context.Context, vehicleID string) ([]booking.Booking, error) {
	return s.listBookings(func(b booking.Booking) bool { return b.VehicleID == vehicleID })
}

func (s *Store) ListBookingsByOwner(ctx context.Context, ownerID string) ([]booking.Booking, error) {
	s.mu.RLock()
	owned := make(map[string]bool)
	for id, v := range s.vehicles {
		if v.OwnerID == ownerID {
			owned[id] = true
		}
	}
	s.mu.RUnlock()
	return s.listBookings(func(b booking.Booking) bool { return owned[b.VehicleID] })
}

func (s *Store) ListBlockingBookings(ctx context.Context, vehicleID string, start, end time.Time) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []booking.Booking
	for _, b := range s.bookings {
		if b.VehicleID != vehicleID || !b.Blocking() {
			continue
		}
		if booking.Overlaps(start, end, b.StartDate, b.EndDate) {
			result = append(result, b)
		}
	}
	sortBookings(result)
	return result, nil
}

func (s *Store) ListStalePendingBookings(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	return s.listBookings(func(b booking.Booking) bool {
		return b.Status == booking.StatusPending && b.CreatedAt.Before(cutoff)
	})
}

func (s *Store) listBookings(match func(booking.Booking) bool) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []booking.Booking
	for _, b := range s.bookings {
		if match(b) {
			result = append(result, b)
		}
	}
	sortBookings(result)
	return result, nil
}

func (s *Store) hasBlockingLocked(vehicleID string, start, end time.Time) bool {
	for _, b := range s.bookings {
		if b.VehicleID == vehicleID && b.Blocking() && booking.Overlaps(start, end, b.StartDate, b.EndDate) {
			return true
		}
	}
	return false
}

func sortBookings(list []booking.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// --- ChatStore --------------------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) FindConversation(ctx context.Context, vehicleID, renterID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conversations {
		if c.VehicleID == vehicleID && c.RenterID == renterID {
			return c, nil
		}
	}
	return chat.Conversation{}, sql.ErrNoRows
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []chat.Conversation
	for _, c := range s.conversations {
		if c.Participant(userID) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[m.ConversationID]
	if !ok {
		return chat.Message{}, sql.ErrNoRows
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)

	conv.UpdatedAt = m.CreatedAt
	s.conversations[conv.ID] = conv
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && msgs[i].ReadAt.IsZero() {
			msgs[i].ReadAt = at.UTC()
		}
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderID != userID && m.ReadAt.IsZero() {
			count++
		}
	}
	return count, nil
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, sql.ErrNoRows
	}
	n.Read = true
	s.notifications[id] = n
	return n, nil
}

func (s *Store) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, n := range s.notifications {
		if n.Read && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			purged++
		}
	}
	return purged, nil
}

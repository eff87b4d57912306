package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/booking"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.VehicleStore = (*Store)(nil)
var _ storage.BookingStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return user.User{}, storage.ErrDuplicateEmail
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, first_name = $3, last_name = $4, role = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// --- VehicleStore -----------------------------------------------------------

func (s *Store) CreateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	photosJSON, err := json.Marshal(v.PhotoURLs)
	if err != nil {
		return vehicle.Vehicle{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, owner_id, make, model, year, vehicle_type, island, description, price_per_day, photo_urls, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, v.ID, v.OwnerID, v.Make, v.Model, v.Year, v.VehicleType, v.Island, v.Description, v.PricePerDay, photosJSON, v.Available, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return vehicle.Vehicle{}, err
	}
	return v, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v vehicle.Vehicle) (vehicle.Vehicle, error) {
	existing, err := s.GetVehicle(ctx, v.ID)
	if err != nil {
		return vehicle.Vehicle{}, err
	}
	v.OwnerID = existing.OwnerID
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()

	photosJSON, err := json.Marshal(v.PhotoURLs)
	if err != nil {
		return vehicle.Vehicle{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE vehicles
		SET make = $2, model = $3, year = $4, vehicle_type = $5, island = $6, description = $7, price_per_day = $8, photo_urls = $9, available = $10, updated_at = $11
		WHERE id = $1
	`, v.ID, v.Make, v.Model, v.Year, v.VehicleType, v.Island, v.Description, v.PricePerDay, photosJSON, v.Available, v.UpdatedAt)
	if err != nil {
		return vehicle.Vehicle{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return vehicle.Vehicle{}, sql.ErrNoRows
	}
	return v, nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (vehicle.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, make, model, year, vehicle_type, island, description, price_per_day, photo_urls, available, created_at, updated_at
		FROM vehicles
		WHERE id = $1
	`, id)

	var (
		v         vehicle.Vehicle
		photosRaw []byte
	)
	if err := row.Scan(&v.ID, &v.OwnerID, &v.Make, &v.Model, &v.Year, &v.VehicleType, &v.Island, &v.Description, &v.PricePerDay, &photosRaw, &v.Available, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return vehicle.Vehicle{}, err
	}
	if len(photosRaw) > 0 {
		_ = json.Unmarshal(photosRaw, &v.PhotoURLs)
	}
	return v, nil
}

func (s *Store) ListVehicles(ctx context.Context, ownerID string) ([]vehicle.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, make, model, year, vehicle_type, island, description, price_per_day, photo_urls, available, created_at, updated_at
		FROM vehicles
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVehicles(rows)
}

func (s *Store) SearchVehicles(ctx context.Context, filter vehicle.SearchFilter) ([]vehicle.Vehicle, error) {
	// The availability subquery excludes vehicles with a blocking booking
	// over the requested half-open window.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, make, model, year, vehicle_type, island, description, price_per_day, photo_urls, available, created_at, updated_at
		FROM vehicles v
		WHERE v.available
		  AND ($1 = '' OR LOWER(v.island) = LOWER($1))
		  AND ($2 = '' OR LOWER(v.vehicle_type) = LOWER($2))
		  AND ($3 <= 0 OR v.price_per_day >= $3)
		  AND ($4 <= 0 OR v.price_per_day <= $4)
		  AND ($5::timestamptz IS NULL OR NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.vehicle_id = v.id
			  AND b.status IN ('pending','confirmed')
			  AND b.start_date < $6 AND $5 < b.end_date
		  ))
		ORDER BY created_at
	`, filter.Island, filter.VehicleType, filter.MinPrice, filter.MaxPrice, toNullTime(filter.Start), toNullTime(filter.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVehicles(rows)
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM vehicles WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanVehicles(rows *sql.Rows) ([]vehicle.Vehicle, error) {
	var result []vehicle.Vehicle
	for rows.Next() {
		var (
			v         vehicle.Vehicle
			photosRaw []byte
		)
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Make, &v.Model, &v.Year, &v.VehicleType, &v.Island, &v.Description, &v.PricePerDay, &photosRaw, &v.Available, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		if len(photosRaw) > 0 {
			_ = json.Unmarshal(photosRaw, &v.PhotoURLs)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// --- BookingStore -----------------------------------------------------------

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.VehicleID, b.RenterID, b.StartDate, b.EndDate, b.Status, b.TotalAmount, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		// 23P01: the bookings_no_overlap exclusion constraint fired.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23P01" {
			return booking.Booking{}, storage.ErrBookingConflict
		}
		return booking.Booking{}, err
	}
	return b, nil
}

func (s *Store) UpdateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	existing, err := s.GetBooking(ctx, b.ID)
	if err != nil {
		return booking.Booking{}, err
	}
	b.VehicleID = existing.VehicleID
	b.RenterID = existing.RenterID
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET start_date = $2, end_date = $3, status = $4, total_amount = $5, updated_at = $6
		WHERE id = $1
	`, b.ID, b.StartDate, b.EndDate, b.Status, b.TotalAmount, b.UpdatedAt)
	if err != nil {
		return booking.Booking{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return booking.Booking{}, sql.ErrNoRows
	}
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`, id)

	var b booking.Booking
	if err := row.Scan(&b.ID, &b.VehicleID, &b.RenterID, &b.StartDate, &b.EndDate, &b.Status, &b.TotalAmount, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return booking.Booking{}, err
	}
	return b, nil
}

func (s *Store) ListBookingsByRenter(ctx context.Context, renterID string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at
		FROM bookings
		WHERE renter_id = $1
		ORDER BY created_at
	`, renterID)
}

func (s *Store) ListBookingsByVehicle(ctx context.Context, vehicleID string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at
		FROM bookings
		WHERE vehicle_id = $1
		ORDER BY created_at
	`, vehicleID)
}

func (s *Store) ListBookingsByOwner(ctx context.Context, ownerID string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT b.id, b.vehicle_id, b.renter_id, b.start_date, b.end_date, b.status, b.total_amount, b.created_at, b.updated_at
		FROM bookings b
		JOIN vehicles v ON v.id = b.vehicle_id
		WHERE v.owner_id = $1
		ORDER BY b.created_at
	`, ownerID)
}

func (s *Store) ListBlockingBookings(ctx context.Context, vehicleID string, start, end time.Time) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at
		FROM bookings
		WHERE vehicle_id = $1
		  AND status IN ('pending','confirmed')
		  AND start_date < $3 AND $2 < end_date
		ORDER BY start_date
	`, vehicleID, start, end)
}

func (s *Store) ListStalePendingBookings(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT id, vehicle_id, renter_id, start_date, end_date, status, total_amount, created_at, updated_at
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...interface{}) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []booking.Booking
	for rows.Next() {
		var b booking.Booking
		if err := rows.Scan(&b.ID, &b.VehicleID, &b.RenterID, &b.StartDate, &b.EndDate, &b.Status, &b.TotalAmount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// --- ChatStore --------------------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, vehicle_id, renter_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.VehicleID, c.RenterID, c.OwnerID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return chat.Conversation{}, err
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, renter_id, owner_id, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id))
}

func (s *Store) FindConversation(ctx context.Context, vehicleID, renterID string) (chat.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, renter_id, owner_id, created_at, updated_at
		FROM conversations
		WHERE vehicle_id = $1 AND renter_id = $2
	`, vehicleID, renterID))
}

func (s *Store) scanConversation(row *sql.Row) (chat.Conversation, error) {
	var c chat.Conversation
	if err := row.Scan(&c.ID, &c.VehicleID, &c.RenterID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return chat.Conversation{}, err
	}
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, renter_id, owner_id, created_at, updated_at
		FROM conversations
		WHERE renter_id = $1 OR owner_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		if err := rows.Scan(&c.ID, &c.VehicleID, &c.RenterID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt, toNullTime(m.ReadAt))
	if err != nil {
		return chat.Message{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = $2 WHERE id = $1
	`, m.ConversationID, m.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return chat.Message{}, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM (
			SELECT id, conversation_id, sender_id, body, created_at, read_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []chat.Message
	for rows.Next() {
		var (
			m      chat.Message
			readAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = readAt.Time.UTC()
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
	`, conversationID, readerID, at.UTC())
	return err
}

func (s *Store) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
	`, conversationID, userID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return notification.Notification{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notification.Notification{}, sql.ErrNoRows
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, body, read, created_at
		FROM notifications
		WHERE id = $1
	`, id)

	var n notification.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE read AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

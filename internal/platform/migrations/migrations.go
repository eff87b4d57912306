// Package migrations applies the database schema in order. Statements are
// idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT 'renter',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		make          TEXT NOT NULL,
		model         TEXT NOT NULL,
		year          INTEGER NOT NULL DEFAULT 0,
		vehicle_type  TEXT NOT NULL DEFAULT 'car',
		island        TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		price_per_day DOUBLE PRECISION NOT NULL DEFAULT 0,
		photo_urls    JSONB,
		available     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		vehicle_id   TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		renter_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_date   TIMESTAMPTZ NOT NULL,
		end_date     TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		CHECK (start_date < end_date)
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_vehicle_window_idx
		ON bookings (vehicle_id, start_date, end_date)
		WHERE status IN ('pending','confirmed')`,
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	// Overlap rejection at the database level so concurrent requests cannot
	// both pass the service-side conflict check.
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
			EXCLUDE USING gist (
				vehicle_id WITH =,
				tstzrange(start_date, end_date) WITH &&
			) WHERE (status IN ('pending','confirmed'));
	EXCEPTION WHEN duplicate_object OR duplicate_table THEN NULL;
	END $$`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		renter_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (vehicle_id, renter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body            TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		read_at         TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes all schema statements against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

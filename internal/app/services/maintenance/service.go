// Package maintenance runs scheduled housekeeping sweeps.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IslandManSwevo/island-rides-api/internal/app/services/bookings"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/notifications"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/users"
	"github.com/IslandManSwevo/island-rides-api/internal/app/system"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Sweeper expires stale pending bookings, purges old read notifications and
// trims the login guard on cron schedules.
type Sweeper struct {
	cron          *cron.Cron
	bookings      *bookings.Service
	notifications *notifications.Service
	guard         *users.LoginGuard
	log           *logger.Logger

	// PendingTTL is how long a booking may stay pending before it expires.
	PendingTTL time.Duration
	// ReadRetention is how long read notifications are kept.
	ReadRetention time.Duration
}

// New constructs a sweeper with default schedules.
func New(b *bookings.Service, n *notifications.Service, guard *users.LoginGuard, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	return &Sweeper{
		cron:          cron.New(),
		bookings:      b,
		notifications: n,
		guard:         guard,
		log:           log,
		PendingTTL:    48 * time.Hour,
		ReadRetention: 30 * 24 * time.Hour,
	}
}

func (s *Sweeper) Name() string { return "maintenance-sweeper" }

// Start registers and launches the cron jobs.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@hourly", func() { s.expirePending(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@daily", func() { s.purgeNotifications(ctx) }); err != nil {
		return err
	}
	if s.guard != nil {
		if _, err := s.cron.AddFunc("@every 10m", s.guard.Sweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info("maintenance sweeper started")
	return nil
}

// Stop halts the cron scheduler, waiting for running jobs.
func (s *Sweeper) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("maintenance sweeper stopped")
	return nil
}

func (s *Sweeper) expirePending(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := s.bookings.ExpireStalePending(ctx, time.Now().UTC().Add(-s.PendingTTL))
	if err != nil {
		s.log.WithError(err).Warn("expire pending bookings sweep failed")
		return
	}
	if expired > 0 {
		s.log.WithField("expired", expired).Info("stale pending bookings expired")
	}
}

func (s *Sweeper) purgeNotifications(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.notifications.PurgeRead(ctx, s.ReadRetention); err != nil {
		s.log.WithError(err).Warn("notification purge sweep failed")
	}
}

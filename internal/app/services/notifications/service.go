package notifications

import (
	"context"
	"time"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// Service manages per-user notification records.
type Service struct {
	store storage.NotificationStore
	log   *logger.Logger
}

// New constructs a notification service.
func New(store storage.NotificationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, log: log}
}

// Notify records a notification for the user. Satisfies bookings.Notifier and
// chat.Notifier.
func (s *Service) Notify(ctx context.Context, userID string, t notification.Type, title, body string) error {
	_, err := s.store.CreateNotification(ctx, notification.Notification{
		UserID: userID,
		Type:   t,
		Title:  title,
		Body:   body,
	})
	return err
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]notification.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

// MarkRead marks one notification read. The userID check prevents marking
// another user's notification.
func (s *Service) MarkRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	return s.store.MarkNotificationRead(ctx, id, userID)
}

// PurgeRead removes read notifications older than the retention period.
func (s *Service) PurgeRead(ctx context.Context, retention time.Duration) (int, error) {
	purged, err := s.store.PurgeReadNotifications(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.WithField("purged", purged).Info("read notifications purged")
	}
	return purged, nil
}

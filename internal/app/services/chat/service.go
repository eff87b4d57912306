package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	chatdomain "github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/notification"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// ErrNotParticipant is returned when a user touches a conversation they are
// not part of.
var ErrNotParticipant = errors.New("user is not part of this conversation")

// Notifier records a notification for a user, used when the recipient has no
// live WebSocket connection.
type Notifier interface {
	Notify(ctx context.Context, userID string, t notification.Type, title, body string) error
}

// Presence reports whether a user currently has a live chat connection.
type Presence interface {
	Online(userID string) bool
}

// ConversationSummary decorates a conversation with its unread count for the
// requesting user.
type ConversationSummary struct {
	chatdomain.Conversation
	Unread int `json:"unread"`
}

// Service manages conversations and message persistence.
type Service struct {
	store    storage.ChatStore
	vehicles storage.VehicleStore
	notifier Notifier
	presence Presence
	log      *logger.Logger
}

// New constructs a chat service.
func New(store storage.ChatStore, vehicles storage.VehicleStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("chat")
	}
	return &Service{store: store, vehicles: vehicles, log: log}
}

// AttachNotifier wires offline-recipient notifications.
func (s *Service) AttachNotifier(n Notifier) { s.notifier = n }

// AttachPresence wires the live-connection tracker.
func (s *Service) AttachPresence(p Presence) { s.presence = p }

// Open returns the conversation between the renter and the vehicle's owner,
// creating it on first contact.
func (s *Service) Open(ctx context.Context, renterID, vehicleID string) (chatdomain.Conversation, error) {
	v, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return chatdomain.Conversation{}, fmt.Errorf("vehicle lookup failed: %w", err)
	}
	if v.OwnerID == renterID {
		return chatdomain.Conversation{}, fmt.Errorf("cannot open a conversation with yourself")
	}

	if existing, err := s.store.FindConversation(ctx, vehicleID, renterID); err == nil {
		return existing, nil
	}

	conv, err := s.store.CreateConversation(ctx, chatdomain.Conversation{
		VehicleID: vehicleID,
		RenterID:  renterID,
		OwnerID:   v.OwnerID,
	})
	if err != nil {
		return chatdomain.Conversation{}, err
	}
	s.log.WithField("conversation_id", conv.ID).
		WithField("vehicle_id", vehicleID).
		Info("conversation opened")
	return conv, nil
}

// Get returns a conversation, restricted to participants.
func (s *Service) Get(ctx context.Context, userID, conversationID string) (chatdomain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return chatdomain.Conversation{}, err
	}
	if !conv.Participant(userID) {
		return chatdomain.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// List returns the user's conversations with unread counts, most recently
// active first.
func (s *Service) List(ctx context.Context, userID string) ([]ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		unread, err := s.store.CountUnread(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		result = append(result, ConversationSummary{Conversation: c, Unread: unread})
	}
	return result, nil
}

// Send persists a message from the sender. When the peer is offline a
// notification record is created instead of a live delivery.
func (s *Service) Send(ctx context.Context, senderID, conversationID, body string) (chatdomain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return chatdomain.Message{}, fmt.Errorf("message body is required")
	}

	conv, err := s.Get(ctx, senderID, conversationID)
	if err != nil {
		return chatdomain.Message{}, err
	}

	msg, err := s.store.CreateMessage(ctx, chatdomain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	})
	if err != nil {
		return chatdomain.Message{}, err
	}

	peer := conv.Peer(senderID)
	if s.notifier != nil && (s.presence == nil || !s.presence.Online(peer)) {
		if err := s.notifier.Notify(ctx, peer, notification.TypeMessage, "New message", preview(body)); err != nil {
			s.log.WithError(err).WithField("user_id", peer).Warn("message notification failed")
		}
	}
	return msg, nil
}

// Messages returns recent messages and marks the reader's unread messages
// as read.
func (s *Service) Messages(ctx context.Context, userID, conversationID string, limit int) ([]chatdomain.Message, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, conversationID, userID, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("mark messages read failed")
	}
	return msgs, nil
}

const previewRunes = 80

// preview truncates a message body for notification text on a rune boundary.
func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewRunes])
}

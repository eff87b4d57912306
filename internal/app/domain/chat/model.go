package chat

import "time"

// Conversation links a renter and a vehicle owner around a listing. There is
// at most one conversation per (vehicle, renter) pair.
type Conversation struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicle_id"`
	RenterID  string    `json:"renter_id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant reports whether the user belongs to the conversation.
func (c Conversation) Participant(userID string) bool {
	return userID == c.RenterID || userID == c.OwnerID
}

// Peer returns the other participant.
func (c Conversation) Peer(userID string) string {
	if userID == c.RenterID {
		return c.OwnerID
	}
	return c.RenterID
}

// Message is a single chat message within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	ReadAt         time.Time `json:"read_at,omitempty"`
}

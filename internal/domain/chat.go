package domain

import "time"

// Role is the actor role of an authenticated user.
type Role string

const (
	RoleFleetManager Role = "fleet_manager"
	RoleDriver       Role = "driver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleFleetManager || r == RoleDriver
}

// Identity is the current user as resolved by the authentication layer.
type Identity struct {
	UserID string
	Role   Role
}

// MessageStatus represents delivery progress of a chat message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Attachment is a durable reference to a stored blob. The raw bytes are never
// kept on the message. Key is what gets persisted; URL is a signed link
// minted each time the message is read.
type Attachment struct {
	Key         string
	URL         string
	MIMEType    string
	Fingerprint string
	Size        int64
}

// ChatMessage is a message between a fleet manager and a driver.
type ChatMessage struct {
	ID            string
	SenderID      string
	SenderRole    Role
	RecipientID   string
	RecipientRole Role
	TripID        *string
	Text          *string
	Attachment    *Attachment
	Status        MessageStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IsDeleted     bool
}

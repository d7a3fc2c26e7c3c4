package repository

import (
	"context"

	"fleetops/internal/domain"
)

// ChatRepository defines the persistence operations for chat messages.
type ChatRepository interface {
	// Create persists a new message.
	Create(ctx context.Context, msg *domain.ChatMessage) error

	// GetByID retrieves a non-deleted message by ID.
	GetByID(ctx context.Context, id string) (*domain.ChatMessage, error)

	// Conversation retrieves the non-deleted messages exchanged between two
	// users, oldest first.
	Conversation(ctx context.Context, userA, userB string, limit int) ([]*domain.ChatMessage, error)

	// UpdateStatus sets the delivery status of a message.
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error

	// SoftDelete marks a message as deleted.
	SoftDelete(ctx context.Context, id string) error
}

package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
)

const (
	previewRunes            = 80
	defaultConversationSize = 100
)

// ChatService handles messages between fleet managers and drivers.
type ChatService struct {
	chatRepo    repository.ChatRepository
	trips       *TripService
	attachments *AttachmentProvisioner
	dispatcher  *Dispatcher
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewChatService creates a new ChatService. A nil clock uses time.Now.
func NewChatService(
	chatRepo repository.ChatRepository,
	trips *TripService,
	attachments *AttachmentProvisioner,
	dispatcher *Dispatcher,
	log logrus.FieldLogger,
	now func() time.Time,
) *ChatService {
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		chatRepo:    chatRepo,
		trips:       trips,
		attachments: attachments,
		dispatcher:  dispatcher,
		log:         log,
		now:         now,
	}
}

// SendMessageRequest contains the parameters for sending a message.
type SendMessageRequest struct {
	Sender      domain.Identity
	RecipientID string
	TripID      *string
	Text        *string
	// Image is an encoded JPEG, PNG or WebP image. Optional.
	Image io.Reader
}

// SendMessageResult is the stored message and the conversation re-read
// after the write.
type SendMessageResult struct {
	Message      *domain.ChatMessage
	Conversation []*domain.ChatMessage
}

// SendMessage stores a message, notifies the recipient and returns the
// refreshed conversation.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if !req.Sender.Role.Valid() || req.Sender.UserID == "" {
		return nil, ErrForbidden
	}
	recipient := strings.TrimSpace(req.RecipientID)
	if recipient == "" || recipient == req.Sender.UserID {
		return nil, fmt.Errorf("%w: recipient", ErrInvalidMessage)
	}

	var text *string
	if req.Text != nil {
		if t := strings.TrimSpace(*req.Text); t != "" {
			text = &t
		}
	}
	if text == nil && req.Image == nil {
		return nil, fmt.Errorf("%w: text or image required", ErrInvalidMessage)
	}

	var trip *domain.Trip
	if req.TripID != nil {
		var err error
		if trip, err = s.trips.GetTrip(ctx, *req.TripID, DriverScope(req.Sender)); err != nil {
			return nil, err
		}
	}

	var attachment *domain.Attachment
	if req.Image != nil {
		var err error
		if attachment, err = s.attachments.ProvisionReader(ctx, req.Image); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	msg := &domain.ChatMessage{
		ID:            uuid.New().String(),
		SenderID:      req.Sender.UserID,
		SenderRole:    req.Sender.Role,
		RecipientID:   recipient,
		RecipientRole: counterpart(req.Sender.Role),
		TripID:        req.TripID,
		Text:          text,
		Attachment:    attachment,
		Status:        domain.MessageStatusSent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.chatRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if _, err := s.dispatcher.Dispatch(ctx, Event{
		Type:           domain.NotificationChatMessage,
		Trip:           trip,
		Recipients:     roleRecipients(msg.RecipientRole, recipient),
		MessagePreview: preview(msg),
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"sender_id":  msg.SenderID,
		"has_image":  attachment != nil,
	}).Info("chat message sent")

	stored, err := s.chatRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	// Fingerprint and size are not persisted; keep them on the returned copy.
	if stored.Attachment != nil && attachment != nil {
		stored.Attachment.Fingerprint = attachment.Fingerprint
		stored.Attachment.Size = attachment.Size
	}

	conversation, err := s.chatRepo.Conversation(ctx, msg.SenderID, msg.RecipientID, defaultConversationSize)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if err := s.sign(ctx, append(conversation, stored)...); err != nil {
		return nil, err
	}

	return &SendMessageResult{Message: stored, Conversation: conversation}, nil
}

// Conversation returns the messages between viewer and other, oldest first.
// Messages addressed to viewer that were only sent become delivered.
func (s *ChatService) Conversation(ctx context.Context, viewer domain.Identity, otherID string, limit int) ([]*domain.ChatMessage, error) {
	if otherID == "" {
		return nil, fmt.Errorf("%w: counterpart", ErrInvalidMessage)
	}
	if limit <= 0 {
		limit = defaultConversationSize
	}

	msgs, err := s.chatRepo.Conversation(ctx, viewer.UserID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	for _, m := range msgs {
		if m.RecipientID != viewer.UserID || m.Status != domain.MessageStatusSent {
			continue
		}
		if err := s.chatRepo.UpdateStatus(ctx, m.ID, domain.MessageStatusDelivered); err != nil {
			s.log.WithError(err).WithField("message_id", m.ID).Warn("mark message delivered failed")
			continue
		}
		m.Status = domain.MessageStatusDelivered
	}
	if err := s.sign(ctx, msgs...); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead marks a message addressed to viewer as read.
func (s *ChatService) MarkRead(ctx context.Context, viewer domain.Identity, id string) (*domain.ChatMessage, error) {
	msg, err := s.chatRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != viewer.UserID {
		if msg.SenderID == viewer.UserID {
			return nil, ErrForbidden
		}
		return nil, repository.ErrNotFound
	}
	if msg.Status != domain.MessageStatusRead {
		if err := s.chatRepo.UpdateStatus(ctx, id, domain.MessageStatusRead); err != nil {
			return nil, fmt.Errorf("mark message read: %w", err)
		}
	}
	if msg, err = s.chatRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.sign(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it.
func (s *ChatService) DeleteMessage(ctx context.Context, viewer domain.Identity, id string) error {
	msg, err := s.chatRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != viewer.UserID {
		if msg.RecipientID == viewer.UserID {
			return ErrForbidden
		}
		return repository.ErrNotFound
	}
	if err := s.chatRepo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// sign replaces the stored attachment keys with links valid from now.
func (s *ChatService) sign(ctx context.Context, msgs ...*domain.ChatMessage) error {
	for _, m := range msgs {
		if m.Attachment == nil {
			continue
		}
		if err := s.attachments.Sign(ctx, m.Attachment); err != nil {
			return err
		}
	}
	return nil
}

func counterpart(r domain.Role) domain.Role {
	if r == domain.RoleDriver {
		return domain.RoleFleetManager
	}
	return domain.RoleDriver
}

func roleRecipients(role domain.Role, userID string) *Recipients {
	r := &Recipients{Exclusive: true}
	if role == domain.RoleDriver {
		r.DriverID = &userID
	} else {
		r.FleetManagerID = &userID
	}
	return r
}

func preview(msg *domain.ChatMessage) string {
	if msg.Text == nil {
		return "Photo"
	}
	text := *msg.Text
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}
